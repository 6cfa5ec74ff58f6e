// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when a token is missing, malformed, expired or
// revoked. Providers wrap it with detail:
//
//	return nil, fmt.Errorf("token revoked: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the authenticated principal attached to a request.
//
// Required fields:
//   - UserID: Unique identifier for the user, never empty.
//
// Optional fields:
//   - Email: Login email address.
//   - DisplayName: Name shown in the UI.
//   - SessionID: Identifier of the session/token that produced this principal.
type AuthInfo struct {
	UserID      string
	Email       string
	DisplayName string
	SessionID   string
}

// AuthProvider validates bearer tokens.
//
// # Description
//
// The built-in implementation is the identity service, which issues signed
// session tokens. Deployments fronted by an external identity provider can
// supply their own implementation through ServiceOptions.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks the token and returns the principal.
	//
	// Returns ErrUnauthorized (or a wrapped form) when the token is not
	// acceptable; any other error is treated as a provider failure.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// StaticAuthProvider authenticates every request as the same principal.
//
// It exists for single-user local deployments and tests. Empty tokens are
// rejected so anonymous-only routes keep working.
type StaticAuthProvider struct {
	Info AuthInfo
}

// Validate implements AuthProvider.
func (p *StaticAuthProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	info := p.Info
	return &info, nil
}

var _ AuthProvider = (*StaticAuthProvider)(nil)
