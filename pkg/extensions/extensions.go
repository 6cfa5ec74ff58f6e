// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the pluggable seams of the Cairn service.
//
// The service works out of the box with its built-in identity provider and a
// no-op audit logger. Deployments can swap either through ServiceOptions:
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(oidcProvider).
//	    WithAudit(auditSink)
//	svc, err := goals.New(cfg, &opts)
package extensions

// ServiceOptions carries the optional collaborators of the service.
//
// # Fields
//
//   - AuthProvider: Token validator. Nil means "use the built-in identity
//     provider".
//   - AuditLogger: Receiver of audit events. Never nil after DefaultOptions.
type ServiceOptions struct {
	AuthProvider AuthProvider
	AuditLogger  AuditLogger
}

// DefaultOptions returns options with the built-in identity provider and a
// no-op audit logger.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger: &NopAuditLogger{},
	}
}

// WithAuth returns a copy using the given token validator.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy using the given audit logger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
