// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	badgerstore "github.com/AleutianAI/cairn/services/goals/store/badger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	provider *Provider
	clock    *time.Time
	events   *[]Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := epoch
	h := &harness{clock: &now}
	p, err := New(s, Config{Secret: testSecret, BcryptCost: bcrypt.MinCost},
		WithClock(func() time.Time { return *h.clock }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	h.provider = p

	var (
		mu     sync.Mutex
		events []Event
	)
	h.events = &events
	unsubscribe := p.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	t.Cleanup(unsubscribe)
	return h
}

func (h *harness) signupAndLogin(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()
	_, err := h.provider.Signup(ctx, datatypes.SignupRequest{Email: "Ada@Example.com ", Password: "secret1", DisplayName: " Ada "})
	require.NoError(t, err)
	s, err := h.provider.Login(ctx, datatypes.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	return s
}

func TestNew_Config(t *testing.T) {
	_, err := New(nil, Config{Secret: "short"})
	assert.Error(t, err)

	_, err = New(nil, Config{Secret: testSecret, BcryptCost: 99})
	assert.Error(t, err)

	p, err := New(nil, Config{Secret: testSecret, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.Equal(t, "cairn", p.cfg.Issuer)
	assert.Equal(t, 7*24*time.Hour, p.cfg.TokenTTL)
	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestSignupLoginValidate(t *testing.T) {
	h := newHarness(t)
	s := h.signupAndLogin(t)

	assert.NotEmpty(t, s.Token)
	assert.Equal(t, epoch.Add(7*24*time.Hour), s.ExpiresAt)
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.Equal(t, "Ada", s.User.DisplayName)
	assert.NotEqual(t, "secret1", s.User.PasswordHash)

	info, err := h.provider.Validate(context.Background(), s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, info.UserID)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, "Ada", info.DisplayName)
	assert.NotEmpty(t, info.SessionID)

	u, err := h.provider.User(context.Background(), info.UserID)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, u.ID)

	require.Len(t, *h.events, 2)
	assert.Equal(t, EventSignedUp, (*h.events)[0].Type)
	assert.Equal(t, EventLoggedIn, (*h.events)[1].Type)
	assert.Equal(t, s.User.ID, (*h.events)[1].UserID)
}

func TestSignup_Errors(t *testing.T) {
	h := newHarness(t)
	h.signupAndLogin(t)
	ctx := context.Background()

	_, err := h.provider.Signup(ctx, datatypes.SignupRequest{Email: "ADA@example.com", Password: "another"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = h.provider.Signup(ctx, datatypes.SignupRequest{Email: "bob@example.com", Password: "12345"})
	require.Error(t, err)
	var ve *datatypes.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "password", ve.Field)

	_, err = h.provider.Signup(ctx, datatypes.SignupRequest{Email: "not-an-email", Password: "123456"})
	assert.ErrorIs(t, err, datatypes.ErrValidation)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.signupAndLogin(t)
	ctx := context.Background()

	_, err := h.provider.Login(ctx, datatypes.LoginRequest{Email: "ada@example.com", Password: "wrong!"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.provider.Login(ctx, datatypes.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.provider.Login(ctx, datatypes.LoginRequest{Email: "ada@example.com"})
	assert.ErrorIs(t, err, datatypes.ErrValidation)
}

func TestValidate_Rejects(t *testing.T) {
	h := newHarness(t)
	s := h.signupAndLogin(t)
	ctx := context.Background()

	other, err := New(nil, Config{Secret: strings.Repeat("z", 32), BcryptCost: bcrypt.MinCost},
		WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	defer other.Close()
	foreign, err := other.issue(datatypes.User{ID: "u-x", Email: "x@example.com"})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "cairn",
		Subject:   s.User.ID,
		ID:        "j-1",
		ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.token",
		"tampered":   s.Token + "x",
		"foreign":    foreign.Token,
		"alg none":   none,
		"whitespace": "   ",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.provider.Validate(ctx, token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestValidate_Expired(t *testing.T) {
	h := newHarness(t)
	s := h.signupAndLogin(t)

	*h.clock = s.ExpiresAt.Add(time.Second)
	_, err := h.provider.Validate(context.Background(), s.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "expired")
}

func TestLogout_RevokesUntilExpiry(t *testing.T) {
	h := newHarness(t)
	s := h.signupAndLogin(t)
	ctx := context.Background()

	require.NoError(t, h.provider.Logout(ctx, s.Token))
	_, err := h.provider.Validate(ctx, s.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, EventLoggedOut, (*h.events)[2].Type)

	// a fresh login is a new session
	again, err := h.provider.Login(ctx, datatypes.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = h.provider.Validate(ctx, again.Token)
	assert.NoError(t, err)

	assert.Equal(t, 0, h.provider.sweep())
	*h.clock = s.ExpiresAt
	assert.Equal(t, 1, h.provider.sweep())
	assert.False(t, h.provider.isRevoked("anything"))

	assert.ErrorIs(t, h.provider.Logout(ctx, "bogus"), ErrUnauthorized)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	var count int
	unsubscribe := h.provider.Subscribe(func(Event) { count++ })

	h.signupAndLogin(t)
	assert.Equal(t, 2, count)

	unsubscribe()
	unsubscribe()
	_, err := h.provider.Login(context.Background(), datatypes.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, *h.events, 3)
}

func TestSweeperStopsOnClose(t *testing.T) {
	p, err := New(nil, Config{Secret: testSecret, BcryptCost: bcrypt.MinCost, SweepInterval: time.Millisecond})
	require.NoError(t, err)
	p.mu.Lock()
	p.revoked["old"] = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	assert.Eventually(t, func() bool { return !p.isRevoked("old") }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
}
