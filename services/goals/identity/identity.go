// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity issues and validates Cairn session tokens.
//
// A Provider owns the whole auth state of the service: accounts live in the
// store, sessions are stateless HS256 tokens, and logged-out sessions are
// remembered in a revocation list until the token would have expired anyway.
//
//	Signup ──► bcrypt hash ──► store.CreateUser
//	Login  ──► bcrypt verify ──► signed token (sub, email, name, jti, iat, exp)
//	Logout ──► revoke jti ──► sweeper forgets it after exp
//
// # Thread Safety
//
// Provider is safe for concurrent use. Subscribers are called synchronously
// on the goroutine that caused the event and must not block.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/cairn/pkg/extensions"
	"github.com/AleutianAI/cairn/pkg/logging"
	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnauthorized is returned for missing, malformed, expired or revoked
	// tokens.
	ErrUnauthorized = extensions.ErrUnauthorized

	// ErrEmailTaken is returned by Signup when the email is registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 32

// =============================================================================
// Events
// =============================================================================

// EventType names a session change.
type EventType string

const (
	EventSignedUp  EventType = "signed_up"
	EventLoggedIn  EventType = "logged_in"
	EventLoggedOut EventType = "logged_out"
)

// Event is delivered to subscribers after a session change succeeds.
type Event struct {
	Type   EventType
	UserID string
	At     time.Time
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a Provider.
type Config struct {
	// Secret signs and verifies tokens. Required, at least MinSecretBytes.
	Secret string

	// Issuer is written to and required in the iss claim. Default: "cairn".
	Issuer string

	// TokenTTL is the session lifetime. Default: 7 days.
	TokenTTL time.Duration

	// SweepInterval is how often expired revocations are forgotten.
	// Default: 1 minute.
	SweepInterval time.Duration

	// BcryptCost is the password hashing cost. Default: bcrypt.DefaultCost.
	BcryptCost int
}

func (c *Config) applyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "cairn"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
}

// Option customizes a Provider.
type Option func(*Provider)

// WithClock replaces time.Now. Tests use it to expire tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the provider's logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// =============================================================================
// Provider
// =============================================================================

// Session is the result of a successful login.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      datatypes.User `json:"user"`
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Provider is the service's identity provider. It implements
// extensions.AuthProvider.
type Provider struct {
	users  store.UserStore
	cfg    Config
	secret []byte
	now    func() time.Time
	logger *logging.Logger

	// dummyHash keeps unknown-email logins as slow as wrong-password ones.
	dummyHash []byte

	mu      sync.Mutex
	revoked map[string]time.Time

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ extensions.AuthProvider = (*Provider)(nil)

// New creates a Provider and starts its revocation sweeper.
//
// # Inputs
//
//   - users: Account storage.
//   - cfg: Provider configuration. Secret is required.
//
// # Outputs
//
//   - *Provider: Ready to use. Call Close to stop the sweeper.
//   - error: Non-nil when the configuration is unusable.
func New(users store.UserStore, cfg Config, opts ...Option) (*Provider, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("identity: secret must be at least %d bytes", MinSecretBytes)
	}
	cfg.applyDefaults()
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("identity: bcrypt cost %d out of range", cfg.BcryptCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: prepare password hasher: %w", err)
	}

	p := &Provider{
		users:     users,
		cfg:       cfg,
		secret:    []byte(cfg.Secret),
		now:       time.Now,
		logger:    logging.Nop(),
		dummyHash: dummy,
		revoked:   make(map[string]time.Time),
		subs:      make(map[int]func(Event)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.sweepLoop()
	return p, nil
}

func (p *Provider) clock() time.Time {
	return p.now().UTC()
}

// Signup registers an account.
//
// # Description
//
// Validates and normalizes the request, hashes the password with bcrypt and
// stores the user. The email is compared case-insensitively.
//
// # Outputs
//
//   - datatypes.User: The new account, hash included.
//   - error: A *datatypes.ValidationError, ErrEmailTaken, or a store error.
func (p *Provider) Signup(ctx context.Context, req datatypes.SignupRequest) (datatypes.User, error) {
	if err := req.Validate(); err != nil {
		return datatypes.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cfg.BcryptCost)
	if err != nil {
		return datatypes.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := datatypes.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    p.clock(),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return datatypes.User{}, ErrEmailTaken
		}
		return datatypes.User{}, err
	}

	p.logger.Info("user signed up", "user_id", user.ID)
	p.publish(Event{Type: EventSignedUp, UserID: user.ID, At: user.CreatedAt})
	return user, nil
}

// Login verifies the credentials and issues a session token.
func (p *Provider) Login(ctx context.Context, req datatypes.LoginRequest) (Session, error) {
	if err := req.Validate(); err != nil {
		return Session{}, err
	}

	user, err := p.users.GetUserByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(req.Password))
		return Session{}, ErrInvalidCredentials
	case err != nil:
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	session, err := p.issue(user)
	if err != nil {
		return Session{}, err
	}
	p.logger.Info("user logged in", "user_id", user.ID)
	p.publish(Event{Type: EventLoggedIn, UserID: user.ID, At: p.clock()})
	return session, nil
}

func (p *Provider) issue(user datatypes.User) (Session, error) {
	now := p.clock()
	exp := now.Add(p.cfg.TokenTTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: user.Email,
		Name:  user.DisplayName,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, ExpiresAt: c.ExpiresAt.Time.UTC(), User: user}, nil
}

// Logout revokes the token's session until the token expires.
// Logging out twice is not an error for a still-valid signature.
func (p *Provider) Logout(ctx context.Context, token string) error {
	c, err := p.parse(token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.revoked[c.ID] = c.ExpiresAt.Time
	p.mu.Unlock()

	p.logger.Info("user logged out", "user_id", c.Subject)
	p.publish(Event{Type: EventLoggedOut, UserID: c.Subject, At: p.clock()})
	return nil
}

// Validate implements extensions.AuthProvider.
//
// # Description
//
// Verifies the signature, issuer and expiry, and rejects revoked sessions.
// The store is not consulted.
//
// # Outputs
//
//   - *extensions.AuthInfo: The principal on success.
//   - error: ErrUnauthorized (wrapped) on any failure.
func (p *Provider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	c, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	if p.isRevoked(c.ID) {
		return nil, fmt.Errorf("session revoked: %w", ErrUnauthorized)
	}
	return &extensions.AuthInfo{
		UserID:      c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
		SessionID:   c.ID,
	}, nil
}

// User loads the account behind a principal.
func (p *Provider) User(ctx context.Context, userID string) (datatypes.User, error) {
	return p.users.GetUser(ctx, userID)
}

func (p *Provider) parse(token string) (*claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", ErrUnauthorized)
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", describeJWTError(err), ErrUnauthorized)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("token missing sub or jti: %w", ErrUnauthorized)
	}
	return &c, nil
}

func describeJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature invalid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer mismatch"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token algorithm rejected"
	default:
		return "token invalid"
	}
}

func (p *Provider) isRevoked(jti string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.revoked[jti]
	return ok
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers fn for session events and returns a function that
// removes it. Calling the returned function more than once is harmless.
func (p *Provider) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.subMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		delete(p.subs, id)
		p.subMu.Unlock()
	}
}

func (p *Provider) publish(ev Event) {
	p.subMu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// =============================================================================
// Revocation sweeper
// =============================================================================

func (p *Provider) sweepLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if n := p.sweep(); n > 0 {
				p.logger.Debug("revocations expired", "count", n)
			}
		}
	}
}

// sweep forgets revocations whose token has expired and returns how many.
func (p *Provider) sweep() int {
	now := p.clock()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for jti, exp := range p.revoked {
		if !exp.After(now) {
			delete(p.revoked, jti)
			n++
		}
	}
	return n
}

// Close stops the sweeper. Safe to call more than once.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
	return nil
}
