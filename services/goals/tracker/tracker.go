// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracker is the application service for goals, weekly tasks and
// monthly reflections.
//
// # Description
//
// Tracker validates requests, enforces ownership and runs every
// read-modify-write against the store. It keeps each goal's derived
// completion percentage equal to the roll-up of its weekly tasks by
// recomputing it inside the same store transaction as the task change.
//
// # Ownership
//
// Every method takes the caller's user id. A goal owned by someone else is
// reported exactly like a missing goal (ErrNotFound) so that ids cannot be
// probed.
//
// # Thread Safety
//
// Tracker is safe for concurrent use. Concurrent task edits on the same goal
// are serialized by the store; the loser receives store.ErrConflict.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/cairn/pkg/extensions"
	"github.com/AleutianAI/cairn/pkg/logging"
	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store"
)

var (
	// ErrValidation matches every rejected input.
	ErrValidation = datatypes.ErrValidation

	// ErrNotFound is returned for missing records and for goals owned by
	// another user.
	ErrNotFound = store.ErrNotFound

	// ErrConflict is returned when a concurrent edit won.
	ErrConflict = store.ErrConflict
)

// ValidationError names the rejected field.
type ValidationError = datatypes.ValidationError

// Observer receives domain events, typically to update metrics.
type Observer interface {
	GoalChanged(op string)
	TaskChanged(op string)
	ReflectionSaved()
}

type nopObserver struct{}

func (nopObserver) GoalChanged(string) {}
func (nopObserver) TaskChanged(string) {}
func (nopObserver) ReflectionSaved()   {}

// Config controls optional tracker behaviour.
type Config struct {
	// CascadeDeletes removes a goal's weeks and reflections with the goal.
	// Default false: they are left in the store, unreachable.
	CascadeDeletes bool

	// SweepConcurrency bounds how many goals the reflections feed reads in
	// parallel. Default: 4.
	SweepConcurrency int
}

// Tracker implements the goal tracking operations.
type Tracker struct {
	store    store.Store
	cfg      Config
	now      func() time.Time
	logger   *logging.Logger
	audit    extensions.AuditLogger
	observer Observer
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger. Default: logging.Nop().
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithAuditLogger records an audit event for every mutation.
func WithAuditLogger(a extensions.AuditLogger) Option {
	return func(t *Tracker) { t.audit = a }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// New creates a Tracker over s.
func New(s store.Store, cfg Config, opts ...Option) *Tracker {
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	t := &Tracker{
		store:    s,
		cfg:      cfg,
		now:      time.Now,
		logger:   logging.Nop(),
		audit:    &extensions.NopAuditLogger{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC()
}

func (t *Tracker) today() civil.Date {
	return civil.DateOf(t.clock())
}

// ownedGoal loads a goal and hides it unless userID owns it.
func (t *Tracker) ownedGoal(ctx context.Context, userID, goalID string) (datatypes.Goal, error) {
	g, err := t.store.GetGoal(ctx, goalID)
	if err != nil {
		return datatypes.Goal{}, err
	}
	if !g.OwnedBy(userID) {
		return datatypes.Goal{}, fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
	}
	return g, nil
}

// errNotOwner is returned from inside store callbacks when the goal belongs
// to someone else; it aborts the transaction and is reported as ErrNotFound.
var errNotOwner = fmt.Errorf("not the goal owner: %w", ErrNotFound)

func (t *Tracker) record(ctx context.Context, userID, eventType, resourceType, resourceID string, metadata map[string]any) {
	event := extensions.AuditEvent{
		EventType:    eventType,
		Timestamp:    t.clock(),
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      "success",
		Metadata:     metadata,
	}
	if err := t.audit.Log(ctx, event); err != nil {
		t.logger.Warn("audit log failed", "event", eventType, "error", err)
	}
}

// IsValidation reports whether err is a rejected input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
