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
	"sync"
	"time"
)

// AuditEvent records a state change made on behalf of a user.
//
// # Fields
//
//   - EventType: Category such as "goal.created", "reflection.saved".
//   - Timestamp: When the change happened (UTC).
//   - UserID: Principal that made the change.
//   - ResourceType: "goal", "week", "reflection", "user".
//   - ResourceID: Identifier of the changed record.
//   - Outcome: "success" or "failure".
//   - Metadata: Free-form details (never secrets).
type AuditEvent struct {
	EventType    string
	Timestamp    time.Time
	UserID       string
	ResourceType string
	ResourceID   string
	Outcome      string
	Metadata     map[string]any
}

// AuditLogger receives audit events.
//
// # Description
//
// Audit logging is best effort: callers log failures to record an event but
// never fail the user's request because of them.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records one event.
	Log(ctx context.Context, event AuditEvent) error

	// Flush persists buffered events. Called during shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

// Log implements AuditLogger.
func (l *NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

// Flush implements AuditLogger.
func (l *NopAuditLogger) Flush(context.Context) error { return nil }

// MemoryAuditLogger keeps events in memory. Used by tests and the local CLI.
type MemoryAuditLogger struct {
	mu     sync.Mutex
	events []AuditEvent
}

// Log implements AuditLogger.
func (l *MemoryAuditLogger) Log(_ context.Context, event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Flush implements AuditLogger.
func (l *MemoryAuditLogger) Flush(context.Context) error { return nil }

// Events returns a copy of the recorded events in arrival order.
func (l *MemoryAuditLogger) Events() []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEvent, len(l.events))
	copy(out, l.events)
	return out
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
