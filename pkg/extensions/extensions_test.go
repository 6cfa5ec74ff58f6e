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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ServiceOptions Tests
// =============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Nil(t, opts.AuthProvider)
	require.NotNil(t, opts.AuditLogger)
	assert.IsType(t, &NopAuditLogger{}, opts.AuditLogger)
}

func TestServiceOptions_FluentChaining(t *testing.T) {
	provider := &StaticAuthProvider{Info: AuthInfo{UserID: "u-1"}}
	audit := &MemoryAuditLogger{}

	base := DefaultOptions()
	opts := base.WithAuth(provider).WithAudit(audit)

	assert.Same(t, provider, opts.AuthProvider)
	assert.Same(t, audit, opts.AuditLogger)
	assert.Nil(t, base.AuthProvider, "WithAuth must not mutate the receiver")
}

// =============================================================================
// StaticAuthProvider Tests
// =============================================================================

func TestStaticAuthProvider_Validate(t *testing.T) {
	provider := &StaticAuthProvider{Info: AuthInfo{UserID: "u-1", Email: "a@example.com"}}

	info, err := provider.Validate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "u-1", info.UserID)

	info.UserID = "mutated"
	again, err := provider.Validate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "u-1", again.UserID, "returned principal must be a copy")
}

func TestStaticAuthProvider_RejectsEmptyToken(t *testing.T) {
	provider := &StaticAuthProvider{Info: AuthInfo{UserID: "u-1"}}
	_, err := provider.Validate(context.Background(), "")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

// =============================================================================
// Audit Logger Tests
// =============================================================================

func TestNopAuditLogger(t *testing.T) {
	logger := &NopAuditLogger{}
	assert.NoError(t, logger.Log(context.Background(), AuditEvent{EventType: "goal.created"}))
	assert.NoError(t, logger.Flush(context.Background()))
}

func TestMemoryAuditLogger_RecordsInOrder(t *testing.T) {
	logger := &MemoryAuditLogger{}
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, AuditEvent{EventType: "goal.created", Timestamp: time.Now()}))
	require.NoError(t, logger.Log(ctx, AuditEvent{EventType: "goal.deleted"}))

	events := logger.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "goal.created", events[0].EventType)
	assert.Equal(t, "goal.deleted", events[1].EventType)

	events[0].EventType = "changed"
	assert.Equal(t, "goal.created", logger.Events()[0].EventType)
}

func TestMemoryAuditLogger_Concurrent(t *testing.T) {
	logger := &MemoryAuditLogger{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Log(context.Background(), AuditEvent{EventType: "task.toggled"})
		}()
	}
	wg.Wait()
	assert.Len(t, logger.Events(), 50)
}
