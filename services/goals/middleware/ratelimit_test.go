// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(RateLimitConfig{PerMinute: 60, Burst: 2})
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients are limited independently")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestIPRateLimiter_ForgetsIdleClients(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	now = now.Add(2 * time.Minute)
	l.Allow("c")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "c")
}

func TestIPRateLimiter_SweepsOncePerIdleTTL(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := start
	l := NewIPRateLimiter(RateLimitConfig{IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = start.Add(time.Minute)
	l.Allow("b")

	// "a" is now idle past the TTL, but the last sweep was 40s ago
	now = start.Add(100 * time.Second)
	for i := range 100 {
		l.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	l.mu.Lock()
	assert.Contains(t, l.clients, "a")
	assert.Equal(t, start.Add(time.Minute), l.lastSweep)
	l.mu.Unlock()

	now = start.Add(130 * time.Second)
	l.Allow("c")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, now, l.lastSweep)
	assert.NotContains(t, l.clients, "a")
	assert.NotContains(t, l.clients, "b")
	assert.Contains(t, l.clients, "c")
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 1})
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "61", w.Header().Get("Retry-After"))
}
