// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cairn/services/goals/store"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetrics_RegistersEverything(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.GoalChanged("create")
	m.TaskChanged("add")
	m.ReflectionSaved()
	m.RecordSessionEvent("logged_in")
	m.RecordStoreError(ErrorKindConflict)
	m.RecordRequest("/v1/goals", http.MethodGet, 200, 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"cairn_http_requests_total",
		"cairn_http_request_duration_seconds",
		"cairn_tracker_goal_mutations_total",
		"cairn_tracker_task_mutations_total",
		"cairn_tracker_reflection_saves_total",
		"cairn_identity_session_events_total",
		"cairn_store_errors_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestObserverCounters(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.TaskChanged("toggle")
	m.TaskChanged("toggle")
	m.TaskChanged("add")
	m.ReflectionSaved()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TaskMutationsTotal.WithLabelValues("toggle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskMutationsTotal.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReflectionSavesTotal))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestMetrics(t)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/v1/goals/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/v1/goals/a", "/v1/goals/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/v1/goals/:id", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "404")))
}

func TestGinMiddleware_CountsStoreErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestMetrics(t)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("update week: %w", store.ErrConflict))
		c.Status(http.StatusConflict)
	})
	r.GET("/taken", func(c *gin.Context) {
		_ = c.Error(errors.New("email already registered"))
		c.Status(http.StatusConflict)
	})
	r.GET("/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("disk full"))
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/conflict", "/taken", "/broken", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("internal")))
}
