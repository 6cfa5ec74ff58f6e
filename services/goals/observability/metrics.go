// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the goals service.
//
// # Description
//
// Metrics include:
//   - HTTP request counters and latency histograms (by route and method)
//   - Goal, task and reflection mutation counters
//   - Session event counters (signups, logins, logouts)
//   - Store error counters by kind
//
// Metrics implements tracker.Observer so the tracker reports domain events
// without importing Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/cairn/services/goals/store"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "cairn"

const (
	httpSubsystem     = "http"
	trackerSubsystem  = "tracker"
	identitySubsystem = "identity"
	storeSubsystem    = "store"
)

// Metrics holds every Prometheus collector of the service.
//
// # Fields
//
//   - HTTPRequestsTotal: Requests by route, method and status code.
//   - HTTPRequestDuration: Request latency by route and method.
//   - GoalMutationsTotal: Goal writes by operation (create, update, ...).
//   - TaskMutationsTotal: Task writes by operation (add, toggle, ...).
//   - ReflectionSavesTotal: Reflection upserts.
//   - SessionEventsTotal: Identity events by type.
//   - StoreErrorsTotal: Store failures surfaced to clients, by kind.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	GoalMutationsTotal   *prometheus.CounterVec
	TaskMutationsTotal   *prometheus.CounterVec
	ReflectionSavesTotal prometheus.Counter
	SessionEventsTotal   *prometheus.CounterVec
	StoreErrorsTotal     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
//
// # Inputs
//
//   - reg: Registry to register with. The service owns one registry per
//     instance so that tests can build several services.
//
// # Outputs
//
//   - *Metrics: Ready to use.
//
// # Limitations
//
//   - Panics when called twice with the same registry (duplicate
//     registration), like promauto does.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"route", "method"},
		),

		GoalMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: trackerSubsystem,
				Name:      "goal_mutations_total",
				Help:      "Total goal mutations by operation",
			},
			[]string{"op"},
		),

		TaskMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: trackerSubsystem,
				Name:      "task_mutations_total",
				Help:      "Total weekly task mutations by operation",
			},
			[]string{"op"},
		),

		ReflectionSavesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: trackerSubsystem,
				Name:      "reflection_saves_total",
				Help:      "Total monthly reflection upserts",
			},
		),

		SessionEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: identitySubsystem,
				Name:      "session_events_total",
				Help:      "Total session events by type",
			},
			[]string{"event"},
		),

		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: storeSubsystem,
				Name:      "errors_total",
				Help:      "Total store errors surfaced to clients by kind",
			},
			[]string{"kind"},
		),
	}
}

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind labels a store failure.
type ErrorKind string

const (
	// ErrorKindConflict is a transaction that lost a write race.
	ErrorKindConflict ErrorKind = "conflict"

	// ErrorKindInternal is any other store failure.
	ErrorKindInternal ErrorKind = "internal"
)

// =============================================================================
// Recording
// =============================================================================

// GoalChanged implements tracker.Observer.
func (m *Metrics) GoalChanged(op string) {
	m.GoalMutationsTotal.WithLabelValues(op).Inc()
}

// TaskChanged implements tracker.Observer.
func (m *Metrics) TaskChanged(op string) {
	m.TaskMutationsTotal.WithLabelValues(op).Inc()
}

// ReflectionSaved implements tracker.Observer.
func (m *Metrics) ReflectionSaved() {
	m.ReflectionSavesTotal.Inc()
}

// RecordSessionEvent counts an identity event such as "logged_in".
func (m *Metrics) RecordSessionEvent(event string) {
	m.SessionEventsTotal.WithLabelValues(event).Inc()
}

// RecordStoreError counts a store failure.
func (m *Metrics) RecordStoreError(kind ErrorKind) {
	m.StoreErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordRequest records one finished HTTP request.
//
// # Inputs
//
//   - route: The matched route template, e.g. "/v1/goals/:id".
//   - method: The HTTP method.
//   - status: The response status code.
//   - elapsed: Time spent serving the request.
func (m *Metrics) RecordRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// GinMiddleware records every request after the handler chain finishes.
//
// # Description
//
// Unmatched routes are labeled "unmatched" to keep cardinality bounded.
// Errors attached to the context with c.Error are classified: a store
// conflict answered with 409 and any error answered with 500 count as
// store errors.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.RecordRequest(route, c.Request.Method, status, time.Since(start))

		if len(c.Errors) == 0 {
			return
		}
		switch status {
		case http.StatusConflict:
			for _, e := range c.Errors {
				if errors.Is(e.Err, store.ErrConflict) {
					m.RecordStoreError(ErrorKindConflict)
					break
				}
			}
		case http.StatusInternalServerError:
			m.RecordStoreError(ErrorKindInternal)
		}
	}
}
