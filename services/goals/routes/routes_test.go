// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/cairn/services/goals/identity"
	"github.com/AleutianAI/cairn/services/goals/middleware"
	"github.com/AleutianAI/cairn/services/goals/observability"
	badgerstore "github.com/AleutianAI/cairn/services/goals/store/badger"
	"github.com/AleutianAI/cairn/services/goals/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T, limiter *middleware.IPRateLimiter) *api {
	t.Helper()
	s, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := func() time.Time { return now }
	p, err := identity.New(s, identity.Config{Secret: "0123456789abcdef0123456789abcdef", BcryptCost: bcrypt.MinCost},
		identity.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	router := gin.New()
	router.Use(metrics.GinMiddleware())
	SetupRoutes(router, Deps{
		Tracker:     tracker.New(s, tracker.Config{CascadeDeletes: true}, tracker.WithClock(clock), tracker.WithObserver(metrics)),
		Identity:    p,
		AuthLimiter: limiter,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (a *api) signup(email string) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": email, "password": "hunter22"})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session](a.t, w).Token
}

type goalJSON struct {
	ID                   string `json:"id"`
	Completed            bool   `json:"completed"`
	CompletionPercentage int    `json:"completion_percentage"`
}

func (a *api) createGoal(token string) goalJSON {
	a.t.Helper()
	w := a.do(http.MethodPost, "/v1/goals", token, map[string]string{
		"title":      "Run a half marathon",
		"category":   "Health",
		"priority":   "High",
		"start_date": "2024-01-15",
		"end_date":   "2024-03-10",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[goalJSON](a.t, w)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t, nil)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/health", "", nil).Code)

	a.do(http.MethodGet, "/health", "", nil)
	w := a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cairn_http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t, nil)
	token := a.signup("ada@example.com")

	me := a.do(http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "ada@example.com")
	assert.NotContains(t, me.Body.String(), "password")

	// anonymous-only routes refuse a logged-in caller
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/auth/login", token,
		map[string]string{"email": "ada@example.com", "password": "hunter22"}).Code)

	dup := a.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "ADA@example.com", "password": "hunter22"})
	assert.Equal(t, http.StatusConflict, dup.Code)

	bad := a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	short := a.do(http.MethodPost, "/v1/auth/signup", "", map[string]string{"email": "bob@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, short.Code)
	assert.Equal(t, "password", decode[map[string]string](t, short)["field"])

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodPost, "/v1/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/auth/me", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/goals", "", nil).Code)
}

func TestAuthRateLimit(t *testing.T) {
	a := newAPI(t, middleware.NewIPRateLimiter(middleware.RateLimitConfig{PerMinute: 1, Burst: 2}))
	body := map[string]string{"email": "x@example.com", "password": "whatever"}

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/auth/login", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/auth/login", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/v1/auth/login", "", body).Code)
}

func TestGoalLifecycle(t *testing.T) {
	a := newAPI(t, nil)
	token := a.signup("ada@example.com")
	other := a.signup("eve@example.com")
	g := a.createGoal(token)

	detail := a.do(http.MethodGet, "/v1/goals/"+g.ID, token, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	d := decode[struct {
		Months        []string `json:"months"`
		Weeks         []string `json:"weeks"`
		CurrentWeek   string   `json:"current_week"`
		DaysRemaining int      `json:"days_remaining"`
	}](t, detail)
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, d.Months)
	assert.Len(t, d.Weeks, 9)
	assert.Equal(t, "2024-01-14", d.CurrentWeek)
	assert.Equal(t, 50, d.DaysRemaining)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/goals/"+g.ID, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/goals/missing", token, nil).Code)

	missing := a.do(http.MethodPost, "/v1/goals", token, map[string]string{"title": "No end"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "end_date", decode[map[string]string](t, missing)["field"])

	patched := a.do(http.MethodPatch, "/v1/goals/"+g.ID, token, map[string]string{"title": "Run a full marathon"})
	require.Equal(t, http.StatusOK, patched.Code)
	assert.Contains(t, patched.Body.String(), "Run a full marathon")

	done := a.do(http.MethodPost, "/v1/goals/"+g.ID+"/complete", token, nil)
	require.Equal(t, http.StatusOK, done.Code)
	assert.True(t, decode[goalJSON](t, done).Completed)

	list := a.do(http.MethodGet, "/v1/goals?status=completed", token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[struct {
		Goals []goalJSON `json:"goals"`
	}](t, list).Goals, 1)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/goals?status=someday", token, nil).Code)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/dashboard", token, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/progress", token, nil).Code)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, "/v1/goals/"+g.ID, other, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/v1/goals/"+g.ID, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/goals/"+g.ID, token, nil).Code)
}

type weekUpdate struct {
	Week struct {
		ID        string `json:"id"`
		Completed bool   `json:"completed"`
		Tasks     []struct {
			ID        string `json:"id"`
			Completed bool   `json:"completed"`
		} `json:"tasks"`
	} `json:"week"`
	GoalCompletion int `json:"goal_completion_percentage"`
}

func TestWeeklyTasks(t *testing.T) {
	a := newAPI(t, nil)
	token := a.signup("ada@example.com")
	g := a.createGoal(token)
	base := "/v1/goals/" + g.ID + "/weeks/2024-01-14"

	empty := a.do(http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, empty.Code)
	assert.Empty(t, decode[weekUpdate](t, empty).Week.ID)

	var ids []string
	for _, title := range []string{"long run", "intervals", "rest"} {
		w := a.do(http.MethodPost, base+"/tasks", token, map[string]string{"title": title})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		up := decode[weekUpdate](t, w)
		ids = append(ids, up.Week.Tasks[len(up.Week.Tasks)-1].ID)
	}

	set := a.do(http.MethodPatch, base+"/tasks/"+ids[0], token, map[string]bool{"completed": true})
	require.Equal(t, http.StatusOK, set.Code)
	assert.Equal(t, 33, decode[weekUpdate](t, set).GoalCompletion)

	on := a.do(http.MethodPost, base+"/tasks/"+ids[1]+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, on.Code)
	assert.Equal(t, 67, decode[weekUpdate](t, on).GoalCompletion)
	off := a.do(http.MethodPost, base+"/tasks/"+ids[1]+"/toggle", token, nil)
	assert.Equal(t, 33, decode[weekUpdate](t, off).GoalCompletion)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPatch, base+"/tasks/"+ids[0], token, map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, base+"/tasks/nope/toggle", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/goals/"+g.ID+"/weeks/2025-01-05", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/tasks", token, map[string]string{"title": " "}).Code)

	del := a.do(http.MethodDelete, base+"/tasks/"+ids[2], token, nil)
	require.Equal(t, http.StatusOK, del.Code)
	up := decode[weekUpdate](t, del)
	assert.Len(t, up.Week.Tasks, 2)
	assert.Equal(t, 50, up.GoalCompletion)

	sel := a.do(http.MethodGet, "/v1/goals/"+g.ID+"/weeks", token, nil)
	require.Equal(t, http.StatusOK, sel.Code)
	assert.Contains(t, sel.Body.String(), `"current":"2024-01-14"`)
}

func TestReflections(t *testing.T) {
	a := newAPI(t, nil)
	token := a.signup("ada@example.com")
	g := a.createGoal(token)
	path := "/v1/goals/" + g.ID + "/reflections/2024-02"

	blank := a.do(http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, blank.Code)
	assert.Equal(t, "2024-02", decode[map[string]any](t, blank)["month"])

	for _, text := range []string{"first draft", "final words"} {
		w := a.do(http.MethodPut, path, token, map[string]string{"what_went_well": text})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	list := a.do(http.MethodGet, "/v1/goals/"+g.ID+"/reflections", token, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var body struct {
		Reflections []struct {
			WhatWentWell string `json:"what_went_well"`
		} `json:"reflections"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &body))
	require.Len(t, body.Reflections, 1)
	assert.Equal(t, "final words", body.Reflections[0].WhatWentWell)

	feed := a.do(http.MethodGet, "/v1/reflections", token, nil)
	require.Equal(t, http.StatusOK, feed.Code)
	assert.Contains(t, feed.Body.String(), "final words")

	months := a.do(http.MethodGet, "/v1/goals/"+g.ID+"/months", token, nil)
	assert.JSONEq(t, `{"months":["2024-01","2024-02","2024-03"]}`, months.Body.String())

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, "/v1/goals/"+g.ID+"/reflections/2024-13", token, map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, "/v1/goals/"+g.ID+"/reflections/2023-12", token, map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/goals/"+g.ID+"/reflections/2023-12", token, nil).Code)
}
