// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cairn/cmd/cairn/config"
	"github.com/AleutianAI/cairn/pkg/extensions"
	"github.com/AleutianAI/cairn/pkg/ux"
	"github.com/AleutianAI/cairn/services/goals/audit"
	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// Calendar Commands
// =============================================================================

func TestMonthsCmd(t *testing.T) {
	out, err := execute(t, "months", "2024-01-15", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-01\n2024-02\n2024-03\n", out)
}

func TestWeeksCmd(t *testing.T) {
	out, err := execute(t, "weeks", "2024-01-15", "2024-02-03")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-14\n2024-01-21\n2024-01-28\n", out)
}

func TestCalendarCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad start", []string{"months", "2024-13-01", "2024-03-10"}, "invalid start date"},
		{"bad end", []string{"weeks", "2024-01-01", "soon"}, "invalid end date"},
		{"reversed", []string{"months", "2024-03-10", "2024-01-15"}, "before start date"},
		{"arity", []string{"weeks", "2024-01-01"}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// Stats Command
// =============================================================================

func seedSQLite(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateUser(ctx, datatypes.User{
		ID:           "u-1",
		Email:        "ada@example.com",
		DisplayName:  "Ada",
		PasswordHash: "x",
		CreatedAt:    created,
	}))
	goals := []datatypes.Goal{
		{
			ID: "g-1", UserID: "u-1", Title: "Run a half marathon",
			Category: datatypes.CategoryHealth, Priority: datatypes.PriorityHigh,
			StartDate: civil.Date{Year: 2024, Month: 1, Day: 15}, EndDate: civil.Date{Year: 2099, Month: 3, Day: 10},
			CompletionPercentage: 50, CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: "g-2", UserID: "u-1", Title: "Read twelve books this year",
			Category: datatypes.CategoryStudy, Priority: datatypes.PriorityLow,
			StartDate: civil.Date{Year: 2024, Month: 1, Day: 1}, EndDate: civil.Date{Year: 2099, Month: 12, Day: 31},
			Completed: true, CompletionPercentage: 100,
			CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour),
		},
	}
	for _, g := range goals {
		require.NoError(t, st.CreateGoal(ctx, g))
	}
}

func writeConfig(t *testing.T, dir, dbPath string) string {
	t.Helper()
	cfg, err := config.DefaultConfig(dir)
	require.NoError(t, err)
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = dbPath

	path := filepath.Join(dir, "cairn.yaml")
	data := fmt.Sprintf(`server:
  port: 12310
store:
  backend: %s
  path: %s
auth:
  jwt_secret: %s
logging:
  level: info
`, cfg.Store.Backend, cfg.Store.Path, cfg.Auth.JWTSecret)
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	return path
}

func TestStatsCmd_SQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cairn.db")
	seedSQLite(t, dbPath)
	configPath := writeConfig(t, dir, dbPath)

	out, err := execute(t, "--config", configPath, "stats", "--email", " ADA@example.com ")
	require.NoError(t, err)

	assert.Contains(t, out, "Goals for Ada")
	assert.Contains(t, out, "Average progress:")
	assert.Contains(t, out, "75%")
	// bytes.Buffer is not a terminal, so output is plain
	assert.Contains(t, out, "[############............]  50%")
	assert.Contains(t, out, "Read twelve boo...")
	assert.Contains(t, out, "[x] Study, Low priority")
	assert.Contains(t, out, "[ ] Health, High priority")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatsCmd_UnknownUser(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cairn.db")
	seedSQLite(t, dbPath)
	configPath := writeConfig(t, dir, dbPath)

	_, err := execute(t, "--config", configPath, "stats", "--email", "nobody@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no account for nobody@example.com")
}

func TestStatsCmd_RequiresEmail(t *testing.T) {
	_, err := execute(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"email" not set`)
}

func TestRenderStats_NoGoals(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "cairn.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.CreateUser(ctx, datatypes.User{ID: "u-2", Email: "new@example.com", PasswordHash: "x"}))

	var buf bytes.Buffer
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, renderStats(ctx, st, "new@example.com", now, ux.NewPlainPrinter(&buf)))
	assert.Contains(t, buf.String(), "Goals for new@example.com")
	assert.Contains(t, buf.String(), "No goals yet.")
	assert.Contains(t, buf.String(), "Steve Jobs")
}

// =============================================================================
// Audit Command
// =============================================================================

func TestAuditVerifyCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	chain, err := audit.Open(path)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, chain.Log(context.Background(), extensions.AuditEvent{
			EventType: "goal.created",
			Timestamp: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
			UserID:    "u-1",
			Outcome:   "success",
		}))
	}
	require.NoError(t, chain.Close())

	out, err := execute(t, "audit", "verify", path)
	require.NoError(t, err)
	assert.Equal(t, "3 records verified\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte("u-1"), []byte("u-9"), 1)
	require.NoError(t, os.WriteFile(path, tampered, 0600))

	_, err = execute(t, "audit", "verify", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken at record 0")
}

// =============================================================================
// Serve Command
// =============================================================================

func TestServiceConfig(t *testing.T) {
	cfg, err := config.DefaultConfig("/srv/cairn")
	require.NoError(t, err)
	cfg.Tracker.CascadeDeletes = true
	cfg.Observability.AuditLogPath = "/srv/cairn/audit.jsonl"

	svc := serviceConfig(cfg)
	assert.Equal(t, 12310, svc.Port)
	assert.Equal(t, "badger", svc.StoreBackend)
	assert.Equal(t, "/srv/cairn/data", svc.StorePath)
	assert.Equal(t, cfg.Auth.JWTSecret, svc.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, svc.TokenTTL)
	assert.True(t, svc.CascadeDeletes)
	assert.Equal(t, "/srv/cairn/audit.jsonl", svc.AuditLogPath)
	assert.Equal(t, 10, svc.AuthRatePerMinute)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.DefaultConfig(dir)
	require.NoError(t, err)
	cfg.Server.Port = freePort(t)
	cfg.Server.GinMode = "test"
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "cairn.db")
	cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("runServe did not stop")
	}
}
