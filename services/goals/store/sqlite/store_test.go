// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cairn/services/goals/store"
	"github.com/AleutianAI/cairn/services/goals/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cairn.db"))
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTemp(t)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cairn.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	g := storetest.NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)

	var applied int
	require.NoError(t, s2.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestStore_PercentageCheckConstraint(t *testing.T) {
	s := openTemp(t)
	defer s.Close()

	g := storetest.NewGoal("u-1", 0)
	g.CompletionPercentage = 101
	assert.Error(t, s.CreateGoal(context.Background(), g))
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nCREATE x;\n", upSection("-- +migrate Up\nCREATE x;\n-- +migrate Down\nDROP x;"))
	assert.Equal(t, "CREATE y;", upSection("CREATE y;"))
	assert.Equal(t, "\nCREATE z;", upSection("-- +migrate Up\nCREATE z;"))
}

func TestApplyMigrations_Order(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("-- +migrate Up\nALTER TABLE a ADD COLUMN b TEXT;")},
		"0001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id TEXT);")},
		"README.md":  {Data: []byte("ignored")},
	}
	ctx := context.Background()
	require.NoError(t, applyMigrations(ctx, db, fsys))
	require.NoError(t, applyMigrations(ctx, db, fsys))

	_, err = db.Exec(`INSERT INTO a (id, b) VALUES ('1', '2')`)
	assert.NoError(t, err)
}

func TestMapError_PassesThroughPlainErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, plain, mapError(plain))
	assert.ErrorIs(t, notFound(sql.ErrNoRows), store.ErrNotFound)
}
