// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// =============================================================================
// Keys
// =============================================================================

func goalKey(id string) []byte { return []byte("goal/" + id) }

func userGoalPrefix(userID string) []byte { return []byte("idx/user-goal/" + userID + "/") }

func userGoalKey(userID, goalID string) []byte {
	return append(userGoalPrefix(userID), goalID...)
}

func weekPrefix(goalID string) []byte { return []byte("week/" + goalID + "/") }

func weekKey(goalID string, weekStart civil.Date) []byte {
	return append(weekPrefix(goalID), weekStart.String()...)
}

func reflectionPrefix(goalID string) []byte { return []byte("refl/" + goalID + "/") }

func reflectionKey(goalID, month string) []byte {
	return append(reflectionPrefix(goalID), month...)
}

func userKey(id string) []byte { return []byte("user/" + id) }

func emailKey(email string) []byte { return []byte("idx/user-email/" + email) }

// =============================================================================
// Store
// =============================================================================

// Store implements store.Store on BadgerDB.
type Store struct {
	db *DB
}

// New wraps an open database. The Store owns db and closes it on Close.
func New(db *DB) *Store {
	return &Store{db: db}
}

// Open opens the database described by cfg and returns a Store over it.
func Open(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// OpenInMemory returns a Store that loses its data when closed.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// -----------------------------------------------------------------------------
// Goals
// -----------------------------------------------------------------------------

// ListGoals returns the user's goals, newest first.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]datatypes.Goal, error) {
	goals := []datatypes.Goal{}
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := userGoalPrefix(userID)
		ids, err := scanKeySuffixes(txn, prefix)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var g datatypes.Goal
			if err := getJSON(txn, goalKey(id), &g); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				return err
			}
			goals = append(goals, g)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].CreatedAt.Equal(goals[j].CreatedAt) {
			return goals[i].ID > goals[j].ID
		}
		return goals[i].CreatedAt.After(goals[j].CreatedAt)
	})
	return goals, nil
}

// GetGoal loads one goal.
func (s *Store) GetGoal(ctx context.Context, id string) (datatypes.Goal, error) {
	var g datatypes.Goal
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, goalKey(id), &g)
	})
	if err != nil {
		return datatypes.Goal{}, fmt.Errorf("get goal %s: %w", id, err)
	}
	return g, nil
}

// CreateGoal inserts a goal and its owner index entry.
func (s *Store) CreateGoal(ctx context.Context, goal datatypes.Goal) error {
	if goal.ID == "" || goal.UserID == "" {
		return errors.New("create goal: id and user id are required")
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		exists, err := hasKey(txn, goalKey(goal.ID))
		if err != nil {
			return err
		}
		if exists {
			return store.ErrDuplicate
		}
		if err := setJSON(txn, goalKey(goal.ID), goal); err != nil {
			return err
		}
		return txn.Set(userGoalKey(goal.UserID, goal.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

// UpdateGoal applies fn to the stored goal transactionally.
func (s *Store) UpdateGoal(ctx context.Context, id string, fn func(*datatypes.Goal) error) (datatypes.Goal, error) {
	var out datatypes.Goal
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var g datatypes.Goal
		if err := getJSON(txn, goalKey(id), &g); err != nil {
			return err
		}
		owner := g.UserID
		if err := fn(&g); err != nil {
			return err
		}
		g.ID, g.UserID = id, owner
		out = g
		return setJSON(txn, goalKey(id), g)
	})
	if err != nil {
		return datatypes.Goal{}, fmt.Errorf("update goal %s: %w", id, err)
	}
	return out, nil
}

// DeleteGoal removes the goal and its index entry.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var g datatypes.Goal
		if err := getJSON(txn, goalKey(id), &g); err != nil {
			return err
		}
		if err := txn.Delete(userGoalKey(g.UserID, id)); err != nil {
			return err
		}
		return txn.Delete(goalKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Weeks
// -----------------------------------------------------------------------------

// ListWeeks returns a goal's weeks ordered by week start.
func (s *Store) ListWeeks(ctx context.Context, goalID string) ([]datatypes.WeeklyTask, error) {
	var weeks []datatypes.WeeklyTask
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		weeks, err = scanJSON[datatypes.WeeklyTask](txn, weekPrefix(goalID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	return weeks, nil
}

// FindWeek loads the list for one week.
func (s *Store) FindWeek(ctx context.Context, goalID string, weekStart civil.Date) (datatypes.WeeklyTask, error) {
	var w datatypes.WeeklyTask
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, weekKey(goalID, weekStart), &w)
	})
	if err != nil {
		return datatypes.WeeklyTask{}, fmt.Errorf("find week %s: %w", weekStart, err)
	}
	return w, nil
}

// UpdateWeek runs fn over the goal and week in one optimistic transaction.
//
// Description:
//
//	Every week of the goal is read inside the transaction and the goal
//	record is always rewritten, so two concurrent mutations of the same
//	goal cannot both commit. The loser gets store.ErrConflict.
func (s *Store) UpdateWeek(ctx context.Context, goalID string, weekStart civil.Date, fn store.WeekMutation) (datatypes.Goal, datatypes.WeeklyTask, error) {
	var (
		outGoal datatypes.Goal
		outWeek datatypes.WeeklyTask
	)
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var g datatypes.Goal
		if err := getJSON(txn, goalKey(goalID), &g); err != nil {
			return err
		}
		all, err := scanJSON[datatypes.WeeklyTask](txn, weekPrefix(goalID))
		if err != nil {
			return err
		}

		week := datatypes.WeeklyTask{GoalID: goalID, WeekStartDate: weekStart, Tasks: []datatypes.Task{}}
		others := make([]datatypes.WeeklyTask, 0, len(all))
		for _, w := range all {
			if w.WeekStartDate == weekStart {
				week = w
				continue
			}
			others = append(others, w)
		}

		owner := g.UserID
		if err := fn(&g, &week, others); err != nil {
			return err
		}
		g.ID, g.UserID = goalID, owner
		week.GoalID, week.WeekStartDate = goalID, weekStart
		if week.ID == "" {
			week.ID = uuid.NewString()
		}
		if week.Tasks == nil {
			week.Tasks = []datatypes.Task{}
		}

		if err := setJSON(txn, weekKey(goalID, weekStart), week); err != nil {
			return err
		}
		if err := setJSON(txn, goalKey(goalID), g); err != nil {
			return err
		}
		outGoal, outWeek = g, week
		return nil
	})
	if err != nil {
		return datatypes.Goal{}, datatypes.WeeklyTask{}, fmt.Errorf("update week %s: %w", weekStart, err)
	}
	return outGoal, outWeek, nil
}

// DeleteWeeks removes every week of a goal.
func (s *Store) DeleteWeeks(ctx context.Context, goalID string) (int, error) {
	n, err := s.deletePrefix(ctx, weekPrefix(goalID))
	if err != nil {
		return 0, fmt.Errorf("delete weeks: %w", err)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Reflections
// -----------------------------------------------------------------------------

// FindReflection loads the reflection for one month.
func (s *Store) FindReflection(ctx context.Context, goalID, month string) (datatypes.MonthlyReflection, error) {
	var r datatypes.MonthlyReflection
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, reflectionKey(goalID, month), &r)
	})
	if err != nil {
		return datatypes.MonthlyReflection{}, fmt.Errorf("find reflection %s: %w", month, err)
	}
	return r, nil
}

// SaveReflection upserts the reflection on (GoalID, Month).
func (s *Store) SaveReflection(ctx context.Context, r datatypes.MonthlyReflection) (datatypes.MonthlyReflection, error) {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := reflectionKey(r.GoalID, r.Month)
		var existing datatypes.MonthlyReflection
		switch err := getJSON(txn, key, &existing); {
		case err == nil:
			r.ID, r.CreatedAt = existing.ID, existing.CreatedAt
		case errors.Is(err, store.ErrNotFound):
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			if r.CreatedAt.IsZero() {
				r.CreatedAt = r.UpdatedAt
			}
		default:
			return err
		}
		return setJSON(txn, key, r)
	})
	if err != nil {
		return datatypes.MonthlyReflection{}, fmt.Errorf("save reflection %s: %w", r.Month, err)
	}
	return r, nil
}

// ListReflections returns a goal's reflections ordered by month.
func (s *Store) ListReflections(ctx context.Context, goalID string) ([]datatypes.MonthlyReflection, error) {
	var out []datatypes.MonthlyReflection
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = scanJSON[datatypes.MonthlyReflection](txn, reflectionPrefix(goalID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	return out, nil
}

// DeleteReflections removes every reflection of a goal.
func (s *Store) DeleteReflections(ctx context.Context, goalID string) (int, error) {
	n, err := s.deletePrefix(ctx, reflectionPrefix(goalID))
	if err != nil {
		return 0, fmt.Errorf("delete reflections: %w", err)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// userRecord is the stored form of a user. The API type never serializes
// the password hash.
type userRecord struct {
	datatypes.User
	PasswordHash string `json:"password_hash"`
}

func (r userRecord) user() datatypes.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return u
}

// CreateUser inserts the user and its email index entry.
func (s *Store) CreateUser(ctx context.Context, user datatypes.User) error {
	if user.ID == "" || user.Email == "" {
		return errors.New("create user: id and email are required")
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, key := range [][]byte{userKey(user.ID), emailKey(user.Email)} {
			exists, err := hasKey(txn, key)
			if err != nil {
				return err
			}
			if exists {
				return store.ErrDuplicate
			}
		}
		if err := setJSON(txn, userKey(user.ID), userRecord{User: user, PasswordHash: user.PasswordHash}); err != nil {
			return err
		}
		return txn.Set(emailKey(user.Email), []byte(user.ID))
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (datatypes.User, error) {
	var rec userRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &rec)
	})
	if err != nil {
		return datatypes.User{}, fmt.Errorf("get user: %w", err)
	}
	return rec.user(), nil
}

// GetUserByEmail resolves the email index and loads the user.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (datatypes.User, error) {
	var rec userRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(id)), &rec)
	})
	if err != nil {
		return datatypes.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return rec.user(), nil
}

// =============================================================================
// Helpers
// =============================================================================

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanJSON decodes every value under prefix in key order.
func scanJSON[T any](txn *badger.Txn, prefix []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	out := []T{}
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// scanKeySuffixes returns the part of every key after prefix.
func scanKeySuffixes(txn *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
	}
	return out, nil
}

func (s *Store) deletePrefix(ctx context.Context, prefix []byte) (int, error) {
	n := 0
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		n = len(keys)
		return nil
	})
	return n, err
}

var _ store.Store = (*Store)(nil)
