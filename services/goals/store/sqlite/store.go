// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlite implements the goal store on SQLite via modernc.org/sqlite.
//
// Write transactions begin IMMEDIATE, so a week read-modify-write holds the
// database write lock from its first read. Concurrent writers wait up to the
// busy timeout and then fail with store.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store"
	"github.com/AleutianAI/cairn/services/goals/store/sqlite/migrations"
)

// Store persists goal tracking state in SQLite.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database file at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// =============================================================================
// Goals
// =============================================================================

const goalColumns = `id, user_id, title, category, priority, start_date, end_date,
	description, completed, completion_percentage, created_at, updated_at`

// ListGoals returns the user's goals, newest first.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]datatypes.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	goals := []datatypes.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("list goals: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// GetGoal loads one goal.
func (s *Store) GetGoal(ctx context.Context, id string) (datatypes.Goal, error) {
	g, err := getGoal(ctx, s.db, id)
	if err != nil {
		return datatypes.Goal{}, fmt.Errorf("get goal %s: %w", id, err)
	}
	return g, nil
}

// CreateGoal inserts a goal.
func (s *Store) CreateGoal(ctx context.Context, goal datatypes.Goal) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	if goal.ID == "" || goal.UserID == "" {
		return errors.New("create goal: id and user id are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.UserID, goal.Title, string(goal.Category), string(goal.Priority),
		goal.StartDate.String(), goal.EndDate.String(), goal.Description,
		boolToInt(goal.Completed), goal.CompletionPercentage,
		toNanos(goal.CreatedAt), toNanos(goal.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create goal: %w", mapError(err))
	}
	return nil
}

// UpdateGoal applies fn to the stored goal transactionally.
func (s *Store) UpdateGoal(ctx context.Context, id string, fn func(*datatypes.Goal) error) (datatypes.Goal, error) {
	var out datatypes.Goal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := getGoal(ctx, tx, id)
		if err != nil {
			return err
		}
		owner := g.UserID
		if err := fn(&g); err != nil {
			return err
		}
		g.ID, g.UserID = id, owner
		if err := writeGoal(ctx, tx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return datatypes.Goal{}, fmt.Errorf("update goal %s: %w", id, err)
	}
	return out, nil
}

// DeleteGoal removes only the goal row.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", id, mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete goal %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// =============================================================================
// Weeks
// =============================================================================

// ListWeeks returns a goal's weeks ordered by week start.
func (s *Store) ListWeeks(ctx context.Context, goalID string) ([]datatypes.WeeklyTask, error) {
	weeks, err := listWeeks(ctx, s.db, goalID)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	return weeks, nil
}

// FindWeek loads the list for one week.
func (s *Store) FindWeek(ctx context.Context, goalID string, weekStart civil.Date) (datatypes.WeeklyTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal_id, week_start, tasks, completed FROM weekly_tasks WHERE goal_id = ? AND week_start = ?`,
		goalID, weekStart.String())
	w, err := scanWeek(row)
	if err != nil {
		return datatypes.WeeklyTask{}, fmt.Errorf("find week %s: %w", weekStart, err)
	}
	return w, nil
}

// UpdateWeek runs fn over the goal and week inside one IMMEDIATE transaction.
func (s *Store) UpdateWeek(ctx context.Context, goalID string, weekStart civil.Date, fn store.WeekMutation) (datatypes.Goal, datatypes.WeeklyTask, error) {
	var (
		outGoal datatypes.Goal
		outWeek datatypes.WeeklyTask
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := getGoal(ctx, tx, goalID)
		if err != nil {
			return err
		}
		all, err := listWeeks(ctx, tx, goalID)
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

		tasks, err := json.Marshal(week.Tasks)
		if err != nil {
			return fmt.Errorf("encode tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weekly_tasks (id, goal_id, week_start, tasks, completed) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (goal_id, week_start) DO UPDATE SET tasks = excluded.tasks, completed = excluded.completed`,
			week.ID, goalID, weekStart.String(), string(tasks), boolToInt(week.Completed),
		); err != nil {
			return err
		}
		if err := writeGoal(ctx, tx, g); err != nil {
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
	n, err := s.deleteWhereGoal(ctx, "weekly_tasks", goalID)
	if err != nil {
		return 0, fmt.Errorf("delete weeks: %w", err)
	}
	return n, nil
}

// =============================================================================
// Reflections
// =============================================================================

const reflectionColumns = `id, goal_id, month, what_went_well, what_didnt_go_well,
	lessons_learned, created_at, updated_at`

// FindReflection loads the reflection for one month.
func (s *Store) FindReflection(ctx context.Context, goalID, month string) (datatypes.MonthlyReflection, error) {
	r, err := findReflection(ctx, s.db, goalID, month)
	if err != nil {
		return datatypes.MonthlyReflection{}, fmt.Errorf("find reflection %s: %w", month, err)
	}
	return r, nil
}

// SaveReflection upserts the reflection on (GoalID, Month).
func (s *Store) SaveReflection(ctx context.Context, r datatypes.MonthlyReflection) (datatypes.MonthlyReflection, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findReflection(ctx, tx, r.GoalID, r.Month)
		switch {
		case err == nil:
			r.ID, r.CreatedAt = existing.ID, existing.CreatedAt
			_, err = tx.ExecContext(ctx,
				`UPDATE monthly_reflections
				    SET what_went_well = ?, what_didnt_go_well = ?, lessons_learned = ?, updated_at = ?
				  WHERE id = ?`,
				r.WhatWentWell, r.WhatDidntGoWell, r.LessonsLearned, toNanos(r.UpdatedAt), r.ID)
			return err
		case errors.Is(err, store.ErrNotFound):
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			if r.CreatedAt.IsZero() {
				r.CreatedAt = r.UpdatedAt
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO monthly_reflections (`+reflectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.GoalID, r.Month, r.WhatWentWell, r.WhatDidntGoWell, r.LessonsLearned,
				toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
			return err
		default:
			return err
		}
	})
	if err != nil {
		return datatypes.MonthlyReflection{}, fmt.Errorf("save reflection %s: %w", r.Month, err)
	}
	return r, nil
}

// ListReflections returns a goal's reflections ordered by month.
func (s *Store) ListReflections(ctx context.Context, goalID string) ([]datatypes.MonthlyReflection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reflectionColumns+` FROM monthly_reflections WHERE goal_id = ? ORDER BY month`, goalID)
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	defer rows.Close()

	out := []datatypes.MonthlyReflection{}
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, fmt.Errorf("list reflections: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	return out, nil
}

// DeleteReflections removes every reflection of a goal.
func (s *Store) DeleteReflections(ctx context.Context, goalID string) (int, error) {
	n, err := s.deleteWhereGoal(ctx, "monthly_reflections", goalID)
	if err != nil {
		return 0, fmt.Errorf("delete reflections: %w", err)
	}
	return n, nil
}

// =============================================================================
// Users
// =============================================================================

// CreateUser inserts a user. The email column is UNIQUE.
func (s *Store) CreateUser(ctx context.Context, user datatypes.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if user.ID == "" || user.Email == "" {
		return errors.New("create user: id and email are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, toNanos(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (datatypes.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail loads a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (datatypes.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) getUser(ctx context.Context, column, value string) (datatypes.User, error) {
	var (
		u       datatypes.User
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &created)
	if err != nil {
		return datatypes.User{}, fmt.Errorf("get user: %w", notFound(err))
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

// =============================================================================
// Helpers
// =============================================================================

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) deleteWhereGoal(ctx context.Context, table, goalID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE goal_id = ?`, goalID)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func getGoal(ctx context.Context, q querier, id string) (datatypes.Goal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	return scanGoal(row)
}

func writeGoal(ctx context.Context, q querier, g datatypes.Goal) error {
	_, err := q.ExecContext(ctx,
		`UPDATE goals SET title = ?, category = ?, priority = ?, start_date = ?, end_date = ?,
		        description = ?, completed = ?, completion_percentage = ?, updated_at = ?
		  WHERE id = ?`,
		g.Title, string(g.Category), string(g.Priority), g.StartDate.String(), g.EndDate.String(),
		g.Description, boolToInt(g.Completed), g.CompletionPercentage, toNanos(g.UpdatedAt), g.ID)
	return err
}

func scanGoal(row scanner) (datatypes.Goal, error) {
	var (
		g                          datatypes.Goal
		category, priority         string
		start, end                 string
		completed                  int64
		createdNanos, updatedNanos int64
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Title, &category, &priority, &start, &end,
		&g.Description, &completed, &g.CompletionPercentage, &createdNanos, &updatedNanos)
	if err != nil {
		return datatypes.Goal{}, notFound(err)
	}
	if g.StartDate, err = civil.ParseDate(start); err != nil {
		return datatypes.Goal{}, fmt.Errorf("decode start_date: %w", err)
	}
	if g.EndDate, err = civil.ParseDate(end); err != nil {
		return datatypes.Goal{}, fmt.Errorf("decode end_date: %w", err)
	}
	g.Category = datatypes.Category(category)
	g.Priority = datatypes.Priority(priority)
	g.Completed = completed != 0
	g.CreatedAt = fromNanos(createdNanos)
	g.UpdatedAt = fromNanos(updatedNanos)
	return g, nil
}

func listWeeks(ctx context.Context, q querier, goalID string) ([]datatypes.WeeklyTask, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, goal_id, week_start, tasks, completed FROM weekly_tasks WHERE goal_id = ? ORDER BY week_start`,
		goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := []datatypes.WeeklyTask{}
	for rows.Next() {
		w, err := scanWeek(rows)
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

func scanWeek(row scanner) (datatypes.WeeklyTask, error) {
	var (
		w         datatypes.WeeklyTask
		weekStart string
		tasks     string
		completed int64
	)
	if err := row.Scan(&w.ID, &w.GoalID, &weekStart, &tasks, &completed); err != nil {
		return datatypes.WeeklyTask{}, notFound(err)
	}
	var err error
	if w.WeekStartDate, err = civil.ParseDate(weekStart); err != nil {
		return datatypes.WeeklyTask{}, fmt.Errorf("decode week_start: %w", err)
	}
	if err := json.Unmarshal([]byte(tasks), &w.Tasks); err != nil {
		return datatypes.WeeklyTask{}, fmt.Errorf("decode tasks: %w", err)
	}
	if w.Tasks == nil {
		w.Tasks = []datatypes.Task{}
	}
	w.Completed = completed != 0
	return w, nil
}

func findReflection(ctx context.Context, q querier, goalID, month string) (datatypes.MonthlyReflection, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+reflectionColumns+` FROM monthly_reflections WHERE goal_id = ? AND month = ?`, goalID, month)
	return scanReflection(row)
}

func scanReflection(row scanner) (datatypes.MonthlyReflection, error) {
	var (
		r                datatypes.MonthlyReflection
		created, updated int64
	)
	err := row.Scan(&r.ID, &r.GoalID, &r.Month, &r.WhatWentWell, &r.WhatDidntGoWell,
		&r.LessonsLearned, &created, &updated)
	if err != nil {
		return datatypes.MonthlyReflection{}, notFound(err)
	}
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return r, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapError translates SQLite result codes into store sentinels. Extended
// codes carry the primary code in their low byte.
func mapError(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case code&0xff == sqlite3lib.SQLITE_BUSY, code&0xff == sqlite3lib.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	default:
		return err
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

var _ store.Store = (*Store)(nil)
