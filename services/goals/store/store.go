// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines persistence contracts for goals, weekly tasks,
// monthly reflections and users.
//
// Two implementations live in sub-packages:
//
//	store/badger  embedded BadgerDB (default)
//	store/sqlite  SQLite through modernc.org/sqlite
//
// Both are exercised by the shared suite in store/storetest.
//
// # Ownership
//
// The store does not check ownership. Callers load a record and compare its
// UserID before acting on it.
package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a record with the same identity or
	// unique key already exists.
	ErrDuplicate = errors.New("record already exists")

	// ErrConflict is returned when a transaction lost a race against a
	// concurrent writer. Nothing was written; the caller may retry.
	ErrConflict = errors.New("concurrent modification")
)

// GoalStore persists goals.
type GoalStore interface {
	// ListGoals returns the user's goals, newest CreatedAt first.
	ListGoals(ctx context.Context, userID string) ([]datatypes.Goal, error)

	// GetGoal returns ErrNotFound when no goal has the id.
	GetGoal(ctx context.Context, id string) (datatypes.Goal, error)

	// CreateGoal returns ErrDuplicate when the id is taken.
	CreateGoal(ctx context.Context, goal datatypes.Goal) error

	// UpdateGoal loads the goal, applies fn and writes the result in one
	// transaction. An error from fn aborts the write and is returned as is.
	// The ID and UserID fields cannot be changed by fn.
	UpdateGoal(ctx context.Context, id string, fn func(*datatypes.Goal) error) (datatypes.Goal, error)

	// DeleteGoal removes only the goal record.
	DeleteGoal(ctx context.Context, id string) error
}

// WeekMutation edits one week of a goal inside a transaction.
//
// week is the stored record, or an empty week with no ID when none exists
// yet. others holds every other week of the same goal, ordered by week start.
// Changes to goal and week are written together when the mutation returns nil.
type WeekMutation func(goal *datatypes.Goal, week *datatypes.WeeklyTask, others []datatypes.WeeklyTask) error

// WeekStore persists weekly task lists.
type WeekStore interface {
	// ListWeeks returns all weeks of a goal ordered by week start.
	ListWeeks(ctx context.Context, goalID string) ([]datatypes.WeeklyTask, error)

	// FindWeek returns ErrNotFound when the goal has no list for the week.
	FindWeek(ctx context.Context, goalID string, weekStart civil.Date) (datatypes.WeeklyTask, error)

	// UpdateWeek runs fn against the week and its goal in one transaction,
	// creating the week when absent. Returns ErrNotFound when the goal does
	// not exist and ErrConflict when a concurrent writer won.
	UpdateWeek(ctx context.Context, goalID string, weekStart civil.Date, fn WeekMutation) (datatypes.Goal, datatypes.WeeklyTask, error)

	// DeleteWeeks removes every week of a goal and reports how many.
	DeleteWeeks(ctx context.Context, goalID string) (int, error)
}

// ReflectionStore persists monthly reflections.
type ReflectionStore interface {
	// FindReflection returns ErrNotFound when none exists for the month.
	FindReflection(ctx context.Context, goalID, month string) (datatypes.MonthlyReflection, error)

	// SaveReflection upserts on (GoalID, Month). An existing record keeps
	// its ID and CreatedAt; text fields and UpdatedAt are overwritten.
	SaveReflection(ctx context.Context, r datatypes.MonthlyReflection) (datatypes.MonthlyReflection, error)

	// ListReflections returns a goal's reflections ordered by month.
	ListReflections(ctx context.Context, goalID string) ([]datatypes.MonthlyReflection, error)

	// DeleteReflections removes every reflection of a goal and reports how many.
	DeleteReflections(ctx context.Context, goalID string) (int, error)
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser returns ErrDuplicate when the id or email is taken.
	CreateUser(ctx context.Context, user datatypes.User) error

	GetUser(ctx context.Context, id string) (datatypes.User, error)

	// GetUserByEmail matches the normalized email.
	GetUserByEmail(ctx context.Context, email string) (datatypes.User, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	GoalStore
	WeekStore
	ReflectionStore
	UserStore

	// Close releases the backend. Safe to call more than once.
	Close() error
}
