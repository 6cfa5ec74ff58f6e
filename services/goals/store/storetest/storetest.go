// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storetest is the behavioural suite every store.Store backend must
// pass. Backends call Run from their own tests:
//
//	func TestStore(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { ... })
//	}
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// Opener returns an empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

var base = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

// NewGoal returns a valid goal owned by userID created at base+offset.
func NewGoal(userID string, offset time.Duration) datatypes.Goal {
	created := base.Add(offset)
	return datatypes.Goal{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     "Goal " + offset.String(),
		Category:  datatypes.CategoryHealth,
		Priority:  datatypes.PriorityMedium,
		StartDate: civil.Date{Year: 2024, Month: time.January, Day: 15},
		EndDate:   civil.Date{Year: 2024, Month: time.March, Day: 10},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Run executes the suite. Each subtest gets a fresh store.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"GoalCRUD", testGoalCRUD},
		{"GoalDuplicate", testGoalDuplicate},
		{"ListGoalsNewestFirst", testListGoals},
		{"UpdateGoalAbort", testUpdateGoalAbort},
		{"UpdateWeekCreatesLazily", testUpdateWeekCreates},
		{"UpdateWeekPassesOtherWeeks", testUpdateWeekOthers},
		{"UpdateWeekAbort", testUpdateWeekAbort},
		{"UpdateWeekMissingGoal", testUpdateWeekMissingGoal},
		{"UpdateWeekNoLostUpdates", testUpdateWeekConcurrent},
		{"DeleteWeeks", testDeleteWeeks},
		{"ReflectionUpsert", testReflectionUpsert},
		{"ReflectionList", testReflectionList},
		{"Users", testUsers},
		{"CancelledContext", testCancelledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testGoalCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	g.Description = "three runs a week"
	require.NoError(t, s.CreateGoal(ctx, g))

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)
	assert.Equal(t, g.StartDate, got.StartDate)
	assert.Equal(t, g.EndDate, got.EndDate)
	assert.Equal(t, g.Description, got.Description)
	assert.True(t, g.CreatedAt.Equal(got.CreatedAt))

	updated, err := s.UpdateGoal(ctx, g.ID, func(goal *datatypes.Goal) error {
		goal.Title = "renamed"
		goal.Completed = true
		goal.ID = "hijack"
		goal.UserID = "u-2"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, g.ID, updated.ID)
	assert.Equal(t, "u-1", updated.UserID)

	got, err = s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.Completed)

	require.NoError(t, s.DeleteGoal(ctx, g.ID))
	_, err = s.GetGoal(ctx, g.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteGoal(ctx, g.ID), store.ErrNotFound)

	goals, err := s.ListGoals(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, goals)

	_, err = s.UpdateGoal(ctx, g.ID, func(*datatypes.Goal) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testGoalDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))
	assert.ErrorIs(t, s.CreateGoal(ctx, g), store.ErrDuplicate)
}

func testListGoals(t *testing.T, s store.Store) {
	ctx := context.Background()
	older := NewGoal("u-1", 0)
	newer := NewGoal("u-1", time.Hour)
	other := NewGoal("u-2", 2*time.Hour)
	for _, g := range []datatypes.Goal{older, other, newer} {
		require.NoError(t, s.CreateGoal(ctx, g))
	}

	goals, err := s.ListGoals(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, newer.ID, goals[0].ID)
	assert.Equal(t, older.ID, goals[1].ID)

	none, err := s.ListGoals(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testUpdateGoalAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))

	boom := errors.New("boom")
	_, err := s.UpdateGoal(ctx, g.ID, func(goal *datatypes.Goal) error {
		goal.Title = "never written"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)
}

func addTask(title string) store.WeekMutation {
	return func(goal *datatypes.Goal, week *datatypes.WeeklyTask, others []datatypes.WeeklyTask) error {
		week.Tasks = append(week.Tasks, datatypes.Task{ID: uuid.NewString(), Title: title})
		total := len(week.Tasks)
		for _, w := range others {
			total += len(w.Tasks)
		}
		goal.CompletionPercentage = 0
		goal.Title = fmt.Sprintf("tasks=%d", total)
		return nil
	}
}

func sunday(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: day}
}

func testUpdateWeekCreates(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))

	_, err := s.FindWeek(ctx, g.ID, sunday(14))
	assert.ErrorIs(t, err, store.ErrNotFound)

	goal, week, err := s.UpdateWeek(ctx, g.ID, sunday(14), addTask("stretch"))
	require.NoError(t, err)
	assert.NotEmpty(t, week.ID)
	assert.Equal(t, g.ID, week.GoalID)
	assert.Equal(t, sunday(14), week.WeekStartDate)
	require.Len(t, week.Tasks, 1)
	assert.Equal(t, "tasks=1", goal.Title)

	found, err := s.FindWeek(ctx, g.ID, sunday(14))
	require.NoError(t, err)
	assert.Equal(t, week.ID, found.ID)
	assert.Equal(t, "stretch", found.Tasks[0].Title)

	_, again, err := s.UpdateWeek(ctx, g.ID, sunday(14), addTask("run"))
	require.NoError(t, err)
	assert.Equal(t, week.ID, again.ID)
	assert.Len(t, again.Tasks, 2)

	stored, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "tasks=2", stored.Title)
}

func testUpdateWeekOthers(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))

	for _, day := range []int{28, 14, 21} {
		_, _, err := s.UpdateWeek(ctx, g.ID, sunday(day), addTask("t"))
		require.NoError(t, err)
	}

	weeks, err := s.ListWeeks(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, weeks, 3)
	assert.Equal(t, sunday(14), weeks[0].WeekStartDate)
	assert.Equal(t, sunday(21), weeks[1].WeekStartDate)
	assert.Equal(t, sunday(28), weeks[2].WeekStartDate)

	var seen []civil.Date
	_, _, err = s.UpdateWeek(ctx, g.ID, sunday(21), func(_ *datatypes.Goal, week *datatypes.WeeklyTask, others []datatypes.WeeklyTask) error {
		assert.Len(t, week.Tasks, 1)
		for _, w := range others {
			seen = append(seen, w.WeekStartDate)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{sunday(14), sunday(28)}, seen)
}

func testUpdateWeekAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))

	boom := errors.New("boom")
	_, _, err := s.UpdateWeek(ctx, g.ID, sunday(14), func(goal *datatypes.Goal, week *datatypes.WeeklyTask, _ []datatypes.WeeklyTask) error {
		goal.CompletionPercentage = 99
		week.Tasks = append(week.Tasks, datatypes.Task{ID: "x", Title: "x"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.FindWeek(ctx, g.ID, sunday(14))
	assert.ErrorIs(t, err, store.ErrNotFound)
	stored, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CompletionPercentage)
}

func testUpdateWeekMissingGoal(t *testing.T, s store.Store) {
	called := false
	_, _, err := s.UpdateWeek(context.Background(), "missing", sunday(14), func(*datatypes.Goal, *datatypes.WeeklyTask, []datatypes.WeeklyTask) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, called)
}

// testUpdateWeekConcurrent adds tasks from many goroutines. Writers that lose
// a race retry on ErrConflict; no addition may be lost.
func testUpdateWeekConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			week := sunday(14 + 7*(i%2))
			for attempt := 0; attempt < 100; attempt++ {
				_, _, err := s.UpdateWeek(ctx, g.ID, week, addTask(fmt.Sprintf("t%d", i)))
				if errors.Is(err, store.ErrConflict) {
					time.Sleep(time.Millisecond)
					continue
				}
				errs <- err
				return
			}
			errs <- errors.New("too many conflicts")
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	weeks, err := s.ListWeeks(ctx, g.ID)
	require.NoError(t, err)
	total := 0
	for _, w := range weeks {
		total += len(w.Tasks)
	}
	assert.Equal(t, writers, total)

	stored, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("tasks=%d", writers), stored.Title)
}

func testDeleteWeeks(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewGoal("u-1", 0)
	require.NoError(t, s.CreateGoal(ctx, g))
	other := NewGoal("u-1", time.Minute)
	require.NoError(t, s.CreateGoal(ctx, other))

	for _, day := range []int{14, 21} {
		_, _, err := s.UpdateWeek(ctx, g.ID, sunday(day), addTask("t"))
		require.NoError(t, err)
	}
	_, _, err := s.UpdateWeek(ctx, other.ID, sunday(14), addTask("t"))
	require.NoError(t, err)

	n, err := s.DeleteWeeks(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	weeks, err := s.ListWeeks(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, weeks)

	kept, err := s.ListWeeks(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func testReflectionUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := datatypes.MonthlyReflection{
		GoalID:       "g-1",
		Month:        "2024-02",
		WhatWentWell: "consistent",
		UpdatedAt:    base,
	}
	saved, err := s.SaveReflection(ctx, first)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.True(t, base.Equal(saved.CreatedAt))

	second := datatypes.MonthlyReflection{
		GoalID:         "g-1",
		Month:          "2024-02",
		LessonsLearned: "sleep more",
		UpdatedAt:      base.Add(24 * time.Hour),
	}
	resaved, err := s.SaveReflection(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, resaved.ID)
	assert.True(t, base.Equal(resaved.CreatedAt))

	all, err := s.ListReflections(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, "", got.WhatWentWell)
	assert.Equal(t, "sleep more", got.LessonsLearned)
	assert.True(t, base.Add(24*time.Hour).Equal(got.UpdatedAt))
	assert.True(t, base.Equal(got.CreatedAt))

	found, err := s.FindReflection(ctx, "g-1", "2024-02")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = s.FindReflection(ctx, "g-1", "2024-03")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReflectionList(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, m := range []string{"2024-03", "2023-12", "2024-01"} {
		_, err := s.SaveReflection(ctx, datatypes.MonthlyReflection{GoalID: "g-1", Month: m, UpdatedAt: base})
		require.NoError(t, err)
	}
	_, err := s.SaveReflection(ctx, datatypes.MonthlyReflection{GoalID: "g-2", Month: "2024-01", UpdatedAt: base})
	require.NoError(t, err)

	all, err := s.ListReflections(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2023-12", all[0].Month)
	assert.Equal(t, "2024-01", all[1].Month)
	assert.Equal(t, "2024-03", all[2].Month)

	n, err := s.DeleteReflections(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err = s.ListReflections(ctx, "g-1")
	require.NoError(t, err)
	assert.Empty(t, all)

	kept, err := s.ListReflections(ctx, "g-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := datatypes.User{
		ID:           uuid.NewString(),
		Email:        "ada@example.com",
		DisplayName:  "Ada",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    base,
	}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Equal(t, "Ada", got.DisplayName)

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, u.PasswordHash, byEmail.PasswordHash)

	sameEmail := u
	sameEmail.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateUser(ctx, sameEmail), store.ErrDuplicate)

	sameID := u
	sameID.Email = "other@example.com"
	assert.ErrorIs(t, s.CreateUser(ctx, sameID), store.ErrDuplicate)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCancelledContext(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.CreateGoal(ctx, NewGoal("u-1", 0))
	assert.ErrorIs(t, err, context.Canceled)
}
