// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/progress"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// WeekView is one week's task list with its progress.
type WeekView struct {
	Week     datatypes.WeeklyTask `json:"week"`
	Progress progress.WeekSummary `json:"progress"`
}

// WeekUpdate is the result of a task mutation: the new week and the goal's
// recomputed completion percentage.
type WeekUpdate struct {
	WeekView
	GoalCompletion int `json:"goal_completion_percentage"`
}

// WeekSelector lists the weeks a goal spans.
type WeekSelector struct {
	Weeks   []civil.Date `json:"weeks"`
	Current civil.Date   `json:"current"`
}

// Weeks returns the week selector of a goal.
func (t *Tracker) Weeks(ctx context.Context, userID, goalID string) (WeekSelector, error) {
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return WeekSelector{}, err
	}
	return WeekSelector{
		Weeks:   slices.Collect(progress.WeekStarts(g.StartDate, g.EndDate)),
		Current: progress.StartOfWeek(t.today()),
	}, nil
}

// ParseWeek parses a YYYY-MM-DD week key and normalizes it to its Sunday.
func ParseWeek(key string) (civil.Date, error) {
	d, err := datatypes.ParseDate("week", key)
	if err != nil {
		return civil.Date{}, err
	}
	return progress.StartOfWeek(d), nil
}

// checkWeek rejects weeks outside the goal's week range.
func checkWeek(g datatypes.Goal, weekStart civil.Date) error {
	if weekStart.Before(progress.StartOfWeek(g.StartDate)) || weekStart.After(g.EndDate) {
		return datatypes.NewValidationError("week", "is outside the goal's date range")
	}
	return nil
}

// GetWeek returns the task list for a week. A week nobody has planned yet
// comes back empty with no ID; it is created on the first task mutation.
// A stored week stays readable after the goal's dates move past it.
func (t *Tracker) GetWeek(ctx context.Context, userID, goalID, weekKey string) (WeekView, error) {
	weekStart, err := ParseWeek(weekKey)
	if err != nil {
		return WeekView{}, err
	}
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return WeekView{}, err
	}

	w, err := t.store.FindWeek(ctx, goalID, weekStart)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := checkWeek(g, weekStart); err != nil {
			return WeekView{}, err
		}
		w = datatypes.WeeklyTask{GoalID: goalID, WeekStartDate: weekStart, Tasks: []datatypes.Task{}}
	case err != nil:
		return WeekView{}, err
	}
	return WeekView{Week: w, Progress: progress.SummarizeWeek(w)}, nil
}

// AddTask appends a new incomplete task to the week.
func (t *Tracker) AddTask(ctx context.Context, userID, goalID, weekKey string, req datatypes.AddTaskRequest) (WeekUpdate, error) {
	if err := req.Validate(); err != nil {
		return WeekUpdate{}, err
	}
	return t.mutateWeek(ctx, userID, goalID, weekKey, "add", func(w *datatypes.WeeklyTask, _ time.Time) error {
		w.Tasks = append(w.Tasks, datatypes.Task{ID: uuid.NewString(), Title: req.Title})
		return nil
	})
}

// SetTask sets a task's completed state. Setting the current value again
// changes nothing, including CompletedAt.
func (t *Tracker) SetTask(ctx context.Context, userID, goalID, weekKey, taskID string, completed bool) (WeekUpdate, error) {
	return t.mutateWeek(ctx, userID, goalID, weekKey, "set", func(w *datatypes.WeeklyTask, now time.Time) error {
		i := w.TaskIndex(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		setCompleted(&w.Tasks[i], completed, now)
		return nil
	})
}

// ToggleTask flips a task's completed state.
func (t *Tracker) ToggleTask(ctx context.Context, userID, goalID, weekKey, taskID string) (WeekUpdate, error) {
	return t.mutateWeek(ctx, userID, goalID, weekKey, "toggle", func(w *datatypes.WeeklyTask, now time.Time) error {
		i := w.TaskIndex(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		setCompleted(&w.Tasks[i], !w.Tasks[i].Completed, now)
		return nil
	})
}

// DeleteTask removes a task from the week.
func (t *Tracker) DeleteTask(ctx context.Context, userID, goalID, weekKey, taskID string) (WeekUpdate, error) {
	return t.mutateWeek(ctx, userID, goalID, weekKey, "delete", func(w *datatypes.WeeklyTask, _ time.Time) error {
		i := w.TaskIndex(taskID)
		if i < 0 {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		w.Tasks = slices.Delete(w.Tasks, i, i+1)
		return nil
	})
}

func setCompleted(task *datatypes.Task, completed bool, now time.Time) {
	if task.Completed == completed {
		return
	}
	task.Completed = completed
	if completed {
		at := now
		task.CompletedAt = &at
	} else {
		task.CompletedAt = nil
	}
}

// mutateWeek is the single read-modify-write path for tasks.
//
// # Description
//
// Inside one store transaction it checks ownership and the week range,
// applies edit, recomputes the week's all-complete flag and writes the
// goal's completion percentage over every week of the goal.
//
// The range check applies to new weeks and to adding tasks. A stored week
// left outside the range by a date edit still counts toward completion, so
// its tasks can still be set, toggled and deleted.
func (t *Tracker) mutateWeek(ctx context.Context, userID, goalID, weekKey, op string, edit func(w *datatypes.WeeklyTask, now time.Time) error) (WeekUpdate, error) {
	weekStart, err := ParseWeek(weekKey)
	if err != nil {
		return WeekUpdate{}, err
	}

	now := t.clock()
	goal, week, err := t.store.UpdateWeek(ctx, goalID, weekStart, func(g *datatypes.Goal, w *datatypes.WeeklyTask, others []datatypes.WeeklyTask) error {
		if !g.OwnedBy(userID) {
			return errNotOwner
		}
		if w.ID == "" || op == "add" {
			if err := checkWeek(*g, weekStart); err != nil {
				return err
			}
		}
		if err := edit(w, now); err != nil {
			return err
		}
		w.Completed = progress.AllComplete(w.Tasks)
		g.CompletionPercentage = progress.Completion(append(others, *w))
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return WeekUpdate{}, err
	}

	t.observer.TaskChanged(op)
	t.record(ctx, userID, "task."+op, "weekly_task", week.ID, map[string]any{
		"goal_id":    goalID,
		"week_start": weekStart.String(),
		"completion": goal.CompletionPercentage,
	})
	return WeekUpdate{
		WeekView:       WeekView{Week: week, Progress: progress.SummarizeWeek(week)},
		GoalCompletion: goal.CompletionPercentage,
	}, nil
}
