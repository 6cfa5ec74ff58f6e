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
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/progress"
)

// =============================================================================
// Filters
// =============================================================================

// Status filters the goal list.
type Status string

const (
	StatusAll       Status = "all"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// GoalFilter narrows ListGoals. Zero value lists everything.
type GoalFilter struct {
	Status   string
	Category string
}

func (f GoalFilter) parse() (Status, datatypes.Category, error) {
	status := Status(strings.ToLower(strings.TrimSpace(f.Status)))
	switch status {
	case "":
		status = StatusAll
	case StatusAll, StatusActive, StatusCompleted:
	default:
		return "", "", datatypes.NewValidationError("status", "must be one of all, active, completed")
	}
	if strings.TrimSpace(f.Category) == "" || strings.EqualFold(f.Category, "all") {
		return status, "", nil
	}
	cat, ok := datatypes.ParseCategory(f.Category)
	if !ok {
		return "", "", datatypes.NewValidationError("category", "is not a known category")
	}
	return status, cat, nil
}

// =============================================================================
// Goal Operations
// =============================================================================

// CreateGoal validates req and stores a new goal owned by userID.
//
// # Description
//
// Start date defaults to today, category to Other and priority to Medium.
// The goal starts incomplete with a completion percentage of 0.
//
// # Outputs
//
//   - datatypes.Goal: The stored goal.
//   - error: *ValidationError for bad input; a wrapped store error otherwise.
func (t *Tracker) CreateGoal(ctx context.Context, userID string, req datatypes.CreateGoalRequest) (datatypes.Goal, error) {
	if err := req.Validate(); err != nil {
		return datatypes.Goal{}, err
	}

	now := t.clock()
	start := civil.DateOf(now)
	if req.StartDate != "" {
		start, _ = civil.ParseDate(req.StartDate)
	}
	end, _ := civil.ParseDate(req.EndDate)
	if err := datatypes.CheckDateRange(start, end); err != nil {
		return datatypes.Goal{}, err
	}

	category := datatypes.CategoryOther
	if req.Category != "" {
		category, _ = datatypes.ParseCategory(req.Category)
	}
	priority := datatypes.PriorityMedium
	if req.Priority != "" {
		priority, _ = datatypes.ParsePriority(req.Priority)
	}

	g := datatypes.Goal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Category:    category,
		Priority:    priority,
		StartDate:   start,
		EndDate:     end,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.store.CreateGoal(ctx, g); err != nil {
		return datatypes.Goal{}, err
	}

	t.observer.GoalChanged("create")
	t.record(ctx, userID, "goal.created", "goal", g.ID, map[string]any{"category": string(category)})
	t.logger.Info("goal created", "goal_id", g.ID, "user_id", userID)
	return g, nil
}

// GetGoal returns the goal when userID owns it.
func (t *Tracker) GetGoal(ctx context.Context, userID, goalID string) (datatypes.Goal, error) {
	return t.ownedGoal(ctx, userID, goalID)
}

// ListGoals returns the user's goals newest first, narrowed by filter.
// Active means not completed and not past the end date.
func (t *Tracker) ListGoals(ctx context.Context, userID string, filter GoalFilter) ([]datatypes.Goal, error) {
	status, category, err := filter.parse()
	if err != nil {
		return nil, err
	}
	goals, err := t.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := t.today()
	return slices.DeleteFunc(goals, func(g datatypes.Goal) bool {
		if category != "" && g.Category != category {
			return true
		}
		switch status {
		case StatusActive:
			return !g.IsActive(today)
		case StatusCompleted:
			return !g.Completed
		}
		return false
	}), nil
}

// UpdateGoal applies a partial edit.
//
// # Description
//
// Only non-nil request fields change. The date range rules are checked on
// the merged goal, so moving only one date is still validated. The
// completion percentage is never taken from the request. An empty patch
// returns the goal untouched.
//
// Weeks already planned outside a narrowed range stay reachable through
// the task operations and keep counting toward completion.
func (t *Tracker) UpdateGoal(ctx context.Context, userID, goalID string, req datatypes.UpdateGoalRequest) (datatypes.Goal, error) {
	if err := req.Validate(); err != nil {
		return datatypes.Goal{}, err
	}
	if req.IsEmpty() {
		return t.ownedGoal(ctx, userID, goalID)
	}
	g, err := t.store.UpdateGoal(ctx, goalID, func(g *datatypes.Goal) error {
		if !g.OwnedBy(userID) {
			return errNotOwner
		}
		applyPatch(g, req)
		if err := datatypes.CheckDateRange(g.StartDate, g.EndDate); err != nil {
			return err
		}
		g.UpdatedAt = t.clock()
		return nil
	})
	if err != nil {
		return datatypes.Goal{}, err
	}

	t.observer.GoalChanged("update")
	t.record(ctx, userID, "goal.updated", "goal", goalID, nil)
	return g, nil
}

func applyPatch(g *datatypes.Goal, req datatypes.UpdateGoalRequest) {
	if req.Title != nil {
		g.Title = *req.Title
	}
	if req.Category != nil {
		g.Category, _ = datatypes.ParseCategory(*req.Category)
	}
	if req.Priority != nil {
		g.Priority, _ = datatypes.ParsePriority(*req.Priority)
	}
	if req.StartDate != nil {
		g.StartDate, _ = civil.ParseDate(strings.TrimSpace(*req.StartDate))
	}
	if req.EndDate != nil {
		g.EndDate, _ = civil.ParseDate(strings.TrimSpace(*req.EndDate))
	}
	if req.Description != nil {
		g.Description = *req.Description
	}
	if req.Completed != nil {
		g.Completed = *req.Completed
	}
}

// ToggleCompleted flips the goal's completed flag.
func (t *Tracker) ToggleCompleted(ctx context.Context, userID, goalID string) (datatypes.Goal, error) {
	g, err := t.store.UpdateGoal(ctx, goalID, func(g *datatypes.Goal) error {
		if !g.OwnedBy(userID) {
			return errNotOwner
		}
		g.Completed = !g.Completed
		g.UpdatedAt = t.clock()
		return nil
	})
	if err != nil {
		return datatypes.Goal{}, err
	}

	t.observer.GoalChanged("complete")
	t.record(ctx, userID, "goal.completed", "goal", goalID, map[string]any{"completed": g.Completed})
	return g, nil
}

// DeleteGoal removes a goal. With CascadeDeletes its weeks and reflections
// are removed first, so a failure never leaves children of a deleted goal.
func (t *Tracker) DeleteGoal(ctx context.Context, userID, goalID string) error {
	if _, err := t.ownedGoal(ctx, userID, goalID); err != nil {
		return err
	}

	meta := map[string]any{"cascade": t.cfg.CascadeDeletes}
	if t.cfg.CascadeDeletes {
		weeks, err := t.store.DeleteWeeks(ctx, goalID)
		if err != nil {
			return err
		}
		reflections, err := t.store.DeleteReflections(ctx, goalID)
		if err != nil {
			return err
		}
		meta["weeks"], meta["reflections"] = weeks, reflections
	}
	if err := t.store.DeleteGoal(ctx, goalID); err != nil {
		return err
	}

	t.observer.GoalChanged("delete")
	t.record(ctx, userID, "goal.deleted", "goal", goalID, meta)
	t.logger.Info("goal deleted", "goal_id", goalID, "user_id", userID, "cascade", t.cfg.CascadeDeletes)
	return nil
}

// =============================================================================
// Detail
// =============================================================================

// GoalDetail is the goal page: the goal with its week and month selectors.
type GoalDetail struct {
	Goal          datatypes.Goal `json:"goal"`
	Weeks         []civil.Date   `json:"weeks"`
	CurrentWeek   civil.Date     `json:"current_week"`
	Months        []string       `json:"months"`
	DaysRemaining int            `json:"days_remaining"`
}

// Detail assembles the goal page for the owner.
func (t *Tracker) Detail(ctx context.Context, userID, goalID string) (GoalDetail, error) {
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return GoalDetail{}, err
	}
	now := t.clock()
	return GoalDetail{
		Goal:          g,
		Weeks:         slices.Collect(progress.WeekStarts(g.StartDate, g.EndDate)),
		CurrentWeek:   progress.StartOfWeek(civil.DateOf(now)),
		Months:        slices.Collect(progress.MonthKeys(g.StartDate, g.EndDate)),
		DaysRemaining: progress.DaysRemaining(g.EndDate, now),
	}, nil
}

// Dashboard summarizes the user's goals for the landing page.
func (t *Tracker) Dashboard(ctx context.Context, userID string) (progress.Dashboard, error) {
	goals, err := t.store.ListGoals(ctx, userID)
	if err != nil {
		return progress.Dashboard{}, fmt.Errorf("dashboard: %w", err)
	}
	return progress.BuildDashboard(goals, t.clock()), nil
}

// Overview builds the chart-ready progress view.
func (t *Tracker) Overview(ctx context.Context, userID string) (progress.Overview, error) {
	goals, err := t.store.ListGoals(ctx, userID)
	if err != nil {
		return progress.Overview{}, fmt.Errorf("overview: %w", err)
	}
	return progress.BuildOverview(goals, t.clock()), nil
}
