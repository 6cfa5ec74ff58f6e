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
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/progress"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// Months returns the month keys a goal spans, oldest first.
func (t *Tracker) Months(ctx context.Context, userID, goalID string) ([]string, error) {
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	return slices.Collect(progress.MonthKeys(g.StartDate, g.EndDate)), nil
}

func (t *Tracker) checkMonth(g datatypes.Goal, month string) error {
	if _, err := datatypes.ParseMonthKey(month); err != nil {
		return err
	}
	if !progress.InRange(month, g.StartDate, g.EndDate) {
		return datatypes.NewValidationError("month", "is outside the goal's date range")
	}
	return nil
}

// GetReflection returns the reflection for a month. A month in the goal's
// range without one yields a blank reflection with no ID. A stored
// reflection stays readable after the goal's dates move past its month.
func (t *Tracker) GetReflection(ctx context.Context, userID, goalID, month string) (datatypes.MonthlyReflection, error) {
	if _, err := datatypes.ParseMonthKey(month); err != nil {
		return datatypes.MonthlyReflection{}, err
	}
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return datatypes.MonthlyReflection{}, err
	}
	r, err := t.store.FindReflection(ctx, goalID, month)
	if errors.Is(err, store.ErrNotFound) {
		if err := t.checkMonth(g, month); err != nil {
			return datatypes.MonthlyReflection{}, err
		}
		return datatypes.MonthlyReflection{GoalID: goalID, Month: month}, nil
	}
	return r, err
}

// SaveReflection upserts the goal's reflection for month. The first save
// fixes CreatedAt; later saves overwrite the text and UpdatedAt.
func (t *Tracker) SaveReflection(ctx context.Context, userID, goalID, month string, req datatypes.SaveReflectionRequest) (datatypes.MonthlyReflection, error) {
	if err := req.Validate(); err != nil {
		return datatypes.MonthlyReflection{}, err
	}
	if _, err := datatypes.ParseMonthKey(month); err != nil {
		return datatypes.MonthlyReflection{}, err
	}
	g, err := t.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return datatypes.MonthlyReflection{}, err
	}
	if err := t.checkMonth(g, month); err != nil {
		return datatypes.MonthlyReflection{}, err
	}

	now := t.clock()
	saved, err := t.store.SaveReflection(ctx, datatypes.MonthlyReflection{
		GoalID:          goalID,
		Month:           month,
		WhatWentWell:    req.WhatWentWell,
		WhatDidntGoWell: req.WhatDidntGoWell,
		LessonsLearned:  req.LessonsLearned,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return datatypes.MonthlyReflection{}, err
	}

	t.observer.ReflectionSaved()
	t.record(ctx, userID, "reflection.saved", "monthly_reflection", saved.ID, map[string]any{
		"goal_id": goalID,
		"month":   month,
	})
	return saved, nil
}

// GoalReflections lists every stored reflection of one goal, oldest month
// first.
func (t *Tracker) GoalReflections(ctx context.Context, userID, goalID string) ([]datatypes.MonthlyReflection, error) {
	if _, err := t.ownedGoal(ctx, userID, goalID); err != nil {
		return nil, err
	}
	return t.store.ListReflections(ctx, goalID)
}

// FeedEntry is one reflection in the cross-goal feed.
type FeedEntry struct {
	GoalID     string                      `json:"goal_id"`
	GoalTitle  string                      `json:"goal_title"`
	Category   datatypes.Category          `json:"category"`
	Reflection datatypes.MonthlyReflection `json:"reflection"`
}

// ReflectionsFeed collects the reflections of all the user's goals.
//
// # Description
//
// Each goal's months are swept over its date range and the existing
// reflections collected. Goals are swept concurrently, at most
// Config.SweepConcurrency at a time; the first store error cancels the rest.
// Entries are ordered newest month first. Within a month, goals keep their
// list order (newest goal first).
func (t *Tracker) ReflectionsFeed(ctx context.Context, userID string) ([]FeedEntry, error) {
	goals, err := t.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		entry FeedEntry
		goal  int
	}
	var (
		mu    sync.Mutex
		found []ranked
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.SweepConcurrency)
	for i, goal := range goals {
		g.Go(func() error {
			for month := range progress.MonthKeys(goal.StartDate, goal.EndDate) {
				r, err := t.store.FindReflection(gctx, goal.ID, month)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				mu.Lock()
				found = append(found, ranked{
					entry: FeedEntry{GoalID: goal.ID, GoalTitle: goal.Title, Category: goal.Category, Reflection: r},
					goal:  i,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(a, b int) bool {
		ma, mb := found[a].entry.Reflection.Month, found[b].entry.Reflection.Month
		if ma != mb {
			return ma > mb
		}
		return found[a].goal < found[b].goal
	})
	feed := make([]FeedEntry, len(found))
	for i, f := range found {
		feed[i] = f.entry
	}
	return feed, nil
}
