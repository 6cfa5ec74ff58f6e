// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package progress

import (
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
)

// RecentGoalLimit caps Dashboard.Recent.
const RecentGoalLimit = 6

// ChartTitleLimit is the rune length after which chart titles are cut.
const ChartTitleLimit = 15

// Quotes are rotated on the dashboard, one per day of the year.
var Quotes = []string{
	"The only way to do great work is to love what you do. - Steve Jobs",
	"Success is the sum of small efforts repeated day in and day out. - Robert Collier",
	"The future belongs to those who believe in the beauty of their dreams. - Eleanor Roosevelt",
	"Don't watch the clock; do what it does. Keep going. - Sam Levenson",
	"The way to get started is to quit talking and begin doing. - Walt Disney",
}

// QuoteFor picks the quote for the day containing now.
func QuoteFor(now time.Time) string {
	return Quotes[(now.YearDay()-1)%len(Quotes)]
}

// =============================================================================
// Counts
// =============================================================================

// Counts are the headline numbers shared by the dashboard and progress views.
type Counts struct {
	Total           int `json:"total"`
	Active          int `json:"active"`
	Completed       int `json:"completed"`
	AverageProgress int `json:"average_progress"`
}

// CountGoals computes Counts. AverageProgress is the rounded mean completion
// percentage and 0 for no goals.
func CountGoals(goals []datatypes.Goal, today civil.Date) Counts {
	c := Counts{Total: len(goals)}
	sum := 0
	for _, g := range goals {
		if g.Completed {
			c.Completed++
		}
		if g.IsActive(today) {
			c.Active++
		}
		sum += g.CompletionPercentage
	}
	if len(goals) > 0 {
		c.AverageProgress = (2*sum + len(goals)) / (2 * len(goals))
	}
	return c
}

// =============================================================================
// Dashboard
// =============================================================================

// Dashboard is the landing summary of a user's goals.
type Dashboard struct {
	Counts
	Recent []datatypes.Goal `json:"recent"`
	Quote  string           `json:"quote"`
}

// BuildDashboard summarizes goals, which must already be newest first.
func BuildDashboard(goals []datatypes.Goal, now time.Time) Dashboard {
	recent := goals
	if len(recent) > RecentGoalLimit {
		recent = recent[:RecentGoalLimit]
	}
	return Dashboard{
		Counts: CountGoals(goals, civil.DateOf(now)),
		Recent: append([]datatypes.Goal{}, recent...),
		Quote:  QuoteFor(now),
	}
}

// =============================================================================
// Progress Overview
// =============================================================================

// ChartRow is one bar of the per-goal progress chart.
type ChartRow struct {
	GoalID   string             `json:"goal_id"`
	Name     string             `json:"name"`
	Progress int                `json:"progress"`
	Category datatypes.Category `json:"category"`
}

// Bucket is one slice of a distribution chart.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Overview is the chart-ready progress view.
type Overview struct {
	Counts
	Goals      []ChartRow `json:"goals"`
	Categories []Bucket   `json:"categories"`
	Priorities []Bucket   `json:"priorities"`
}

// BuildOverview aggregates goals into chart rows and distributions.
//
// # Description
//
// Rows keep the order of goals. Category and priority buckets appear in the
// order their first goal appears, not in enum order.
func BuildOverview(goals []datatypes.Goal, now time.Time) Overview {
	ov := Overview{
		Counts:     CountGoals(goals, civil.DateOf(now)),
		Goals:      make([]ChartRow, 0, len(goals)),
		Categories: []Bucket{},
		Priorities: []Bucket{},
	}
	for _, g := range goals {
		ov.Goals = append(ov.Goals, ChartRow{
			GoalID:   g.ID,
			Name:     ChartTitle(g.Title),
			Progress: g.CompletionPercentage,
			Category: g.Category,
		})
		ov.Categories = bump(ov.Categories, string(g.Category))
		ov.Priorities = bump(ov.Priorities, string(g.Priority))
	}
	return ov
}

// ChartTitle shortens titles longer than ChartTitleLimit runes to that many
// runes followed by "...".
func ChartTitle(title string) string {
	if utf8.RuneCountInString(title) <= ChartTitleLimit {
		return title
	}
	return string([]rune(title)[:ChartTitleLimit]) + "..."
}

func bump(buckets []Bucket, name string) []Bucket {
	for i := range buckets {
		if buckets[i].Name == name {
			buckets[i].Value++
			return buckets
		}
	}
	return append(buckets, Bucket{Name: name, Value: 1})
}
