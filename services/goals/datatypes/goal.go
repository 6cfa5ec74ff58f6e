// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the records and request/response types of the
// goal tracking service.
//
// Records (Goal, WeeklyTask, Task, MonthlyReflection, User) are what the store
// persists. Request types carry validate tags and a Validate method; handlers
// bind JSON into them and call Validate before anything touches the store.
package datatypes

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// Enumerations
// =============================================================================

// Category classifies a goal.
type Category string

const (
	CategoryHealth   Category = "Health"
	CategoryStudy    Category = "Study"
	CategoryCareer   Category = "Career"
	CategoryFinance  Category = "Finance"
	CategoryPersonal Category = "Personal"
	CategoryOther    Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryHealth, CategoryStudy, CategoryCareer,
	CategoryFinance, CategoryPersonal, CategoryOther,
}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// Priority ranks a goal.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority matches a priority name case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	for _, p := range Priorities {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// =============================================================================
// Goal
// =============================================================================

// Goal is a user's objective over a date range.
//
// # Invariants
//
//   - EndDate is never before StartDate.
//   - CompletionPercentage is in [0, 100] and always equals the completion
//     roll-up of the goal's weekly tasks. It is derived; clients cannot set it.
type Goal struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Title                string     `json:"title"`
	Category             Category   `json:"category"`
	Priority             Priority   `json:"priority"`
	StartDate            civil.Date `json:"start_date"`
	EndDate              civil.Date `json:"end_date"`
	Description          string     `json:"description,omitempty"`
	Completed            bool       `json:"completed"`
	CompletionPercentage int        `json:"completion_percentage"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsActive reports whether the goal is still being worked on as of today:
// not marked completed and not past its end date.
func (g Goal) IsActive(today civil.Date) bool {
	return !g.Completed && !g.EndDate.Before(today)
}

// OwnedBy reports whether userID owns the goal.
func (g Goal) OwnedBy(userID string) bool {
	return userID != "" && g.UserID == userID
}
