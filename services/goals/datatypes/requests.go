// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// MaxGoalYears bounds the span of a goal's date range.
const MaxGoalYears = 10

// CheckDateRange rejects an end date before start or more than MaxGoalYears
// after it. Both errors are reported against end_date.
func CheckDateRange(start, end civil.Date) error {
	if end.Before(start) {
		return NewValidationError("end_date", "must not be before start_date")
	}
	limit := civil.DateOf(start.In(time.UTC).AddDate(MaxGoalYears, 0, 0))
	if end.After(limit) {
		return NewValidationError("end_date", fmt.Sprintf("must be within %d years of start_date", MaxGoalYears))
	}
	return nil
}

// =============================================================================
// Goal Requests
// =============================================================================

// CreateGoalRequest is the body of POST /v1/goals.
//
// # Description
//
// Category, Priority and StartDate are optional and default to Other, Medium
// and today respectively. Dates are YYYY-MM-DD strings so that a malformed
// value is reported against its field instead of as a decode failure.
//
// # Examples
//
//	{
//	    "title": "Run a half marathon",
//	    "category": "Health",
//	    "priority": "High",
//	    "start_date": "2024-01-15",
//	    "end_date": "2024-03-10"
//	}
type CreateGoalRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Category    string `json:"category" validate:"omitempty,category"`
	Priority    string `json:"priority" validate:"omitempty,priority"`
	StartDate   string `json:"start_date" validate:"omitempty,civildate"`
	EndDate     string `json:"end_date" validate:"required,civildate"`
	Description string `json:"description" validate:"max=2000"`
}

// Validate trims free text and checks every field.
//
// # Description
//
// Title must be non-empty after trimming. When StartDate is given, the range
// must pass CheckDateRange. The range check against "today" for an omitted
// start date is left to the caller, which owns the clock.
//
// # Outputs
//
//   - error: *ValidationError naming the first rejected field, or nil.
func (r *CreateGoalRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)

	if err := validateStruct(r); err != nil {
		return err
	}
	if r.StartDate == "" {
		return nil
	}
	start, _ := ParseDate("start_date", r.StartDate)
	end, _ := ParseDate("end_date", r.EndDate)
	return CheckDateRange(start, end)
}

// UpdateGoalRequest is the body of PATCH /v1/goals/:id. Nil fields are left
// unchanged. The completion percentage is not part of the request.
type UpdateGoalRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Category    *string `json:"category,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Completed   *bool   `json:"completed,omitempty"`
}

// Validate checks the fields that are present. The date range rules are
// checked on the merged goal by the tracker.
func (r *UpdateGoalRequest) Validate() error {
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return NewValidationError("title", "is required")
		}
		r.Title = &title
	}
	if r.Description != nil {
		desc := strings.TrimSpace(*r.Description)
		r.Description = &desc
	}
	if r.Category != nil {
		if _, ok := ParseCategory(*r.Category); !ok {
			return NewValidationError("category", "must be one of "+joinNames(Categories))
		}
	}
	if r.Priority != nil {
		if _, ok := ParsePriority(*r.Priority); !ok {
			return NewValidationError("priority", "must be one of "+joinNames(Priorities))
		}
	}
	if r.StartDate != nil {
		if _, err := ParseDate("start_date", *r.StartDate); err != nil {
			return err
		}
	}
	if r.EndDate != nil {
		if _, err := ParseDate("end_date", *r.EndDate); err != nil {
			return err
		}
	}
	return validateStruct(r)
}

// IsEmpty reports whether the patch changes nothing.
func (r *UpdateGoalRequest) IsEmpty() bool {
	return r.Title == nil && r.Category == nil && r.Priority == nil &&
		r.StartDate == nil && r.EndDate == nil && r.Description == nil &&
		r.Completed == nil
}

// =============================================================================
// Task Requests
// =============================================================================

// AddTaskRequest is the body of POST .../weeks/:week/tasks.
type AddTaskRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// Validate trims the title and rejects an empty one.
func (r *AddTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	return validateStruct(r)
}

// SetTaskRequest is the body of PATCH .../tasks/:taskId.
type SetTaskRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

// Validate requires the completed flag to be present.
func (r *SetTaskRequest) Validate() error {
	return validateStruct(r)
}

// =============================================================================
// Reflection Requests
// =============================================================================

// SaveReflectionRequest is the body of PUT .../reflections/:month.
// Empty strings are valid and overwrite earlier text.
type SaveReflectionRequest struct {
	WhatWentWell    string `json:"what_went_well" validate:"max=5000"`
	WhatDidntGoWell string `json:"what_didnt_go_well" validate:"max=5000"`
	LessonsLearned  string `json:"lessons_learned" validate:"max=5000"`
}

// Validate enforces the length limits.
func (r *SaveReflectionRequest) Validate() error {
	return validateStruct(r)
}

// =============================================================================
// Identity Requests
// =============================================================================

// SignupRequest is the body of POST /v1/auth/signup.
// bcrypt ignores bytes past 72, so longer passwords are rejected.
type SignupRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// Validate normalizes the email and display name and checks every field.
func (r *SignupRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	return validateStruct(r)
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate normalizes the email and requires both fields.
func (r *LoginRequest) Validate() error {
	r.Email = NormalizeEmail(r.Email)
	return validateStruct(r)
}
