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
	"regexp"
	"time"

	"cloud.google.com/go/civil"
)

// MonthlyReflection is a goal's retrospective for one calendar month.
// There is at most one per (GoalID, Month).
type MonthlyReflection struct {
	ID              string    `json:"id"`
	GoalID          string    `json:"goal_id"`
	Month           string    `json:"month"`
	WhatWentWell    string    `json:"what_went_well"`
	WhatDidntGoWell string    `json:"what_didnt_go_well"`
	LessonsLearned  string    `json:"lessons_learned"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsBlank reports whether all three text fields are empty.
func (r MonthlyReflection) IsBlank() bool {
	return r.WhatWentWell == "" && r.WhatDidntGoWell == "" && r.LessonsLearned == ""
}

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// MonthKey formats the month containing d as "YYYY-MM".
func MonthKey(d civil.Date) string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// ParseMonthKey parses "YYYY-MM" into the first day of that month.
func ParseMonthKey(key string) (civil.Date, error) {
	if !monthKeyPattern.MatchString(key) {
		return civil.Date{}, NewValidationError("month", fmt.Sprintf("%q is not a YYYY-MM month", key))
	}
	return civil.ParseDate(key + "-01")
}
