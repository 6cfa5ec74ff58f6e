// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress holds the pure computations behind goal tracking:
// completion roll-up, calendar enumeration and dashboard aggregation.
//
// Nothing here touches storage or the clock; callers pass in records and
// "now". Every function is safe for concurrent use.
package progress

import (
	"github.com/AleutianAI/cairn/services/goals/datatypes"
)

// Percent returns round(100*completed/total) with halves rounded up, and 0
// when total is zero. The result is clamped to [0, 100].
func Percent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	// floor(100c/t + 1/2) in integer arithmetic
	return (200*completed + total) / (2 * total)
}

// Tally counts completed and total tasks across weeks. Every task counts
// equally regardless of which week it belongs to.
func Tally(weeks []datatypes.WeeklyTask) (completed, total int) {
	for _, w := range weeks {
		for _, t := range w.Tasks {
			total++
			if t.Completed {
				completed++
			}
		}
	}
	return completed, total
}

// Completion is the goal completion percentage over all of its weeks.
func Completion(weeks []datatypes.WeeklyTask) int {
	return Percent(Tally(weeks))
}

// AllComplete is true only for a non-empty list whose tasks are all done.
func AllComplete(tasks []datatypes.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}

// WeekSummary is the progress of a single week.
type WeekSummary struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// SummarizeWeek computes the progress of one week.
func SummarizeWeek(w datatypes.WeeklyTask) WeekSummary {
	c, t := Tally([]datatypes.WeeklyTask{w})
	return WeekSummary{Completed: c, Total: t, Percent: Percent(c, t)}
}
