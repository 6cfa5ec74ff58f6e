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
	"time"

	"cloud.google.com/go/civil"
)

// Task is one item of a weekly plan. Tasks are embedded in their WeeklyTask
// and have no existence outside it.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// WeeklyTask is the ordered task list of one goal for one week.
//
// WeekStartDate is always a Sunday. Completed is derived: true only when the
// list is non-empty and every task is completed.
type WeeklyTask struct {
	ID            string     `json:"id"`
	GoalID        string     `json:"goal_id"`
	WeekStartDate civil.Date `json:"week_start_date"`
	Tasks         []Task     `json:"tasks"`
	Completed     bool       `json:"completed"`
}

// TaskIndex returns the position of the task with the given id, or -1.
func (w *WeeklyTask) TaskIndex(taskID string) int {
	for i := range w.Tasks {
		if w.Tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}
