// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/tracker"
)

// ListGoals answers GET /v1/goals?status=&category=.
func ListGoals(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		goals, err := t.ListGoals(c.Request.Context(), uid, tracker.GoalFilter{
			Status:   c.Query("status"),
			Category: c.Query("category"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"goals": goals})
	}
}

// CreateGoal answers POST /v1/goals.
func CreateGoal(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req datatypes.CreateGoalRequest
		if !bindJSON(c, &req) {
			return
		}
		goal, err := t.CreateGoal(c.Request.Context(), uid, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, goal)
	}
}

// GetGoal answers GET /v1/goals/:id with the goal and its selectors.
func GetGoal(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		detail, err := t.Detail(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// UpdateGoal answers PATCH /v1/goals/:id.
func UpdateGoal(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req datatypes.UpdateGoalRequest
		if !bindJSON(c, &req) {
			return
		}
		goal, err := t.UpdateGoal(c.Request.Context(), uid, c.Param("id"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, goal)
	}
}

// CompleteGoal answers POST /v1/goals/:id/complete by flipping the flag.
func CompleteGoal(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		goal, err := t.ToggleCompleted(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, goal)
	}
}

// DeleteGoal answers DELETE /v1/goals/:id.
func DeleteGoal(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		if err := t.DeleteGoal(c.Request.Context(), uid, c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Dashboard answers GET /v1/dashboard.
func Dashboard(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		d, err := t.Dashboard(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// Progress answers GET /v1/progress with chart-ready aggregates.
func Progress(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		o, err := t.Overview(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}
