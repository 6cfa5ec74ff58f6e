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

// ListWeeks answers GET /v1/goals/:id/weeks.
func ListWeeks(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		sel, err := t.Weeks(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sel)
	}
}

// GetWeek answers GET /v1/goals/:id/weeks/:week.
func GetWeek(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		view, err := t.GetWeek(c.Request.Context(), uid, c.Param("id"), c.Param("week"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// AddTask answers POST /v1/goals/:id/weeks/:week/tasks.
func AddTask(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req datatypes.AddTaskRequest
		if !bindJSON(c, &req) {
			return
		}
		up, err := t.AddTask(c.Request.Context(), uid, c.Param("id"), c.Param("week"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, up)
	}
}

// SetTask answers PATCH .../tasks/:taskId with {"completed": bool}.
func SetTask(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req datatypes.SetTaskRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := req.Validate(); err != nil {
			writeError(c, err)
			return
		}
		up, err := t.SetTask(c.Request.Context(), uid, c.Param("id"), c.Param("week"), c.Param("taskId"), *req.Completed)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, up)
	}
}

// ToggleTask answers POST .../tasks/:taskId/toggle.
func ToggleTask(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		up, err := t.ToggleTask(c.Request.Context(), uid, c.Param("id"), c.Param("week"), c.Param("taskId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, up)
	}
}

// DeleteTask answers DELETE .../tasks/:taskId.
func DeleteTask(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		up, err := t.DeleteTask(c.Request.Context(), uid, c.Param("id"), c.Param("week"), c.Param("taskId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, up)
	}
}
