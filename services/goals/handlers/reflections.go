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

// ListMonths answers GET /v1/goals/:id/months.
func ListMonths(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		months, err := t.Months(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"months": months})
	}
}

// ListReflections answers GET /v1/goals/:id/reflections.
func ListReflections(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		list, err := t.GoalReflections(c.Request.Context(), uid, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reflections": list})
	}
}

// GetReflection answers GET /v1/goals/:id/reflections/:month.
func GetReflection(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		r, err := t.GetReflection(c.Request.Context(), uid, c.Param("id"), c.Param("month"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// SaveReflection answers PUT /v1/goals/:id/reflections/:month.
func SaveReflection(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		var req datatypes.SaveReflectionRequest
		if !bindJSON(c, &req) {
			return
		}
		r, err := t.SaveReflection(c.Request.Context(), uid, c.Param("id"), c.Param("month"), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// ReflectionsFeed answers GET /v1/reflections.
func ReflectionsFeed(t *tracker.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		feed, err := t.ReflectionsFeed(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reflections": feed})
	}
}
