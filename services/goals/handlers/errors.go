// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the JSON API of the goals service.
//
// Every handler is a constructor returning a gin.HandlerFunc bound to its
// dependencies. Failures go through writeError, the single place where
// domain errors become status codes:
//
//	*datatypes.ValidationError      → 400 {"error", "field"}
//	store.ErrNotFound (or not owner) → 404
//	store.ErrConflict               → 409
//	identity.ErrEmailTaken          → 409
//	identity.ErrInvalidCredentials  → 401
//	identity.ErrUnauthorized        → 401
//	anything else                   → 500, logged with the request context
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/cairn/services/goals/datatypes"
	"github.com/AleutianAI/cairn/services/goals/identity"
	"github.com/AleutianAI/cairn/services/goals/middleware"
	"github.com/AleutianAI/cairn/services/goals/store"
)

// writeError maps err to a status code and aborts the request. The error is
// attached to the gin context so middleware can count it.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var ve *datatypes.ValidationError
	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, datatypes.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "the record was changed concurrently, retry"})
	case errors.Is(err, identity.ErrEmailTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, identity.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, identity.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON decodes the body into v, answering 400 on malformed JSON.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return false
	}
	return true
}

// userID returns the authenticated caller. Routes using it sit behind
// middleware.AuthMiddleware, so a missing principal is a wiring bug and
// answers 401.
func userID(c *gin.Context) (string, bool) {
	info := middleware.GetAuthInfo(c)
	if info == nil || info.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return info.UserID, true
}
