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
	"github.com/AleutianAI/cairn/services/goals/identity"
	"github.com/AleutianAI/cairn/services/goals/middleware"
)

// Signup registers an account and logs it in.
func Signup(p *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SignupRequest
		if !bindJSON(c, &req) {
			return
		}
		password := req.Password
		user, err := p.Signup(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		session, err := p.Login(c.Request.Context(), datatypes.LoginRequest{Email: user.Email, Password: password})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

// Login exchanges credentials for a session token.
func Login(p *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		session, err := p.Login(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// Logout revokes the token that authenticated the request.
func Logout(p *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Logout(c.Request.Context(), middleware.GetToken(c)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Me returns the caller's account.
func Me(p *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := userID(c)
		if !ok {
			return
		}
		user, err := p.User(c.Request.Context(), uid)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
