// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/cairn/pkg/extensions"
	"github.com/AleutianAI/cairn/services/goals/handlers"
	"github.com/AleutianAI/cairn/services/goals/identity"
	"github.com/AleutianAI/cairn/services/goals/middleware"
	"github.com/AleutianAI/cairn/services/goals/tracker"
)

// Deps are the services the routes are bound to.
type Deps struct {
	Tracker  *tracker.Tracker
	Identity *identity.Provider

	// Auth validates bearer tokens. Nil uses Identity.
	Auth extensions.AuthProvider

	// AuthLimiter throttles signup and login. Nil disables throttling.
	AuthLimiter *middleware.IPRateLimiter

	// Metrics serves /metrics. Nil uses promhttp.Handler().
	Metrics http.Handler
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	var auth extensions.AuthProvider = deps.Identity
	if deps.Auth != nil {
		auth = deps.Auth
	}
	requireAuth := middleware.AuthMiddleware(auth)

	// API version 1 group
	v1 := router.Group("/v1")
	{
		anonymous := v1.Group("/auth", middleware.AnonymousOnly(auth))
		if deps.AuthLimiter != nil {
			anonymous.Use(deps.AuthLimiter.Middleware())
		}
		{
			anonymous.POST("/signup", handlers.Signup(deps.Identity))
			anonymous.POST("/login", handlers.Login(deps.Identity))
		}

		session := v1.Group("/auth", requireAuth)
		{
			session.POST("/logout", handlers.Logout(deps.Identity))
			session.GET("/me", handlers.Me(deps.Identity))
		}

		authed := v1.Group("", requireAuth)
		{
			authed.GET("/dashboard", handlers.Dashboard(deps.Tracker))
			authed.GET("/progress", handlers.Progress(deps.Tracker))
			authed.GET("/reflections", handlers.ReflectionsFeed(deps.Tracker))

			goals := authed.Group("/goals")
			{
				goals.GET("", handlers.ListGoals(deps.Tracker))
				goals.POST("", handlers.CreateGoal(deps.Tracker))
				goals.GET("/:id", handlers.GetGoal(deps.Tracker))
				goals.PATCH("/:id", handlers.UpdateGoal(deps.Tracker))
				goals.POST("/:id/complete", handlers.CompleteGoal(deps.Tracker))
				goals.DELETE("/:id", handlers.DeleteGoal(deps.Tracker))

				goals.GET("/:id/weeks", handlers.ListWeeks(deps.Tracker))
				goals.GET("/:id/weeks/:week", handlers.GetWeek(deps.Tracker))
				goals.POST("/:id/weeks/:week/tasks", handlers.AddTask(deps.Tracker))
				goals.PATCH("/:id/weeks/:week/tasks/:taskId", handlers.SetTask(deps.Tracker))
				goals.POST("/:id/weeks/:week/tasks/:taskId/toggle", handlers.ToggleTask(deps.Tracker))
				goals.DELETE("/:id/weeks/:week/tasks/:taskId", handlers.DeleteTask(deps.Tracker))

				goals.GET("/:id/months", handlers.ListMonths(deps.Tracker))
				goals.GET("/:id/reflections", handlers.ListReflections(deps.Tracker))
				goals.GET("/:id/reflections/:month", handlers.GetReflection(deps.Tracker))
				goals.PUT("/:id/reflections/:month", handlers.SaveReflection(deps.Tracker))
			}
		}
	}
}
