// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the Movi HTTP endpoints.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/movi/services/orchestrator/handlers"
	"github.com/AleutianAI/movi/services/orchestrator/middleware"
	"github.com/AleutianAI/movi/services/orchestrator/observability"
	"github.com/AleutianAI/movi/services/speech"
)

// Deps holds everything the routes need.
type Deps struct {
	Turns handlers.TurnRunner

	// Transcriber and Synthesizer back the voice endpoint. The voice route
	// is not registered when Transcriber is nil.
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	VoiceHub    *handlers.VoiceHub

	// VoiceTokens is nil when room credentials are not configured.
	VoiceTokens *handlers.VoiceTokenIssuer

	Metrics        *observability.Metrics
	MetricsHandler http.Handler

	// Auth guards the /movi group. Default: NopAuthProvider.
	Auth middleware.AuthProvider

	// RateLimiter limits /movi requests per client. Nil disables it.
	RateLimiter *middleware.RateLimiter

	Chat handlers.ChatOptions
}

// SetupRoutes registers all routes on router.
//
// # Description
//
// Public:
//   - GET /health
//   - GET /metrics (when MetricsHandler is set)
//
// Under /movi, behind auth and rate limiting:
//   - POST /movi/chat
//   - GET  /movi/voice (WebSocket)
//   - GET  /movi/voice/sessions
//   - POST /movi/voice/token
//   - GET  /movi/sessions/:sessionId
//   - GET  /movi/health
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	if deps.Auth == nil {
		deps.Auth = middleware.NopAuthProvider{}
	}
	if deps.VoiceHub == nil {
		deps.VoiceHub = handlers.NewVoiceHub()
	}

	movi := router.Group("/movi")
	movi.GET("/health", handlers.MoviHealth)

	api := movi.Group("")
	api.Use(middleware.AuthMiddleware(deps.Auth))
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimit(deps.RateLimiter))
	}
	{
		api.POST("/chat", handlers.HandleChat(deps.Turns, deps.Metrics, deps.Chat))
		api.POST("/voice/token", handlers.HandleVoiceToken(deps.VoiceTokens, deps.Metrics))
		api.GET("/voice/sessions", handlers.HandleVoiceSessions(deps.VoiceHub))
		api.GET("/sessions/:sessionId", handlers.GetSession(deps.Turns))

		if deps.Transcriber != nil {
			api.GET("/voice", handlers.HandleVoiceWebSocket(handlers.VoiceDeps{
				Turns:       deps.Turns,
				Transcriber: deps.Transcriber,
				Synthesizer: deps.Synthesizer,
				Hub:         deps.VoiceHub,
				Metrics:     deps.Metrics,
			}))
		}
	}
}
