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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
)

// GetSession serves GET /movi/sessions/:sessionId with the session's
// transport view.
func GetSession(turns TurnRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		view, err := turns.GetState(c.Request.Context(), sessionID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, view)
		case errors.Is(err, agent.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "session not found"})
		case errors.Is(err, agent.ErrEmptySessionID):
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "session id is required"})
		default:
			slog.Error("Failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to load session"})
		}
	}
}

// HealthCheck serves GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MoviHealth serves GET /movi/health.
func MoviHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "Movi AI Assistant"})
}
