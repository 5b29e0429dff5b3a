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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
	"github.com/AleutianAI/movi/services/orchestrator/observability"
)

var chatTracer = otel.Tracer("movi.handlers.chat")

// ChatOptions tunes the chat stream.
type ChatOptions struct {
	// ChunkSize is the number of characters per token event. Default: 15.
	ChunkSize int

	// ChunkDelay paces token events. Zero sends them back to back.
	ChunkDelay time.Duration
}

// DefaultChatOptions returns the production stream settings.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{ChunkSize: 15, ChunkDelay: 10 * time.Millisecond}
}

// HandleChat serves POST /movi/chat.
//
// # Description
//
// Runs one turn and streams the result as application/x-ndjson:
//   - {"type":"token","content":...} chunks of the reply text
//   - {"type":"confirmation","payload":{"requires_confirmation":true,"message":...}}
//     when the turn suspended
//   - {"type":"error","content":...} on failure
//
// A message sent while the session is waiting for confirmation is the
// answer: it approves the pending action if it is one of
// ChatApprovalWords and rejects it otherwise.
//
// # Inputs
//
//   - turns: The turn API.
//   - metrics: Transport metrics. May be nil.
//   - opts: Stream settings.
//
// # Outputs
//
//   - gin.HandlerFunc: The handler.
func HandleChat(turns TurnRunner, metrics *observability.Metrics, opts ChatOptions) gin.HandlerFunc {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChatOptions().ChunkSize
	}

	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Failed to parse the chat request", "error", err)
			metrics.RecordRequest(observability.EndpointChat, observability.StatusError)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			metrics.RecordRequest(observability.EndpointChat, observability.StatusError)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("session.id", req.SessionID),
			attribute.String("page", req.ContextPage),
		)

		SetNDJSONHeaders(c.Writer)
		c.Status(http.StatusOK)
		w, err := NewNDJSONWriter(c.Writer)
		if err != nil {
			slog.Error("Chat stream unavailable", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "streaming not supported"})
			return
		}

		metrics.StreamStarted(observability.EndpointChat)
		defer metrics.StreamEnded(observability.EndpointChat)

		logger := slog.With("session_id", req.SessionID)
		routed, err := routeMessage(ctx, turns, req.SessionID, req.Message, agent.TurnContext{
			CurrentPage: req.ContextPage,
			ImageBase64: req.ImageBase64,
		}, ChatApprovalWords)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Chat turn failed", "error", err, "resumed", routed.Resumed)
			metrics.RecordRequest(observability.EndpointChat, observability.StatusError)
			_ = w.WriteError(err.Error())
			return
		}

		out := routed.Outcome
		if out.IsSuspended() {
			message := ""
			if out.Payload != nil {
				message = out.Payload.Message
			}
			logger.Info("Chat turn awaiting confirmation")
			metrics.RecordRequest(observability.EndpointChat, observability.StatusConfirmation)
			_ = w.WriteConfirmation(message)
			return
		}

		if strings.TrimSpace(out.ResponseText) == "" {
			metrics.RecordRequest(observability.EndpointChat, observability.StatusError)
			_ = w.WriteError("No response generated from agent")
			return
		}

		status := observability.StatusCompleted
		if routed.Resumed {
			status = observability.StatusResumed
			if !routed.Approved {
				status = observability.StatusRejected
			}
		}
		metrics.RecordRequest(observability.EndpointChat, status)

		for i, chunk := range chunkText(out.ResponseText, opts.ChunkSize) {
			if i > 0 && opts.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					logger.Info("Client disconnected during chat stream")
					return
				case <-time.After(opts.ChunkDelay):
				}
			}
			if err := w.WriteToken(chunk); err != nil {
				logger.Info("Chat stream write failed", "error", err)
				return
			}
		}
	}
}
