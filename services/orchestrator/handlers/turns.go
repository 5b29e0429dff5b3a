// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the Movi HTTP and WebSocket endpoints.
package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/AleutianAI/movi/services/agent"
)

// TurnRunner is the turn API the transports drive.
type TurnRunner interface {
	StartTurn(ctx context.Context, sessionID, userInput string, tc agent.TurnContext) (agent.TurnOutcome, error)
	ResumeTurn(ctx context.Context, sessionID string, approved bool) (agent.TurnOutcome, error)
	GetState(ctx context.Context, sessionID string) (agent.StateView, error)
}

// ChatApprovalWords are the replies that approve a pending action in text
// chat.
var ChatApprovalWords = []string{"yes", "y", "proceed", "confirm", "ok", "okay", "yeah", "yep", "sure", "approve"}

// VoiceApprovalWords are the replies that approve a pending action by voice.
var VoiceApprovalWords = []string{"yes", "y", "proceed", "confirm", "ok", "okay", "sure"}

// IsApproval reports whether reply, trimmed and lower-cased, is one of words.
// Anything else, including an empty reply, is a rejection.
func IsApproval(reply string, words []string) bool {
	r := strings.ToLower(strings.TrimSpace(reply))
	if r == "" {
		return false
	}
	for _, w := range words {
		if r == w {
			return true
		}
	}
	return false
}

// routedTurn is the result of routeMessage.
type routedTurn struct {
	Outcome  agent.TurnOutcome
	Resumed  bool
	Approved bool
}

// routeMessage sends a user message to the right turn operation.
//
// # Description
//
// If the session is waiting for a confirmation the message is the answer
// and ResumeTurn runs. Otherwise StartTurn runs. A session that becomes
// suspended between the lookup and StartTurn is retried once as a resume.
//
// # Inputs
//
//   - ctx: Request context.
//   - turns: The turn API.
//   - sessionID: Conversation id.
//   - text: The user's message.
//   - tc: Page and optional screenshot.
//   - approvalWords: Replies that count as approval.
//
// # Outputs
//
//   - routedTurn: The outcome and which path ran.
//   - error: Any error from the turn API.
func routeMessage(ctx context.Context, turns TurnRunner, sessionID, text string, tc agent.TurnContext, approvalWords []string) (routedTurn, error) {
	view, err := turns.GetState(ctx, sessionID)
	if err != nil && !errors.Is(err, agent.ErrSessionNotFound) {
		return routedTurn{}, err
	}

	resume := func() (routedTurn, error) {
		approved := IsApproval(text, approvalWords)
		out, err := turns.ResumeTurn(ctx, sessionID, approved)
		return routedTurn{Outcome: out, Resumed: true, Approved: approved}, err
	}

	if err == nil && view.IsSuspended {
		return resume()
	}

	out, err := turns.StartTurn(ctx, sessionID, text, tc)
	if errors.Is(err, agent.ErrInvalidState) {
		return resume()
	}
	return routedTurn{Outcome: out}, err
}
