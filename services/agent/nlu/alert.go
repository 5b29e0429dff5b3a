// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlu

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/llm"
)

const proceedQuestion = "\n\nDo you want to proceed? (yes/no)"

// DefaultAlert is the confirmation text for an action without consequence data.
func DefaultAlert(action string) string {
	if action == "" {
		action = "this action"
	}
	return "You are about to execute: " + action + proceedQuestion
}

// ConfirmationAlert writes the message shown when a turn suspends.
//
// With consequence data the model phrases the alert; if that fails the
// consequence details are shown verbatim. Without consequence data the
// generic DefaultAlert is used.
func (s *Synthesizer) ConfirmationAlert(ctx context.Context, payload *agent.ConfirmationPayload) string {
	if payload == nil {
		return DefaultAlert("")
	}
	if !payload.HasConsequences() {
		return DefaultAlert(payload.ActionName)
	}

	c := payload.Consequences
	fallback := c.Details + proceedQuestion
	if s.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`You are a helpful assistant generating a confirmation alert for a user action.

The user is about to: %s
Affected entity: %s

Consequences:
%s

Generate a clear, concise, and friendly confirmation message that:
1. Explains what will happen if they proceed
2. Highlights the key consequences
3. Asks if they want to continue

Keep it under 3-4 sentences. Be direct but respectful.`, c.ActionName, c.AffectedEntity, c.Details)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.Chat(callCtx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.Temperature(0.3))
	if err != nil {
		s.logger.Warn("Confirmation alert generation failed, using details", "error", err)
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}
