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
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/llm"
)

// GreetingReply is the reply when there is nothing else to say.
const GreetingReply = "How can I help you with trips, routes, vehicles or drivers today?"

// maxToolResultChars bounds the tool output placed in the reply prompt.
const maxToolResultChars = 6000

// ReplyContext is everything the reply stage may use.
type ReplyContext struct {
	Page                 string
	Intent               string
	ToolResult           *agent.ToolResult
	Consequences         *agent.ConsequenceRecord
	AwaitingConfirmation bool
	History              []agent.Message
}

// Synthesizer writes user-facing replies.
//
// Thread Safety: Synthesizer is immutable after construction.
type Synthesizer struct {
	client  llm.LLMClient
	logger  *slog.Logger
	timeout time.Duration
}

// NewSynthesizer creates a synthesizer. A nil logger uses slog.Default().
func NewSynthesizer(client llm.LLMClient, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, logger: logger, timeout: 30 * time.Second}
}

// Synthesize returns the reply for a turn.
//
// Description:
//
//	Asks the model to summarize the turn. If the model fails or returns
//	blank text the deterministic Fallback is used, so the result is never
//	empty.
//
// Inputs:
//
//	ctx - Context for the model call
//	rc - The turn's reply context
//
// Outputs:
//
//	string - Non-empty reply text
func (s *Synthesizer) Synthesize(ctx context.Context, rc ReplyContext) string {
	if s.client == nil {
		return Fallback(rc)
	}

	messages := make([]llm.Message, 0, len(rc.History)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: replyPrompt(rc)})
	for _, m := range rc.History {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.Chat(callCtx, messages, llm.Temperature(0.3))
	if err != nil {
		s.logger.Warn("Reply generation failed, using fallback", "error", err)
		return Fallback(rc)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Warn("Reply generation returned blank text, using fallback")
		return Fallback(rc)
	}
	return text
}

// Fallback is the deterministic reply used when the model is unavailable.
func Fallback(rc ReplyContext) string {
	r := rc.ToolResult
	if r == nil {
		return GreetingReply
	}
	switch r.Kind {
	case agent.ResultNoop:
		return GreetingReply
	case agent.ResultCancelled:
		return agent.CancellationMessage
	case agent.ResultSuccess:
		text := strings.TrimSpace(r.Text())
		if text == "" || text == r.Message {
			return fmt.Sprintf("Done. %s", r.Message)
		}
		return fmt.Sprintf("%s\n\n%s", r.Message, preview(text, maxToolResultChars))
	default:
		if r.Message != "" {
			return r.Message
		}
		return GreetingReply
	}
}

func replyPrompt(rc ReplyContext) string {
	var b strings.Builder
	b.WriteString("You are Movi, the fleet operations assistant for transport managers.\n")
	b.WriteString("Generate a clear, helpful response for the user.\n\nAvailable Info:\n")
	fmt.Fprintf(&b, "- Current Page: %s\n", displayPage(rc.Page))
	fmt.Fprintf(&b, "- Last Intent: %s\n", orNone(rc.Intent))
	if rc.ToolResult != nil {
		fmt.Fprintf(&b, "- Tool Result (%s): %s\n", rc.ToolResult.Kind, preview(rc.ToolResult.Text(), maxToolResultChars))
	} else {
		b.WriteString("- Tool Result: none\n")
	}
	if rc.Consequences != nil {
		fmt.Fprintf(&b, "- Consequences: %s\n", rc.Consequences.Details)
	} else {
		b.WriteString("- Consequences: none\n")
	}
	fmt.Fprintf(&b, "- Awaiting Confirmation: %t\n", rc.AwaitingConfirmation)
	b.WriteString(`
Rules:
- If a tool result exists, summarize it naturally.
- If the action was cancelled by the user, confirm that nothing was changed.
- If the tool reported an error, explain it plainly and suggest a next step.
- Be clear and to the point, and structure lists.
- No JSON, only natural language.
`)
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
