// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events lets external systems observe turns without coupling to
// the pipeline: logging, metrics and the NATS bridge are all subscribers.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import (
	"time"

	"github.com/AleutianAI/movi/services/agent"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeTurnStart is emitted when StartTurn or ResumeTurn begins work.
	TypeTurnStart Type = "turn_start"

	// TypeStateTransition is emitted on every stage change.
	TypeStateTransition Type = "state_transition"

	// TypeAnalysis is emitted after the analyze stage.
	TypeAnalysis Type = "analysis"

	// TypeSafetyCheck is emitted after the validate stage.
	TypeSafetyCheck Type = "safety_check"

	// TypeSuspended is emitted when a turn stops for confirmation.
	TypeSuspended Type = "suspended"

	// TypeResumed is emitted when a confirmation decision is applied.
	TypeResumed Type = "resumed"

	// TypeToolInvocation is emitted before a tool is invoked.
	TypeToolInvocation Type = "tool_invocation"

	// TypeToolResult is emitted after a tool returns.
	TypeToolResult Type = "tool_result"

	// TypeTurnEnd is emitted when a turn completes or suspends.
	TypeTurnEnd Type = "turn_end"

	// TypeError is emitted when a turn fails or degrades.
	TypeError Type = "error"
)

// Event represents one observation of a turn.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// SessionID links the event to a session.
	SessionID string `json:"session_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Turn is the session's turn counter when the event occurred.
	Turn int `json:"turn"`

	// Data is one of the typed *Data structs below.
	Data any `json:"data,omitempty"`
}

// TurnStartData is the data for turn start events.
type TurnStartData struct {
	// Resume is true for ResumeTurn.
	Resume bool `json:"resume"`

	// Page is the UI page for StartTurn.
	Page string `json:"page,omitempty"`

	// HasImage is true when a screenshot was attached.
	HasImage bool `json:"has_image,omitempty"`
}

// StateTransitionData is the data for state transition events.
type StateTransitionData struct {
	FromStage agent.Stage `json:"from_stage"`
	ToStage   agent.Stage `json:"to_stage"`
	Reason    string      `json:"reason,omitempty"`
}

// AnalysisData is the data for analysis events.
type AnalysisData struct {
	Intent   string        `json:"intent"`
	Action   string        `json:"action,omitempty"`
	Entities int           `json:"entities"`
	Degraded bool          `json:"degraded"`
	Duration time.Duration `json:"duration"`
}

// SafetyCheckData is the data for safety check events.
type SafetyCheckData struct {
	Action          string `json:"action"`
	HighImpact      bool   `json:"high_impact"`
	HasConsequences bool   `json:"has_consequences"`
	AffectedEntity  string `json:"affected_entity,omitempty"`
	CheckError      string `json:"check_error,omitempty"`
}

// SuspendedData is the data for suspended events.
type SuspendedData struct {
	Action      string            `json:"action"`
	PayloadType agent.PayloadType `json:"payload_type"`
}

// ResumedData is the data for resumed events.
type ResumedData struct {
	Action   string `json:"action"`
	Approved bool   `json:"approved"`
}

// ToolInvocationData is the data for tool invocation events.
type ToolInvocationData struct {
	ToolName   string   `json:"tool_name"`
	ParamNames []string `json:"param_names,omitempty"`
}

// ToolResultData is the data for tool result events.
type ToolResultData struct {
	ToolName string           `json:"tool_name"`
	Kind     agent.ResultKind `json:"kind"`
	Success  bool             `json:"success"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
}

// TurnEndData is the data for turn end events.
type TurnEndData struct {
	Outcome  agent.OutcomeKind `json:"outcome"`
	Duration time.Duration     `json:"duration"`
}

// ErrorData is the data for error events.
type ErrorData struct {
	// Error is the error message.
	Error string `json:"error"`

	// Stage is where the error occurred.
	Stage agent.Stage `json:"stage,omitempty"`

	// Recoverable is true when the turn continued in a degraded mode.
	Recoverable bool `json:"recoverable"`
}
