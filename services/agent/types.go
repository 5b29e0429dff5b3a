// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent defines the data contracts shared by the Movi turn pipeline:
// session state, stages, tool results, consequence records and the tagged
// turn outcome returned to transports.
package agent

import (
	"encoding/json"
	"time"
)

// Stage is the pipeline cursor for a session.
type Stage string

const (
	// StageIdle is the stage of a freshly created session.
	StageIdle Stage = "IDLE"

	// StageAnalyzing runs the NLU capability over the user input.
	StageAnalyzing Stage = "ANALYZING"

	// StageValidating runs the safety validator.
	StageValidating Stage = "VALIDATING"

	// StageSuspended waits for a confirmation decision. It is the only
	// stage that persists across separate external calls.
	StageSuspended Stage = "SUSPENDED"

	// StageExecuting dispatches the pending action.
	StageExecuting Stage = "EXECUTING"

	// StageReplying synthesizes the user-facing reply.
	StageReplying Stage = "REPLYING"

	// StageDone marks a completed turn.
	StageDone Stage = "DONE"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsResting returns true for stages a session may be stored in between
// external calls.
func (s Stage) IsResting() bool {
	return s == StageIdle || s == StageDone || s == StageSuspended
}

// AllStages returns all defined stages.
func AllStages() []Stage {
	return []Stage{
		StageIdle,
		StageAnalyzing,
		StageValidating,
		StageSuspended,
		StageExecuting,
		StageReplying,
		StageDone,
	}
}

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsequenceRecord describes what executing a high-impact action would
// affect. It is produced only while validating.
type ConsequenceRecord struct {
	HasConsequences bool   `json:"has_consequences"`
	Details         string `json:"details"`
	ActionName      string `json:"action_name"`
	AffectedEntity  string `json:"affected_entity"`
	EntityType      string `json:"entity_type"`
}

// PayloadType distinguishes the two confirmation payload shapes.
type PayloadType string

const (
	// PayloadConsequences carries a populated ConsequenceRecord.
	PayloadConsequences PayloadType = "consequences"

	// PayloadConfirmationRequired is the generic payload used when no
	// consequence data was found.
	PayloadConfirmationRequired PayloadType = "confirmation_required"
)

// ConfirmationPayload is handed to the caller when a turn suspends.
type ConfirmationPayload struct {
	Type         PayloadType        `json:"type"`
	ActionName   string             `json:"action_name"`
	Entities     map[string]any     `json:"entities,omitempty"`
	Consequences *ConsequenceRecord `json:"consequences,omitempty"`

	// Message is the confirmation alert shown to the user.
	Message string `json:"message,omitempty"`
}

// HasConsequences reports whether the payload carries consequence details.
func (p *ConfirmationPayload) HasConsequences() bool {
	return p != nil && p.Consequences != nil && p.Consequences.HasConsequences
}

// ResultKind classifies the outcome of the execute stage.
type ResultKind string

const (
	ResultNoop            ResultKind = "noop"
	ResultSuccess         ResultKind = "success"
	ResultValidationError ResultKind = "validation_error"
	ResultParameterError  ResultKind = "parameter_error"
	ResultExecutionError  ResultKind = "execution_error"
	ResultCancelled       ResultKind = "cancelled"
)

// CancellationMessage is the tool result recorded when the user rejects a
// pending action.
const CancellationMessage = "Action cancelled by user."

// ToolResult is the outcome of the most recent execute stage.
type ToolResult struct {
	Kind       ResultKind `json:"kind"`
	ActionName string     `json:"action_name,omitempty"`
	Message    string     `json:"message,omitempty"`
	Output     any        `json:"output,omitempty"`
}

// IsError returns true for the three error kinds.
func (r *ToolResult) IsError() bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case ResultValidationError, ResultParameterError, ResultExecutionError:
		return true
	}
	return false
}

// Text renders the result for prompts and fallbacks.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	if r.Kind != ResultSuccess {
		return r.Message
	}
	switch out := r.Output.(type) {
	case nil:
		return r.Message
	case string:
		return out
	default:
		data, err := json.Marshal(out)
		if err != nil {
			return r.Message
		}
		return string(data)
	}
}

// CancelledResult returns the result recorded for a rejected confirmation.
func CancelledResult(actionName string) *ToolResult {
	return &ToolResult{
		Kind:       ResultCancelled,
		ActionName: actionName,
		Message:    CancellationMessage,
	}
}

// TurnContext carries per-turn information supplied by the transport.
type TurnContext struct {
	// CurrentPage is the UI page the user is on, used to scope the tool list.
	CurrentPage string

	// ImageBase64 is an optional screenshot to describe before analysis.
	ImageBase64 string
}

// OutcomeKind tags a TurnOutcome.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeSuspended OutcomeKind = "suspended"
)

// TurnOutcome is returned by StartTurn and ResumeTurn.
//
// Exactly one of ResponseText (Completed) or Payload (Suspended) is set.
type TurnOutcome struct {
	Kind         OutcomeKind          `json:"kind"`
	SessionID    string               `json:"session_id"`
	ResponseText string               `json:"response_text,omitempty"`
	Payload      *ConfirmationPayload `json:"payload,omitempty"`
}

// Completed builds a completed outcome.
func Completed(sessionID, text string) TurnOutcome {
	return TurnOutcome{Kind: OutcomeCompleted, SessionID: sessionID, ResponseText: text}
}

// Suspended builds a suspended outcome.
func Suspended(sessionID string, payload *ConfirmationPayload) TurnOutcome {
	return TurnOutcome{Kind: OutcomeSuspended, SessionID: sessionID, Payload: payload}
}

// IsSuspended returns true if the turn is waiting for confirmation.
func (o TurnOutcome) IsSuspended() bool {
	return o.Kind == OutcomeSuspended
}

// StateView is the read-only projection used by transports to decide whether
// an incoming message is a new request or a confirmation reply.
type StateView struct {
	SessionID                  string               `json:"session_id"`
	Stage                      Stage                `json:"stage"`
	IsSuspended                bool                 `json:"is_suspended"`
	LastResponse               string               `json:"last_response,omitempty"`
	PendingConfirmationPayload *ConfirmationPayload `json:"pending_confirmation_payload,omitempty"`
	TurnCount                  int                  `json:"turn_count"`
	UpdatedAt                  time.Time            `json:"updated_at"`
}
