// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of messages kept in the working set
// when a session is loaded for a new turn.
const DefaultHistoryLimit = 10

// SessionState is the durable snapshot of one conversation thread.
//
// Invariant: AwaitingConfirmation is true iff Stage is StageSuspended.
//
// Thread Safety:
//
//	SessionState is not safe for concurrent use. The pipeline owns a
//	state exclusively for the duration of one turn; stores hand out copies.
type SessionState struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`

	// Version is incremented on every successful save and used by stores
	// for compare-and-swap.
	Version uint64 `json:"version"`

	History       []Message      `json:"history"`
	Intent        string         `json:"intent,omitempty"`
	PendingAction string         `json:"pending_action,omitempty"`
	Entities      map[string]any `json:"entities,omitempty"`
	CurrentPage   string         `json:"current_page,omitempty"`

	Consequences         *ConsequenceRecord   `json:"consequences,omitempty"`
	PendingConfirmation  *ConfirmationPayload `json:"pending_confirmation,omitempty"`
	AwaitingConfirmation bool                 `json:"awaiting_confirmation"`

	ToolResult   *ToolResult `json:"tool_result,omitempty"`
	ResponseText string      `json:"response_text,omitempty"`

	TurnCount int       `json:"turn_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState creates an empty IDLE state for a session.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now()
	return &SessionState{
		SessionID: sessionID,
		Stage:     StageIdle,
		History:   []Message{},
		Entities:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsSuspended reports whether the session has an outstanding confirmation.
func (s *SessionState) IsSuspended() bool {
	return s.Stage == StageSuspended && s.AwaitingConfirmation
}

// AppendMessage adds a message to the history.
func (s *SessionState) AppendMessage(role Role, content string) {
	s.History = append(s.History, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// TrimHistory keeps only the last limit messages. A limit <= 0 keeps all.
func (s *SessionState) TrimHistory(limit int) {
	if limit <= 0 || len(s.History) <= limit {
		return
	}
	trimmed := make([]Message, limit)
	copy(trimmed, s.History[len(s.History)-limit:])
	s.History = trimmed
}

// ResetTurn clears per-turn fields before a new turn is analyzed.
func (s *SessionState) ResetTurn() {
	s.Intent = ""
	s.PendingAction = ""
	s.Entities = map[string]any{}
	s.Consequences = nil
	s.PendingConfirmation = nil
	s.AwaitingConfirmation = false
	s.ToolResult = nil
}

// View projects the state for transports.
func (s *SessionState) View() StateView {
	return StateView{
		SessionID:                  s.SessionID,
		Stage:                      s.Stage,
		IsSuspended:                s.IsSuspended(),
		LastResponse:               s.ResponseText,
		PendingConfirmationPayload: s.PendingConfirmation,
		TurnCount:                  s.TurnCount,
		UpdatedAt:                  s.UpdatedAt,
	}
}

// Clone returns a deep copy of the state.
//
// Entities and tool outputs are copied through JSON so that nested maps are
// not shared between the pipeline and a store.
func (s *SessionState) Clone() (*SessionState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session state: %w", err)
	}
	var out SessionState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &out, nil
}

// TurnGuard rejects overlapping turns for the same session.
//
// Thread Safety: TurnGuard is safe for concurrent use.
type TurnGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewTurnGuard creates an empty guard.
func NewTurnGuard() *TurnGuard {
	return &TurnGuard{active: make(map[string]struct{})}
}

// TryAcquire marks a session as in flight.
//
// Outputs:
//
//	bool - False if a turn for the session is already in flight.
func (g *TurnGuard) TryAcquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[sessionID]; busy {
		return false
	}
	g.active[sessionID] = struct{}{}
	return true
}

// Release clears the in-flight mark for a session.
func (g *TurnGuard) Release(sessionID string) {
	g.mu.Lock()
	delete(g.active, sessionID)
	g.mu.Unlock()
}

// InFlight returns the number of sessions with a turn in flight.
func (g *TurnGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
