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
	"fmt"
	"sync"
)

// StateMachine manages valid stage transitions for the turn pipeline.
//
// The state machine enforces the following transition graph:
//
//	IDLE → ANALYZING              : First turn for a session
//	DONE → ANALYZING              : Next turn for a session
//	ANALYZING → VALIDATING        : Intent, action and entities extracted
//	VALIDATING → SUSPENDED        : High-impact action needs confirmation
//	VALIDATING → EXECUTING        : Action may run without confirmation
//	SUSPENDED → EXECUTING         : User approved the pending action
//	SUSPENDED → REPLYING          : User rejected the pending action
//	EXECUTING → REPLYING          : Dispatcher produced a result
//	REPLYING → DONE               : Reply synthesized and recorded
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[Stage]map[Stage]bool
}

// DefaultStateMachine is shared by pipelines that do not supply their own.
var DefaultStateMachine = NewStateMachine()

// NewStateMachine creates a new state machine with all valid transitions.
//
// Outputs:
//
//	*StateMachine - Configured state machine
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[Stage]map[Stage]bool),
	}

	for _, stage := range AllStages() {
		sm.transitions[stage] = make(map[Stage]bool)
	}

	sm.addTransition(StageIdle, StageAnalyzing)
	sm.addTransition(StageDone, StageAnalyzing)

	sm.addTransition(StageAnalyzing, StageValidating)

	sm.addTransition(StageValidating, StageSuspended)
	sm.addTransition(StageValidating, StageExecuting)

	sm.addTransition(StageSuspended, StageExecuting)
	sm.addTransition(StageSuspended, StageReplying)

	sm.addTransition(StageExecuting, StageReplying)

	sm.addTransition(StageReplying, StageDone)

	return sm
}

func (sm *StateMachine) addTransition(from, to Stage) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one stage to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to Stage) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves a session state to the target stage.
//
// Description:
//
//	Validates the transition and updates state.Stage if valid. The
//	awaitingConfirmation flag is kept in step with the SUSPENDED stage.
//
// Inputs:
//
//	state - The session state to transition
//	to - Target stage
//
// Outputs:
//
//	error - ErrInvalidTransition if transition not allowed
func (sm *StateMachine) Transition(state *SessionState, to Stage) error {
	from := state.Stage

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	state.Stage = to
	state.AwaitingConfirmation = to == StageSuspended
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given stage.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from Stage) []Stage {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []Stage
	for _, stage := range AllStages() {
		if sm.transitions[from][stage] {
			result = append(result, stage)
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to Stage) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"IDLE->ANALYZING":       "First turn received",
		"DONE->ANALYZING":       "New turn received",
		"ANALYZING->VALIDATING": "Request analyzed",
		"VALIDATING->SUSPENDED": "High-impact action requires confirmation",
		"VALIDATING->EXECUTING": "Action cleared by safety validator",
		"SUSPENDED->EXECUTING":  "User approved pending action",
		"SUSPENDED->REPLYING":   "User rejected pending action",
		"EXECUTING->REPLYING":   "Action dispatched",
		"REPLYING->DONE":        "Reply recorded",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}
