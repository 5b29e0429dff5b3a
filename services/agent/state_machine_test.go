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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_ValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from Stage
		to   Stage
		want bool
	}{
		{StageIdle, StageAnalyzing, true},
		{StageDone, StageAnalyzing, true},
		{StageAnalyzing, StageValidating, true},
		{StageValidating, StageSuspended, true},
		{StageValidating, StageExecuting, true},
		{StageSuspended, StageExecuting, true},
		{StageSuspended, StageReplying, true},
		{StageExecuting, StageReplying, true},
		{StageReplying, StageDone, true},

		{StageIdle, StageExecuting, false},
		{StageAnalyzing, StageSuspended, false},
		{StageSuspended, StageSuspended, false},
		{StageSuspended, StageDone, false},
		{StageDone, StageExecuting, false},
		{StageExecuting, StageSuspended, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, sm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateMachine_TransitionKeepsAwaitingFlagInStep(t *testing.T) {
	sm := NewStateMachine()
	state := NewSessionState("s1")

	require.NoError(t, sm.Transition(state, StageAnalyzing))
	require.NoError(t, sm.Transition(state, StageValidating))
	require.NoError(t, sm.Transition(state, StageSuspended))
	assert.True(t, state.AwaitingConfirmation)
	assert.True(t, state.IsSuspended())

	require.NoError(t, sm.Transition(state, StageExecuting))
	assert.False(t, state.AwaitingConfirmation)
	assert.False(t, state.IsSuspended())
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	sm := NewStateMachine()
	state := NewSessionState("s1")

	err := sm.Transition(state, StageExecuting)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StageIdle, state.Stage, "stage must not change on rejected transition")
}

func TestStateMachine_ValidTransitionsFrom(t *testing.T) {
	sm := NewStateMachine()

	assert.Equal(t, []Stage{StageExecuting, StageReplying}, sm.ValidTransitionsFrom(StageSuspended))
	assert.Equal(t, []Stage{StageSuspended, StageExecuting}, sm.ValidTransitionsFrom(StageValidating))
	assert.Empty(t, sm.ValidTransitionsFrom(Stage("BOGUS")))
}

func TestStateMachine_TransitionReason(t *testing.T) {
	sm := NewStateMachine()

	assert.Equal(t, "User rejected pending action", sm.TransitionReason(StageSuspended, StageReplying))
	assert.Equal(t, "Unknown transition", sm.TransitionReason(StageDone, StageSuspended))
}
