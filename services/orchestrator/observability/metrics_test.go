// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/agent/events"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

// =============================================================================
// Event Handler Tests
// =============================================================================

func TestEventHandler_RecordsTurnLifecycle(t *testing.T) {
	m := newTestMetrics(t)
	emitter := events.NewEmitter()
	emitter.Subscribe(m.EventHandler())

	emitter.Emit("s1", 1, events.TypeStateTransition, &events.StateTransitionData{FromStage: agent.StageIdle, ToStage: agent.StageAnalyzing})
	emitter.Emit("s1", 1, events.TypeSuspended, &events.SuspendedData{Action: "delete_trip"})
	emitter.Emit("s1", 1, events.TypeTurnEnd, &events.TurnEndData{Outcome: agent.OutcomeSuspended, Duration: 200 * time.Millisecond})
	emitter.Emit("s1", 1, events.TypeResumed, &events.ResumedData{Action: "delete_trip", Approved: true})
	emitter.Emit("s1", 1, events.TypeToolResult, &events.ToolResultData{ToolName: "delete_trip", Kind: agent.ResultSuccess, Duration: 5 * time.Millisecond})
	emitter.Emit("s1", 1, events.TypeTurnEnd, &events.TurnEndData{Outcome: agent.OutcomeCompleted, Duration: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageTransitionsTotal.WithLabelValues("IDLE", "ANALYZING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuspensionsTotal.WithLabelValues("delete_trip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResumesTotal.WithLabelValues("delete_trip", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolResultsTotal.WithLabelValues("delete_trip", string(agent.ResultSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("suspended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("completed")))
}

func TestEventHandler_ErrorsSplitByRecoverability(t *testing.T) {
	m := newTestMetrics(t)
	h := m.EventHandler()

	h(&events.Event{Type: events.TypeError, Data: &events.ErrorData{Error: "model down", Stage: agent.StageAnalyzing, Recoverable: true}})
	h(&events.Event{Type: events.TypeError, Data: &events.ErrorData{Error: "store down"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedTotal.WithLabelValues("ANALYZING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("error")))
}

func TestEventHandler_IgnoresUnknownData(t *testing.T) {
	m := newTestMetrics(t)
	h := m.EventHandler()

	assert.NotPanics(t, func() {
		h(nil)
		h(&events.Event{Type: events.TypeAnalysis, Data: "not a struct"})
	})
	assert.Equal(t, 0, testutil.CollectAndCount(m.TurnsTotal))
}

// =============================================================================
// Transport Tests
// =============================================================================

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointChat, StatusCompleted)
	m.RecordRequest(EndpointChat, StatusCompleted)
	m.RecordRequest(EndpointChat, StatusError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat", "error")))
}

func TestActiveStreams(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointVoice)
	m.StreamStarted(EndpointVoice)
	m.StreamEnded(EndpointVoice)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("voice")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(EndpointChat, StatusError)
		m.StreamStarted(EndpointChat)
		m.StreamEnded(EndpointChat)
		m.EventHandler()(&events.Event{Data: &events.TurnEndData{}})
	})
}
