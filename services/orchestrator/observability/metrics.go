// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the Movi service.
//
// # Description
//
// Two groups of metrics are exported:
//   - Turn metrics, fed from the pipeline event stream (turns, stage
//     transitions, suspensions, resumes, tool results).
//   - Transport metrics, recorded by the HTTP and WebSocket handlers.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/movi/services/agent/events"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "movi"

const (
	turnSubsystem      = "turn"
	transportSubsystem = "transport"
)

// Metrics holds all Prometheus metrics for the service.
//
// # Fields
//
//   - TurnsTotal: Turns by outcome (completed, suspended, error)
//   - TurnDurationSeconds: Turn latency by outcome
//   - StageTransitionsTotal: Stage changes by from/to stage
//   - SuspensionsTotal: Confirmations requested by action
//   - ResumesTotal: Confirmation decisions by action and decision
//   - ToolResultsTotal: Tool outcomes by tool and result kind
//   - ToolDurationSeconds: Tool latency by tool
//   - DegradedTotal: Recoverable failures by stage
//   - RequestsTotal: Transport requests by endpoint and status
//   - ActiveStreams: Open chat streams and voice sockets by endpoint
type Metrics struct {
	TurnsTotal            *prometheus.CounterVec
	TurnDurationSeconds   *prometheus.HistogramVec
	StageTransitionsTotal *prometheus.CounterVec
	SuspensionsTotal      *prometheus.CounterVec
	ResumesTotal          *prometheus.CounterVec
	ToolResultsTotal      *prometheus.CounterVec
	ToolDurationSeconds   *prometheus.HistogramVec
	DegradedTotal         *prometheus.CounterVec
	RequestsTotal         *prometheus.CounterVec
	ActiveStreams         *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics.
//
// # Description
//
// Registers every metric with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
//
// # Inputs
//
//   - reg: Registerer to attach metrics to.
//
// # Outputs
//
//   - *Metrics: The initialized metrics.
//
// # Limitations
//
//   - Panics if the metrics are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "total",
				Help:      "Total turns by outcome",
			},
			[]string{"outcome"},
		),

		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "duration_seconds",
				Help:      "Turn duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),

		StageTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "stage_transitions_total",
				Help:      "Total stage transitions by source and target stage",
			},
			[]string{"from", "to"},
		),

		SuspensionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "suspensions_total",
				Help:      "Total turns suspended for confirmation by action",
			},
			[]string{"action"},
		),

		ResumesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "resumes_total",
				Help:      "Total confirmation decisions by action and decision",
			},
			[]string{"action", "decision"},
		),

		ToolResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "tool_results_total",
				Help:      "Total tool invocations by tool and result kind",
			},
			[]string{"tool", "kind"},
		),

		ToolDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "tool_duration_seconds",
				Help:      "Tool invocation duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"tool"},
		),

		DegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "degraded_total",
				Help:      "Total recoverable failures by stage",
			},
			[]string{"stage"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: transportSubsystem,
				Name:      "requests_total",
				Help:      "Total transport requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: transportSubsystem,
				Name:      "active_streams",
				Help:      "Number of open chat streams and voice sockets",
			},
			[]string{"endpoint"},
		),
	}
}

// =============================================================================
// Labels
// =============================================================================

// Endpoint labels transport metrics.
type Endpoint string

const (
	EndpointChat       Endpoint = "chat"
	EndpointVoice      Endpoint = "voice"
	EndpointVoiceToken Endpoint = "voice_token"
)

// Status labels a transport request.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusConfirmation Status = "confirmation"
	StatusResumed      Status = "resumed"
	StatusRejected     Status = "rejected"
	StatusError        Status = "error"
)

// =============================================================================
// Recording Methods
// =============================================================================

// RecordRequest counts a transport request.
//
// # Thread Safety
//
// Safe for concurrent use. A nil receiver is a no-op.
func (m *Metrics) RecordRequest(endpoint Endpoint, status Status) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), string(status)).Inc()
}

// StreamStarted increments the open stream gauge.
func (m *Metrics) StreamStarted(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the open stream gauge.
func (m *Metrics) StreamEnded(endpoint Endpoint) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// EventHandler returns an events.Handler that records turn metrics.
//
// # Description
//
// Subscribe it to the pipeline emitter. Events of other types and events
// with unexpected data are ignored.
func (m *Metrics) EventHandler() events.Handler {
	return func(event *events.Event) {
		m.observe(event)
	}
}

func (m *Metrics) observe(event *events.Event) {
	if m == nil || event == nil {
		return
	}
	switch data := event.Data.(type) {
	case *events.TurnEndData:
		m.TurnsTotal.WithLabelValues(string(data.Outcome)).Inc()
		m.TurnDurationSeconds.WithLabelValues(string(data.Outcome)).Observe(data.Duration.Seconds())
	case *events.StateTransitionData:
		m.StageTransitionsTotal.WithLabelValues(string(data.FromStage), string(data.ToStage)).Inc()
	case *events.SuspendedData:
		m.SuspensionsTotal.WithLabelValues(data.Action).Inc()
	case *events.ResumedData:
		decision := "rejected"
		if data.Approved {
			decision = "approved"
		}
		m.ResumesTotal.WithLabelValues(data.Action, decision).Inc()
	case *events.ToolResultData:
		m.ToolResultsTotal.WithLabelValues(data.ToolName, string(data.Kind)).Inc()
		m.ToolDurationSeconds.WithLabelValues(data.ToolName).Observe(data.Duration.Seconds())
	case *events.ErrorData:
		if data.Recoverable {
			m.DegradedTotal.WithLabelValues(string(data.Stage)).Inc()
		} else {
			m.TurnsTotal.WithLabelValues("error").Inc()
		}
	}
}
