// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"log/slog"
)

// LoggingHandler creates a handler that logs events.
//
// Inputs:
//
//	logger - The slog logger to use.
//	level - The log level for events. Error events always log at Warn or above.
//
// Outputs:
//
//	Handler - A handler function that logs events.
func LoggingHandler(logger *slog.Logger, level slog.Level) Handler {
	return func(event *Event) {
		attrs := []any{
			slog.String("event_type", string(event.Type)),
			slog.String("session_id", event.SessionID),
			slog.Int("turn", event.Turn),
		}
		lvl := level

		switch data := event.Data.(type) {
		case *TurnStartData:
			attrs = append(attrs, slog.Bool("resume", data.Resume))
			if data.Page != "" {
				attrs = append(attrs, slog.String("page", data.Page))
			}

		case *StateTransitionData:
			attrs = append(attrs,
				slog.String("from_stage", string(data.FromStage)),
				slog.String("to_stage", string(data.ToStage)),
			)
			if data.Reason != "" {
				attrs = append(attrs, slog.String("reason", data.Reason))
			}

		case *AnalysisData:
			attrs = append(attrs,
				slog.String("intent", data.Intent),
				slog.String("action", data.Action),
				slog.Bool("degraded", data.Degraded),
				slog.Duration("duration", data.Duration),
			)

		case *SafetyCheckData:
			attrs = append(attrs,
				slog.String("action", data.Action),
				slog.Bool("high_impact", data.HighImpact),
				slog.Bool("has_consequences", data.HasConsequences),
			)
			if data.CheckError != "" {
				attrs = append(attrs, slog.String("check_error", data.CheckError))
			}

		case *SuspendedData:
			attrs = append(attrs,
				slog.String("action", data.Action),
				slog.String("payload_type", string(data.PayloadType)),
			)

		case *ResumedData:
			attrs = append(attrs,
				slog.String("action", data.Action),
				slog.Bool("approved", data.Approved),
			)

		case *ToolInvocationData:
			attrs = append(attrs, slog.String("tool_name", data.ToolName))

		case *ToolResultData:
			attrs = append(attrs,
				slog.String("tool_name", data.ToolName),
				slog.String("kind", string(data.Kind)),
				slog.Duration("duration", data.Duration),
			)
			if data.Error != "" {
				attrs = append(attrs, slog.String("error", data.Error))
			}

		case *TurnEndData:
			attrs = append(attrs,
				slog.String("outcome", string(data.Outcome)),
				slog.Duration("duration", data.Duration),
			)

		case *ErrorData:
			attrs = append(attrs,
				slog.String("error", data.Error),
				slog.Bool("recoverable", data.Recoverable),
			)
			if data.Stage != "" {
				attrs = append(attrs, slog.String("stage", string(data.Stage)))
			}
			if lvl < slog.LevelWarn {
				lvl = slog.LevelWarn
			}
		}

		logger.Log(context.Background(), lvl, "agent event", attrs...)
	}
}

// ChannelHandler creates a handler that sends events to a channel. When
// dropOnFull is true a full channel drops the event instead of blocking.
func ChannelHandler(ch chan<- Event, dropOnFull bool) Handler {
	return func(event *Event) {
		if dropOnFull {
			select {
			case ch <- *event:
			default:
			}
			return
		}
		ch <- *event
	}
}

// MultiHandler creates a handler that calls multiple handlers.
func MultiHandler(handlers ...Handler) Handler {
	return func(event *Event) {
		for _, h := range handlers {
			h(event)
		}
	}
}

// TypeFilter creates a filter that matches specific event types.
func TypeFilter(types ...Type) Filter {
	set := make(map[Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event *Event) bool {
		return set[event.Type]
	}
}

// SessionFilter creates a filter that matches a specific session.
func SessionFilter(sessionID string) Filter {
	return func(event *Event) bool {
		return event.SessionID == sessionID
	}
}
