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
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/movi/services/agent"
)

func TestEmitter_Subscribe(t *testing.T) {
	emitter := NewEmitter()

	var received []Event
	subID := emitter.Subscribe(func(e *Event) {
		received = append(received, *e)
	})

	if subID == "" {
		t.Error("expected non-empty subscription ID")
	}
	if emitter.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", emitter.SubscriptionCount())
	}

	emitter.Emit("s1", 0, TypeStateTransition, &StateTransitionData{
		FromStage: agent.StageIdle,
		ToStage:   agent.StageAnalyzing,
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != TypeStateTransition {
		t.Errorf("Type = %s, want %s", received[0].Type, TypeStateTransition)
	}
	if received[0].SessionID != "s1" {
		t.Errorf("SessionID = %s, want s1", received[0].SessionID)
	}
}

func TestEmitter_SubscribeByTypeAndFilter(t *testing.T) {
	emitter := NewEmitter()

	var byType, bySession int
	emitter.Subscribe(func(e *Event) { byType++ }, TypeError, TypeSuspended)
	emitter.SubscribeWithFilter(func(e *Event) { bySession++ }, SessionFilter("s2"))

	emitter.Emit("s1", 0, TypeError, &ErrorData{Error: "boom"})
	emitter.Emit("s2", 0, TypeToolResult, &ToolResultData{})
	emitter.Emit("s2", 0, TypeSuspended, &SuspendedData{})

	if byType != 2 {
		t.Errorf("byType = %d, want 2", byType)
	}
	if bySession != 2 {
		t.Errorf("bySession = %d, want 2", bySession)
	}
}

func TestEmitter_Unsubscribe(t *testing.T) {
	emitter := NewEmitter()
	count := 0
	id := emitter.Subscribe(func(e *Event) { count++ })

	if !emitter.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for existing subscription")
	}
	if emitter.Unsubscribe(id) {
		t.Error("Unsubscribe should return false the second time")
	}

	emitter.Emit("s1", 0, TypeTurnStart, &TurnStartData{})
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestEmitter_BufferIsBounded(t *testing.T) {
	emitter := NewEmitter(WithBufferSize(3))

	for i := 0; i < 5; i++ {
		emitter.Emit("s1", i, TypeTurnStart, &TurnStartData{})
	}
	emitter.Emit("s1", 5, TypeTurnEnd, &TurnEndData{Outcome: agent.OutcomeCompleted})

	buf := emitter.Buffer()
	if len(buf) != 3 {
		t.Fatalf("buffer len = %d, want 3", len(buf))
	}
	if buf[0].Turn != 3 {
		t.Errorf("oldest buffered turn = %d, want 3", buf[0].Turn)
	}
	if got := len(emitter.BufferByType(TypeTurnEnd)); got != 1 {
		t.Errorf("BufferByType = %d, want 1", got)
	}

	emitter.ClearBuffer()
	if len(emitter.Buffer()) != 0 {
		t.Error("buffer should be empty after ClearBuffer")
	}
}

func TestEmitter_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	emitter := NewEmitter()
	delivered := 0
	emitter.Subscribe(func(e *Event) { panic("bad handler") })
	emitter.Subscribe(func(e *Event) { delivered++ })

	emitter.Emit("s1", 0, TypeError, &ErrorData{Error: "x"})

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var emitter *Emitter
	emitter.Emit("s1", 0, TypeError, &ErrorData{})
}

func TestEmitter_DeliversInSubscriptionOrder(t *testing.T) {
	emitter := NewEmitter()
	var order []string
	emitter.Subscribe(func(e *Event) { order = append(order, "log") })
	metricsID := emitter.Subscribe(func(e *Event) { order = append(order, "metrics") })
	emitter.Subscribe(func(e *Event) { order = append(order, "nats") })

	emitter.Emit("s1", 0, TypeTurnStart, &TurnStartData{})
	emitter.Unsubscribe(metricsID)
	emitter.Emit("s1", 0, TypeTurnEnd, &TurnEndData{})

	want := "log,metrics,nats,log,nats"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestEmitter_BufferForSession(t *testing.T) {
	emitter := NewEmitter(WithBufferSize(4))
	for i := 0; i < 6; i++ {
		session := "s1"
		if i%2 == 1 {
			session = "s2"
		}
		emitter.Emit(session, i, TypeTurnStart, &TurnStartData{})
	}

	got := emitter.BufferForSession("s2")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Turn != 3 || got[1].Turn != 5 {
		t.Errorf("turns = %d,%d, want 3,5", got[0].Turn, got[1].Turn)
	}
}

func TestEmitter_ZeroBufferKeepsNothing(t *testing.T) {
	emitter := NewEmitter(WithBufferSize(0))
	emitter.Emit("s1", 0, TypeError, &ErrorData{})
	if len(emitter.Buffer()) != 0 {
		t.Error("expected no buffered events")
	}
}

func TestEmitter_ConcurrentAccess(t *testing.T) {
	emitter := NewEmitter(WithBufferSize(10))
	var mu sync.Mutex
	count := 0
	emitter.Subscribe(func(e *Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitter.Emit("s1", i, TypeToolInvocation, &ToolInvocationData{ToolName: "list_trips"})
			_ = emitter.Buffer()
		}(i)
	}
	wg.Wait()

	if count != 20 {
		t.Errorf("count = %d, want 20", count)
	}
}

func TestLoggingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := LoggingHandler(logger, slog.LevelDebug)

	handler(&Event{Type: TypeToolResult, SessionID: "s1", Data: &ToolResultData{
		ToolName: "delete_trip",
		Kind:     agent.ResultExecutionError,
		Error:    "db locked",
	}})
	handler(&Event{Type: TypeError, SessionID: "s1", Data: &ErrorData{Error: "llm down", Recoverable: true}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["tool_name"] != "delete_trip" || first["error"] != "db locked" {
		t.Errorf("unexpected attrs: %v", first)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second["level"] != "WARN" {
		t.Errorf("error events should log at WARN, got %v", second["level"])
	}
}

func TestChannelHandler(t *testing.T) {
	t.Run("blocking", func(t *testing.T) {
		ch := make(chan Event, 2)
		handler := ChannelHandler(ch, false)

		handler(&Event{Type: TypeStateTransition})
		handler(&Event{Type: TypeToolInvocation})

		if len(ch) != 2 {
			t.Errorf("channel has %d events, want 2", len(ch))
		}
	})

	t.Run("drop on full", func(t *testing.T) {
		ch := make(chan Event, 1)
		handler := ChannelHandler(ch, true)

		handler(&Event{Type: TypeStateTransition})
		handler(&Event{Type: TypeToolInvocation})

		if len(ch) != 1 {
			t.Errorf("channel has %d events, want 1", len(ch))
		}
	})
}

func TestMultiHandlerAndTypeFilter(t *testing.T) {
	a, b := 0, 0
	handler := MultiHandler(func(e *Event) { a++ }, func(e *Event) { b++ })
	handler(&Event{})
	if a != 1 || b != 1 {
		t.Errorf("a=%d b=%d, want 1,1", a, b)
	}

	filter := TypeFilter(TypeError, TypeSafetyCheck)
	if !filter(&Event{Type: TypeSafetyCheck}) {
		t.Error("should pass TypeSafetyCheck")
	}
	if filter(&Event{Type: TypeTurnEnd}) {
		t.Error("should not pass TypeTurnEnd")
	}
}

type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return c.err
}

func TestNATSPublisher_Handler(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "", nil)

	emitter := NewEmitter()
	emitter.Subscribe(p.Handler())
	emitter.Emit("abc", 2, TypeSuspended, &SuspendedData{Action: "delete_trip", PayloadType: agent.PayloadConfirmationRequired})

	if len(conn.subjects) != 1 {
		t.Fatalf("published %d messages, want 1", len(conn.subjects))
	}
	if conn.subjects[0] != "movi.events.abc.suspended" {
		t.Errorf("subject = %s", conn.subjects[0])
	}

	var decoded struct {
		Type Type `json:"type"`
		Turn int  `json:"turn"`
		Data struct {
			Action string `json:"action"`
		} `json:"data"`
	}
	if err := json.Unmarshal(conn.payloads[0], &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != TypeSuspended || decoded.Turn != 2 || decoded.Data.Action != "delete_trip" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNATSPublisher_PublishErrorIsSwallowed(t *testing.T) {
	conn := &recordingConn{err: errors.New("nats: connection closed")}
	p := newNATSPublisher(conn, "fleet", nil)

	p.Handler()(&Event{Type: TypeError})

	if got := p.Subject(&Event{Type: TypeError}); got != "fleet._.error" {
		t.Errorf("subject = %s", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
