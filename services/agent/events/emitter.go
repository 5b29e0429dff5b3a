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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives one event. Handlers run on the goroutine that drives
// the turn, so they must return quickly.
type Handler func(event *Event)

// Filter decides if an event should be handled.
type Filter func(event *Event) bool

// subscriber is one registered handler. Subscribers are delivered to in
// registration order.
type subscriber struct {
	id      string
	handler Handler
	filter  Filter
	types   map[Type]struct{}
}

func (s *subscriber) wants(event *Event) bool {
	if len(s.types) > 0 {
		if _, ok := s.types[event.Type]; !ok {
			return false
		}
	}
	return s.filter == nil || s.filter(event)
}

// Emitter fans turn events out to subscribers and remembers the most
// recent ones.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	logger      *slog.Logger

	// recent is a ring of the last cap(recent) events; next is the slot
	// the following event is written to.
	recent  []Event
	next    int
	wrapped bool
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets how many recent events are kept. 0 keeps none.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		if size >= 0 {
			e.recent = make([]Event, 0, size)
		}
	}
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter creates an Emitter keeping the last 256 events by default.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		recent: make([]Event, 0, 256),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a handler for the given event types, or for every
// type when none are given, and returns the subscription id.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter is Subscribe with an additional predicate.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	sub := &subscriber{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	e.mu.Lock()
	e.subscribers = append(e.subscribers, sub)
	e.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription and reports whether it existed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscribers {
		if sub.id == id {
			e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Emit records an event for a session turn and delivers it.
//
// Description:
//
//	The event is stamped and stored in the recent-events ring, then handed
//	to each matching subscriber in registration order. A handler that
//	panics is logged and skipped. A nil Emitter does nothing, so the
//	pipeline can run without observers.
//
// Inputs:
//
//	sessionID - Session the event belongs to.
//	turn - Turn counter of the session.
//	eventType - The type of event.
//	data - One of the typed *Data structs.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Emitter) Emit(sessionID string, turn int, eventType Type, data any) {
	if e == nil {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Turn:      turn,
		Data:      data,
	}

	e.mu.Lock()
	e.remember(event)
	subs := make([]*subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, sub := range subs {
		if sub.wants(&event) {
			e.deliver(sub, &event)
		}
	}
}

// remember stores event in the ring. Callers hold mu.
func (e *Emitter) remember(event Event) {
	size := cap(e.recent)
	switch {
	case size == 0:
	case len(e.recent) < size:
		e.recent = append(e.recent, event)
	default:
		e.recent[e.next] = event
		e.next = (e.next + 1) % size
		e.wrapped = true
	}
}

func (e *Emitter) deliver(sub *subscriber, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Event handler panicked",
				"subscription", sub.id,
				"event_type", event.Type,
				"session_id", event.SessionID,
				"panic", r,
			)
		}
	}()
	sub.handler(event)
}

// Buffer returns the recent events, oldest first.
func (e *Emitter) Buffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ordered(nil)
}

// BufferByType returns the recent events of one type, oldest first.
func (e *Emitter) BufferByType(eventType Type) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ordered(func(ev *Event) bool { return ev.Type == eventType })
}

// BufferForSession returns the recent events of one session, oldest first.
func (e *Emitter) BufferForSession(sessionID string) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ordered(SessionFilter(sessionID))
}

// ordered walks the ring from the oldest slot. Callers hold mu.
func (e *Emitter) ordered(keep Filter) []Event {
	out := make([]Event, 0, len(e.recent))
	start := 0
	if e.wrapped {
		start = e.next
	}
	for i := range e.recent {
		ev := e.recent[(start+i)%len(e.recent)]
		if keep == nil || keep(&ev) {
			out = append(out, ev)
		}
	}
	return out
}

// ClearBuffer forgets the recent events.
func (e *Emitter) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = e.recent[:0]
	e.next = 0
	e.wrapped = false
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}
