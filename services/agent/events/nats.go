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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// publisher is the subset of *nats.Conn used by NATSPublisher.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig configures the NATS bridge.
type NATSConfig struct {
	// URL is the NATS server URL. Default: nats.DefaultURL.
	URL string

	// Subject is the base subject. Events go to "{Subject}.{session}.{type}".
	// Default: "movi.events".
	Subject string

	// ConnectTimeout is the connection timeout. Default: 5s.
	ConnectTimeout time.Duration
}

// NATSPublisher forwards pipeline events to NATS so other services (UI
// dashboards, audit sinks) can follow turns live.
//
// Thread Safety: NATSPublisher is safe for concurrent use.
type NATSPublisher struct {
	conn    publisher
	closer  func()
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to NATS.
//
// Inputs:
//
//	cfg - Connection settings.
//	logger - Logger for publish failures. Nil uses slog.Default().
//
// Outputs:
//
//	*NATSPublisher - The publisher. Caller must call Close().
//	error - Non-nil if the connection options are invalid.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("movi"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := newNATSPublisher(conn, cfg.Subject, logger)
	p.closer = conn.Close
	return p, nil
}

func newNATSPublisher(conn publisher, subject string, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = "movi.events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event *Event) string {
	session := event.SessionID
	if session == "" {
		session = "_"
	}
	return fmt.Sprintf("%s.%s.%s", p.subject, session, event.Type)
}

// Handler returns an event handler that publishes every event it receives.
// Publish failures are logged and never reach the pipeline.
func (p *NATSPublisher) Handler() Handler {
	return func(event *Event) {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.Warn("encode event for NATS", "event_type", event.Type, "error", err)
			return
		}
		if err := p.conn.Publish(p.Subject(event), data); err != nil {
			p.logger.Warn("publish event to NATS", "event_type", event.Type, "error", err)
		}
	}
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}
