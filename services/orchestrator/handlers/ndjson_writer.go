// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
)

// NDJSONWriter writes chat stream events, one JSON object per line.
//
// # Description
//
// Each event is flushed as soon as it is written so clients can render
// tokens while the rest of the reply is still being sent.
//
// # Thread Safety
//
// Safe for concurrent use.
type NDJSONWriter interface {
	// WriteEvent writes and flushes one event.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteToken writes a reply chunk.
	WriteToken(content string) error

	// WriteConfirmation asks the user to approve a pending action.
	WriteConfirmation(message string) error

	// WriteError reports a failure.
	WriteError(errMsg string) error
}

type ndjsonWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	mu      sync.Mutex
}

// NewNDJSONWriter wraps w.
//
// # Outputs
//
//   - NDJSONWriter: The writer.
//   - error: Non-nil if w cannot flush.
func NewNDJSONWriter(w http.ResponseWriter) (NDJSONWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &ndjsonWriter{writer: w, flusher: flusher, enc: enc}, nil
}

func (w *ndjsonWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Encode terminates each value with a newline.
	if err := w.enc.Encode(event); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *ndjsonWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: content,
	})
}

func (w *ndjsonWriter) WriteConfirmation(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type: datatypes.StreamEventConfirmation,
		Payload: &datatypes.ConfirmationPrompt{
			RequiresConfirmation: true,
			Message:              message,
		},
	})
}

func (w *ndjsonWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventError,
		Content: errMsg,
	})
}

// SetNDJSONHeaders sets the headers for a chat stream.
func SetNDJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
}

// chunkText splits s into pieces of at most size runes.
func chunkText(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

var _ NDJSONWriter = (*ndjsonWriter)(nil)
