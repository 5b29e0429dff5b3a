// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// StreamEventType tags a line of the chat stream.
type StreamEventType string

const (
	StreamEventToken        StreamEventType = "token"
	StreamEventConfirmation StreamEventType = "confirmation"
	StreamEventError        StreamEventType = "error"
)

// StreamEvent is one NDJSON line of a chat response.
type StreamEvent struct {
	Type    StreamEventType     `json:"type"`
	Content string              `json:"content,omitempty"`
	Payload *ConfirmationPrompt `json:"payload,omitempty"`
}

// ConfirmationPrompt asks the user to approve a pending action.
type ConfirmationPrompt struct {
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message"`
}

// StreamResult is the outcome of a chat stream.
type StreamResult struct {
	Answer string

	// Confirmation is set when the assistant is waiting for yes or no.
	Confirmation string
}

// AwaitingConfirmation reports whether the next message answers a prompt.
func (r *StreamResult) AwaitingConfirmation() bool {
	return r != nil && r.Confirmation != ""
}

// ErrStreamFailed wraps an error event sent by the server.
var ErrStreamFailed = errors.New("assistant error")

// StreamProcessor renders a chat stream as it arrives.
type StreamProcessor interface {
	// Process reads the stream to EOF, printing as it goes.
	Process(reader io.Reader) (*StreamResult, error)
}

type ndjsonStreamProcessor struct {
	writer      io.Writer
	personality PersonalityLevel
	spinner     *Spinner
	answer      strings.Builder
}

// NewStreamProcessor creates a processor writing to w. In full mode a
// spinner runs until the first event arrives.
func NewStreamProcessor(w io.Writer, personality PersonalityLevel) StreamProcessor {
	return &ndjsonStreamProcessor{writer: w, personality: personality}
}

// Process implements StreamProcessor.
func (p *ndjsonStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	if p.personality == PersonalityFull {
		p.spinner = NewSpinner(p.writer, p.personality, "Thinking...")
		p.spinner.Start()
	}
	defer p.stopSpinner()

	result := &StreamResult{}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("malformed stream line: %w", err)
		}
		p.stopSpinner()

		switch event.Type {
		case StreamEventToken:
			p.handleToken(event.Content)
		case StreamEventConfirmation:
			msg := event.Content
			if event.Payload != nil {
				msg = event.Payload.Message
			}
			result.Confirmation = msg
			p.handleConfirmation(msg)
		case StreamEventError:
			p.finalize()
			return nil, fmt.Errorf("%w: %s", ErrStreamFailed, event.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	p.finalize()
	result.Answer = p.answer.String()
	return result, nil
}

func (p *ndjsonStreamProcessor) stopSpinner() {
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}
}

func (p *ndjsonStreamProcessor) handleToken(token string) {
	p.answer.WriteString(token)
	if p.personality == PersonalityMachine {
		return
	}
	fmt.Fprint(p.writer, token)
}

func (p *ndjsonStreamProcessor) handleConfirmation(msg string) {
	switch p.personality {
	case PersonalityMachine:
		fmt.Fprintf(p.writer, "CONFIRM: %s\n", msg)
	case PersonalityMinimal:
		fmt.Fprintf(p.writer, "%s %s\n", IconWarning.Render(), msg)
	default:
		title := Styles.Warning.Bold(true).Render("Confirmation required")
		fmt.Fprintln(p.writer, Styles.WarningBox.Width(60).Render(title+"\n"+msg))
	}
}

func (p *ndjsonStreamProcessor) finalize() {
	if p.personality == PersonalityMachine {
		if p.answer.Len() > 0 {
			fmt.Fprintf(p.writer, "ANSWER: %s\n", p.answer.String())
		}
		return
	}
	if p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
		fmt.Fprintln(p.writer)
	}
}
