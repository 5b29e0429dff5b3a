// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the wire types of the Movi HTTP and WebSocket
// transports.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes bounds a single user message.
	MaxMessageContentBytes = 8 * 1024

	// MaxImageBytes bounds a base64 screenshot.
	MaxImageBytes = 8 * 1024 * 1024

	// DefaultContextPage is used when the client does not report its page.
	DefaultContextPage = "unknown"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is shared by every request type in this package.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = validate.RegisterValidation("maximage", validateMaxImage)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

func validateMaxImage(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxImageBytes
}

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest is the body of POST /movi/chat.
//
// # Description
//
// One user message for a session. When the session is waiting for a
// confirmation the message is read as the answer instead of a new request.
//
// # Fields
//
//   - Message: Required. The user's text, at most 8KB.
//   - SessionID: Required. Conversation id chosen by the client.
//   - ContextPage: Optional. UI page ("busDashboard", "manageRoute"). Default "unknown".
//   - ImageBase64: Optional. Screenshot to describe before analysis.
type ChatRequest struct {
	Message     string `json:"message" validate:"required,maxbytes"`
	SessionID   string `json:"session_id" validate:"required,max=128"`
	ContextPage string `json:"context_page,omitempty" validate:"omitempty,max=64"`
	ImageBase64 string `json:"image_base64,omitempty" validate:"omitempty,maximage"`
}

// Validate checks the request and applies defaults.
func (r *ChatRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.ContextPage == "" {
		r.ContextPage = DefaultContextPage
	}
	return nil
}

// =============================================================================
// NDJSON Stream Events
// =============================================================================

// StreamEventType tags a line of the chat stream.
type StreamEventType string

const (
	// StreamEventToken carries a chunk of the reply text.
	StreamEventToken StreamEventType = "token"

	// StreamEventConfirmation asks the user to approve a pending action.
	StreamEventConfirmation StreamEventType = "confirmation"

	// StreamEventError reports a failure. The stream ends after it.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one line of the application/x-ndjson chat response.
type StreamEvent struct {
	Type    StreamEventType     `json:"type"`
	Content string              `json:"content,omitempty"`
	Payload *ConfirmationPrompt `json:"payload,omitempty"`
}

// ConfirmationPrompt is the payload of a confirmation event.
type ConfirmationPrompt struct {
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message"`
}
