// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/AleutianAI/movi/services/agent"
)

// Voice client message types.
const (
	VoiceInit          = "init"
	VoiceAudio         = "audio"
	VoiceUpdateContext = "update_context"
	VoiceClose         = "close"
)

// Voice server message types.
const (
	VoiceReady         = "ready"
	VoiceTranscription = "transcription"
	VoiceProcessing    = "processing"
	VoiceTextResponse  = "text_response"
	VoiceAudioResponse = "audio_response"
	VoiceError         = "error"
)

// Processing statuses.
const (
	StatusThinking        = "thinking"
	StatusGeneratingAudio = "generating_audio"
)

// VoiceClientMessage is any message a voice client sends. Which fields are
// set depends on Type.
type VoiceClientMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	ContextPage string `json:"context_page,omitempty"`
	Data        string `json:"data,omitempty"`
	Format      string `json:"format,omitempty"`
}

// VoiceServerMessage is a ready, transcription, processing or error message.
type VoiceServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Status  string `json:"status,omitempty"`
}

// VoiceReply is a text_response or audio_response message. Data is set only
// on audio_response.
type VoiceReply struct {
	Type                 string                     `json:"type"`
	Text                 string                     `json:"text"`
	Data                 string                     `json:"data,omitempty"`
	RequiresConfirmation bool                       `json:"requires_confirmation"`
	AwaitingConfirmation bool                       `json:"awaiting_confirmation"`
	ConsequenceInfo      *agent.ConfirmationPayload `json:"consequence_info"`
}

// VoiceSessionInfo describes one connected voice client.
type VoiceSessionInfo struct {
	SessionID   string    `json:"session_id"`
	ContextPage string    `json:"context_page"`
	CreatedAt   time.Time `json:"created_at"`
}

// VoiceSessionsResponse is the body of GET /movi/voice/sessions.
type VoiceSessionsResponse struct {
	ActiveSessions int                `json:"active_sessions"`
	Sessions       []VoiceSessionInfo `json:"sessions"`
}

// =============================================================================
// Voice Room Token
// =============================================================================

// VoiceTokenRequest is the body of POST /movi/voice/token.
type VoiceTokenRequest struct {
	SessionID   string `json:"session_id" validate:"required,max=128"`
	ContextPage string `json:"context_page,omitempty" validate:"omitempty,max=64"`
}

// Validate checks the request and applies defaults.
func (r *VoiceTokenRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.ContextPage == "" {
		r.ContextPage = "busDashboard"
	}
	return nil
}

// VoiceTokenResponse carries a signed room token.
type VoiceTokenResponse struct {
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	URL      string `json:"url"`
}

// =============================================================================
// Misc
// =============================================================================

// ErrorResponse is the JSON error body for non-streaming endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
