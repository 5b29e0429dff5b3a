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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ChatRequest Validation Tests
// =============================================================================

func TestChatRequest_Validate_Success(t *testing.T) {
	req := ChatRequest{Message: "list trips", SessionID: "s1"}
	require.NoError(t, req.Validate())
	assert.Equal(t, DefaultContextPage, req.ContextPage, "page defaults when omitted")
}

func TestChatRequest_Validate_KeepsPage(t *testing.T) {
	req := ChatRequest{Message: "hi", SessionID: "s1", ContextPage: "manageRoute"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "manageRoute", req.ContextPage)
}

func TestChatRequest_Validate_Invalid(t *testing.T) {
	cases := map[string]ChatRequest{
		"missing message":   {SessionID: "s1"},
		"missing session":   {Message: "hi"},
		"long session id":   {Message: "hi", SessionID: strings.Repeat("s", 129)},
		"long page":         {Message: "hi", SessionID: "s1", ContextPage: strings.Repeat("p", 65)},
		"oversized message": {Message: strings.Repeat("m", MaxMessageContentBytes+1), SessionID: "s1"},
		"oversized image":   {Message: "hi", SessionID: "s1", ImageBase64: strings.Repeat("i", MaxImageBytes+1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, req.Validate())
		})
	}
}

func TestChatRequest_Validate_MessageAtLimit(t *testing.T) {
	req := ChatRequest{Message: strings.Repeat("m", MaxMessageContentBytes), SessionID: "s1"}
	assert.NoError(t, req.Validate())
}

// =============================================================================
// Stream Event Encoding Tests
// =============================================================================

func TestStreamEvent_TokenOmitsPayload(t *testing.T) {
	data, err := json.Marshal(StreamEvent{Type: StreamEventToken, Content: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"token","content":"hello"}`, string(data))
}

func TestStreamEvent_ConfirmationShape(t *testing.T) {
	data, err := json.Marshal(StreamEvent{
		Type:    StreamEventConfirmation,
		Payload: &ConfirmationPrompt{RequiresConfirmation: true, Message: "Proceed?"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"confirmation","payload":{"requires_confirmation":true,"message":"Proceed?"}}`,
		string(data))
}

// =============================================================================
// VoiceTokenRequest Validation Tests
// =============================================================================

func TestVoiceTokenRequest_Validate(t *testing.T) {
	req := VoiceTokenRequest{SessionID: "s1"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "busDashboard", req.ContextPage)

	assert.Error(t, (&VoiceTokenRequest{}).Validate())
}

func TestVoiceReply_NullConsequenceInfo(t *testing.T) {
	data, err := json.Marshal(VoiceReply{Type: VoiceTextResponse, Text: "ok"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"consequence_info":null`)
	assert.NotContains(t, string(data), `"data"`)
}
