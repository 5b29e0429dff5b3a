// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Chat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: RoleAssistant, Content: `{"intent":"x"}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{BaseURL: srv.URL + "/", Model: "llama3.2"})
	require.NoError(t, err)

	params := Temperature(0.1)
	params.JSONMode = true
	out, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	}, params)

	require.NoError(t, err)
	assert.Equal(t, `{"intent":"x"}`, out)
	assert.Equal(t, "llama3.2", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.InDelta(t, 0.1, got.Options["temperature"], 0.0001)
}

func TestOllamaClient_DescribeImageStripsDataURL(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: RoleAssistant, Content: "a bus dashboard"},
		})
	}))
	defer srv.Close()

	client, err := NewOllamaClient(Config{BaseURL: srv.URL, Model: "llama3.2", VisionModel: "llava"})
	require.NoError(t, err)

	out, err := client.DescribeImage(context.Background(), "describe", "data:image/png;base64,QUJD", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "a bus dashboard", out)
	assert.Equal(t, "llava", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, []string{"QUJD"}, got.Messages[0].Images)
}

func TestOllamaClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"model missing", http.StatusNotFound, `{"error":"model 'x' not found"}`, "ollama pull"},
		{"server error", http.StatusInternalServerError, `boom`, "status 500"},
		{"empty content", http.StatusOK, `{"message":{"role":"assistant","content":""}}`, ErrEmptyResponse.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewOllamaClient(Config{BaseURL: srv.URL, Model: "x"})
			require.NoError(t, err)

			_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func openAITestServer(t *testing.T, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini","choices":[` +
			`{"index":0,"message":{"role":"assistant","content":` + content + `},"finish_reason":"stop"}]}`))
	}))
}

func TestOpenAIClient_Chat(t *testing.T) {
	var body map[string]any
	srv := openAITestServer(t, `"Morning Express is scheduled."`, &body)
	defer srv.Close()

	client, err := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	params := Temperature(0.3)
	params.JSONMode = true
	out, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "status?"}}, params)

	require.NoError(t, err)
	assert.Equal(t, "Morning Express is scheduled.", out)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestOpenAIClient_DescribeImage(t *testing.T) {
	var body map[string]any
	srv := openAITestServer(t, `"A table of trips."`, &body)
	defer srv.Close()

	client, err := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	out, err := client.DescribeImage(context.Background(), "describe", "QUJD", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "A table of trips.", out)

	raw, err := json.Marshal(body["messages"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "data:image/jpeg;base64,QUJD")
}

func TestOpenAIClient_EmptyContent(t *testing.T) {
	srv := openAITestServer(t, `""`, nil)
	defer srv.Close()

	client, err := NewOpenAIClient(Config{BaseURL: srv.URL + "/v1", APIKey: "test"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bedrock"})
	assert.Error(t, err)
}

func TestImageDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,QUJD", ImageDataURL("QUJD"))
	assert.Equal(t, "data:image/png;base64,QUJD", ImageDataURL("data:image/png;base64,QUJD"))
	assert.Equal(t, "QUJD", stripDataURL("data:image/png;base64,QUJD"))
	assert.Equal(t, "QUJD", stripDataURL("QUJD"))
}
