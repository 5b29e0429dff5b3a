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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("movi.llm")

type OllamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	visionModel string
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   string                 `json:"format,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	CreatedAt string        `json:"created_at"`
	Done      bool          `json:"done"`
}

func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.2")
		model = "llama3.2"
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		baseURL:     baseURL,
		model:       model,
		visionModel: visionModel,
	}, nil
}

// Chat implements the LLMClient interface
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	msgs := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	return o.chat(ctx, "OllamaClient.Chat", o.model, msgs, params)
}

// DescribeImage implements VisionClient using the model's images field.
func (o *OllamaClient) DescribeImage(ctx context.Context, prompt, imageBase64 string, params GenerationParams) (string, error) {
	msgs := []ollamaMessage{{
		Role:    RoleUser,
		Content: prompt,
		Images:  []string{stripDataURL(imageBase64)},
	}}
	return o.chat(ctx, "OllamaClient.DescribeImage", o.visionModel, msgs, params)
}

func (o *OllamaClient) chat(ctx context.Context, spanName, model string, messages []ollamaMessage,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))
	span.SetAttributes(attribute.Int("llm.num_messages", len(messages)))

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	slog.Debug("Generating text via Ollama", "model", model)
	chatURL := o.baseURL + "/api/chat"
	payload := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions(params),
	}
	if params.JSONMode {
		payload.Format = "json"
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fail(fmt.Errorf("failed to marshal chat request to Ollama: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return fail(fmt.Errorf("failed to create chat request to Ollama: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to send the request to %s: %w", chatURL, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed to read response body from Ollama: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama chat returned an error", "status_code", resp.StatusCode,
			"response", string(respBody))
		if resp.StatusCode == http.StatusNotFound && strings.Contains(string(respBody), "not found") {
			return fail(fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", model, model))
		}
		return fail(fmt.Errorf("ollama chat failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	var ollamaResp ollamaChatResponse
	if err = json.Unmarshal(respBody, &ollamaResp); err != nil {
		slog.Error("Failed to parse JSON chat response from Ollama", "error", err,
			"response", string(respBody))
		return fail(fmt.Errorf("failed to parse Ollama chat response: %w", err))
	}
	if ollamaResp.Message.Role != RoleAssistant {
		slog.Warn("Ollama chat response message role was not 'assistant'", "role", ollamaResp.Message.Role)
	}
	if ollamaResp.Message.Content == "" {
		return fail(ErrEmptyResponse)
	}
	return ollamaResp.Message.Content, nil
}

func ollamaOptions(params GenerationParams) map[string]interface{} {
	options := map[string]interface{}{
		"temperature": float32(0.2),
		"top_k":       20,
		"top_p":       float32(0.9),
		"num_predict": 2048,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}
