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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type OpenAIClient struct {
	client      *openai.Client
	model       string
	visionModel string
}

// OpenAIKey resolves the API key from the environment or a mounted secret.
func OpenAIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	secretPath := "/run/secrets/openai_api_key"
	if data, err := os.ReadFile(secretPath); err == nil {
		slog.Info("Read the OpenAI API Key from Podman Secrets")
		return strings.TrimSpace(string(data))
	}
	return ""
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = OpenAIKey()
	}
	if apiKey == "" && cfg.BaseURL == "" {
		slog.Error("OPENAI_API_KEY environment variable not set and secret not found")
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	slog.Info("Initializing OpenAI client", "model", model, "vision_model", visionModel)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		visionModel: visionModel,
	}, nil
}

// Model returns the chat model name.
func (o *OpenAIClient) Model() string {
	return o.model
}

// Chat implements the LLMClient interface
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	applyOpenAIParams(&req, params)

	content, err := o.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return content, nil
}

// DescribeImage implements VisionClient.
func (o *OpenAIClient) DescribeImage(ctx context.Context, prompt, imageBase64 string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.DescribeImage")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.visionModel))

	req := openai.ChatCompletionRequest{
		Model: o.visionModel,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    ImageDataURL(imageBase64),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	}
	applyOpenAIParams(&req, params)

	content, err := o.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return content, nil
}

func (o *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", req.Model)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Warn("OpenAI returned no choices or empty content")
		return "", ErrEmptyResponse
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func applyOpenAIParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	if params.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
}

// ImageDataURL wraps raw base64 image data in a data URL. Input that is
// already a data URL is returned unchanged.
func ImageDataURL(imageBase64 string) string {
	if strings.HasPrefix(imageBase64, "data:") {
		return imageBase64
	}
	return "data:image/jpeg;base64," + imageBase64
}

// stripDataURL returns the base64 payload of a data URL.
func stripDataURL(image string) string {
	if !strings.HasPrefix(image, "data:") {
		return image
	}
	if i := strings.Index(image, ","); i >= 0 {
		return image[i+1:]
	}
	return image
}
