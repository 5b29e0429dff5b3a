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
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when a backend answers with no content.
var ErrEmptyResponse = errors.New("llm returned no content")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// JSONMode asks the backend to constrain output to a JSON object.
	JSONMode bool `json:"json_mode"`
}

// Temperature returns a params value with only the temperature set.
func Temperature(t float32) GenerationParams {
	return GenerationParams{Temperature: &t}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// VisionClient describes images. Backends without vision support do not
// implement it.
type VisionClient interface {
	DescribeImage(ctx context.Context, prompt, imageBase64 string, params GenerationParams) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	// Provider is "openai" or "ollama".
	Provider string `yaml:"provider" validate:"omitempty,oneof=openai ollama"`

	// Model is the chat model name.
	Model string `yaml:"model"`

	// VisionModel overrides Model for image description.
	VisionModel string `yaml:"vision_model"`

	// BaseURL points at an OpenAI-compatible endpoint or an Ollama server.
	BaseURL string `yaml:"base_url"`

	// APIKey is the OpenAI key. Empty falls back to OPENAI_API_KEY.
	APIKey string `yaml:"-"`
}

// New builds the backend named by cfg.Provider. The default is OpenAI.
func New(cfg Config) (LLMClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIClient(cfg)
	case "ollama":
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
