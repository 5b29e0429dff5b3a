// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package speech converts between audio and text for the voice transport.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("movi.speech")

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("empty audio")

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config configures the OpenAI speech backend.
type Config struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`

	// Language is the ISO-639-1 hint for transcription. Default: "en".
	Language string `yaml:"language"`

	// Voice is the TTS voice. Default: "nova".
	Voice string `yaml:"voice"`
}

// OpenAISpeech implements Transcriber with Whisper and Synthesizer with
// the TTS endpoint.
type OpenAISpeech struct {
	client   *openai.Client
	language string
	voice    openai.SpeechVoice
}

// NewOpenAISpeech creates the speech backend.
func NewOpenAISpeech(cfg Config) (*OpenAISpeech, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("speech requires an OpenAI API key")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	return &OpenAISpeech{
		client:   openai.NewClientWithConfig(clientCfg),
		language: cfg.Language,
		voice:    openai.SpeechVoice(cfg.Voice),
	}, nil
}

// Transcribe implements Transcriber. format is the container extension
// reported by the client ("webm", "wav", "mp3").
func (s *OpenAISpeech) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	ctx, span := tracer.Start(ctx, "OpenAISpeech.Transcribe")
	defer span.End()
	span.SetAttributes(attribute.Int("speech.audio_bytes", len(audio)))

	if format == "" {
		format = "webm"
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "audio." + format,
		Reader:   bytes.NewReader(audio),
		Language: s.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	slog.Debug("Transcribed audio", "chars", len(text))
	return text, nil
}

// Synthesize implements Synthesizer and returns MP3 bytes.
func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "OpenAISpeech.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("speech.text_chars", len(text)))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	return audio, nil
}
