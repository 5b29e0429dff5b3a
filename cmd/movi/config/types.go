// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Movi CLI and server configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/llm"
	"github.com/AleutianAI/movi/services/orchestrator"
)

// MoviConfig is the contents of movi.yaml.
type MoviConfig struct {
	// Server configures `movi serve`.
	Server orchestrator.Config `yaml:"server"`

	// Client configures `movi chat` and `movi session`.
	Client ClientConfig `yaml:"client"`

	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig points the CLI at a running server.
type ClientConfig struct {
	ServerURL   string        `yaml:"server_url" validate:"required,url"`
	ContextPage string        `yaml:"context_page"`
	Timeout     time.Duration `yaml:"timeout"`

	// APIKey is sent as a bearer token. Read from MOVI_API_KEY.
	APIKey string `yaml:"-"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultDir returns ~/.movi, or ./.movi when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".movi"
	}
	return filepath.Join(home, ".movi")
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() MoviConfig {
	dir := DefaultDir()
	return MoviConfig{
		Server: orchestrator.Config{
			Port:            12210,
			GinMode:         "release",
			ShutdownTimeout: 10 * time.Second,
			LLM: llm.Config{
				Provider: "openai",
				Model:    "gpt-4o-mini",
			},
			Fleet: orchestrator.FleetConfig{
				DSN: filepath.Join(dir, "fleet.db"),
			},
			Sessions: orchestrator.SessionsConfig{
				Backend: "badger",
				Path:    filepath.Join(dir, "sessions"),
			},
			Agent: orchestrator.AgentConfig{
				HistoryLimit:       agent.DefaultHistoryLimit,
				MaxConcurrentTurns: 64,
				AnalyzeTimeout:     30 * time.Second,
				ToolTimeout:        30 * time.Second,
				CheckTimeout:       5 * time.Second,
			},
			Telemetry: orchestrator.TelemetryConfig{
				Exporter:    "none",
				ServiceName: "movi",
			},
			Events: orchestrator.EventsConfig{
				Subject: "movi.events",
			},
			Security: orchestrator.SecurityConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Client: ClientConfig{
			ServerURL:   "http://localhost:12210",
			ContextPage: "busDashboard",
			Timeout:     2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(dir, "logs"),
		},
	}
}
