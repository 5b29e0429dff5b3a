// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns ~/.movi/movi.yaml.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "movi.yaml")
}

// Load reads the configuration.
//
// Description:
//
//	An empty path means DefaultPath, which is created with DefaultConfig
//	on first run. An explicit path must exist. Values missing from the
//	file keep their defaults. Environment variables override the file and
//	carry the secrets, which are never written to disk.
//
// Inputs:
//
//	path - Config file path, or "" for the default.
//
// Outputs:
//
//	MoviConfig - The validated configuration.
//	error - Non-nil if the file is unreadable or invalid.
func Load(path string) (MoviConfig, error) {
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := createDefault(path); err != nil {
				return MoviConfig{}, err
			}
		}
	}
	return loadFrom(path, os.Getenv)
}

func loadFrom(path string, getenv func(string) string) (MoviConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MoviConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return MoviConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return MoviConfig{}, err
	}
	cfg.Server.Fleet.DSN = expandHome(cfg.Server.Fleet.DSN)
	cfg.Server.Sessions.Path = expandHome(cfg.Server.Sessions.Path)
	cfg.Server.RulesPath = expandHome(cfg.Server.RulesPath)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)

	if err := validate.Struct(cfg); err != nil {
		return MoviConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overlays MOVI_* variables and OPENAI_API_KEY.
func applyEnv(cfg *MoviConfig, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if key := getenv("OPENAI_API_KEY"); key != "" {
		cfg.Server.LLM.APIKey = key
		cfg.Server.Speech.APIKey = key
	}
	str("MOVI_LLM_PROVIDER", &cfg.Server.LLM.Provider)
	str("MOVI_LLM_MODEL", &cfg.Server.LLM.Model)
	str("MOVI_LLM_BASE_URL", &cfg.Server.LLM.BaseURL)
	str("MOVI_FLEET_DSN", &cfg.Server.Fleet.DSN)
	str("MOVI_SESSIONS_PATH", &cfg.Server.Sessions.Path)
	str("MOVI_RULES_PATH", &cfg.Server.RulesPath)
	str("MOVI_NATS_URL", &cfg.Server.Events.NATSURL)
	str("MOVI_VOICE_URL", &cfg.Server.VoiceRoom.URL)
	str("MOVI_VOICE_API_KEY", &cfg.Server.VoiceRoom.APIKey)
	str("MOVI_VOICE_API_SECRET", &cfg.Server.VoiceRoom.APISecret)
	str("MOVI_SERVER_URL", &cfg.Client.ServerURL)
	str("MOVI_LOG_LEVEL", &cfg.Logging.Level)

	if key := getenv("MOVI_API_KEY"); key != "" {
		cfg.Server.Security.APIKey = key
		cfg.Client.APIKey = key
	}
	if endpoint := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Server.Telemetry.Endpoint = endpoint
		if cfg.Server.Telemetry.Exporter == "" || cfg.Server.Telemetry.Exporter == "none" {
			cfg.Server.Telemetry.Exporter = "otlp"
		}
	}
	if v := getenv("MOVI_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOVI_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
