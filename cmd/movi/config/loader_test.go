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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestCreateDefault verifies the first-run file round-trips to the defaults.
func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".movi", "movi.yaml")
	require.NoError(t, createDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutdown_timeout: 10s")
	assert.NotContains(t, string(data), "api_key", "secrets are never written")

	cfg, err := loadFrom(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  llm:
    provider: ollama
    model: llama3.2
  agent:
    tool_timeout: 45s
client:
  context_page: manageRoute
`)
	cfg, err := loadFrom(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Server.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.Server.Agent.ToolTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.Agent.CheckTimeout, "untouched default")
	assert.Equal(t, "manageRoute", cfg.Client.ContextPage)
	assert.Equal(t, "http://localhost:12210", cfg.Client.ServerURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	cfg, err := loadFrom(path, envMap(map[string]string{
		"OPENAI_API_KEY":              "sk-test",
		"MOVI_API_KEY":                "movi-key",
		"MOVI_PORT":                   "8080",
		"MOVI_FLEET_DSN":              ":memory:",
		"MOVI_NATS_URL":               "nats://localhost:4222",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
		"MOVI_VOICE_API_SECRET":       "room-secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Server.LLM.APIKey)
	assert.Equal(t, "sk-test", cfg.Server.Speech.APIKey)
	assert.Equal(t, "movi-key", cfg.Server.Security.APIKey)
	assert.Equal(t, "movi-key", cfg.Client.APIKey)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Server.Fleet.DSN)
	assert.Equal(t, "nats://localhost:4222", cfg.Server.Events.NATSURL)
	assert.Equal(t, "otlp", cfg.Server.Telemetry.Exporter)
	assert.Equal(t, "collector:4317", cfg.Server.Telemetry.Endpoint)
	assert.Equal(t, "room-secret", cfg.Server.VoiceRoom.APISecret)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]struct {
		content string
		env     map[string]string
	}{
		"bad yaml":         {content: "server: [\n"},
		"bad provider":     {content: "server:\n  llm:\n    provider: anthropic\n"},
		"bad port":         {content: "server:\n  port: 70000\n"},
		"bad backend":      {content: "server:\n  sessions:\n    backend: redis\n"},
		"bad server url":   {content: "client:\n  server_url: not a url\n"},
		"bad log level":    {content: "logging:\n  level: verbose\n"},
		"bad env port":     {content: "{}\n", env: map[string]string{"MOVI_PORT": "eighty"}},
		"bad gin mode":     {content: "server:\n  gin_mode: loud\n"},
		"bad exporter":     {content: "server:\n  telemetry:\n    exporter: zipkin\n"},
		"negative history": {content: "server:\n  agent:\n    history_limit: -1\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadFrom(writeConfig(t, tc.content), envMap(tc.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, "server:\n  fleet:\n    dsn: ~/fleet.db\nlogging:\n  dir: ~/logs\n")
	cfg, err := loadFrom(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "fleet.db"), cfg.Server.Fleet.DSN)
	assert.Equal(t, filepath.Join(home, "logs"), cfg.Logging.Dir)
}

func TestDefaultConfig_MarshalsSecretsOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.LLM.APIKey = "sk-secret"
	cfg.Server.Security.APIKey = "movi-secret"

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.NotContains(t, string(data), "movi-secret")
}
