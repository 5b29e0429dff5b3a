// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Len(t, p.HighImpact, 7)
	assert.Len(t, p.Normalization, 3)

	n, err := p.Normalizer()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"trip_display_name": "x"}, n.Normalize(map[string]any{"trip": "x"}))
}

func TestParsePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "high_impact: [oops"},
		{"missing action", "high_impact:\n  - entity_type: trip\n"},
		{"duplicate action", "high_impact:\n  - action: a\n  - action: a\n"},
		{"ping pong normalization", "normalization:\n  - canonical: a\n    synonyms: [b]\n  - canonical: b\n    synonyms: [a]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPolicy))
		})
	}
}

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high_impact:\n  - action: archive_vehicle\n    entity_keys: [vehicle]\n    entity_type: vehicle\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	require.Len(t, p.HighImpact, 1)
	assert.Equal(t, "archive_vehicle", p.HighImpact[0].Action)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadPolicy_EmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}
