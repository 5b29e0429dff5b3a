// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := DefaultNormalizer()

	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "trip_name moves to canonical",
			in:   map[string]any{"trip_name": "Morning Express"},
			want: map[string]any{"trip_display_name": "Morning Express"},
		},
		{
			name: "first present synonym wins",
			in:   map[string]any{"trip_name": "Morning Express", "trip": "Night Service"},
			want: map[string]any{"trip_display_name": "Morning Express", "trip": "Night Service"},
		},
		{
			name: "canonical never overwritten",
			in:   map[string]any{"trip_display_name": "Evening Commute", "trip_name": "Morning Express"},
			want: map[string]any{"trip_display_name": "Evening Commute", "trip_name": "Morning Express"},
		},
		{
			name: "route synonym",
			in:   map[string]any{"route": "Downtown to Airport Express", "status": "inactive"},
			want: map[string]any{"route_display_name": "Downtown to Airport Express", "status": "inactive"},
		},
		{
			name: "path moves to path_name",
			in:   map[string]any{"path": "Main Route Path"},
			want: map[string]any{"path_name": "Main Route Path"},
		},
		{
			name: "path_name already canonical",
			in:   map[string]any{"path_name": "Main Route Path", "path": "Other"},
			want: map[string]any{"path_name": "Main Route Path", "path": "Other"},
		},
		{
			name: "unmapped keys pass through",
			in:   map[string]any{"vehicle_id": "KA-01-AB-1234"},
			want: map[string]any{"vehicle_id": "KA-01-AB-1234"},
		},
		{
			name: "nil input",
			in:   nil,
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := DefaultNormalizer()
	inputs := []map[string]any{
		{"trip": "Night Service", "route_name": "Downtown to Airport Express", "path": "Main Route Path"},
		{"trip_display_name": "A", "trip": "B"},
		{"foo": 1.0, "route": "R"},
	}

	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("Normalize not idempotent (-once +twice):\n%s", diff)
		}
	}
}

func TestNormalizer_DoesNotMutateInput(t *testing.T) {
	n := DefaultNormalizer()
	in := map[string]any{"trip_name": "Morning Express"}

	_ = n.Normalize(in)

	assert.Equal(t, map[string]any{"trip_name": "Morning Express"}, in)
}

func TestNewNormalizer_RejectsPingPongRules(t *testing.T) {
	_, err := NewNormalizer([]NormalizationRule{
		{Canonical: "a", Synonyms: []string{"b"}},
		{Canonical: "b", Synonyms: []string{"a"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRules))

	_, err = NewNormalizer([]NormalizationRule{{Canonical: ""}})
	assert.True(t, errors.Is(err, ErrInvalidRules))

	_, err = NewNormalizer([]NormalizationRule{
		{Canonical: "a", Synonyms: []string{"x"}},
		{Canonical: "a", Synonyms: []string{"y"}},
	})
	assert.True(t, errors.Is(err, ErrInvalidRules))
}
