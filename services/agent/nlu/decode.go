// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nlu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/movi/services/agent"
)

// fencedJSON matches a response that is exactly one fenced code block.
var fencedJSON = regexp.MustCompile("(?s)^```(?:json|JSON)?[ \t]*\n?(.*?)\n?```$")

type rawAnalysis struct {
	Intent   *string        `json:"intent"`
	ToolName *string        `json:"tool_name"`
	Entities map[string]any `json:"entities"`
}

// DecodeAnalysis parses classifier output.
//
// The text must be a single JSON object, bare or inside one fenced block.
// All fields are optional and null is treated as absent. Prose around the
// JSON is rejected rather than searched.
func DecodeAnalysis(text string) (Analysis, error) {
	body := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(body, "{") {
		return Analysis{}, fmt.Errorf("%w: output is not a JSON object", agent.ErrAnalysisDegraded)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var raw rawAnalysis
	if err := dec.Decode(&raw); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", agent.ErrAnalysisDegraded, err)
	}
	if dec.More() {
		return Analysis{}, fmt.Errorf("%w: trailing data after JSON object", agent.ErrAnalysisDegraded)
	}

	out := Analysis{Entities: make(map[string]any, len(raw.Entities))}
	if raw.Intent != nil {
		out.Intent = strings.TrimSpace(*raw.Intent)
	}
	if raw.ToolName != nil {
		out.ActionName = strings.TrimSpace(*raw.ToolName)
	}
	for k, v := range raw.Entities {
		if v == nil {
			continue
		}
		out.Entities[k] = v
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
