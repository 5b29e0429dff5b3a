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
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/movi/services/agent/tools"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// ErrInvalidPolicy indicates a rule file could not be used.
var ErrInvalidPolicy = errors.New("invalid safety policy")

// Rule classifies one high-impact action.
type Rule struct {
	// Action is the action name the rule applies to.
	Action string `yaml:"action" json:"action"`

	// EntityKeys are tried in order to find the affected entity.
	EntityKeys []string `yaml:"entity_keys" json:"entity_keys"`

	// EntityType labels the affected entity ("trip", "route", "path").
	EntityType string `yaml:"entity_type" json:"entity_type"`

	// Checker names the consequence checker. Empty means none.
	Checker string `yaml:"checker,omitempty" json:"checker,omitempty"`
}

// Policy is the data-driven rule table for the pipeline.
type Policy struct {
	HighImpact    []Rule                    `yaml:"high_impact" json:"high_impact"`
	Normalization []tools.NormalizationRule `yaml:"normalization" json:"normalization"`
}

// DefaultPolicy returns the embedded fleet policy.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded safety policy: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and checks a YAML policy.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that action names are unique and non-empty.
func (p Policy) Validate() error {
	seen := make(map[string]bool, len(p.HighImpact))
	for i, r := range p.HighImpact {
		if r.Action == "" {
			return fmt.Errorf("%w: high_impact[%d] has no action", ErrInvalidPolicy, i)
		}
		if seen[r.Action] {
			return fmt.Errorf("%w: duplicate action %q", ErrInvalidPolicy, r.Action)
		}
		seen[r.Action] = true
	}
	if _, err := tools.NewNormalizer(p.Normalization); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return nil
}

// Normalizer builds the entity normalizer described by the policy.
func (p Policy) Normalizer() (*tools.Normalizer, error) {
	return tools.NewNormalizer(p.Normalization)
}

// resolveEntity returns the first present non-empty value for the rule's keys.
func (r Rule) resolveEntity(entities map[string]any) string {
	for _, key := range r.EntityKeys {
		v, ok := entities[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if s != "" {
			return s
		}
	}
	return ""
}
