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
	"fmt"
	"maps"
)

// NormalizationRule maps synonym entity keys onto one canonical key.
type NormalizationRule struct {
	Canonical string   `yaml:"canonical" json:"canonical"`
	Synonyms  []string `yaml:"synonyms" json:"synonyms"`
}

// DefaultNormalizationRules returns the fleet parameter naming rules.
func DefaultNormalizationRules() []NormalizationRule {
	return []NormalizationRule{
		{Canonical: "trip_display_name", Synonyms: []string{"trip_name", "trip"}},
		{Canonical: "route_display_name", Synonyms: []string{"route_name", "route"}},
		{Canonical: "path_name", Synonyms: []string{"path_name", "path"}},
	}
}

// Normalizer resolves synonym parameter names into canonical ones.
//
// Normalize is pure and idempotent. A canonical key already present is
// never overwritten.
//
// Thread Safety: Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	rules []NormalizationRule
}

// NewNormalizer validates and stores a rule set.
//
// Inputs:
//
//	rules - Ordered rules. A canonical key may not be another rule's synonym.
//
// Outputs:
//
//	*Normalizer - The normalizer
//	error - ErrInvalidRules if the rule set could ping-pong keys
func NewNormalizer(rules []NormalizationRule) (*Normalizer, error) {
	canonical := make(map[string]int, len(rules))
	for i, rule := range rules {
		if rule.Canonical == "" {
			return nil, fmt.Errorf("%w: rule %d has no canonical key", ErrInvalidRules, i)
		}
		if prev, dup := canonical[rule.Canonical]; dup {
			return nil, fmt.Errorf("%w: canonical %q declared by rules %d and %d",
				ErrInvalidRules, rule.Canonical, prev, i)
		}
		canonical[rule.Canonical] = i
	}
	for i, rule := range rules {
		for _, syn := range rule.Synonyms {
			if j, ok := canonical[syn]; ok && j != i {
				return nil, fmt.Errorf("%w: %q is canonical for rule %d and a synonym in rule %d",
					ErrInvalidRules, syn, j, i)
			}
		}
	}

	copied := make([]NormalizationRule, len(rules))
	for i, rule := range rules {
		copied[i] = NormalizationRule{
			Canonical: rule.Canonical,
			Synonyms:  append([]string(nil), rule.Synonyms...),
		}
	}
	return &Normalizer{rules: copied}, nil
}

// DefaultNormalizer returns a normalizer over DefaultNormalizationRules.
func DefaultNormalizer() *Normalizer {
	n, err := NewNormalizer(DefaultNormalizationRules())
	if err != nil {
		panic(err)
	}
	return n
}

// Rules returns a copy of the rule set.
func (n *Normalizer) Rules() []NormalizationRule {
	out := make([]NormalizationRule, len(n.rules))
	copy(out, n.rules)
	return out
}

// Normalize returns a copy of entities with synonyms moved to canonical keys.
//
// For each rule, if the canonical key is absent the first present synonym
// is moved onto it and the synonym key removed. Unmapped keys pass through.
// The input map is not modified.
func (n *Normalizer) Normalize(entities map[string]any) map[string]any {
	out := make(map[string]any, len(entities))
	maps.Copy(out, entities)

	for _, rule := range n.rules {
		if _, ok := out[rule.Canonical]; ok {
			continue
		}
		for _, syn := range rule.Synonyms {
			if syn == rule.Canonical {
				continue
			}
			if v, ok := out[syn]; ok {
				out[rule.Canonical] = v
				delete(out, syn)
				break
			}
		}
	}
	return out
}
