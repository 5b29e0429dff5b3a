// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety decides which actions need human confirmation and gathers
// the consequence details shown to the user before they decide.
//
// High-impact actions always suspend. Consequence data only enriches the
// confirmation message; a failing or empty checker never skips it.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/AleutianAI/movi/services/agent"
)

// Checker names used by the default policy.
const (
	CheckerTrip              = "trip"
	CheckerRouteDeactivation = "route_deactivation"
	CheckerPathDeletion      = "path_deletion"
)

// ErrUnknownChecker indicates a rule names a checker that is not bound.
var ErrUnknownChecker = errors.New("unknown consequence checker")

// Consequence is what a checker reports for one entity.
type Consequence struct {
	HasConsequences bool
	Details         string
}

// Checker looks up the side effects of acting on an entity. It must not
// mutate domain data.
type Checker interface {
	Check(ctx context.Context, entity string) (Consequence, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, entity string) (Consequence, error)

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, entity string) (Consequence, error) {
	return f(ctx, entity)
}

// Decision is the outcome of Validate.
type Decision struct {
	// Suspend is true when the action needs confirmation.
	Suspend bool

	// Payload is handed to the caller on suspension.
	Payload *agent.ConfirmationPayload

	// Consequences is set only when a checker reported consequences.
	Consequences *agent.ConsequenceRecord

	// AffectedEntity is the resolved entity identifier, if any.
	AffectedEntity string

	// CheckErr records a degraded consequence lookup. It never changes
	// Suspend.
	CheckErr error
}

// Config configures the validator.
type Config struct {
	// CheckTimeout bounds a single consequence lookup. Default: 5s.
	CheckTimeout time.Duration

	// Logger receives validator logs. Default: slog.Default().
	Logger *slog.Logger

	// HighImpactActions are actions the tool registry flags as high impact.
	// A flagged action with no rule still suspends with the generic
	// confirmation_required payload.
	HighImpactActions []string
}

// Validator classifies actions and assembles confirmation payloads.
//
// Thread Safety: Validator is immutable after construction.
type Validator struct {
	rules    map[string]Rule
	checkers map[string]Checker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewValidator creates a validator.
//
// Inputs:
//
//	rules - High-impact rules, typically Policy.HighImpact
//	checkers - Checkers by name
//	cfg - Optional configuration
//
// Outputs:
//
//	*Validator - The validator
//	error - ErrUnknownChecker if a rule names an unbound checker
func NewValidator(rules []Rule, checkers map[string]Checker, cfg *Config) (*Validator, error) {
	v := &Validator{
		rules:    make(map[string]Rule, len(rules)),
		checkers: make(map[string]Checker, len(checkers)),
		timeout:  5 * time.Second,
		logger:   slog.Default(),
	}
	var flagged []string
	if cfg != nil {
		if cfg.CheckTimeout > 0 {
			v.timeout = cfg.CheckTimeout
		}
		if cfg.Logger != nil {
			v.logger = cfg.Logger
		}
		flagged = cfg.HighImpactActions
	}
	maps.Copy(v.checkers, checkers)

	for _, r := range rules {
		if r.Checker != "" {
			if _, ok := v.checkers[r.Checker]; !ok {
				return nil, fmt.Errorf("%w: %q for action %s", ErrUnknownChecker, r.Checker, r.Action)
			}
		}
		v.rules[r.Action] = r
	}

	for _, action := range flagged {
		if action == "" {
			continue
		}
		if _, ok := v.rules[action]; ok {
			continue
		}
		v.logger.Warn("High-impact action has no rule, using generic confirmation", "action", action)
		v.rules[action] = Rule{Action: action}
	}
	return v, nil
}

// IsHighImpact reports whether an action requires confirmation.
func (v *Validator) IsHighImpact(action string) bool {
	_, ok := v.rules[action]
	return ok
}

// Validate decides whether the pending action may proceed.
//
// Description:
//
//	Non-high-impact actions proceed. High-impact actions always suspend;
//	when the affected entity resolves and its checker reports
//	consequences, the payload carries a ConsequenceRecord, otherwise the
//	generic confirmation_required payload.
//
// Inputs:
//
//	ctx - Context for the consequence lookup
//	state - Session state with PendingAction and Entities set
//
// Outputs:
//
//	Decision - Never fails; checker errors are recorded in CheckErr
func (v *Validator) Validate(ctx context.Context, state *agent.SessionState) Decision {
	rule, ok := v.rules[state.PendingAction]
	if !ok {
		return Decision{}
	}

	logger := v.logger.With("session_id", state.SessionID, "action", rule.Action)
	decision := Decision{Suspend: true}

	entity := rule.resolveEntity(state.Entities)
	decision.AffectedEntity = entity

	if entity != "" && rule.Checker != "" {
		result, err := v.check(ctx, v.checkers[rule.Checker], entity)
		switch {
		case err != nil:
			decision.CheckErr = fmt.Errorf("%w: %s(%q): %v", agent.ErrConsequenceCheck, rule.Checker, entity, err)
			logger.Warn("Consequence check failed, confirmation still required", "error", err)
		case result.HasConsequences:
			decision.Consequences = &agent.ConsequenceRecord{
				HasConsequences: true,
				Details:         result.Details,
				ActionName:      rule.Action,
				AffectedEntity:  entity,
				EntityType:      rule.EntityType,
			}
		}
	}

	if decision.Consequences != nil {
		decision.Payload = &agent.ConfirmationPayload{
			Type:         agent.PayloadConsequences,
			ActionName:   rule.Action,
			Entities:     maps.Clone(state.Entities),
			Consequences: decision.Consequences,
		}
	} else {
		decision.Payload = &agent.ConfirmationPayload{
			Type:       agent.PayloadConfirmationRequired,
			ActionName: rule.Action,
			Entities:   maps.Clone(state.Entities),
		}
	}

	logger.Info("High-impact action requires confirmation",
		"entity", entity,
		"has_consequences", decision.Consequences != nil,
	)
	return decision
}

// check runs a checker with a timeout and converts panics to errors.
func (v *Validator) check(ctx context.Context, checker Checker, entity string) (res Consequence, err error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = Consequence{}
			err = fmt.Errorf("checker panic: %v", r)
		}
	}()

	return checker.Check(ctx, entity)
}
