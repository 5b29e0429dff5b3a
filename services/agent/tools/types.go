// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools holds the action registry, the entity normalizer and the
// dispatcher that invokes fleet actions and classifies their outcome.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the tools package.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool indicates a tool name was registered twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidParams indicates a parameter shape mismatch. Tools may wrap
	// it to report arity or type problems they detect themselves.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")

	// ErrInvalidRules indicates a normalization rule set is inconsistent.
	ErrInvalidRules = errors.New("invalid normalization rules")
)

// ParamType is the JSON type a parameter accepts.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeFloat  ParamType = "number"
	ParamTypeBool   ParamType = "boolean"
	ParamTypeObject ParamType = "object"
	ParamTypeArray  ParamType = "array"
)

// ParamDef describes one tool parameter.
type ParamDef struct {
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// ActionDescriptor is the immutable contract of a registered action.
type ActionDescriptor struct {
	// Name is the unique action identifier selected by the analyzer.
	Name string `json:"name"`

	// Description is shown to the language model.
	Description string `json:"description"`

	// Parameters is the parameter schema. Undeclared keys are dropped
	// before invocation.
	Parameters map[string]ParamDef `json:"parameters,omitempty"`

	// HighImpact marks actions that require confirmation. The safety
	// validator's rule table is authoritative; this flag is informational.
	HighImpact bool `json:"high_impact"`

	// Pages lists the UI pages the action is offered on. Empty means all.
	Pages []string `json:"pages,omitempty"`

	// Timeout overrides the dispatcher default when positive.
	Timeout time.Duration `json:"-"`
}

// AvailableOn reports whether the action is offered on a UI page.
func (d ActionDescriptor) AvailableOn(page string) bool {
	if len(d.Pages) == 0 || page == "" || page == "unknown" {
		return true
	}
	for _, p := range d.Pages {
		if p == page {
			return true
		}
	}
	return false
}

// Tool is an invocable fleet action.
type Tool interface {
	// Descriptor returns the action contract.
	Descriptor() ActionDescriptor

	// Invoke runs the action once with canonical parameters.
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// InvokeFunc is the signature of a function-backed tool.
type InvokeFunc func(ctx context.Context, params map[string]any) (any, error)

type funcTool struct {
	desc ActionDescriptor
	fn   InvokeFunc
}

// NewFuncTool adapts a function to the Tool interface.
func NewFuncTool(desc ActionDescriptor, fn InvokeFunc) Tool {
	return &funcTool{desc: desc, fn: fn}
}

func (t *funcTool) Descriptor() ActionDescriptor { return t.desc }

func (t *funcTool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return t.fn(ctx, params)
}

// ParamError reports a parameter shape mismatch.
type ParamError struct {
	Parameter string
	Message   string
	Expected  string
	Actual    string
}

// Error implements error.
func (e *ParamError) Error() string {
	msg := fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message)
	if e.Expected != "" {
		msg += fmt.Sprintf(" (expected %s", e.Expected)
		if e.Actual != "" {
			msg += fmt.Sprintf(", got %s", e.Actual)
		}
		msg += ")"
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidParams.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}
