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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/movi/services/agent"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// DefaultTimeout bounds a single invocation. Default: 30s.
	DefaultTimeout time.Duration

	// Logger receives dispatch logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultDispatcherOptions returns the default options.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		DefaultTimeout: 30 * time.Second,
	}
}

// Dispatcher executes registered actions and classifies their outcome.
//
// Execute never returns an error: unknown actions, parameter mismatches,
// failures and panics are all captured as agent.ToolResult values.
//
// Thread Safety:
//
//	Dispatcher is safe for concurrent use.
type Dispatcher struct {
	registry   *Registry
	normalizer *Normalizer
	options    DispatcherOptions
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher.
//
// Inputs:
//
//	registry - The tool registry
//	normalizer - Entity normalizer (DefaultNormalizer if nil)
//	opts - Options (defaults if nil)
func NewDispatcher(registry *Registry, normalizer *Normalizer, opts *DispatcherOptions) *Dispatcher {
	options := DefaultDispatcherOptions()
	if opts != nil {
		options = *opts
		if options.DefaultTimeout <= 0 {
			options.DefaultTimeout = DefaultDispatcherOptions().DefaultTimeout
		}
	}
	if normalizer == nil {
		normalizer = DefaultNormalizer()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:   registry,
		normalizer: normalizer,
		options:    options,
		logger:     logger,
	}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Execute runs an action at most once.
//
// Description:
//
//	An empty action is a no-op. An unknown action yields a validation error
//	result. Otherwise entities are normalized, checked against the
//	parameter schema and passed to the tool.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout
//	actionName - The canonical action name
//	entities - Entities extracted by the analyzer
//
// Outputs:
//
//	*agent.ToolResult - Never nil
func (d *Dispatcher) Execute(ctx context.Context, actionName string, entities map[string]any) *agent.ToolResult {
	if actionName == "" {
		return &agent.ToolResult{Kind: agent.ResultNoop, Message: "No action requested."}
	}

	invocationID := uuid.NewString()
	logger := d.logger.With("tool", actionName, "invocation_id", invocationID)

	tool, ok := d.registry.Get(actionName)
	if !ok {
		logger.Warn("Tool not found")
		return &agent.ToolResult{
			Kind:       agent.ResultValidationError,
			ActionName: actionName,
			Message:    fmt.Sprintf("Validation Error: Tool '%s' not found in registry", actionName),
		}
	}

	desc := tool.Descriptor()
	params, dropped, err := d.prepareParams(desc, d.normalizer.Normalize(entities))
	if err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		return parameterError(actionName, err)
	}
	if len(dropped) > 0 {
		logger.Debug("Dropped undeclared parameters", "params", dropped)
	}

	timeout := d.options.DefaultTimeout
	if desc.Timeout > 0 {
		timeout = desc.Timeout
	}

	start := time.Now()
	out, err := d.invoke(ctx, tool, params, timeout)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, ErrInvalidParams) {
			logger.Warn("Tool rejected parameters", "error", err, "duration", duration)
			return parameterError(actionName, err)
		}
		logger.Error("Tool execution failed", "error", err, "duration", duration)
		return &agent.ToolResult{
			Kind:       agent.ResultExecutionError,
			ActionName: actionName,
			Message:    fmt.Sprintf("Execution Error: Tool '%s' failed. %s", actionName, err.Error()),
		}
	}

	logger.Debug("Tool executed", "duration", duration)
	return &agent.ToolResult{
		Kind:       agent.ResultSuccess,
		ActionName: actionName,
		Message:    fmt.Sprintf("Tool '%s' completed.", actionName),
		Output:     out,
	}
}

func parameterError(actionName string, err error) *agent.ToolResult {
	return &agent.ToolResult{
		Kind:       agent.ResultParameterError,
		ActionName: actionName,
		Message:    fmt.Sprintf("Parameter Error: Tool '%s' received invalid parameters. %s", actionName, err.Error()),
	}
}

// invoke calls the tool with a deadline and converts panics into errors.
func (d *Dispatcher) invoke(ctx context.Context, tool Tool, params map[string]any, timeout time.Duration) (out any, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out, err = tool.Invoke(ctx, params)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return out, err
}

// prepareParams validates params against the descriptor. Keys the action
// does not declare are dropped and returned sorted, since the analyzer
// extracts every entity it sees in the message. Tools without a schema
// receive params unchanged.
func (d *Dispatcher) prepareParams(desc ActionDescriptor, params map[string]any) (map[string]any, []string, error) {
	if len(desc.Parameters) == 0 {
		return params, nil, nil
	}

	out := make(map[string]any, len(desc.Parameters))
	for name, def := range desc.Parameters {
		value, present := params[name]
		if !present || value == nil {
			if def.Required {
				return nil, nil, &ParamError{Parameter: name, Message: "required parameter missing"}
			}
			continue
		}
		coerced, err := validateParam(name, value, def)
		if err != nil {
			return nil, nil, err
		}
		out[name] = coerced
	}

	var dropped []string
	for name := range params {
		if _, declared := desc.Parameters[name]; !declared {
			dropped = append(dropped, name)
		}
	}
	slices.Sort(dropped)
	return out, dropped, nil
}

// validateParam checks a single value and coerces JSON numbers for
// integer parameters.
func validateParam(name string, value any, def ParamDef) (any, error) {
	switch def.Type {
	case ParamTypeString:
		str, ok := value.(string)
		if !ok {
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "string", Actual: fmt.Sprintf("%T", value)}
		}
		if len(def.Enum) > 0 && !slices.Contains(def.Enum, str) {
			return nil, &ParamError{Parameter: name, Message: fmt.Sprintf("value %q not allowed", str), Expected: fmt.Sprintf("one of %v", def.Enum)}
		}
		return str, nil

	case ParamTypeInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, &ParamError{Parameter: name, Message: "not a whole number", Expected: "integer", Actual: fmt.Sprintf("%v", v)}
			}
			return int(v), nil
		default:
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "integer", Actual: fmt.Sprintf("%T", value)}
		}

	case ParamTypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "number", Actual: fmt.Sprintf("%T", value)}
		}

	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "boolean", Actual: fmt.Sprintf("%T", value)}
		}
		return value, nil

	case ParamTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "object", Actual: fmt.Sprintf("%T", value)}
		}
		return value, nil

	case ParamTypeArray:
		if _, ok := value.([]any); !ok {
			return nil, &ParamError{Parameter: name, Message: "wrong type", Expected: "array", Actual: fmt.Sprintf("%T", value)}
		}
		return value, nil
	}
	return value, nil
}
