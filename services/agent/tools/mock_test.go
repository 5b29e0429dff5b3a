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
	"sync"
	"sync/atomic"
)

// MockTool is a configurable Tool for tests.
type MockTool struct {
	descriptor  ActionDescriptor
	ExecuteFunc func(ctx context.Context, params map[string]any) (any, error)

	calls atomic.Int32
	mu    sync.Mutex
	last  map[string]any
}

// NewMockTool creates a mock tool that returns "ok".
func NewMockTool(name string) *MockTool {
	return &MockTool{descriptor: ActionDescriptor{Name: name, Description: "mock " + name}}
}

func (m *MockTool) Descriptor() ActionDescriptor { return m.descriptor }

func (m *MockTool) Invoke(ctx context.Context, params map[string]any) (any, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = params
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, params)
	}
	return "ok", nil
}

// Calls returns the number of invocations.
func (m *MockTool) Calls() int { return int(m.calls.Load()) }

// LastParams returns the parameters of the most recent invocation.
func (m *MockTool) LastParams() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
