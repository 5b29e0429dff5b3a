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
	"sort"
	"sync"
)

// Registry maps action names to tools.
//
// Tools are registered once at startup. After that the registry is only
// read, so lookups are shared across sessions.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its descriptor name. Names are unique; a second
//	registration under the same name is rejected.
//
// Inputs:
//
//	tool - The tool to register. Must not be nil.
//
// Outputs:
//
//	error - ErrDuplicateTool if the name is taken.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("register: nil tool")
	}
	name := tool.Descriptor().Name
	if name == "" {
		return fmt.Errorf("register: tool has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.byName[name] = tool
	return nil
}

// MustRegister registers tools and panics on the first error. Intended for
// wiring static tool sets at startup.
func (r *Registry) MustRegister(tools ...Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Descriptors returns all descriptors sorted by name.
func (r *Registry) Descriptors() []ActionDescriptor {
	return r.ForPage("")
}

// ForPage returns the descriptors offered on a UI page, sorted by name.
func (r *Registry) ForPage(page string) []ActionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActionDescriptor, 0, len(r.byName))
	for _, t := range r.byName {
		d := t.Descriptor()
		if d.AvailableOn(page) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
