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
	"sync"
	"testing"
)

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	t.Run("register single tool", func(t *testing.T) {
		if err := registry.Register(NewMockTool("list_trips")); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		got, ok := registry.Get("list_trips")
		if !ok {
			t.Fatal("expected tool to be registered")
		}
		if got.Descriptor().Name != "list_trips" {
			t.Errorf("expected name list_trips, got %s", got.Descriptor().Name)
		}
	})

	t.Run("register nil tool", func(t *testing.T) {
		count := registry.Count()
		if err := registry.Register(nil); err == nil {
			t.Error("expected error for nil tool")
		}
		if registry.Count() != count {
			t.Error("nil tool should not be registered")
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := registry.Register(NewMockTool("list_trips"))
		if !errors.Is(err, ErrDuplicateTool) {
			t.Errorf("expected ErrDuplicateTool, got %v", err)
		}
	})
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewMockTool("delete_trip"), NewMockTool("assign_vehicle_to_trip"), NewMockTool("list_trips"))

	names := registry.Names()
	want := []string{"assign_vehicle_to_trip", "delete_trip", "list_trips"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestRegistry_ForPage(t *testing.T) {
	registry := NewRegistry()

	dashboard := NewMockTool("list_trips")
	dashboard.descriptor.Pages = []string{"busDashboard"}
	routes := NewMockTool("update_route")
	routes.descriptor.Pages = []string{"manageRoute"}
	everywhere := NewMockTool("get_vehicle_status")

	registry.MustRegister(dashboard, routes, everywhere)

	tests := []struct {
		page string
		want int
	}{
		{"busDashboard", 2},
		{"manageRoute", 2},
		{"unknown", 3},
		{"", 3},
	}
	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			if got := len(registry.ForPage(tt.page)); got != tt.want {
				t.Errorf("ForPage(%q) returned %d tools, want %d", tt.page, got, tt.want)
			}
		})
	}
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(NewMockTool("list_trips"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !registry.Has("list_trips") {
				t.Error("expected tool to be present")
			}
			_ = registry.Descriptors()
		}()
	}
	wg.Wait()
}
