// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fleet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/agent/safety"
	"github.com/AleutianAI/movi/services/agent/tools"
)

func seededDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Seed(context.Background())
	require.NoError(t, err)
	return db
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open("  ", nil)
	assert.ErrorIs(t, err, ErrEmptyDSN)
}

func TestSeed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fleet.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sum, err := db.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Stops: 6, Paths: 1, Routes: 1, Vehicles: 5, Drivers: 5, Trips: 4, Deployments: 3}, sum)

	// Seeding twice replaces the data.
	sum, err = db.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Trips)

	trips, err := db.ListTrips(ctx)
	require.NoError(t, err)
	require.Len(t, trips, 4)
	assert.Equal(t, "Morning Express", trips[0].DisplayName)
	assert.Equal(t, "KA-01-AB-1234", trips[0].VehiclePlate)
	assert.Equal(t, "Rajesh Kumar", trips[0].DriverName)
	assert.Equal(t, "Downtown to Airport Express", trips[0].RouteName)
	assert.False(t, trips[3].Deployed())
}

func TestQueries(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	trip, err := db.TripByName(ctx, "evening commute")
	require.NoError(t, err)
	assert.Equal(t, "Evening Commute", trip.DisplayName)
	assert.InDelta(t, 90.0, trip.BookingPercentage, 0.001)

	_, err = db.TripByName(ctx, "Midnight Ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	unassigned, err := db.UnassignedVehicles(ctx)
	require.NoError(t, err)
	plates := make([]string, 0, len(unassigned))
	for _, v := range unassigned {
		plates = append(plates, v.LicensePlate)
	}
	assert.Equal(t, []string{"KA-01-GH-3456", "KA-01-IJ-7890"}, plates)

	v, err := db.VehicleByPlate(ctx, "ka-01-cd-5678")
	require.NoError(t, err)
	assert.Equal(t, "Afternoon Service", v.AssignedTrip)

	drivers, err := db.ListDrivers(ctx)
	require.NoError(t, err)
	assert.Len(t, drivers, 5)

	routes, err := db.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, 4, routes[0].TripCount)
	assert.Equal(t, "Main Route Path", routes[0].PathName)

	paths, err := db.ListPaths(ctx)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"Downtown Station", "City Center", "Tech Park", "Airport Terminal"}, paths[0].Stops)
	assert.Equal(t, 1, paths[0].RouteCount)

	stops, err := db.ListStops(ctx)
	require.NoError(t, err)
	assert.Len(t, stops, 6)
}

func TestAssignVehicle(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	_, err := db.AssignVehicle(ctx, "Night Service", "KA-01-AB-1234", "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = db.AssignVehicle(ctx, "Night Service", "KA-01-GH-3456", "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	trip, err := db.AssignVehicle(ctx, "Night Service", "KA-01-GH-3456", "Amit Patel")
	require.NoError(t, err)
	assert.Equal(t, "KA-01-GH-3456", trip.VehiclePlate)
	assert.Equal(t, "Amit Patel", trip.DriverName)

	// Reassigning a deployed trip replaces its vehicle.
	trip, err = db.AssignVehicle(ctx, "Night Service", "KA-01-IJ-7890", "")
	require.NoError(t, err)
	assert.Equal(t, "KA-01-IJ-7890", trip.VehiclePlate)
	assert.Empty(t, trip.DriverName)
}

func TestMutations(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	removed, err := db.DeleteDeployment(ctx, "Morning Express")
	require.NoError(t, err)
	assert.Equal(t, "KA-01-AB-1234", removed.VehiclePlate)
	_, err = db.DeleteDeployment(ctx, "Morning Express")
	assert.ErrorIs(t, err, ErrNotFound)

	name := "Early Express"
	status := "cancelled"
	updated, err := db.UpdateTrip(ctx, "Morning Express", TripUpdate{DisplayName: &name, LiveStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, "Early Express", updated.DisplayName)
	assert.Equal(t, "cancelled", updated.LiveStatus)

	clash := "Night Service"
	_, err = db.UpdateTrip(ctx, "Early Express", TripUpdate{DisplayName: &clash})
	assert.ErrorIs(t, err, ErrConflict)

	bad := 140.0
	_, err = db.UpdateTrip(ctx, "Early Express", TripUpdate{BookingPercentage: &bad})
	assert.Error(t, err)

	_, err = db.DeleteTrip(ctx, "Evening Commute")
	require.NoError(t, err)
	trips, err := db.ListTrips(ctx)
	require.NoError(t, err)
	assert.Len(t, trips, 3)

	r, err := db.UpdateRouteStatus(ctx, "Downtown to Airport Express", "inactive")
	require.NoError(t, err)
	assert.Equal(t, RouteDeactivated, r.Status)
	_, err = db.UpdateRouteStatus(ctx, "Downtown to Airport Express", "paused")
	assert.Error(t, err)

	capacity := 60
	r, err = db.UpdateRoute(ctx, "Downtown to Airport Express", RouteUpdate{Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, 60, r.Capacity)

	impact, err := db.DeletePath(ctx, "main route path")
	require.NoError(t, err)
	assert.Equal(t, []string{"Downtown to Airport Express"}, impact.Routes)
	r, err = db.RouteByName(ctx, "Downtown to Airport Express")
	require.NoError(t, err)
	assert.Empty(t, r.PathName)

	s, err := db.CreateStop(ctx, "Railway Station", 12.97, 77.57)
	require.NoError(t, err)
	assert.NotZero(t, s.ID)
	_, err = db.CreateStop(ctx, "Railway Station", 12.97, 77.57)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = db.CreateStop(ctx, "Nowhere", 120, 0)
	assert.Error(t, err)
}

func TestConsequenceCheckers(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	t.Run("booked and deployed trip", func(t *testing.T) {
		c, err := db.CheckTrip(ctx, "Morning Express")
		require.NoError(t, err)
		assert.True(t, c.HasConsequences)
		assert.Contains(t, c.Details, "75.5% booked")
		assert.Contains(t, c.Details, "KA-01-AB-1234")
		assert.Contains(t, c.Details, "Rajesh Kumar")
	})

	t.Run("in progress trip", func(t *testing.T) {
		c, err := db.CheckTrip(ctx, "Afternoon Service")
		require.NoError(t, err)
		assert.Contains(t, c.Details, "in progress")
	})

	t.Run("empty trip has no consequences", func(t *testing.T) {
		zero := 0.0
		_, err := db.UpdateTrip(ctx, "Night Service", TripUpdate{BookingPercentage: &zero})
		require.NoError(t, err)

		c, err := db.CheckTrip(ctx, "Night Service")
		require.NoError(t, err)
		assert.False(t, c.HasConsequences)
		assert.Empty(t, c.Details)
	})

	t.Run("unknown trip errors", func(t *testing.T) {
		_, err := db.CheckTrip(ctx, "Ghost Run")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("route deactivation", func(t *testing.T) {
		c, err := db.CheckRouteDeactivation(ctx, "Downtown to Airport Express")
		require.NoError(t, err)
		assert.True(t, c.HasConsequences)
		assert.Contains(t, c.Details, "4 scheduled trip(s), 3 with bookings and 3 with a vehicle deployed")
	})

	t.Run("path deletion", func(t *testing.T) {
		c, err := db.CheckPathDeletion(ctx, "Main Route Path")
		require.NoError(t, err)
		assert.True(t, c.HasConsequences)
		assert.Contains(t, c.Details, "Downtown to Airport Express")
	})
}

func TestCheckersBindDefaultPolicy(t *testing.T) {
	db := seededDB(t)

	policy := safety.DefaultPolicy()
	v, err := safety.NewValidator(policy.HighImpact, db.Checkers(), nil)
	require.NoError(t, err)

	state := agent.NewSessionState("s1")
	state.PendingAction = "remove_vehicle_from_trip"
	state.Entities = map[string]any{"trip_name": "Evening Commute"}

	d := v.Validate(context.Background(), state)
	require.True(t, d.Suspend)
	require.NotNil(t, d.Consequences)
	assert.Equal(t, "Evening Commute", d.Consequences.AffectedEntity)
	assert.Contains(t, d.Consequences.Details, "90.0% booked")
}

func TestTools_ThroughDispatcher(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	registry := tools.NewRegistry()
	require.NoError(t, db.RegisterTools(registry))
	assert.Equal(t, 18, registry.Count())
	assert.ErrorIs(t, db.RegisterTools(registry), tools.ErrDuplicateTool)

	dashboard := registry.ForPage(PageBusDashboard)
	for _, d := range dashboard {
		assert.NotContains(t, []string{"list_routes", "delete_path", "create_stop"}, d.Name)
	}

	dispatcher := tools.NewDispatcher(registry, tools.DefaultNormalizer(), nil)

	res := dispatcher.Execute(ctx, "list_trips", nil)
	require.Equal(t, agent.ResultSuccess, res.Kind)
	trips, ok := res.Output.([]Trip)
	require.True(t, ok)
	assert.Len(t, trips, 4)

	res = dispatcher.Execute(ctx, "delete_trip", map[string]any{"trip_name": "Night Service"})
	require.Equal(t, agent.ResultSuccess, res.Kind, res.Message)
	assert.Equal(t, "Trip 'Night Service' deleted.", res.Output)

	res = dispatcher.Execute(ctx, "delete_trip", map[string]any{"trip": "Night Service"})
	assert.Equal(t, agent.ResultExecutionError, res.Kind)

	res = dispatcher.Execute(ctx, "update_route", map[string]any{"route": "Downtown to Airport Express", "capacity": float64(42)})
	require.Equal(t, agent.ResultSuccess, res.Kind, res.Message)
	assert.Equal(t, 42, res.Output.(Route).Capacity)

	res = dispatcher.Execute(ctx, "create_stop", map[string]any{"name": "Lake View", "latitude": "north"})
	assert.Equal(t, agent.ResultParameterError, res.Kind)

	res = dispatcher.Execute(ctx, "create_stop", map[string]any{"name": "Lake View", "latitude": 12.9, "longitude": 77.6})
	assert.Equal(t, agent.ResultSuccess, res.Kind)
}

func TestRepository_NotFoundIsWrapped(t *testing.T) {
	db := seededDB(t)
	_, err := db.RouteImpact(context.Background(), "Nowhere Line")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCheckers_BindEveryPolicyChecker(t *testing.T) {
	db := seededDB(t)
	checkers := db.Checkers()

	for _, rule := range safety.DefaultPolicy().HighImpact {
		if rule.Checker == "" {
			continue
		}
		assert.Contains(t, checkers, rule.Checker, rule.Action)
	}
	assert.Len(t, checkers, 3)
}

func TestRegisterTools_HighImpactToolsHaveRules(t *testing.T) {
	db := seededDB(t)
	registry := tools.NewRegistry()
	require.NoError(t, db.RegisterTools(registry))

	ruled := make(map[string]bool)
	for _, rule := range safety.DefaultPolicy().HighImpact {
		ruled[rule.Action] = true
	}
	for _, desc := range registry.Descriptors() {
		if desc.HighImpact {
			assert.True(t, ruled[desc.Name], "%s is flagged high impact but has no default rule", desc.Name)
		}
	}
}
