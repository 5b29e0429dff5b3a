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
	"fmt"
	"strings"

	"github.com/AleutianAI/movi/services/agent/safety"
)

// Checkers returns the consequence checkers backed by this database, keyed
// by the names used in the safety rules.
func (d *DB) Checkers() map[string]safety.Checker {
	return map[string]safety.Checker{
		safety.CheckerTrip:              safety.CheckerFunc(d.CheckTrip),
		safety.CheckerRouteDeactivation: safety.CheckerFunc(d.CheckRouteDeactivation),
		safety.CheckerPathDeletion:      safety.CheckerFunc(d.CheckPathDeletion),
	}
}

// CheckTrip reports the bookings and deployment a trip change would affect.
// A trip with no bookings and no vehicle has no consequences. An unknown
// trip is an error so the validator records the lookup as degraded.
func (d *DB) CheckTrip(ctx context.Context, name string) (safety.Consequence, error) {
	t, err := d.TripByName(ctx, name)
	if err != nil {
		return safety.Consequence{}, err
	}

	var parts []string
	if t.BookingPercentage > 0 {
		parts = append(parts, fmt.Sprintf("Trip '%s' is %.1f%% booked; those passengers will be affected.", t.DisplayName, t.BookingPercentage))
	}
	if t.Deployed() {
		who := "vehicle " + t.VehiclePlate
		if t.DriverName != "" {
			who += " with driver " + t.DriverName
		}
		parts = append(parts, fmt.Sprintf("It currently has %s assigned.", who))
	}
	if t.LiveStatus == "in_progress" {
		parts = append(parts, "The trip is in progress right now.")
	}
	if len(parts) == 0 {
		return safety.Consequence{}, nil
	}
	return safety.Consequence{HasConsequences: true, Details: strings.Join(parts, " ")}, nil
}

// CheckRouteDeactivation reports the trips that run on a route.
func (d *DB) CheckRouteDeactivation(ctx context.Context, name string) (safety.Consequence, error) {
	impact, err := d.RouteImpact(ctx, name)
	if err != nil {
		return safety.Consequence{}, err
	}
	if impact.Trips == 0 {
		return safety.Consequence{}, nil
	}
	details := fmt.Sprintf("Route '%s' has %d scheduled trip(s), %d with bookings and %d with a vehicle deployed. Those trips will be affected.",
		impact.Route.DisplayName, impact.Trips, impact.BookedTrips, impact.DeployedTrip)
	return safety.Consequence{HasConsequences: true, Details: details}, nil
}

// CheckPathDeletion reports the routes that use a path.
func (d *DB) CheckPathDeletion(ctx context.Context, name string) (safety.Consequence, error) {
	impact, err := d.PathImpact(ctx, name)
	if err != nil {
		return safety.Consequence{}, err
	}
	if len(impact.Routes) == 0 {
		return safety.Consequence{}, nil
	}
	details := fmt.Sprintf("Path '%s' is used by %d route(s): %s. They will be left without a path.",
		impact.Path.Name, len(impact.Routes), strings.Join(impact.Routes, ", "))
	return safety.Consequence{HasConsequences: true, Details: details}, nil
}
