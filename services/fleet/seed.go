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
	"database/sql"
	"fmt"
)

// SeedSummary counts the records written by Seed.
type SeedSummary struct {
	Stops       int `json:"stops"`
	Paths       int `json:"paths"`
	Routes      int `json:"routes"`
	Vehicles    int `json:"vehicles"`
	Drivers     int `json:"drivers"`
	Trips       int `json:"trips"`
	Deployments int `json:"deployments"`
}

type seedStop struct {
	name     string
	lat, lng float64
}

var seedStops = []seedStop{
	{"Downtown Station", 12.9716, 77.5946},
	{"City Center", 12.9352, 77.6245},
	{"Tech Park", 12.9141, 77.6412},
	{"Airport Terminal", 13.1986, 77.7066},
	{"University Campus", 12.9352, 77.5665},
	{"Shopping Mall", 12.9716, 77.6098},
}

var seedVehicles = []Vehicle{
	{LicensePlate: "KA-01-AB-1234", Type: "bus", Capacity: 50, Status: "active"},
	{LicensePlate: "KA-01-CD-5678", Type: "bus", Capacity: 40, Status: "active"},
	{LicensePlate: "KA-01-EF-9012", Type: "bus", Capacity: 35, Status: "active"},
	{LicensePlate: "KA-01-GH-3456", Type: "cab", Capacity: 4, Status: "active"},
	{LicensePlate: "KA-01-IJ-7890", Type: "cab", Capacity: 4, Status: "active"},
}

var seedDrivers = []Driver{
	{Name: "Rajesh Kumar", PhoneNumber: "+91-9876543210"},
	{Name: "Suresh Reddy", PhoneNumber: "+91-9876543211"},
	{Name: "Priya Sharma", PhoneNumber: "+91-9876543212"},
	{Name: "Amit Patel", PhoneNumber: "+91-9876543213"},
	{Name: "Kavita Singh", PhoneNumber: "+91-9876543214"},
}

var seedTrips = []Trip{
	{DisplayName: "Morning Express", BookingPercentage: 75.5, LiveStatus: "scheduled"},
	{DisplayName: "Afternoon Service", BookingPercentage: 45.0, LiveStatus: "in_progress"},
	{DisplayName: "Evening Commute", BookingPercentage: 90.0, LiveStatus: "scheduled"},
	{DisplayName: "Night Service", BookingPercentage: 30.0, LiveStatus: "scheduled"},
}

// Seed replaces all fleet data with the demo data set.
//
// Description:
//
//	Six stops, one path over the first four, the route "Downtown to
//	Airport Express", five vehicles, five drivers and four trips. The
//	first three trips are deployed with the matching vehicle and driver;
//	"Night Service" is left unassigned.
//
// Inputs:
//
//	ctx - Context for the transaction
//
// Outputs:
//
//	SeedSummary - Record counts
//	error - Non-nil if any insert fails; the database is left unchanged
func (d *DB) Seed(ctx context.Context) (SeedSummary, error) {
	var sum SeedSummary
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"deployments", "daily_trips", "routes", "path_stops", "paths", "stops", "drivers", "vehicles"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		stopIDs := make([]int64, 0, len(seedStops))
		for _, s := range seedStops {
			id, err := insert(ctx, tx, `INSERT INTO stops (name, latitude, longitude) VALUES (?, ?, ?)`, s.name, s.lat, s.lng)
			if err != nil {
				return fmt.Errorf("insert stop %s: %w", s.name, err)
			}
			stopIDs = append(stopIDs, id)
		}
		sum.Stops = len(stopIDs)

		pathID, err := insert(ctx, tx, `INSERT INTO paths (path_name) VALUES (?)`, "Main Route Path")
		if err != nil {
			return fmt.Errorf("insert path: %w", err)
		}
		sum.Paths = 1
		for i, stopID := range stopIDs[:4] {
			if _, err := tx.ExecContext(ctx, `INSERT INTO path_stops (path_id, stop_id, stop_order) VALUES (?, ?, ?)`, pathID, stopID, i+1); err != nil {
				return fmt.Errorf("insert path stop: %w", err)
			}
		}

		routeID, err := insert(ctx, tx, `INSERT INTO routes
			(path_id, route_display_name, shift_time, direction, start_point, end_point, status, capacity, allocated_waitlist)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pathID, "Downtown to Airport Express", "08:00", "North", "Downtown Station", "Airport Terminal", RouteActive, 50, 5)
		if err != nil {
			return fmt.Errorf("insert route: %w", err)
		}
		sum.Routes = 1

		vehicleIDs := make([]int64, 0, len(seedVehicles))
		for _, v := range seedVehicles {
			id, err := insert(ctx, tx, `INSERT INTO vehicles (license_plate, type, capacity, status) VALUES (?, ?, ?, ?)`,
				v.LicensePlate, v.Type, v.Capacity, v.Status)
			if err != nil {
				return fmt.Errorf("insert vehicle %s: %w", v.LicensePlate, err)
			}
			vehicleIDs = append(vehicleIDs, id)
		}
		sum.Vehicles = len(vehicleIDs)

		driverIDs := make([]int64, 0, len(seedDrivers))
		for _, dr := range seedDrivers {
			id, err := insert(ctx, tx, `INSERT INTO drivers (name, phone_number) VALUES (?, ?)`, dr.Name, dr.PhoneNumber)
			if err != nil {
				return fmt.Errorf("insert driver %s: %w", dr.Name, err)
			}
			driverIDs = append(driverIDs, id)
		}
		sum.Drivers = len(driverIDs)

		tripIDs := make([]int64, 0, len(seedTrips))
		for _, t := range seedTrips {
			id, err := insert(ctx, tx, `INSERT INTO daily_trips (route_id, display_name, booking_status_percentage, live_status) VALUES (?, ?, ?, ?)`,
				routeID, t.DisplayName, t.BookingPercentage, t.LiveStatus)
			if err != nil {
				return fmt.Errorf("insert trip %s: %w", t.DisplayName, err)
			}
			tripIDs = append(tripIDs, id)
		}
		sum.Trips = len(tripIDs)

		for i := 0; i < 3; i++ {
			if _, err := tx.ExecContext(ctx, `INSERT INTO deployments (trip_id, vehicle_id, driver_id) VALUES (?, ?, ?)`,
				tripIDs[i], vehicleIDs[i], driverIDs[i]); err != nil {
				return fmt.Errorf("insert deployment: %w", err)
			}
			sum.Deployments++
		}
		return nil
	})
	if err != nil {
		return SeedSummary{}, err
	}

	d.logger.Info("Fleet database seeded",
		"stops", sum.Stops, "routes", sum.Routes, "vehicles", sum.Vehicles,
		"drivers", sum.Drivers, "trips", sum.Trips, "deployments", sum.Deployments)
	return sum, nil
}

func insert(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
