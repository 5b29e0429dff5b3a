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
	"errors"
	"fmt"
	"strings"
)

// Route statuses.
const (
	RouteActive      = "active"
	RouteDeactivated = "deactivated"
)

// Stop is a pickup or drop point.
type Stop struct {
	ID        int64   `json:"stop_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Path is an ordered list of stops.
type Path struct {
	ID         int64    `json:"path_id"`
	Name       string   `json:"path_name"`
	Stops      []string `json:"stops"`
	RouteCount int      `json:"route_count"`
}

// Route is a scheduled service over a path.
type Route struct {
	ID                int64  `json:"route_id"`
	DisplayName       string `json:"route_display_name"`
	PathName          string `json:"path_name,omitempty"`
	ShiftTime         string `json:"shift_time"`
	Direction         string `json:"direction"`
	StartPoint        string `json:"start_point"`
	EndPoint          string `json:"end_point"`
	Status            string `json:"status"`
	Capacity          int    `json:"capacity"`
	AllocatedWaitlist int    `json:"allocated_waitlist"`
	TripCount         int    `json:"trip_count"`
}

// Vehicle is a bus or cab.
type Vehicle struct {
	ID           int64  `json:"vehicle_id"`
	LicensePlate string `json:"license_plate"`
	Type         string `json:"type"`
	Capacity     int    `json:"capacity"`
	Status       string `json:"status"`
	AssignedTrip string `json:"assigned_trip,omitempty"`
}

// Driver is a person who can be deployed on a trip.
type Driver struct {
	ID           int64  `json:"driver_id"`
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	AssignedTrip string `json:"assigned_trip,omitempty"`
}

// Trip is one daily run of a route, with its deployment if any.
type Trip struct {
	ID                int64   `json:"trip_id"`
	DisplayName       string  `json:"display_name"`
	RouteName         string  `json:"route_display_name,omitempty"`
	BookingPercentage float64 `json:"booking_status_percentage"`
	LiveStatus        string  `json:"live_status"`
	VehiclePlate      string  `json:"vehicle_license_plate,omitempty"`
	DriverName        string  `json:"driver_name,omitempty"`
}

// Deployed reports whether a vehicle is assigned to the trip.
func (t Trip) Deployed() bool {
	return t.VehiclePlate != ""
}

// TripUpdate lists the trip fields to change. Nil fields are left alone.
type TripUpdate struct {
	DisplayName       *string
	LiveStatus        *string
	BookingPercentage *float64
}

// RouteUpdate lists the route fields to change. Nil fields are left alone.
type RouteUpdate struct {
	DisplayName *string
	ShiftTime   *string
	Direction   *string
	Capacity    *int
}

// RouteImpact summarizes the trips that run on a route.
type RouteImpact struct {
	Route        Route
	Trips        int
	BookedTrips  int
	DeployedTrip int
}

// PathImpact summarizes the routes that use a path.
type PathImpact struct {
	Path   Path
	Routes []string
}

const tripSelect = `
SELECT t.trip_id, t.display_name, COALESCE(r.route_display_name, ''),
       t.booking_status_percentage, t.live_status,
       COALESCE(v.license_plate, ''), COALESCE(dr.name, '')
FROM daily_trips t
LEFT JOIN routes r ON r.route_id = t.route_id
LEFT JOIN deployments d ON d.trip_id = t.trip_id
LEFT JOIN vehicles v ON v.vehicle_id = d.vehicle_id
LEFT JOIN drivers dr ON dr.driver_id = d.driver_id`

func scanTrip(row interface{ Scan(...any) error }) (Trip, error) {
	var t Trip
	err := row.Scan(&t.ID, &t.DisplayName, &t.RouteName, &t.BookingPercentage, &t.LiveStatus, &t.VehiclePlate, &t.DriverName)
	return t, err
}

// ListTrips returns all daily trips ordered by id.
func (d *DB) ListTrips(ctx context.Context) ([]Trip, error) {
	rows, err := d.sql.QueryContext(ctx, tripSelect+` ORDER BY t.trip_id`)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var out []Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TripByName looks up a trip by display name, ignoring case.
func (d *DB) TripByName(ctx context.Context, name string) (Trip, error) {
	t, err := scanTrip(d.sql.QueryRowContext(ctx, tripSelect+` WHERE lower(t.display_name) = lower(?)`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return Trip{}, fmt.Errorf("%w: trip %q", ErrNotFound, name)
	}
	if err != nil {
		return Trip{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

const vehicleSelect = `
SELECT v.vehicle_id, v.license_plate, v.type, v.capacity, v.status, COALESCE(t.display_name, '')
FROM vehicles v
LEFT JOIN deployments d ON d.vehicle_id = v.vehicle_id
LEFT JOIN daily_trips t ON t.trip_id = d.trip_id`

func (d *DB) queryVehicles(ctx context.Context, query string, args ...any) ([]Vehicle, error) {
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.LicensePlate, &v.Type, &v.Capacity, &v.Status, &v.AssignedTrip); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListVehicles returns all vehicles with their current trip.
func (d *DB) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	return d.queryVehicles(ctx, vehicleSelect+` ORDER BY v.vehicle_id`)
}

// UnassignedVehicles returns vehicles not deployed on any trip.
func (d *DB) UnassignedVehicles(ctx context.Context) ([]Vehicle, error) {
	return d.queryVehicles(ctx, vehicleSelect+` WHERE d.deployment_id IS NULL ORDER BY v.vehicle_id`)
}

// VehicleByPlate looks up a vehicle by license plate, ignoring case.
func (d *DB) VehicleByPlate(ctx context.Context, plate string) (Vehicle, error) {
	vs, err := d.queryVehicles(ctx, vehicleSelect+` WHERE lower(v.license_plate) = lower(?)`, strings.TrimSpace(plate))
	if err != nil {
		return Vehicle{}, err
	}
	if len(vs) == 0 {
		return Vehicle{}, fmt.Errorf("%w: vehicle %q", ErrNotFound, plate)
	}
	return vs[0], nil
}

// ListDrivers returns all drivers with their current trip.
func (d *DB) ListDrivers(ctx context.Context) ([]Driver, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT dr.driver_id, dr.name, dr.phone_number, COALESCE(t.display_name, '')
		FROM drivers dr
		LEFT JOIN deployments d ON d.driver_id = dr.driver_id
		LEFT JOIN daily_trips t ON t.trip_id = d.trip_id
		ORDER BY dr.driver_id`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var dr Driver
		if err := rows.Scan(&dr.ID, &dr.Name, &dr.PhoneNumber, &dr.AssignedTrip); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

const routeSelect = `
SELECT r.route_id, r.route_display_name, COALESCE(p.path_name, ''), r.shift_time, r.direction,
       r.start_point, r.end_point, r.status, r.capacity, r.allocated_waitlist,
       (SELECT COUNT(*) FROM daily_trips t WHERE t.route_id = r.route_id)
FROM routes r
LEFT JOIN paths p ON p.path_id = r.path_id`

func scanRoute(row interface{ Scan(...any) error }) (Route, error) {
	var r Route
	err := row.Scan(&r.ID, &r.DisplayName, &r.PathName, &r.ShiftTime, &r.Direction,
		&r.StartPoint, &r.EndPoint, &r.Status, &r.Capacity, &r.AllocatedWaitlist, &r.TripCount)
	return r, err
}

// ListRoutes returns all routes.
func (d *DB) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := d.sql.QueryContext(ctx, routeSelect+` ORDER BY r.route_id`)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RouteByName looks up a route by display name, ignoring case.
func (d *DB) RouteByName(ctx context.Context, name string) (Route, error) {
	r, err := scanRoute(d.sql.QueryRowContext(ctx, routeSelect+` WHERE lower(r.route_display_name) = lower(?)`, strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, fmt.Errorf("%w: route %q", ErrNotFound, name)
	}
	if err != nil {
		return Route{}, fmt.Errorf("get route: %w", err)
	}
	return r, nil
}

// ListStops returns all stops ordered by name.
func (d *DB) ListStops(ctx context.Context) ([]Stop, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT stop_id, name, latitude, longitude FROM stops ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	defer rows.Close()

	var out []Stop
	for rows.Next() {
		var s Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListPaths returns all paths with their ordered stops.
func (d *DB) ListPaths(ctx context.Context) ([]Path, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT p.path_id, p.path_name,
		       (SELECT COUNT(*) FROM routes r WHERE r.path_id = p.path_id)
		FROM paths p ORDER BY p.path_id`)
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	var out []Path
	for rows.Next() {
		var p Path
		if err := rows.Scan(&p.ID, &p.Name, &p.RouteCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		stops, err := d.pathStops(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Stops = stops
	}
	return out, nil
}

func (d *DB) pathStops(ctx context.Context, pathID int64) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT s.name FROM path_stops ps JOIN stops s ON s.stop_id = ps.stop_id
		WHERE ps.path_id = ? ORDER BY ps.stop_order`, pathID)
	if err != nil {
		return nil, fmt.Errorf("list path stops: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan path stop: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// PathImpact returns the routes that use a path.
func (d *DB) PathImpact(ctx context.Context, name string) (PathImpact, error) {
	var p Path
	err := d.sql.QueryRowContext(ctx, `SELECT path_id, path_name FROM paths WHERE lower(path_name) = lower(?)`,
		strings.TrimSpace(name)).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return PathImpact{}, fmt.Errorf("%w: path %q", ErrNotFound, name)
	}
	if err != nil {
		return PathImpact{}, fmt.Errorf("get path: %w", err)
	}

	rows, err := d.sql.QueryContext(ctx, `SELECT route_display_name FROM routes WHERE path_id = ? ORDER BY route_id`, p.ID)
	if err != nil {
		return PathImpact{}, fmt.Errorf("list path routes: %w", err)
	}
	defer rows.Close()

	impact := PathImpact{Path: p}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return PathImpact{}, fmt.Errorf("scan route: %w", err)
		}
		impact.Routes = append(impact.Routes, r)
	}
	impact.Path.RouteCount = len(impact.Routes)
	return impact, rows.Err()
}

// RouteImpact returns the trips that run on a route.
func (d *DB) RouteImpact(ctx context.Context, name string) (RouteImpact, error) {
	r, err := d.RouteByName(ctx, name)
	if err != nil {
		return RouteImpact{}, err
	}
	impact := RouteImpact{Route: r}
	err = d.sql.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN t.booking_status_percentage > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN d.deployment_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM daily_trips t LEFT JOIN deployments d ON d.trip_id = t.trip_id
		WHERE t.route_id = ?`, r.ID).Scan(&impact.Trips, &impact.BookedTrips, &impact.DeployedTrip)
	if err != nil {
		return RouteImpact{}, fmt.Errorf("count route trips: %w", err)
	}
	return impact, nil
}

// AssignVehicle deploys a vehicle, and optionally a driver, on a trip.
//
// Description:
//
//	A trip holds at most one deployment and a vehicle serves at most one
//	trip. Assigning to a trip that already has a deployment replaces the
//	vehicle and driver. Assigning a vehicle that serves another trip
//	returns ErrConflict.
//
// Inputs:
//
//	ctx - Context for the transaction
//	tripName - Trip display name
//	plate - Vehicle license plate
//	driverName - Optional driver name
//
// Outputs:
//
//	Trip - The trip after the assignment
//	error - ErrNotFound or ErrConflict, wrapped
func (d *DB) AssignVehicle(ctx context.Context, tripName, plate, driverName string) (Trip, error) {
	trip, err := d.TripByName(ctx, tripName)
	if err != nil {
		return Trip{}, err
	}
	vehicle, err := d.VehicleByPlate(ctx, plate)
	if err != nil {
		return Trip{}, err
	}
	if vehicle.AssignedTrip != "" && !strings.EqualFold(vehicle.AssignedTrip, trip.DisplayName) {
		return Trip{}, fmt.Errorf("%w: vehicle %s is already assigned to %s", ErrConflict, vehicle.LicensePlate, vehicle.AssignedTrip)
	}

	var driverID sql.NullInt64
	if strings.TrimSpace(driverName) != "" {
		err := d.sql.QueryRowContext(ctx, `SELECT driver_id FROM drivers WHERE lower(name) = lower(?)`,
			strings.TrimSpace(driverName)).Scan(&driverID)
		if errors.Is(err, sql.ErrNoRows) {
			return Trip{}, fmt.Errorf("%w: driver %q", ErrNotFound, driverName)
		}
		if err != nil {
			return Trip{}, fmt.Errorf("get driver: %w", err)
		}
	}

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deployments (trip_id, vehicle_id, driver_id) VALUES (?, ?, ?)
			ON CONFLICT(trip_id) DO UPDATE SET vehicle_id = excluded.vehicle_id, driver_id = excluded.driver_id`,
			trip.ID, vehicle.ID, driverID)
		return err
	})
	if err != nil {
		return Trip{}, fmt.Errorf("assign vehicle: %w", err)
	}
	return d.TripByName(ctx, trip.DisplayName)
}

// DeleteDeployment removes the vehicle and driver assignment of a trip.
func (d *DB) DeleteDeployment(ctx context.Context, tripName string) (Trip, error) {
	trip, err := d.TripByName(ctx, tripName)
	if err != nil {
		return Trip{}, err
	}
	if !trip.Deployed() {
		return Trip{}, fmt.Errorf("%w: trip %s has no vehicle assigned", ErrNotFound, trip.DisplayName)
	}
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM deployments WHERE trip_id = ?`, trip.ID); err != nil {
		return Trip{}, fmt.Errorf("delete deployment: %w", err)
	}
	return trip, nil
}

// UpdateTrip changes trip fields and returns the updated trip.
func (d *DB) UpdateTrip(ctx context.Context, tripName string, u TripUpdate) (Trip, error) {
	trip, err := d.TripByName(ctx, tripName)
	if err != nil {
		return Trip{}, err
	}

	var sets []string
	var args []any
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) != "" {
		sets = append(sets, "display_name = ?")
		args = append(args, strings.TrimSpace(*u.DisplayName))
	}
	if u.LiveStatus != nil && strings.TrimSpace(*u.LiveStatus) != "" {
		sets = append(sets, "live_status = ?")
		args = append(args, strings.TrimSpace(*u.LiveStatus))
	}
	if u.BookingPercentage != nil {
		if *u.BookingPercentage < 0 || *u.BookingPercentage > 100 {
			return Trip{}, fmt.Errorf("booking percentage %.1f out of range 0-100", *u.BookingPercentage)
		}
		sets = append(sets, "booking_status_percentage = ?")
		args = append(args, *u.BookingPercentage)
	}
	if len(sets) == 0 {
		return trip, nil
	}

	args = append(args, trip.ID)
	if _, err := d.sql.ExecContext(ctx, `UPDATE daily_trips SET `+strings.Join(sets, ", ")+` WHERE trip_id = ?`, args...); err != nil {
		if isUniqueViolation(err) {
			return Trip{}, fmt.Errorf("%w: trip name already in use", ErrConflict)
		}
		return Trip{}, fmt.Errorf("update trip: %w", err)
	}

	var updated Trip
	updated, err = scanTrip(d.sql.QueryRowContext(ctx, tripSelect+` WHERE t.trip_id = ?`, trip.ID))
	if err != nil {
		return Trip{}, fmt.Errorf("reload trip: %w", err)
	}
	return updated, nil
}

// DeleteTrip removes a trip and its deployment.
func (d *DB) DeleteTrip(ctx context.Context, tripName string) (Trip, error) {
	trip, err := d.TripByName(ctx, tripName)
	if err != nil {
		return Trip{}, err
	}
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM deployments WHERE trip_id = ?`, trip.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM daily_trips WHERE trip_id = ?`, trip.ID)
		return err
	})
	if err != nil {
		return Trip{}, fmt.Errorf("delete trip: %w", err)
	}
	return trip, nil
}

// UpdateRouteStatus activates or deactivates a route.
func (d *DB) UpdateRouteStatus(ctx context.Context, routeName, status string) (Route, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "inactive" {
		status = RouteDeactivated
	}
	if status != RouteActive && status != RouteDeactivated {
		return Route{}, fmt.Errorf("unknown route status %q", status)
	}
	r, err := d.RouteByName(ctx, routeName)
	if err != nil {
		return Route{}, err
	}
	if _, err := d.sql.ExecContext(ctx, `UPDATE routes SET status = ? WHERE route_id = ?`, status, r.ID); err != nil {
		return Route{}, fmt.Errorf("update route status: %w", err)
	}
	r.Status = status
	return r, nil
}

// UpdateRoute changes route fields and returns the updated route.
func (d *DB) UpdateRoute(ctx context.Context, routeName string, u RouteUpdate) (Route, error) {
	r, err := d.RouteByName(ctx, routeName)
	if err != nil {
		return Route{}, err
	}

	var sets []string
	var args []any
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) != "" {
		sets = append(sets, "route_display_name = ?")
		args = append(args, strings.TrimSpace(*u.DisplayName))
	}
	if u.ShiftTime != nil && strings.TrimSpace(*u.ShiftTime) != "" {
		sets = append(sets, "shift_time = ?")
		args = append(args, strings.TrimSpace(*u.ShiftTime))
	}
	if u.Direction != nil && strings.TrimSpace(*u.Direction) != "" {
		sets = append(sets, "direction = ?")
		args = append(args, strings.TrimSpace(*u.Direction))
	}
	if u.Capacity != nil {
		if *u.Capacity < 0 {
			return Route{}, fmt.Errorf("capacity %d must not be negative", *u.Capacity)
		}
		sets = append(sets, "capacity = ?")
		args = append(args, *u.Capacity)
	}
	if len(sets) == 0 {
		return r, nil
	}

	args = append(args, r.ID)
	if _, err := d.sql.ExecContext(ctx, `UPDATE routes SET `+strings.Join(sets, ", ")+` WHERE route_id = ?`, args...); err != nil {
		if isUniqueViolation(err) {
			return Route{}, fmt.Errorf("%w: route name already in use", ErrConflict)
		}
		return Route{}, fmt.Errorf("update route: %w", err)
	}
	updated, err := scanRoute(d.sql.QueryRowContext(ctx, routeSelect+` WHERE r.route_id = ?`, r.ID))
	if err != nil {
		return Route{}, fmt.Errorf("reload route: %w", err)
	}
	return updated, nil
}

// DeletePath removes a path. Routes that used it keep running without one.
func (d *DB) DeletePath(ctx context.Context, name string) (PathImpact, error) {
	impact, err := d.PathImpact(ctx, name)
	if err != nil {
		return PathImpact{}, err
	}
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE routes SET path_id = NULL WHERE path_id = ?`, impact.Path.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM path_stops WHERE path_id = ?`, impact.Path.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM paths WHERE path_id = ?`, impact.Path.ID)
		return err
	})
	if err != nil {
		return PathImpact{}, fmt.Errorf("delete path: %w", err)
	}
	return impact, nil
}

// CreateStop adds a stop.
func (d *DB) CreateStop(ctx context.Context, name string, lat, lng float64) (Stop, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Stop{}, errors.New("stop name must not be empty")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Stop{}, fmt.Errorf("coordinates (%f, %f) out of range", lat, lng)
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO stops (name, latitude, longitude) VALUES (?, ?, ?)`, name, lat, lng)
	if err != nil {
		if isUniqueViolation(err) {
			return Stop{}, fmt.Errorf("%w: stop %q already exists", ErrConflict, name)
		}
		return Stop{}, fmt.Errorf("create stop: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Stop{}, fmt.Errorf("create stop: %w", err)
	}
	return Stop{ID: id, Name: name, Latitude: lat, Longitude: lng}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
