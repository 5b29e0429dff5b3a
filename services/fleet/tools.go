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

	"github.com/AleutianAI/movi/services/agent/tools"
)

// UI pages the tools are offered on.
const (
	PageBusDashboard = "busDashboard"
	PageManageRoute  = "manageRoute"
)

var (
	tripParam  = tools.ParamDef{Type: tools.ParamTypeString, Required: true, Description: "Trip display name, e.g. Morning Express"}
	routeParam = tools.ParamDef{Type: tools.ParamTypeString, Required: true, Description: "Route display name"}
	pathParam  = tools.ParamDef{Type: tools.ParamTypeString, Required: true, Description: "Path name"}
	plateParam = tools.ParamDef{Type: tools.ParamTypeString, Required: true, Description: "Vehicle license plate, e.g. KA-01-AB-1234"}
)

// Tools returns every fleet action backed by this database.
func (d *DB) Tools() []tools.Tool {
	dashboard := []string{PageBusDashboard}
	routes := []string{PageManageRoute}

	return []tools.Tool{
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_trips",
			Description: "List all daily trips with booking percentage, status and assigned vehicle",
			Pages:       dashboard,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListTrips(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "get_trip_details",
			Description: "Get the details of one trip",
			Parameters:  map[string]tools.ParamDef{"trip_display_name": tripParam},
			Pages:       dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			return d.TripByName(ctx, str(p, "trip_display_name"))
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "get_vehicle_status",
			Description: "Get the status and current trip of a vehicle",
			Parameters:  map[string]tools.ParamDef{"license_plate": plateParam},
			Pages:       dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			return d.VehicleByPlate(ctx, str(p, "license_plate"))
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_vehicles",
			Description: "List all vehicles and the trip each serves",
			Pages:       dashboard,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListVehicles(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_unassigned_vehicles",
			Description: "List vehicles not deployed on any trip",
			Pages:       dashboard,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.UnassignedVehicles(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_drivers",
			Description: "List all drivers and their current trip",
			Pages:       dashboard,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListDrivers(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "assign_vehicle_to_trip",
			Description: "Deploy a vehicle, and optionally a driver, on a trip",
			Parameters: map[string]tools.ParamDef{
				"trip_display_name": tripParam,
				"license_plate":     plateParam,
				"driver_name":       {Type: tools.ParamTypeString, Description: "Driver name"},
			},
			Pages: dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			t, err := d.AssignVehicle(ctx, str(p, "trip_display_name"), str(p, "license_plate"), str(p, "driver_name"))
			if err != nil {
				return nil, err
			}
			msg := fmt.Sprintf("Vehicle %s assigned to trip '%s'.", t.VehiclePlate, t.DisplayName)
			if t.DriverName != "" {
				msg = fmt.Sprintf("Vehicle %s with driver %s assigned to trip '%s'.", t.VehiclePlate, t.DriverName, t.DisplayName)
			}
			return msg, nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "remove_vehicle_from_trip",
			Description: "Remove the assigned vehicle and driver from a trip",
			Parameters:  map[string]tools.ParamDef{"trip_display_name": tripParam},
			HighImpact:  true,
			Pages:       dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			t, err := d.DeleteDeployment(ctx, str(p, "trip_display_name"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Vehicle %s removed from trip '%s'.", t.VehiclePlate, t.DisplayName), nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "delete_deployment",
			Description: "Delete the deployment record of a trip",
			Parameters:  map[string]tools.ParamDef{"trip_display_name": tripParam},
			HighImpact:  true,
			Pages:       dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			t, err := d.DeleteDeployment(ctx, str(p, "trip_display_name"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Deployment for trip '%s' deleted.", t.DisplayName), nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "update_trip",
			Description: "Rename a trip or change its live status or booking percentage",
			Parameters: map[string]tools.ParamDef{
				"trip_display_name":         tripParam,
				"new_display_name":          {Type: tools.ParamTypeString, Description: "New trip name"},
				"live_status":               {Type: tools.ParamTypeString, Enum: []string{"scheduled", "in_progress", "completed", "cancelled"}},
				"booking_status_percentage": {Type: tools.ParamTypeFloat, Description: "0-100"},
			},
			HighImpact: true,
			Pages:      dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			t, err := d.UpdateTrip(ctx, str(p, "trip_display_name"), TripUpdate{
				DisplayName:       optStr(p, "new_display_name"),
				LiveStatus:        optStr(p, "live_status"),
				BookingPercentage: optFloat(p, "booking_status_percentage"),
			})
			if err != nil {
				return nil, err
			}
			return t, nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "delete_trip",
			Description: "Delete a trip and its deployment",
			Parameters:  map[string]tools.ParamDef{"trip_display_name": tripParam},
			HighImpact:  true,
			Pages:       dashboard,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			t, err := d.DeleteTrip(ctx, str(p, "trip_display_name"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Trip '%s' deleted.", t.DisplayName), nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_routes",
			Description: "List all routes with status, shift time and trip count",
			Pages:       routes,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListRoutes(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_stops",
			Description: "List all stops",
			Pages:       routes,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListStops(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "list_paths",
			Description: "List all paths with their ordered stops",
			Pages:       routes,
		}, func(ctx context.Context, _ map[string]any) (any, error) {
			return d.ListPaths(ctx)
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "update_route_status",
			Description: "Activate or deactivate a route",
			Parameters: map[string]tools.ParamDef{
				"route_display_name": routeParam,
				"status":             {Type: tools.ParamTypeString, Required: true, Enum: []string{RouteActive, RouteDeactivated, "inactive"}},
			},
			HighImpact: true,
			Pages:      routes,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			r, err := d.UpdateRouteStatus(ctx, str(p, "route_display_name"), str(p, "status"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Route '%s' is now %s.", r.DisplayName, r.Status), nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "update_route",
			Description: "Rename a route or change its shift time, direction or capacity",
			Parameters: map[string]tools.ParamDef{
				"route_display_name":     routeParam,
				"new_route_display_name": {Type: tools.ParamTypeString},
				"shift_time":             {Type: tools.ParamTypeString, Description: "HH:MM"},
				"direction":              {Type: tools.ParamTypeString},
				"capacity":               {Type: tools.ParamTypeInt},
			},
			HighImpact: true,
			Pages:      routes,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			return d.UpdateRoute(ctx, str(p, "route_display_name"), RouteUpdate{
				DisplayName: optStr(p, "new_route_display_name"),
				ShiftTime:   optStr(p, "shift_time"),
				Direction:   optStr(p, "direction"),
				Capacity:    optInt(p, "capacity"),
			})
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "delete_path",
			Description: "Delete a path",
			Parameters:  map[string]tools.ParamDef{"path_name": pathParam},
			HighImpact:  true,
			Pages:       routes,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			impact, err := d.DeletePath(ctx, str(p, "path_name"))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Path '%s' deleted; %d route(s) no longer have a path.", impact.Path.Name, len(impact.Routes)), nil
		}),
		tools.NewFuncTool(tools.ActionDescriptor{
			Name:        "create_stop",
			Description: "Create a new stop",
			Parameters: map[string]tools.ParamDef{
				"name":      {Type: tools.ParamTypeString, Required: true},
				"latitude":  {Type: tools.ParamTypeFloat, Required: true},
				"longitude": {Type: tools.ParamTypeFloat, Required: true},
			},
			Pages: routes,
		}, func(ctx context.Context, p map[string]any) (any, error) {
			lat, lng := optFloat(p, "latitude"), optFloat(p, "longitude")
			if lat == nil || lng == nil {
				return nil, fmt.Errorf("%w: latitude and longitude are required", tools.ErrInvalidParams)
			}
			s, err := d.CreateStop(ctx, str(p, "name"), *lat, *lng)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Stop '%s' created.", s.Name), nil
		}),
	}
}

// RegisterTools adds every fleet action to a registry.
func (d *DB) RegisterTools(r *tools.Registry) error {
	for _, t := range d.Tools() {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Parameters arrive validated and coerced by the dispatcher, so the
// helpers below only distinguish present from absent.

func str(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func optStr(p map[string]any, key string) *string {
	if s, ok := p[key].(string); ok {
		return &s
	}
	return nil
}

func optFloat(p map[string]any, key string) *float64 {
	if f, ok := p[key].(float64); ok {
		return &f
	}
	return nil
}

func optInt(p map[string]any, key string) *int {
	if n, ok := p[key].(int); ok {
		return &n
	}
	return nil
}
