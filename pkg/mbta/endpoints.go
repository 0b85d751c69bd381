package mbta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ListStops returns the full stop catalog. Long TTL - stations rarely change.
func (c *Client) ListStops(ctx context.Context) ([]Stop, bool, error) {
	resources, stale, err := c.get(ctx, "/stops", nil, TTLStops)
	if err != nil {
		return nil, false, err
	}

	stops := make([]Stop, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			Name         string  `json:"name"`
			Municipality string  `json:"municipality"`
			PlatformName string  `json:"platform_name"`
			LocationType int     `json:"location_type"`
			Latitude     float64 `json:"latitude"`
			Longitude    float64 `json:"longitude"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding stop %s: %w", r.ID, err)
		}

		stops = append(stops, Stop{
			ID:            r.ID,
			Name:          attrs.Name,
			Municipality:  attrs.Municipality,
			PlatformName:  attrs.PlatformName,
			LocationType:  attrs.LocationType,
			ParentStation: r.relatedID("parent_station"),
			Latitude:      attrs.Latitude,
			Longitude:     attrs.Longitude,
		})
	}

	return stops, stale, nil
}

// RoutesServingStop returns every route that calls at the given stop
func (c *Client) RoutesServingStop(ctx context.Context, stopID string) ([]Route, bool, error) {
	params := url.Values{}
	params.Set("filter[stop]", stopID)

	resources, stale, err := c.get(ctx, "/routes", params, TTLRoutes)
	if err != nil {
		return nil, false, err
	}

	routes := make([]Route, 0, len(resources))
	for _, r := range resources {
		route, err := routeFromResource(r)
		if err != nil {
			return nil, false, err
		}
		routes = append(routes, route)
	}

	return routes, stale, nil
}

// SchedulesQuery filters the /schedules endpoint. Date is a service date
// ("2026-08-31"); all fields optional. Queries are kept date-granular so the
// cache key stays stable across refresh cycles - callers window the results
// themselves.
type SchedulesQuery struct {
	RouteID string
	TripID  string
	StopIDs []string
	Date    string
}

func (c *Client) Schedules(ctx context.Context, query SchedulesQuery) ([]Schedule, bool, error) {
	params := url.Values{}
	if query.RouteID != "" {
		params.Set("filter[route]", query.RouteID)
	}
	if query.TripID != "" {
		params.Set("filter[trip]", query.TripID)
	}
	params.Set("filter[stop]", strings.Join(query.StopIDs, ","))
	params.Set("sort", "departure_time")
	if query.Date != "" {
		params.Set("filter[date]", query.Date)
	}
	resources, stale, err := c.get(ctx, "/schedules", params, TTLSchedules)
	if err != nil {
		return nil, false, err
	}

	schedules := make([]Schedule, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			ArrivalTime   *time.Time `json:"arrival_time"`
			DepartureTime *time.Time `json:"departure_time"`
			StopSequence  int        `json:"stop_sequence"`
			DirectionID   int        `json:"direction_id"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding schedule %s: %w", r.ID, err)
		}

		schedules = append(schedules, Schedule{
			ID:            r.ID,
			ArrivalTime:   attrs.ArrivalTime,
			DepartureTime: attrs.DepartureTime,
			StopSequence:  attrs.StopSequence,
			DirectionID:   attrs.DirectionID,
			RouteID:       r.relatedID("route"),
			TripID:        r.relatedID("trip"),
			StopID:        r.relatedID("stop"),
		})
	}

	return schedules, stale, nil
}

// Predictions returns live predictions for the given trips at the given stops
func (c *Client) Predictions(ctx context.Context, tripIDs []string, stopIDs []string) ([]Prediction, bool, error) {
	if len(tripIDs) == 0 {
		return nil, false, nil
	}

	params := url.Values{}
	params.Set("filter[trip]", strings.Join(tripIDs, ","))
	if len(stopIDs) > 0 {
		params.Set("filter[stop]", strings.Join(stopIDs, ","))
	}

	resources, stale, err := c.get(ctx, "/predictions", params, TTLPredictions)
	if err != nil {
		return nil, false, err
	}

	predictions := make([]Prediction, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			ArrivalTime   *time.Time `json:"arrival_time"`
			DepartureTime *time.Time `json:"departure_time"`
			Status        string     `json:"status"`
			StopSequence  int        `json:"stop_sequence"`
			DirectionID   int        `json:"direction_id"`
			UpdatedAt     *time.Time `json:"update_time"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding prediction %s: %w", r.ID, err)
		}

		predictions = append(predictions, Prediction{
			ID:            r.ID,
			ArrivalTime:   attrs.ArrivalTime,
			DepartureTime: attrs.DepartureTime,
			Status:        attrs.Status,
			StopSequence:  attrs.StopSequence,
			DirectionID:   attrs.DirectionID,
			UpdatedAt:     attrs.UpdatedAt,
			RouteID:       r.relatedID("route"),
			TripID:        r.relatedID("trip"),
			StopID:        r.relatedID("stop"),
			VehicleID:     r.relatedID("vehicle"),
		})
	}

	return predictions, stale, nil
}

// Vehicles returns live vehicle positions for the given trips
func (c *Client) Vehicles(ctx context.Context, tripIDs []string) ([]Vehicle, bool, error) {
	if len(tripIDs) == 0 {
		return nil, false, nil
	}

	params := url.Values{}
	params.Set("filter[trip]", strings.Join(tripIDs, ","))

	resources, stale, err := c.get(ctx, "/vehicles", params, TTLVehicles)
	if err != nil {
		return nil, false, err
	}

	vehicles := make([]Vehicle, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			Label               string     `json:"label"`
			Latitude            float64    `json:"latitude"`
			Longitude           float64    `json:"longitude"`
			Bearing             float64    `json:"bearing"`
			CurrentStatus       string     `json:"current_status"`
			CurrentStopSequence int        `json:"current_stop_sequence"`
			UpdatedAt           *time.Time `json:"updated_at"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding vehicle %s: %w", r.ID, err)
		}

		vehicles = append(vehicles, Vehicle{
			ID:                  r.ID,
			Label:               attrs.Label,
			Latitude:            attrs.Latitude,
			Longitude:           attrs.Longitude,
			Bearing:             attrs.Bearing,
			CurrentStatus:       attrs.CurrentStatus,
			CurrentStopSequence: attrs.CurrentStopSequence,
			UpdatedAt:           attrs.UpdatedAt,
			TripID:              r.relatedID("trip"),
			StopID:              r.relatedID("stop"),
		})
	}

	return vehicles, stale, nil
}

// Alerts returns service alerts affecting the given trips. The alerts feed
// attributes each alert to informed entities (trips, routes); callers use
// those lists to decide which trips an alert applies to.
func (c *Client) Alerts(ctx context.Context, tripIDs []string) ([]Alert, bool, error) {
	if len(tripIDs) == 0 {
		return nil, false, nil
	}

	params := url.Values{}
	params.Set("filter[trip]", strings.Join(tripIDs, ","))

	resources, stale, err := c.get(ctx, "/alerts", params, TTLAlerts)
	if err != nil {
		return nil, false, err
	}

	alerts := make([]Alert, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			Effect         string `json:"effect"`
			Severity       int    `json:"severity"`
			Header         string `json:"header"`
			ShortHeader    string `json:"short_header"`
			InformedEntity []struct {
				Trip  string `json:"trip"`
				Route string `json:"route"`
			} `json:"informed_entity"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding alert %s: %w", r.ID, err)
		}

		alert := Alert{
			ID:          r.ID,
			Effect:      attrs.Effect,
			Severity:    attrs.Severity,
			Header:      attrs.Header,
			ShortHeader: attrs.ShortHeader,
		}
		for _, informed := range attrs.InformedEntity {
			if informed.Trip != "" {
				alert.TripIDs = append(alert.TripIDs, informed.Trip)
			}
			if informed.Route != "" {
				alert.RouteIDs = append(alert.RouteIDs, informed.Route)
			}
		}
		alerts = append(alerts, alert)
	}

	return alerts, stale, nil
}

// TripsByName looks up trips by their customer-facing name (the Commuter
// Rail train number) on the given routes and service date.
func (c *Client) TripsByName(ctx context.Context, routeIDs []string, name string, date string) ([]Trip, bool, error) {
	params := url.Values{}
	params.Set("filter[route]", strings.Join(routeIDs, ","))
	params.Set("filter[name]", name)
	if date != "" {
		params.Set("filter[date]", date)
	}

	return c.trips(ctx, params)
}

// TripsByIDs returns trip metadata (headsign, name, direction) for the given
// trip ids
func (c *Client) TripsByIDs(ctx context.Context, tripIDs []string) ([]Trip, bool, error) {
	if len(tripIDs) == 0 {
		return nil, false, nil
	}

	params := url.Values{}
	params.Set("filter[id]", strings.Join(tripIDs, ","))

	return c.trips(ctx, params)
}

func (c *Client) trips(ctx context.Context, params url.Values) ([]Trip, bool, error) {
	resources, stale, err := c.get(ctx, "/trips", params, TTLTrips)
	if err != nil {
		return nil, false, err
	}

	trips := make([]Trip, 0, len(resources))
	for _, r := range resources {
		var attrs struct {
			Name        string `json:"name"`
			Headsign    string `json:"headsign"`
			DirectionID int    `json:"direction_id"`
		}
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return nil, false, fmt.Errorf("mbta: decoding trip %s: %w", r.ID, err)
		}

		trips = append(trips, Trip{
			ID:          r.ID,
			Name:        attrs.Name,
			Headsign:    attrs.Headsign,
			DirectionID: attrs.DirectionID,
			RouteID:     r.relatedID("route"),
		})
	}

	return trips, stale, nil
}

func routeFromResource(r resource) (Route, error) {
	var attrs struct {
		LongName              string    `json:"long_name"`
		ShortName             string    `json:"short_name"`
		Description           string    `json:"description"`
		Color                 string    `json:"color"`
		Type                  RouteType `json:"type"`
		DirectionNames        []string  `json:"direction_names"`
		DirectionDestinations []string  `json:"direction_destinations"`
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return Route{}, fmt.Errorf("mbta: decoding route %s: %w", r.ID, err)
	}

	return Route{
		ID:                    r.ID,
		LongName:              attrs.LongName,
		ShortName:             attrs.ShortName,
		Description:           attrs.Description,
		Color:                 attrs.Color,
		Type:                  attrs.Type,
		DirectionNames:        attrs.DirectionNames,
		DirectionDestinations: attrs.DirectionDestinations,
	}, nil
}
