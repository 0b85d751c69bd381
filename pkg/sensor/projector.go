// Package sensor maps tracker output onto the flat attribute surface the
// host plugin publishes. Pure mapping - no I/O, no caching - so the
// tracker's output stays testable without the publishing mechanism.
package sensor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mbtalive/mbtalive/pkg/tracker"
)

const StateUnavailable = "unavailable"

// Projection is the published form of one tracked entity - a primary state
// value plus the extended attribute set
type Projection struct {
	Entity     string         `json:"entity"`
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// EntityLabel names the published entity for a rank - "upcoming" and "next"
// are the two defaults, further ranks are numbered
func EntityLabel(rank int) string {
	switch rank {
	case 0:
		return "upcoming"
	case 1:
		return "next"
	default:
		return fmt.Sprintf("upcoming_%d", rank)
	}
}

// Project flattens one tracked entity. The primary state is minutes until
// departure.
func Project(entity *tracker.TrackedEntity, now time.Time) Projection {
	projection := Projection{
		Entity: EntityLabel(entity.Rank),
		State:  StateUnavailable,
		Attributes: map[string]any{
			"rank":       entity.Rank,
			"data_state": string(entity.DataState),
		},
	}

	if entity.Placeholder {
		return projection
	}

	attrs := projection.Attributes
	attrs["trip_id"] = entity.TripID
	attrs["headsign"] = entity.Headsign
	attrs["direction"] = entity.Direction
	attrs["route_name"] = entity.Route.Name()
	attrs["route_type"] = entity.Route.Type.String()
	if entity.Route.Color != "" {
		attrs["route_color"] = "#" + entity.Route.Color
	}
	if destination := routeDestination(entity); destination != "" {
		attrs["destination"] = destination
	}
	if entity.TrainName != "" {
		attrs["train"] = entity.TrainName
	}
	if duration := entity.Duration(); duration > 0 {
		attrs["duration_min"] = roundMinutes(duration)
	}

	attrs["departure_stop"] = entity.DepartureStopName
	attrs["arrival_stop"] = entity.ArrivalStopName
	if entity.DeparturePlatform != "" {
		attrs["departure_platform"] = entity.DeparturePlatform
	}
	if entity.ArrivalPlatform != "" {
		attrs["arrival_platform"] = entity.ArrivalPlatform
	}

	if departure := entity.DepartureTime(); departure != nil {
		attrs["departure_time"] = departure.Format(time.RFC3339)
		attrs["time_to_departure_min"] = roundMinutes(departure.Sub(now))
		projection.State = roundMinutes(departure.Sub(now))
	}
	if arrival := entity.ArrivalTime(); arrival != nil {
		attrs["arrival_time"] = arrival.Format(time.RFC3339)
		attrs["time_to_arrival_min"] = roundMinutes(arrival.Sub(now))
	}

	attrs["departure_delay_min"] = roundMinutes(entity.DepartureDelay)
	attrs["arrival_delay_min"] = roundMinutes(entity.ArrivalDelay)

	attrs["departure_status"] = statusLabel(entity.DepartureStatus)
	attrs["arrival_status"] = statusLabel(entity.ArrivalStatus)

	attrs["alerts_count"] = len(entity.Alerts)
	if len(entity.Alerts) > 0 {
		attrs["alerts"] = strings.Join(entity.Alerts, " | ")
	}

	if vehicle := entity.Vehicle; vehicle != nil {
		if vehicle.Latitude != 0 || vehicle.Longitude != 0 {
			attrs["vehicle_latitude"] = vehicle.Latitude
			attrs["vehicle_longitude"] = vehicle.Longitude
			attrs["vehicle_bearing"] = vehicle.Bearing
		}
		if vehicle.Status != "" {
			attrs["vehicle_status"] = vehicle.Status
		}
		if vehicle.UpdatedAt != nil {
			attrs["vehicle_updated_at"] = vehicle.UpdatedAt.Format(time.RFC3339)
		}
	}

	return projection
}

// ProjectGeneration flattens a whole generation in rank order
func ProjectGeneration(generation *tracker.Generation, now time.Time) []Projection {
	if generation == nil {
		return nil
	}

	projections := make([]Projection, 0, len(generation.Entities))
	for i := range generation.Entities {
		projections = append(projections, Project(&generation.Entities[i], now))
	}
	return projections
}

func routeDestination(entity *tracker.TrackedEntity) string {
	route := entity.Route
	for i, name := range route.DirectionNames {
		if name == entity.Direction && i < len(route.DirectionDestinations) {
			return route.DirectionDestinations[i]
		}
	}
	return ""
}

func statusLabel(status string) string {
	if status == "" {
		return "NO LIVE DATA"
	}
	return status
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
