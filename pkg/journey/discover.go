package journey

import (
	"context"
	"errors"
	"time"

	"github.com/mbtalive/mbtalive/pkg/mbta"
	"github.com/rs/zerolog/log"
)

// ErrNoDirectTrip means no single route serves the departure stop strictly
// before the arrival stop.
var ErrNoDirectTrip = errors.New("journey: no direct trip between stops")

// Pattern is the selected direct connection between two stops - the route,
// the direction of travel and its fastest scheduled duration.
type Pattern struct {
	Route       mbta.Route    `json:"route"`
	DirectionID int           `json:"direction_id"`
	Duration    time.Duration `json:"duration"`

	// TripsPerDay is the scheduled service frequency over the lookup
	// window, kept for the tie-break and for diagnostics
	TripsPerDay int `json:"trips_per_day"`
}

type Discoverer struct {
	Client *mbta.Client
}

// Discover finds every route serving both stops in the right order and
// returns the one with the minimum scheduled duration. Ties go to the route
// with more scheduled trips, then to the lexically smallest route id.
// Runs once per configuration, never on the polling path.
func (d *Discoverer) Discover(ctx context.Context, depart *ResolvedStop, arrive *ResolvedStop) (*Pattern, error) {
	departRoutes, _, err := d.Client.RoutesServingStop(ctx, depart.ID)
	if err != nil {
		return nil, err
	}
	arriveRoutes, _, err := d.Client.RoutesServingStop(ctx, arrive.ID)
	if err != nil {
		return nil, err
	}

	arriveRouteIDs := map[string]bool{}
	for _, route := range arriveRoutes {
		arriveRouteIDs[route.ID] = true
	}

	var best *Pattern
	for _, route := range departRoutes {
		if !arriveRouteIDs[route.ID] {
			continue
		}

		candidate, err := d.evaluateRoute(ctx, route, depart, arrive)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			continue
		}

		if best == nil || betterPattern(candidate, best) {
			best = candidate
		}
	}

	if best == nil {
		return nil, ErrNoDirectTrip
	}

	log.Info().
		Str("route", best.Route.ID).
		Str("type", best.Route.Type.String()).
		Str("duration", best.Duration.String()).
		Int("trips", best.TripsPerDay).
		Msg("Discovered trip pattern")

	return best, nil
}

// evaluateRoute checks a shared route actually travels depart -> arrive and
// measures its fastest scheduled leg over today's service day. Returns nil
// when the route only serves the pair in the wrong order.
func (d *Discoverer) evaluateRoute(ctx context.Context, route mbta.Route, depart *ResolvedStop, arrive *ResolvedStop) (*Pattern, error) {
	stopIDs := append(depart.FilterIDs(), arrive.FilterIDs()...)

	schedules, _, err := d.Client.Schedules(ctx, mbta.SchedulesQuery{
		RouteID: route.ID,
		StopIDs: stopIDs,
	})
	if err != nil {
		return nil, err
	}

	type tripLeg struct {
		departSchedule *mbta.Schedule
		arriveSchedule *mbta.Schedule
	}
	legs := map[string]*tripLeg{}

	for i := range schedules {
		schedule := &schedules[i]
		leg := legs[schedule.TripID]
		if leg == nil {
			leg = &tripLeg{}
			legs[schedule.TripID] = leg
		}

		switch {
		case depart.Contains(schedule.StopID):
			leg.departSchedule = schedule
		case arrive.Contains(schedule.StopID):
			leg.arriveSchedule = schedule
		}
	}

	var minDuration time.Duration
	direction := -1
	validTrips := 0

	for _, leg := range legs {
		if leg.departSchedule == nil || leg.arriveSchedule == nil {
			continue
		}
		// Departure stop must come strictly first on the trip
		if leg.departSchedule.StopSequence >= leg.arriveSchedule.StopSequence {
			continue
		}
		if leg.departSchedule.DepartureTime == nil || leg.arriveSchedule.ArrivalTime == nil {
			continue
		}

		duration := leg.arriveSchedule.ArrivalTime.Sub(*leg.departSchedule.DepartureTime)
		if duration <= 0 {
			continue
		}

		validTrips++
		direction = leg.departSchedule.DirectionID
		if minDuration == 0 || duration < minDuration {
			minDuration = duration
		}
	}

	if validTrips == 0 {
		return nil, nil
	}

	return &Pattern{
		Route:       route,
		DirectionID: direction,
		Duration:    minDuration,
		TripsPerDay: validTrips,
	}, nil
}

func betterPattern(a *Pattern, b *Pattern) bool {
	if a.Duration != b.Duration {
		return a.Duration < b.Duration
	}
	if a.TripsPerDay != b.TripsPerDay {
		return a.TripsPerDay > b.TripsPerDay
	}
	return a.Route.ID < b.Route.ID
}
