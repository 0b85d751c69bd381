package tracker

import (
	"context"
	"errors"

	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// ErrTrainNotFound means the configured train number has no scheduled
// instance within the lookahead window. Fatal - the configuration is not
// retried.
var ErrTrainNotFound = errors.New("tracker: train not scheduled within the next 7 days")

// findTrainTrip locates the next instance of the configured train number
// that still travels departure -> arrival. Scans forward one service day at
// a time, skipping instances that have already arrived.
func (t *Tracker) findTrainTrip(ctx context.Context) (tripLeg, mbta.Route, bool, error) {
	now := t.now()

	routes, stale, err := t.client.RoutesServingStop(ctx, t.depart.ID)
	if err != nil {
		return tripLeg{}, mbta.Route{}, false, err
	}

	var commuterRoutes []mbta.Route
	var routeIDs []string
	for _, route := range routes {
		if route.Type == mbta.RouteTypeCommuterRail {
			commuterRoutes = append(commuterRoutes, route)
			routeIDs = append(routeIDs, route.ID)
		}
	}
	if len(routeIDs) == 0 {
		return tripLeg{}, mbta.Route{}, false, ErrTrainNotFound
	}

	stopIDs := append(t.depart.FilterIDs(), t.arrive.FilterIDs()...)

	for day := 0; day < trainLookaheadDays; day++ {
		date := now.AddDate(0, 0, day).Format("2006-01-02")

		trips, tripsStale, err := t.client.TripsByName(ctx, routeIDs, t.Journey.Train, date)
		if err != nil {
			return tripLeg{}, mbta.Route{}, false, err
		}
		stale = stale || tripsStale
		if len(trips) == 0 {
			continue
		}
		trip := trips[0]

		schedules, schedulesStale, err := t.client.Schedules(ctx, mbta.SchedulesQuery{
			TripID:  trip.ID,
			StopIDs: stopIDs,
			Date:    date,
		})
		if err != nil {
			return tripLeg{}, mbta.Route{}, false, err
		}
		stale = stale || schedulesStale

		legs := buildLegs(schedules, t.depart, t.arrive)
		if len(legs) == 0 {
			// The train number exists but doesnt travel this stop pair
			continue
		}
		leg := legs[0]

		// Completed instance - wait for the next service day's run
		if leg.arrival.ArrivalTime.Before(now) {
			continue
		}

		for _, route := range commuterRoutes {
			if route.ID == trip.RouteID {
				return leg, route, stale, nil
			}
		}
		return leg, commuterRoutes[0], stale, nil
	}

	return tripLeg{}, mbta.Route{}, false, ErrTrainNotFound
}

// refreshTrain tracks the single configured train from departure until
// arrival, rolling over to the next scheduled instance afterwards
func (t *Tracker) refreshTrain(ctx context.Context) ([]TrackedEntity, bool, error) {
	leg, route, stale, err := t.findTrainTrip(ctx)
	if err != nil {
		return nil, false, err
	}

	return t.assemble(ctx, []tripLeg{leg}, route, t.now(), stale)
}
