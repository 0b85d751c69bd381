package tracker

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/mbtalive/mbtalive/pkg/journey"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// tripLeg pairs the departure-stop and arrival-stop schedule records of a
// single trip
type tripLeg struct {
	tripID    string
	departure *mbta.Schedule
	arrival   *mbta.Schedule
}

// livePair holds the fresh predictions for one trip at the two tracked stops
type livePair struct {
	departure *mbta.Prediction
	arrival   *mbta.Prediction
}

// buildLegs groups schedule records by trip and keeps trips that call at the
// departure stop strictly before the arrival stop with usable times. Result
// is ordered by scheduled departure.
func buildLegs(schedules []mbta.Schedule, depart *journey.ResolvedStop, arrive *journey.ResolvedStop) []tripLeg {
	byTrip := map[string]*tripLeg{}
	var order []string

	for i := range schedules {
		schedule := &schedules[i]
		leg := byTrip[schedule.TripID]
		if leg == nil {
			leg = &tripLeg{tripID: schedule.TripID}
			byTrip[schedule.TripID] = leg
			order = append(order, schedule.TripID)
		}

		switch {
		case depart.Contains(schedule.StopID):
			leg.departure = schedule
		case arrive.Contains(schedule.StopID):
			leg.arrival = schedule
		}
	}

	var legs []tripLeg
	for _, tripID := range order {
		leg := byTrip[tripID]
		if leg.departure == nil || leg.arrival == nil {
			continue
		}
		if leg.departure.StopSequence >= leg.arrival.StopSequence {
			continue
		}
		if leg.departure.DepartureTime == nil || leg.arrival.ArrivalTime == nil {
			continue
		}
		legs = append(legs, *leg)
	}

	sort.SliceStable(legs, func(a, b int) bool {
		return legs[a].departure.DepartureTime.Before(*legs[b].departure.DepartureTime)
	})

	return legs
}

// legsInWindow keeps legs whose scheduled departure falls inside the window
func legsInWindow(legs []tripLeg, start time.Time, end time.Time) []tripLeg {
	var window []tripLeg
	for _, leg := range legs {
		departure := *leg.departure.DepartureTime
		if departure.Before(start) || departure.After(end) {
			continue
		}
		window = append(window, leg)
	}
	return window
}

// upcomingCount counts the legs still boardable. Departed trips inside the
// lookback stay visible but never satisfy the trip quota, so the window keeps
// widening until enough future departures are in view.
func upcomingCount(legs []tripLeg, now time.Time) int {
	count := 0
	for _, leg := range legs {
		if !leg.departure.DepartureTime.Before(now) {
			count++
		}
	}
	return count
}

// assemble fetches the live overlays for the given legs in parallel, merges
// them and produces the final ranked, padded generation.
func (t *Tracker) assemble(ctx context.Context, legs []tripLeg, route mbta.Route, now time.Time, stale bool) ([]TrackedEntity, bool, error) {
	caps := route.Type.Capabilities()

	tripIDs := make([]string, 0, len(legs))
	for _, leg := range legs {
		tripIDs = append(tripIDs, leg.tripID)
	}
	stopIDs := append(t.depart.FilterIDs(), t.arrive.FilterIDs()...)

	var (
		trips       []mbta.Trip
		predictions []mbta.Prediction
		vehicles    []mbta.Vehicle
		alerts      []mbta.Alert

		tripsStale, predictionsStale, vehiclesStale, alertsStale bool
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		trips, tripsStale, err = t.client.TripsByIDs(ctx, tripIDs)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		alerts, alertsStale, err = t.client.Alerts(ctx, tripIDs)
		return err
	})
	if caps.Predictions {
		p.Go(func(ctx context.Context) error {
			var err error
			predictions, predictionsStale, err = t.client.Predictions(ctx, tripIDs, stopIDs)
			return err
		})
		p.Go(func(ctx context.Context) error {
			var err error
			vehicles, vehiclesStale, err = t.client.Vehicles(ctx, tripIDs)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, false, err
	}

	anyStale := stale || tripsStale || predictionsStale || vehiclesStale || alertsStale

	tripMeta := map[string]mbta.Trip{}
	for _, trip := range trips {
		tripMeta[trip.ID] = trip
	}

	pairs := map[string]*livePair{}
	for i := range predictions {
		prediction := &predictions[i]
		if stalePrediction(prediction, now) {
			continue
		}

		pair := pairs[prediction.TripID]
		if pair == nil {
			pair = &livePair{}
			pairs[prediction.TripID] = pair
		}
		switch {
		case t.depart.Contains(prediction.StopID) && pair.departure == nil:
			pair.departure = prediction
		case t.arrive.Contains(prediction.StopID) && pair.arrival == nil:
			pair.arrival = prediction
		}
	}

	vehicleByTrip := map[string]*mbta.Vehicle{}
	for i := range vehicles {
		vehicleByTrip[vehicles[i].TripID] = &vehicles[i]
	}

	tripAlerts, routeAlerts := groupAlerts(alerts, route.ID)

	var entities []TrackedEntity
	for _, leg := range legs {
		entity := t.mergeEntity(leg, route, caps, tripMeta[leg.tripID], pairs[leg.tripID], vehicleByTrip[leg.tripID], now)
		if !keepEntity(&entity, now) {
			continue
		}
		entity.Alerts = alertTexts(tripAlerts[leg.tripID], routeAlerts)
		entities = append(entities, entity)
	}

	// Fastest arrival at the destination first, not earliest departure
	sort.SliceStable(entities, func(a, b int) bool {
		return entities[a].ArrivalTime().Before(*entities[b].ArrivalTime())
	})

	return rankAndPad(entities, t.Journey.MaxTrips, anyStale), anyStale, nil
}

func (t *Tracker) mergeEntity(leg tripLeg, route mbta.Route, caps mbta.Capabilities, meta mbta.Trip, live *livePair, vehicle *mbta.Vehicle, now time.Time) TrackedEntity {
	entity := TrackedEntity{
		TripID:   leg.tripID,
		Headsign: meta.Headsign,
		Route:    route,

		DepartureStopName: t.depart.Name,
		ArrivalStopName:   t.arrive.Name,

		ScheduledDeparture: leg.departure.DepartureTime,
		ScheduledArrival:   leg.arrival.ArrivalTime,

		DataState: DataStateScheduled,
	}

	direction := leg.departure.DirectionID
	if direction >= 0 && direction < len(route.DirectionNames) {
		entity.Direction = route.DirectionNames[direction]
	}
	if entity.Headsign == "" && direction >= 0 && direction < len(route.DirectionDestinations) {
		entity.Headsign = route.DirectionDestinations[direction]
	}
	if route.Type == mbta.RouteTypeCommuterRail {
		entity.TrainName = meta.Name
	}

	departureStopID := leg.departure.StopID
	arrivalStopID := leg.arrival.StopID

	if live != nil {
		if live.departure != nil {
			if predicted := firstTime(live.departure.DepartureTime, live.departure.ArrivalTime); predicted != nil {
				entity.PredictedDeparture = predicted
				entity.DataState = DataStateLive
				if entity.ScheduledDeparture != nil {
					entity.DepartureDelay = predicted.Sub(*entity.ScheduledDeparture)
				}
			}
			entity.DepartureStatus = live.departure.Status
			if live.departure.StopID != "" {
				departureStopID = live.departure.StopID
			}
		}
		if live.arrival != nil {
			if predicted := firstTime(live.arrival.ArrivalTime, live.arrival.DepartureTime); predicted != nil {
				entity.PredictedArrival = predicted
				entity.DataState = DataStateLive
				if entity.ScheduledArrival != nil {
					entity.ArrivalDelay = predicted.Sub(*entity.ScheduledArrival)
				}
			}
			entity.ArrivalStatus = live.arrival.Status
			if live.arrival.StopID != "" {
				arrivalStopID = live.arrival.StopID
			}
		}
	}

	if caps.Platform {
		entity.DeparturePlatform = t.depart.Platform(departureStopID)
		entity.ArrivalPlatform = t.arrive.Platform(arrivalStopID)
	}

	// A prediction naming a different vehicle supersedes the trip match
	if vehicle != nil && live != nil && live.departure != nil &&
		live.departure.VehicleID != "" && live.departure.VehicleID != vehicle.ID {
		vehicle = nil
	}

	if vehicle != nil {
		state := &VehicleState{
			Label:     vehicle.Label,
			Status:    humanizeVehicleStatus(vehicle.CurrentStatus),
			UpdatedAt: vehicle.UpdatedAt,
		}
		if caps.Geolocation {
			state.Latitude = vehicle.Latitude
			state.Longitude = vehicle.Longitude
			state.Bearing = vehicle.Bearing
		}
		entity.Vehicle = state

		if entity.DepartureStatus == "" && t.depart.Contains(vehicle.StopID) {
			entity.DepartureStatus = state.Status
		}
		if entity.ArrivalStatus == "" && t.arrive.Contains(vehicle.StopID) {
			entity.ArrivalStatus = state.Status
		}
	}

	return entity
}

// keepEntity drops departures already gone, unless the vehicle is still en
// route to the destination and its position remains meaningful
func keepEntity(entity *TrackedEntity, now time.Time) bool {
	departure := entity.DepartureTime()
	if departure == nil {
		return false
	}
	if !departure.Before(now) {
		return true
	}

	arrival := entity.ArrivalTime()
	return entity.Vehicle != nil && arrival != nil && arrival.After(now)
}

// groupAlerts splits alert texts into per-trip lists and route-wide ones.
// An alert informing the whole route applies to every leg on it.
func groupAlerts(alerts []mbta.Alert, routeID string) (map[string][]string, []string) {
	tripAlerts := map[string][]string{}
	var routeAlerts []string

	for i := range alerts {
		alert := &alerts[i]
		text := alert.Text()
		if text == "" {
			continue
		}

		if len(alert.TripIDs) == 0 {
			for _, id := range alert.RouteIDs {
				if id == routeID {
					routeAlerts = append(routeAlerts, text)
					break
				}
			}
			continue
		}
		for _, tripID := range alert.TripIDs {
			tripAlerts[tripID] = append(tripAlerts[tripID], text)
		}
	}

	return tripAlerts, routeAlerts
}

func alertTexts(tripAlerts []string, routeAlerts []string) []string {
	if len(tripAlerts) == 0 && len(routeAlerts) == 0 {
		return nil
	}
	merged := make([]string, 0, len(tripAlerts)+len(routeAlerts))
	merged = append(merged, tripAlerts...)
	return append(merged, routeAlerts...)
}

func rankAndPad(entities []TrackedEntity, maxTrips int, stale bool) []TrackedEntity {
	if len(entities) > maxTrips {
		entities = entities[:maxTrips]
	}
	for i := range entities {
		entities[i].Rank = i
		if stale {
			entities[i].DataState = DataStateStale
		}
	}
	for rank := len(entities); rank < maxTrips; rank++ {
		entities = append(entities, placeholderEntity(rank))
	}

	return entities
}

func stalePrediction(prediction *mbta.Prediction, now time.Time) bool {
	if prediction.UpdatedAt == nil {
		return false
	}
	return now.Sub(*prediction.UpdatedAt) > predictionStalenessWindow
}

func firstTime(times ...*time.Time) *time.Time {
	for _, t := range times {
		if t != nil {
			return t
		}
	}
	return nil
}

// humanizeVehicleStatus turns the feed's IN_TRANSIT_TO style constants into
// the display form the integration has always published
func humanizeVehicleStatus(status string) string {
	switch status {
	case "IN_TRANSIT_TO":
		return "In transit to"
	case "STOPPED_AT":
		return "Stopped at"
	case "INCOMING_AT":
		return "Incoming at"
	case "":
		return ""
	}

	words := strings.Split(strings.ToLower(status), "_")
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
