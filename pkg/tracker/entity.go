package tracker

import (
	"time"

	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// DataState describes how trustworthy an entity's live fields are
type DataState string

const (
	// DataStateLive - a fresh prediction is overlaid on the schedule
	DataStateLive DataState = "live"
	// DataStateScheduled - schedule only, either by mode (ferry) or because
	// the prediction was missing or too old
	DataStateScheduled DataState = "scheduled"
	// DataStateStale - served from the cache during an upstream outage
	DataStateStale DataState = "stale"
	// DataStateUnavailable - placeholder, no trip data at all
	DataStateUnavailable DataState = "unavailable"
)

// VehicleState is the live position of the vehicle running a tracked trip
type VehicleState struct {
	Label     string     `json:"label"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Bearing   float64    `json:"bearing"`
	Status    string     `json:"status"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// TrackedEntity is one ranked upcoming trip with schedule, prediction and
// vehicle data merged. Entities are recomputed from scratch every cycle and
// whole generations are swapped atomically, never edited in place.
type TrackedEntity struct {
	Rank        int       `json:"rank"`
	Placeholder bool      `json:"placeholder"`
	DataState   DataState `json:"data_state"`

	TripID    string     `json:"trip_id"`
	TrainName string     `json:"train_name,omitempty"`
	Headsign  string     `json:"headsign"`
	Direction string     `json:"direction"`
	Route     mbta.Route `json:"route"`

	DepartureStopName string `json:"departure_stop_name"`
	ArrivalStopName   string `json:"arrival_stop_name"`

	ScheduledDeparture *time.Time `json:"scheduled_departure"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival"`
	PredictedDeparture *time.Time `json:"predicted_departure,omitempty"`
	PredictedArrival   *time.Time `json:"predicted_arrival,omitempty"`

	DepartureDelay time.Duration `json:"departure_delay"`
	ArrivalDelay   time.Duration `json:"arrival_delay"`

	DeparturePlatform string `json:"departure_platform,omitempty"`
	ArrivalPlatform   string `json:"arrival_platform,omitempty"`

	DepartureStatus string `json:"departure_status,omitempty"`
	ArrivalStatus   string `json:"arrival_status,omitempty"`

	Vehicle *VehicleState `json:"vehicle,omitempty"`

	// Alerts carries the rider-facing text of service alerts informing this
	// trip or its whole route
	Alerts []string `json:"alerts,omitempty"`
}

// DepartureTime is the best known departure - predicted when live, scheduled
// otherwise
func (e *TrackedEntity) DepartureTime() *time.Time {
	if e.PredictedDeparture != nil {
		return e.PredictedDeparture
	}
	return e.ScheduledDeparture
}

// ArrivalTime is the best known arrival at the destination stop
func (e *TrackedEntity) ArrivalTime() *time.Time {
	if e.PredictedArrival != nil {
		return e.PredictedArrival
	}
	return e.ScheduledArrival
}

// Duration is the expected on-board time
func (e *TrackedEntity) Duration() time.Duration {
	departure, arrival := e.DepartureTime(), e.ArrivalTime()
	if departure == nil || arrival == nil {
		return 0
	}
	return arrival.Sub(*departure)
}

func placeholderEntity(rank int) TrackedEntity {
	return TrackedEntity{
		Rank:        rank,
		Placeholder: true,
		DataState:   DataStateUnavailable,
	}
}

// Generation is one complete refresh result. The tracker swaps the current
// generation atomically so readers never observe a half-updated set.
type Generation struct {
	Entities  []TrackedEntity `json:"entities"`
	UpdatedAt time.Time       `json:"updated_at"`
	Stale     bool            `json:"stale"`
}
