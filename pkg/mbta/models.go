package mbta

import "time"

type RouteType int

const (
	RouteTypeLightRail    RouteType = 0
	RouteTypeHeavyRail    RouteType = 1
	RouteTypeCommuterRail RouteType = 2
	RouteTypeBus          RouteType = 3
	RouteTypeFerry        RouteType = 4
)

func (t RouteType) String() string {
	switch t {
	case RouteTypeLightRail:
		return "Light Rail"
	case RouteTypeHeavyRail:
		return "Heavy Rail"
	case RouteTypeCommuterRail:
		return "Commuter Rail"
	case RouteTypeBus:
		return "Bus"
	case RouteTypeFerry:
		return "Ferry"
	default:
		return "Unknown"
	}
}

// Capabilities describes what live data the MBTA actually publishes for a
// route type. The merge step branches on these instead of on the type itself.
type Capabilities struct {
	Predictions bool
	Geolocation bool
	Platform    bool
}

func (t RouteType) Capabilities() Capabilities {
	switch t {
	case RouteTypeLightRail, RouteTypeHeavyRail:
		return Capabilities{Predictions: true, Geolocation: true}
	case RouteTypeCommuterRail:
		return Capabilities{Predictions: true, Geolocation: true, Platform: true}
	case RouteTypeBus:
		// Bus vehicles report a status but the coordinates are not reliable
		// enough to publish
		return Capabilities{Predictions: true}
	default:
		return Capabilities{}
	}
}

type Stop struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Municipality  string `json:"municipality"`
	PlatformName  string `json:"platform_name"`
	LocationType  int    `json:"location_type"`
	ParentStation string `json:"parent_station"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Route struct {
	ID          string    `json:"id"`
	LongName    string    `json:"long_name"`
	ShortName   string    `json:"short_name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	Type        RouteType `json:"type"`

	DirectionNames        []string `json:"direction_names"`
	DirectionDestinations []string `json:"direction_destinations"`
}

// Name returns the customer-facing route name - long for rail, short for bus.
func (r *Route) Name() string {
	if r.LongName != "" {
		return r.LongName
	}
	return r.ShortName
}

type Schedule struct {
	ID            string     `json:"id"`
	ArrivalTime   *time.Time `json:"arrival_time"`
	DepartureTime *time.Time `json:"departure_time"`
	StopSequence  int        `json:"stop_sequence"`
	DirectionID   int        `json:"direction_id"`

	RouteID string `json:"route_id"`
	TripID  string `json:"trip_id"`
	StopID  string `json:"stop_id"`
}

type Prediction struct {
	ID            string     `json:"id"`
	ArrivalTime   *time.Time `json:"arrival_time"`
	DepartureTime *time.Time `json:"departure_time"`
	Status        string     `json:"status"`
	StopSequence  int        `json:"stop_sequence"`
	DirectionID   int        `json:"direction_id"`
	UpdatedAt     *time.Time `json:"updated_at"`

	RouteID   string `json:"route_id"`
	TripID    string `json:"trip_id"`
	StopID    string `json:"stop_id"`
	VehicleID string `json:"vehicle_id"`
}

type Vehicle struct {
	ID                  string     `json:"id"`
	Label               string     `json:"label"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	Bearing             float64    `json:"bearing"`
	CurrentStatus       string     `json:"current_status"`
	CurrentStopSequence int        `json:"current_stop_sequence"`
	UpdatedAt           *time.Time `json:"updated_at"`

	TripID string `json:"trip_id"`
	StopID string `json:"stop_id"`
}

type Trip struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Headsign    string `json:"headsign"`
	DirectionID int    `json:"direction_id"`

	RouteID string `json:"route_id"`
}

// Alert is a rider-facing service alert
type Alert struct {
	ID          string `json:"id"`
	Effect      string `json:"effect"`
	Severity    int    `json:"severity"`
	Header      string `json:"header"`
	ShortHeader string `json:"short_header"`

	TripIDs  []string `json:"trip_ids,omitempty"`
	RouteIDs []string `json:"route_ids,omitempty"`
}

// Text returns the customer-facing alert text, preferring the short form
func (a *Alert) Text() string {
	if a.ShortHeader != "" {
		return a.ShortHeader
	}
	return a.Header
}
