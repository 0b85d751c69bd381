package journey

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbtalive/mbtalive/pkg/apicache"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// fakeNetwork wires a handful of routes and scheduled trips into an MBTA
// style API for discovery tests
type fakeNetwork struct {
	// route id -> stop ids it serves
	routeStops map[string][]string

	// route id -> JSON:API schedule payload
	schedules map[string]string
}

func (n *fakeNetwork) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/routes":
			stopID := r.URL.Query().Get("filter[stop]")
			payload := `{"data": [`
			first := true
			for routeID, stops := range n.routeStops {
				for _, id := range stops {
					if id != stopID {
						continue
					}
					if !first {
						payload += ","
					}
					first = false
					payload += fmt.Sprintf(`{"id": %q, "type": "route", "attributes": {"long_name": %q, "type": 2, "direction_names": ["Outbound", "Inbound"], "direction_destinations": ["Providence", "South Station"]}}`, routeID, routeID)
				}
			}
			w.Write([]byte(payload + `]}`))

		case "/schedules":
			routeID := r.URL.Query().Get("filter[route]")
			payload, ok := n.schedules[routeID]
			if !ok {
				payload = `{"data": []}`
			}
			w.Write([]byte(payload))

		default:
			t.Errorf("unexpected request path %s", r.URL.Path)
		}
	})
}

func scheduleJSON(id, tripID, routeID, stopID string, sequence int, arrival, departure string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "schedule",
		"attributes": {"arrival_time": %q, "departure_time": %q, "stop_sequence": %d, "direction_id": 0},
		"relationships": {
			"route": {"data": {"id": %q, "type": "route"}},
			"trip": {"data": {"id": %q, "type": "trip"}},
			"stop": {"data": {"id": %q, "type": "stop"}}
		}
	}`, id, arrival, departure, sequence, routeID, tripID, stopID)
}

func newDiscoverer(t *testing.T, network *fakeNetwork) *Discoverer {
	t.Helper()

	server := httptest.NewServer(network.handler(t))
	t.Cleanup(server.Close)

	client := mbta.NewClient("", apicache.NewService(apicache.Options{RequestsPerStatsReport: -1}))
	client.BaseURL = server.URL

	return &Discoverer{Client: client}
}

func simpleStop(id string) *ResolvedStop {
	return &ResolvedStop{ID: id, Name: id}
}

func TestDiscoverPicksFastestRoute(t *testing.T) {
	network := &fakeNetwork{
		routeStops: map[string][]string{
			"CR-Slow":      {"place-d", "place-a"},
			"CR-Fast":      {"place-d", "place-a"},
			"CR-Elsewhere": {"place-d"},
		},
		schedules: map[string]string{
			"CR-Slow": `{"data": [` +
				scheduleJSON("s1", "slow-1", "CR-Slow", "place-d", 1, "2026-08-31T09:00:00-04:00", "2026-08-31T09:00:00-04:00") + "," +
				scheduleJSON("s2", "slow-1", "CR-Slow", "place-a", 5, "2026-08-31T09:40:00-04:00", "2026-08-31T09:40:00-04:00") +
				`]}`,
			"CR-Fast": `{"data": [` +
				scheduleJSON("f1", "fast-1", "CR-Fast", "place-d", 1, "2026-08-31T09:10:00-04:00", "2026-08-31T09:10:00-04:00") + "," +
				scheduleJSON("f2", "fast-1", "CR-Fast", "place-a", 3, "2026-08-31T09:35:00-04:00", "2026-08-31T09:35:00-04:00") +
				`]}`,
		},
	}
	discoverer := newDiscoverer(t, network)

	pattern, err := discoverer.Discover(context.Background(), simpleStop("place-d"), simpleStop("place-a"))
	require.NoError(t, err)

	assert.Equal(t, "CR-Fast", pattern.Route.ID)
	assert.Equal(t, 25*time.Minute, pattern.Duration)
	assert.Equal(t, 0, pattern.DirectionID)
	assert.Equal(t, 1, pattern.TripsPerDay)
}

func TestDiscoverUsesFastestTripOnRoute(t *testing.T) {
	network := &fakeNetwork{
		routeStops: map[string][]string{
			"CR-Providence": {"place-d", "place-a"},
		},
		schedules: map[string]string{
			"CR-Providence": `{"data": [` +
				scheduleJSON("s1", "local", "CR-Providence", "place-d", 1, "2026-08-31T09:00:00-04:00", "2026-08-31T09:00:00-04:00") + "," +
				scheduleJSON("s2", "local", "CR-Providence", "place-a", 8, "2026-08-31T09:50:00-04:00", "2026-08-31T09:50:00-04:00") + "," +
				scheduleJSON("s3", "express", "CR-Providence", "place-d", 1, "2026-08-31T10:00:00-04:00", "2026-08-31T10:00:00-04:00") + "," +
				scheduleJSON("s4", "express", "CR-Providence", "place-a", 4, "2026-08-31T10:30:00-04:00", "2026-08-31T10:30:00-04:00") +
				`]}`,
		},
	}
	discoverer := newDiscoverer(t, network)

	pattern, err := discoverer.Discover(context.Background(), simpleStop("place-d"), simpleStop("place-a"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, pattern.Duration)
	assert.Equal(t, 2, pattern.TripsPerDay)
}

func TestDiscoverRejectsWrongOrder(t *testing.T) {
	// The route serves both stops, but only with arrival before departure
	network := &fakeNetwork{
		routeStops: map[string][]string{
			"CR-Backwards": {"place-d", "place-a"},
		},
		schedules: map[string]string{
			"CR-Backwards": `{"data": [` +
				scheduleJSON("s1", "back-1", "CR-Backwards", "place-a", 1, "2026-08-31T09:00:00-04:00", "2026-08-31T09:00:00-04:00") + "," +
				scheduleJSON("s2", "back-1", "CR-Backwards", "place-d", 5, "2026-08-31T09:30:00-04:00", "2026-08-31T09:30:00-04:00") +
				`]}`,
		},
	}
	discoverer := newDiscoverer(t, network)

	_, err := discoverer.Discover(context.Background(), simpleStop("place-d"), simpleStop("place-a"))
	require.ErrorIs(t, err, ErrNoDirectTrip)
}

func TestDiscoverNoSharedRoute(t *testing.T) {
	network := &fakeNetwork{
		routeStops: map[string][]string{
			"Red":    {"place-d"},
			"Orange": {"place-a"},
		},
	}
	discoverer := newDiscoverer(t, network)

	_, err := discoverer.Discover(context.Background(), simpleStop("place-d"), simpleStop("place-a"))
	require.ErrorIs(t, err, ErrNoDirectTrip)
}

func TestDiscoverMatchesChildStops(t *testing.T) {
	depart := &ResolvedStop{ID: "place-d", ChildIDs: []string{"d-platform"}}
	arrive := &ResolvedStop{ID: "place-a", ChildIDs: []string{"a-platform"}}

	network := &fakeNetwork{
		routeStops: map[string][]string{
			"CR-Providence": {"place-d", "place-a"},
		},
		schedules: map[string]string{
			"CR-Providence": `{"data": [` +
				scheduleJSON("s1", "t1", "CR-Providence", "d-platform", 2, "2026-08-31T09:00:00-04:00", "2026-08-31T09:01:00-04:00") + "," +
				scheduleJSON("s2", "t1", "CR-Providence", "a-platform", 6, "2026-08-31T09:31:00-04:00", "2026-08-31T09:32:00-04:00") +
				`]}`,
		},
	}
	discoverer := newDiscoverer(t, network)

	pattern, err := discoverer.Discover(context.Background(), depart, arrive)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, pattern.Duration)
}

func TestBetterPatternTieBreaks(t *testing.T) {
	faster := &Pattern{Route: mbta.Route{ID: "B"}, Duration: 20 * time.Minute, TripsPerDay: 1}
	slower := &Pattern{Route: mbta.Route{ID: "A"}, Duration: 30 * time.Minute, TripsPerDay: 9}
	assert.True(t, betterPattern(faster, slower))
	assert.False(t, betterPattern(slower, faster))

	frequent := &Pattern{Route: mbta.Route{ID: "B"}, Duration: 20 * time.Minute, TripsPerDay: 9}
	assert.True(t, betterPattern(frequent, faster))

	lexical := &Pattern{Route: mbta.Route{ID: "A"}, Duration: 20 * time.Minute, TripsPerDay: 9}
	assert.True(t, betterPattern(lexical, frequent))
}
