package tracker

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbtalive/mbtalive/pkg/apicache"
	"github.com/mbtalive/mbtalive/pkg/config"
	"github.com/mbtalive/mbtalive/pkg/mbta"
)

// populateNetwork fills the feed with everything Setup needs: the stop
// catalog, a commuter rail route serving both stations and a day of schedules
func populateNetwork(feed *fakeFeed, base time.Time) {
	feed.stops = `{"data": [
		{"id": "place-d", "type": "stop", "attributes": {"name": "Departure Station", "location_type": 1}},
		{"id": "d-1", "type": "stop", "attributes": {"name": "Departure Station", "platform_name": "Track 1"}, "relationships": {"parent_station": {"data": {"id": "place-d", "type": "stop"}}}},
		{"id": "place-a", "type": "stop", "attributes": {"name": "Arrival Station", "location_type": 1}},
		{"id": "a-1", "type": "stop", "attributes": {"name": "Arrival Station", "platform_name": "Track 5"}, "relationships": {"parent_station": {"data": {"id": "place-a", "type": "stop"}}}}
	]}`

	feed.routes = `{"data": [{
		"id": "CR-Test",
		"type": "route",
		"attributes": {"long_name": "Test Line", "type": 2, "direction_names": ["Outbound", "Inbound"], "direction_destinations": ["Wickford Junction", "South Station"]}
	}]}`

	populateFeed(feed, base)
}

func newTestManager(t *testing.T, feed *fakeFeed) *Manager {
	t.Helper()

	server := httptest.NewServer(feed.handler())
	t.Cleanup(server.Close)

	client := mbta.NewClient("", apicache.NewService(apicache.Options{RequestsPerStatsReport: -1}))
	client.BaseURL = server.URL

	return NewManager(client, 50*time.Millisecond)
}

func TestManagerStartAndStop(t *testing.T) {
	feed := newFakeFeed()
	populateNetwork(feed, time.Now())

	manager := newTestManager(t, feed)
	t.Cleanup(manager.Stop)

	err := manager.Start(context.Background(), []config.JourneyConfig{
		{Name: "Commute", DepartFrom: "Departure Station", ArriveAt: "Arrival Station", MaxTrips: 2},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, ok := manager.Journey("Commute")
		return ok && snapshot.State == StateActive
	}, 5*time.Second, 20*time.Millisecond)

	snapshot, ok := manager.Journey("Commute")
	require.True(t, ok)
	require.NotNil(t, snapshot.Generation)
	assert.Len(t, snapshot.Generation.Entities, 2)
	assert.Equal(t, "trip-express", snapshot.Generation.Entities[0].TripID)

	assert.Len(t, manager.Journeys(), 1)

	_, ok = manager.Journey("Unknown")
	assert.False(t, ok)
}

func TestManagerStartAbortsOnBadJourney(t *testing.T) {
	feed := newFakeFeed()
	populateNetwork(feed, time.Now())

	manager := newTestManager(t, feed)
	t.Cleanup(manager.Stop)

	err := manager.Start(context.Background(), []config.JourneyConfig{
		{Name: "Good", DepartFrom: "Departure Station", ArriveAt: "Arrival Station", MaxTrips: 2},
		{Name: "Bad", DepartFrom: "Nowhere Junction", ArriveAt: "Arrival Station", MaxTrips: 2},
	})
	require.Error(t, err)

	// A failed start leaves nothing running
	assert.Empty(t, manager.Journeys())
}

func TestManagerReconfigure(t *testing.T) {
	feed := newFakeFeed()
	populateNetwork(feed, time.Now())

	manager := newTestManager(t, feed)
	t.Cleanup(manager.Stop)

	err := manager.Start(context.Background(), []config.JourneyConfig{
		{Name: "Commute", DepartFrom: "Departure Station", ArriveAt: "Arrival Station", MaxTrips: 2},
	})
	require.NoError(t, err)

	err = manager.Reconfigure(context.Background(), config.JourneyConfig{
		Name: "Commute", DepartFrom: "Departure Station", ArriveAt: "Arrival Station", MaxTrips: 1,
	})
	require.NoError(t, err)

	snapshot, ok := manager.Journey("Commute")
	require.True(t, ok)
	assert.Equal(t, 1, snapshot.Journey.MaxTrips)
	assert.Len(t, manager.Journeys(), 1)
}
