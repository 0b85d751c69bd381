package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mbtalive/mbtalive/pkg/sensor"
	"github.com/mbtalive/mbtalive/pkg/tracker"
)

func JourneysRouter(router fiber.Router, manager *tracker.Manager) {
	router.Get("/", listJourneys(manager))
	router.Get("/:name", getJourney(manager))
}

type journeyResponse struct {
	Name      string              `json:"name"`
	State     tracker.State       `json:"state"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	Stale     bool                `json:"stale"`
	Entities  []sensor.Projection `json:"entities"`
}

func listJourneys(manager *tracker.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		now := time.Now()

		journeys := []journeyResponse{}
		for _, snapshot := range manager.Journeys() {
			journeys = append(journeys, journeyFromSnapshot(snapshot, now))
		}

		return c.JSON(journeys)
	}
}

func getJourney(manager *tracker.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot, ok := manager.Journey(c.Params("name"))
		if !ok {
			c.SendStatus(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "No journey with that name",
			})
		}

		return c.JSON(journeyFromSnapshot(snapshot, time.Now()))
	}
}

func journeyFromSnapshot(snapshot tracker.JourneySnapshot, now time.Time) journeyResponse {
	response := journeyResponse{
		Name:     snapshot.Name,
		State:    snapshot.State,
		Entities: sensor.ProjectGeneration(snapshot.Generation, now),
	}
	if snapshot.Generation != nil {
		updatedAt := snapshot.Generation.UpdatedAt
		response.UpdatedAt = &updatedAt
		response.Stale = snapshot.Generation.Stale
	}

	return response
}
