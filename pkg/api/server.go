package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mbtalive/mbtalive/pkg/apicache"
	"github.com/mbtalive/mbtalive/pkg/tracker"
)

// SetupServer serves the read-only projection of every tracked journey
func SetupServer(listen string, manager *tracker.Manager, stats *apicache.Statistics) error {
	return newApp(manager, stats).Listen(listen)
}

func newApp(manager *tracker.Manager, stats *apicache.Statistics) *fiber.App {
	webApp := fiber.New()
	webApp.Use(NewLogger())

	group := webApp.Group("/live")

	group.Get("version", APIVersion(stats))

	JourneysRouter(group.Group("/journeys"), manager)

	return webApp
}
