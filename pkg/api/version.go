package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mbtalive/mbtalive/pkg/apicache"
)

// APIVersion reports the API version along with the upstream cache counters,
// the quickest way to see whether a deployment is hitting the MBTA API
// harder than expected
func APIVersion(stats *apicache.Statistics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requests, hits, misses, stale, dedups := stats.Snapshot()

		return c.JSON(fiber.Map{
			"version": "1.0",
			"cache": fiber.Map{
				"requests":     requests,
				"hits":         hits,
				"misses":       misses,
				"stale_serves": stale,
				"deduplicated": dedups,
			},
		})
	}
}
