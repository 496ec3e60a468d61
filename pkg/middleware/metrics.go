package middleware

import (
	"time"

	"memchat/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records every request by its route pattern, not its raw path, to
// keep label cardinality bounded.
func Metrics(collector *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		collector.RecordHTTP(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
