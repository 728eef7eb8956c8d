package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler is the liveness endpoint. It also reports how many map
// sessions this replica holds.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		sessions := 0
		if deps.Maps != nil {
			sessions = len(deps.Maps.Sessions())
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"uptime":   time.Since(startedAt).String(),
			"sessions": sessions,
			"version":  "dev",
		})
	}
}

var errDisconnected = errors.New("disconnected")

// readinessCheck tests one dependency. A nil run means the dependency
// is not configured.
type readinessCheck struct {
	name     string
	required bool
	run      func(ctx context.Context) error
}

func readinessChecks(deps *Dependencies) []readinessCheck {
	checks := []readinessCheck{
		{name: "database", required: true},
		{name: "nats"},
		{name: "cache"},
	}
	if deps.DB != nil {
		checks[0].run = deps.DB.Ping
	}
	if deps.NATS != nil {
		checks[1].run = func(context.Context) error {
			if !deps.NATS.IsConnected() {
				return errDisconnected
			}
			return nil
		}
	}
	if deps.Cache != nil {
		checks[2].run = deps.Cache.Ping
	}
	return checks
}

// ReadyHandler is the readiness endpoint. The tracking database is required.
// NATS and the cache only fail readiness when configured and unhealthy.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		results := make(map[string]string)
		ready := true
		for _, chk := range readinessChecks(deps) {
			switch {
			case chk.run == nil:
				results[chk.name] = "not configured"
				ready = ready && !chk.required
			default:
				if err := chk.run(ctx); err != nil {
					results[chk.name] = "error: " + err.Error()
					ready = false
				} else {
					results[chk.name] = "ok"
				}
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
