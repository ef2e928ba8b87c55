package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/debug"
)

// DashboardLogger mirrors every request to the debug dashboard.
func DashboardLogger(hub *debug.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !hub.Enabled() {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		level := "info"
		switch {
		case status >= 500:
			level = "error"
		case status >= 400:
			level = "warn"
		}

		path := c.Path()
		hub.SendLog(sourceFor(path), level, fmt.Sprintf("%s %s", c.Method(), path), map[string]any{
			"method":      c.Method(),
			"path":        path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"ip":          c.IP(),
		})
		return err
	}
}

func sourceFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/gate"):
		return "gate"
	case strings.HasPrefix(path, "/api/questions"):
		return "catalog"
	case strings.HasPrefix(path, "/api/admin"):
		return "admin"
	default:
		return "http"
	}
}
