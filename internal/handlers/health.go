package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/catalog"
	"github.com/yourorg/synapse/internal/debug"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/models"
)

// HealthHandler reports the state of the token store and question bank.
type HealthHandler struct {
	gate    *gate.Service
	catalog *catalog.Catalog
	hub     *debug.Hub
	version string
}

func NewHealthHandler(g *gate.Service, c *catalog.Catalog, hub *debug.Hub, version string) *HealthHandler {
	return &HealthHandler{gate: g, catalog: c, hub: hub, version: version}
}

// Health handles GET /api/health. A down token store makes the service
// unhealthy (every unlock is denied); an unloaded catalog only degrades it.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services := make(map[string]string)
	overall := "healthy"
	status := fiber.StatusOK

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.gate.Ping(ctx); err != nil {
		services["token_store"] = "unhealthy: " + err.Error()
		overall = "unhealthy"
		status = fiber.StatusServiceUnavailable
	} else {
		services["token_store"] = "healthy"
	}

	st := h.catalog.Status()
	switch {
	case st.Loaded && st.LastError == "":
		services["catalog"] = "healthy"
	case st.Loaded:
		services["catalog"] = "stale: " + st.LastError
	default:
		services["catalog"] = "not_loaded"
	}
	if overall == "healthy" && services["catalog"] != "healthy" {
		overall = "degraded"
	}

	if h.hub.Enabled() {
		services["debug_dashboard"] = "enabled"
	}

	return c.Status(status).JSON(models.HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Catalog:   st,
		Version:   h.version,
	})
}
