package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/metrics"
)

// MetricsHandler exposes the gate counters.
type MetricsHandler struct {
	metrics *metrics.Metrics
}

func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// Prometheus handles GET /metrics.
func (h *MetricsHandler) Prometheus(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
	return c.SendString(metrics.RenderPrometheus(h.metrics.Snapshot()))
}

// JSON handles GET /api/admin/metrics.
func (h *MetricsHandler) JSON(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot().Named())
}
