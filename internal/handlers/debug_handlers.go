package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/debug"
	"github.com/yourorg/synapse/internal/models"
)

const maxClientLogLength = 2000

// ClientLogRequest is a log line reported by the browser client.
type ClientLogRequest struct {
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DebugHandler forwards client logs to the dashboard.
type DebugHandler struct {
	hub *debug.Hub
}

func NewDebugHandler(hub *debug.Hub) *DebugHandler {
	return &DebugHandler{hub: hub}
}

// ReceiveClientLog handles POST /api/debug/log.
func (h *DebugHandler) ReceiveClientLog(c *fiber.Ctx) error {
	if !h.hub.Enabled() {
		return c.JSON(fiber.Map{"status": "disabled"})
	}
	var req ClientLogRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid json", Code: models.CodeInvalidRequest})
	}
	switch req.Level {
	case "debug", "info", "warn", "error":
	default:
		req.Level = "info"
	}
	req.Message = strings.TrimSpace(req.Message)
	if len(req.Message) > maxClientLogLength {
		req.Message = req.Message[:maxClientLogLength]
	}
	h.hub.SendLog("client", req.Level, req.Message, req.Metadata)
	return c.JSON(fiber.Map{"status": "ok"})
}
