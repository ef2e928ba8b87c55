package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/binding"
	"github.com/yourorg/synapse/internal/fingerprint"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/middleware"
	"github.com/yourorg/synapse/internal/models"
	"github.com/yourorg/synapse/internal/session"
	"github.com/yourorg/synapse/internal/validation"
)

const deviceCookieTTL = 400 * 24 * time.Hour

// GateHandler serves the unlock screen API.
type GateHandler struct {
	gate         *gate.Service
	sessions     *session.Manager
	devices      fingerprint.Resolver
	metrics      *metrics.Metrics
	cookieSecure bool
}

func NewGateHandler(g *gate.Service, sessions *session.Manager, devices fingerprint.Resolver, m *metrics.Metrics, cookieSecure bool) *GateHandler {
	return &GateHandler{
		gate:         g,
		sessions:     sessions,
		devices:      devices,
		metrics:      m,
		cookieSecure: cookieSecure,
	}
}

// Unlock handles POST /api/gate/unlock.
func (h *GateHandler) Unlock(c *fiber.Ctx) error {
	var req models.UnlockRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid json", Code: models.CodeInvalidRequest})
	}
	if err := validation.ValidateToken(req.Token); err != nil {
		return writeError(c, err)
	}
	if raw := c.Get(fingerprint.HeaderDeviceID); raw != "" {
		if err := validation.ValidateDeviceID(raw); err != nil {
			return writeError(c, err)
		}
	}

	device := h.devices.Resolve(c)
	if device.Issued {
		h.setDeviceCookie(c, device.ClientID)
	}

	res, err := h.gate.Unlock(c.UserContext(), req.Token, device.ID)
	if err != nil {
		return writeError(c, err)
	}

	raw, expires, err := h.sessions.Issue(gate.Digest(strings.TrimSpace(req.Token)), device.ID)
	if err != nil {
		return writeError(c, err)
	}
	h.metrics.Inc(metrics.SessionsIssued)
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    raw,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	c.Set(fiber.HeaderCacheControl, "no-store")

	message := "welcome back"
	if res.Outcome == binding.NewDevice {
		message = "device registered"
	}
	return c.JSON(models.UnlockResponse{
		Status:       res.Outcome.String(),
		Session:      raw,
		ExpiresAt:    expires,
		DeviceSource: device.Source,
		Message:      message,
	})
}

// Logout handles POST /api/gate/logout. The device cookie is kept so the
// device stays recognisable.
func (h *GateHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// Session handles GET /api/gate/session.
func (h *GateHandler) Session(c *fiber.Ctx) error {
	raw := middleware.SessionToken(c)
	if raw == "" {
		return c.JSON(models.SessionStatus{Reason: models.CodeSessionRequired})
	}
	device := h.devices.Peek(c)
	if device.ID == "" {
		return c.JSON(models.SessionStatus{Reason: models.CodeSessionRequired})
	}
	claims, err := h.sessions.Verify(raw, device.ID)
	if err != nil {
		reason := models.CodeSessionInvalid
		if errors.Is(err, session.ErrDeviceChanged) {
			reason = models.CodeDeviceMismatch
		}
		return c.JSON(models.SessionStatus{Reason: reason})
	}
	return c.JSON(models.SessionStatus{
		Authenticated: true,
		DeviceSource:  device.Source,
		ExpiresAt:     claims.ExpiresAt.Time,
	})
}

func (h *GateHandler) setDeviceCookie(c *fiber.Ctx, id string) {
	c.Cookie(&fiber.Cookie{
		Name:     fingerprint.CookieDeviceID,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(deviceCookieTTL),
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
