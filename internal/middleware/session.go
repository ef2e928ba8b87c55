package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/synapse/internal/fingerprint"
	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/models"
	"github.com/yourorg/synapse/internal/session"
)

const (
	SessionCookie = "synapse_session"
	localsSession = "session"
)

// SessionGuard configures RequireSession. With Strict set every request is
// re-checked against the token store, so a reset or revoked token loses
// access immediately instead of at session expiry.
type SessionGuard struct {
	Sessions *session.Manager
	Devices  fingerprint.Resolver
	Gate     *gate.Service
	Metrics  *metrics.Metrics
	Strict   bool
}

// RequireSession admits requests carrying a session issued to the calling
// device.
func RequireSession(g SessionGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := SessionToken(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: "unlock required",
				Code:  models.CodeSessionRequired,
			})
		}

		device := g.Devices.Peek(c)
		if device.ID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: gate.ErrMissingDevice.Error(),
				Code:  models.CodeSessionRequired,
			})
		}
		claims, err := g.Sessions.Verify(raw, device.ID)
		if err != nil {
			g.Metrics.Inc(metrics.SessionsRejected)
			if errors.Is(err, session.ErrDeviceChanged) {
				return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
					Error: gate.ErrDeviceMismatch.Error(),
					Code:  models.CodeDeviceMismatch,
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: "session expired or invalid",
				Code:  models.CodeSessionInvalid,
			})
		}

		if g.Strict && g.Gate != nil {
			if err := g.Gate.CheckSession(c.UserContext(), claims.TokenDigest, device.ID); err != nil {
				g.Metrics.Inc(metrics.SessionsRejected)
				switch {
				case errors.Is(err, gate.ErrStoreUnavailable):
					log.Printf("[SESSION] strict check failed: %v", err)
					return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
						Error: gate.ErrStoreUnavailable.Error(),
						Code:  models.CodeStoreUnavailable,
					})
				case errors.Is(err, gate.ErrDeviceMismatch):
					return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
						Error: err.Error(),
						Code:  models.CodeDeviceMismatch,
					})
				default:
					return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
						Error: err.Error(),
						Code:  models.CodeSessionInvalid,
					})
				}
			}
		}

		c.Locals(localsSession, claims)
		return c.Next()
	}
}

// SessionToken reads the session from the cookie or a bearer header.
func SessionToken(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Cookies(SessionCookie)); v != "" {
		return v
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Session returns the claims stored by RequireSession.
func Session(c *fiber.Ctx) (*session.Claims, bool) {
	claims, ok := c.Locals(localsSession).(*session.Claims)
	return claims, ok
}
