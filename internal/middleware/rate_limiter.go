package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/yourorg/synapse/internal/models"
)

// ============================================================================
// RATE LIMITING
// ============================================================================
// Per-IP sliding windows. The unlock endpoint is the one worth guessing
// against, so it gets the tightest budget.

func limitReached(message string, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderRetryAfter, fmt.Sprint(int(window.Seconds())))
		return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
			Error: message,
			Code:  models.CodeRateLimited,
		})
	}
}

func ipLimiter(max int, window time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached:      limitReached(message, window),
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// UnlockRateLimiter bounds token attempts per IP.
func UnlockRateLimiter(max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return ipLimiter(max, window, "too many unlock attempts, try again later")
}

// APIRateLimiter is the general budget for browsing endpoints.
func APIRateLimiter() fiber.Handler {
	return ipLimiter(200, time.Minute, "rate limit exceeded")
}

// AdminRateLimiter guards the admin key against guessing.
func AdminRateLimiter() fiber.Handler {
	return ipLimiter(30, time.Minute, "too many admin requests")
}
