package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/synapse/internal/models"
)

const HeaderAdminKey = "X-Admin-Key"

// RequireAdmin checks the X-Admin-Key header against a bcrypt hash. An empty
// hash disables the admin API.
func RequireAdmin(keyHash string) fiber.Handler {
	hash := []byte(keyHash)
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse{
				Error: "admin api disabled",
				Code:  models.CodeAdminDisabled,
			})
		}
		key := c.Get(HeaderAdminKey)
		if key == "" || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
			log.Printf("[ADMIN] rejected key from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
				Error: "invalid admin key",
				Code:  models.CodeForbidden,
			})
		}
		return c.Next()
	}
}
