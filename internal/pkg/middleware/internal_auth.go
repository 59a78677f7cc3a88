package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tipcast/tipcast/internal/pkg/env"
)

// InternalAuthMiddleware guards trusted internal endpoints with a shared
// secret header. Requests without a configured secret are always rejected so
// a missing env var never opens the endpoint.
func InternalAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("INTERNAL_API_SECRET", "")
		if secret == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Internal API disabled"})
		}

		presented := strings.TrimSpace(c.Get("X-Internal-Secret"))
		if presented == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid internal secret"})
		}

		return c.Next()
	}
}
