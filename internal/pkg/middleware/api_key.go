package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

// InternalAPIKeyMiddleware guards endpoints that only the checkout backend may
// call. An empty key disables those endpoints entirely.
func InternalAPIKeyMiddleware(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			log.Warn("[Middleware] Internal endpoint called but INTERNAL_API_KEY is not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not_configured", "message": "Internal API disabled"})
		}

		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		c.Locals(usercontext.KeyInternal, true)
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
