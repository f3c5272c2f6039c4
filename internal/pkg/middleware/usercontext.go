package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

const maxUserIDLength = 191

// UserContextMiddleware turns the gateway supplied X-User-ID header into the
// request's user context. Missing or oversized ids leave the request anonymous.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// c.Get aliases the request buffer unless the app is Immutable.
		userID := utils.CopyString(strings.TrimSpace(c.Get(usercontext.HeaderUserID)))
		if userID != "" && len(userID) <= maxUserIDLength {
			usercontext.SetUserContext(c, usercontext.UserContext{
				UserID:     userID,
				IsLoggedIn: true,
			})
		}
		return c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing user id"})
		}
		return c.Next()
	}
}
