package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the caller identity forwarded by the gateway
type UserContext struct {
	UserID     string `json:"user_id"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// SetUserContext stores ctx on the request.
func SetUserContext(c *fiber.Ctx, ctx UserContext) {
	c.Locals(KeyUserContext, ctx)
}

// IsLoggedIn checks if the current request carries a user id
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or empty string if anonymous
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// IsInternal reports whether the request passed the internal API key check.
func IsInternal(c *fiber.Ctx) bool {
	v, _ := c.Locals(KeyInternal).(bool)
	return v
}
