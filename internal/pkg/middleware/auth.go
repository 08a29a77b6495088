package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

// RequireAPIAuth ensures an identified user for API routes and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAPIAdmin ensures an admin caller.
func RequireAPIAdmin(c *fiber.Ctx) error {
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin access required",
		})
	}
	return c.Next()
}
