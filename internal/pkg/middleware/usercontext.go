package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayLedger/app/models"
	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

// UserLookup resolves the user named by the identity header.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// UserContextMiddleware sets up the user context for every request. Identity comes from
// the X-User-ID header of the gateway; an admin role on that user or a valid admin key
// marks the request as admin.
func UserContextMiddleware(users UserLookup, admin AdminConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.UserContext{}
		if adminKeyMatches(extractAdminKey(c), admin.APIKey) {
			uc.IsAdmin = true
		}

		raw := strings.TrimSpace(c.Get(usercontext.HeaderUserID))
		if raw == "" {
			usercontext.SetUserContext(c, uc)
			return c.Next()
		}

		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid user id"})
		}
		user, err := users.GetByID(uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Unknown user"})
			}
			log.Errorf("[Auth] User lookup for %d failed: %v", id, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User lookup failed"})
		}
		if !user.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		uc.UserID = user.ID
		uc.Username = user.Name
		uc.IsLoggedIn = true
		uc.IsAdmin = uc.IsAdmin || user.IsAdmin()
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}
