package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PayLedger/internal/pkg/usercontext"
)

// AdminConfig holds the shared secret operators present to reach admin routes.
type AdminConfig struct {
	APIKey string `env:"ADMIN_API_KEY"`
}

func extractAdminKey(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get(usercontext.HeaderAdminKey))
	if key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// adminKeyMatches compares in constant time. An unset configured key never matches.
func adminKeyMatches(presented, configured string) bool {
	if presented == "" || configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
