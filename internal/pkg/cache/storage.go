package cache

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
)

// NewLimiterStorage returns fiber storage for the API rate limiter. It uses the
// database after the cache database so limiter keys never mix with leases.
func NewLimiterStorage() fiber.Storage {
	cfg := LoadConfig()
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: cfg.Database + 1,
		Reset:    false,
	})
}
