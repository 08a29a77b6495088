package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayLedger/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// Config is the Redis connection used for leases and the API rate limiter.
type Config struct {
	Host     string `env:"CACHE_HOST" envDefault:"localhost"`
	Port     int    `env:"CACHE_PORT" envDefault:"6379"`
	Password string `env:"CACHE_PASSWORD"`
	Database int    `env:"CACHE_DB" envDefault:"0"`
}

// LoadConfig reads the cache settings from the environment.
func LoadConfig() Config {
	var cfg Config
	if err := env.Load(&cfg); err != nil {
		log.Warnf("[Cache] Invalid cache configuration, using defaults: %v", err)
		cfg = Config{Host: "localhost", Port: 6379}
	}
	return cfg
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetupCache initializes the connection to the Redis server
func SetupCache() {
	cfg := LoadConfig()
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis at %s: %v", cfg.Addr(), err)
	} else {
		log.Infof("[Cache] Successfully connected to Redis: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}
