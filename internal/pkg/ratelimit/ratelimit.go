package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/AgencyHub/internal/pkg/cache"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/env"
)

// storageDatabase keeps limiter counters away from the order queue in DB 0.
const storageDatabase = 3

// NewStorage returns a Redis storage for limiter counters that shares the
// address and password of the cache client.
func NewStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: storageDatabase,
		Reset:    false,
	})
}

// New limits requests per client IP. RATE_LIMIT_MAX requests are allowed per
// RATE_LIMIT_WINDOW_SECONDS; a nil storage keeps counters in memory.
func New(storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 120),
		Expiration: time.Duration(env.GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}
