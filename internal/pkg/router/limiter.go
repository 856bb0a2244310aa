package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/cache"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/usercontext"
)

// limiterDatabase keeps rate limit counters apart from the cache (DB 0).
const limiterDatabase = 1

func limiterConfig() limiter.Config {
	limit, err := strconv.Atoi(env.GetEnv("API_RATE_LIMIT", "120"))
	if err != nil || limit <= 0 {
		limit = 120
	}
	cfg := limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if actor := c.Get(usercontext.HeaderActor); actor != "" {
				return "actor:" + actor
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded, please retry later",
			})
		},
	}
	if env.GetEnv("API_RATE_LIMIT_STORAGE", "redis") == "redis" {
		cfg.Storage = newLimiterStorage()
	}
	return cfg
}

// newLimiterStorage shares counters between instances through Redis.
func newLimiterStorage() fiber.Storage {
	opts := cache.Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	log.Infof("[Router] Using Redis rate limit storage at %s:%d/%d", host, port, limiterDatabase)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
