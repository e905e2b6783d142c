package middleware

import (
	"fmt"

	"lcsec_server/pkg/apperr"
	"lcsec_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RateLimit throttles per client IP using the Redis sliding window limiter.
// The limiter fails open without Redis, so this middleware never blocks
// predictions when the throttle backend is down.
func RateLimit(limiter *ratelimit.SlidingWindowLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, wait := limiter.Allow(c.UserContext(), c.IP())
		if allowed {
			return c.Next()
		}

		if wait > 0 {
			c.Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
		}
		return apperr.ErrRateLimited
	}
}
