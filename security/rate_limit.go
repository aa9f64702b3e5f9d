package security

import (
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// PerUserLimit returns a middleware that caps requests per authenticated
// user (falling back to remote IP) in a fixed one-minute window. Redis
// failures let the request through: rate limiting is protection, not a
// correctness requirement.
func (r *RateLimiter) PerUserLimit(name string, max int64) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		id := e.RealIP()
		if e.Auth != nil {
			id = e.Auth.Id
		}
		key := fmt.Sprintf("ratelimit:%s:%s", name, id)

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, time.Minute)
			}
			if count > max {
				return e.JSON(429, map[string]string{
					"error": "Too many requests. Please try again later.",
				})
			}
		}

		return e.Next()
	}
}
