package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/transconnect/booking-engine/internal/adapters/redis"
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow fails open when Redis is unreachable so a cache outage cannot take
// bookings down with it.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	if rl == nil || rl.redis == nil {
		return true
	}
	fullKey := "rl:" + key

	count, err := rl.redis.Client().Incr(ctx, fullKey).Result()
	if err != nil {
		return true
	}
	// The TTL is set once, anchoring the window to the first request.
	// Refreshing it on every hit would keep a steady client's counter alive
	// indefinitely.
	if count == 1 {
		rl.redis.Client().Expire(ctx, fullKey, period)
	}
	return count <= int64(rate)
}
