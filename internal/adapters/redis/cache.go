package redis

import (
	"github.com/redis/go-redis/v9"
)

// Cache wraps the shared client for the pieces that speak raw Redis, such as
// the rate limiter pipeline.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}
