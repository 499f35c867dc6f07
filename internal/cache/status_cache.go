package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-payments/internal/logger"
)

// StatusCache keeps recent gateway poll results in Redis so a client
// hammering the status endpoint does not hammer the gateway. Every
// failure is treated as a miss: a broken cache must never block a poll.
type StatusCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *StatusCache {
	return &StatusCache{Client: client, TTL: ttl, Logger: log}
}

func key(orderNumber string) string {
	return "gateway:status:" + orderNumber
}

func (c *StatusCache) Get(ctx context.Context, orderNumber string) (string, bool) {
	val, err := c.Client.Get(ctx, key(orderNumber)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("get status for %s: %v", orderNumber, err))
		return "", false
	}
	return val, true
}

func (c *StatusCache) Set(ctx context.Context, orderNumber, transactionStatus string) {
	if err := c.Client.Set(ctx, key(orderNumber), transactionStatus, c.TTL).Err(); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("cache status for %s: %v", orderNumber, err))
	}
}
