package cache

import (
	"context"
	"fmt"
	"time"
)

// CooldownStore rate-limits published insights per user and metric
type CooldownStore struct {
	redis *RedisClient
}

// NewCooldownStore creates a new cooldown store; a nil client disables cooldowns
func NewCooldownStore(redis *RedisClient) *CooldownStore {
	return &CooldownStore{
		redis: redis,
	}
}

// CooldownKey returns the Redis key guarding one user's metric
func CooldownKey(userID, metricType string) string {
	return fmt.Sprintf("insights:cooldown:%s:%s", userID, metricType)
}

// Claim starts a cooldown unless one is already running.
// Returns true when the caller may publish. Without Redis every claim succeeds.
func (c *CooldownStore) Claim(ctx context.Context, userID, metricType string, ttl time.Duration) (bool, error) {
	if c.redis == nil || ttl <= 0 {
		return true, nil
	}

	return c.redis.SetNX(ctx, CooldownKey(userID, metricType), time.Now().Unix(), ttl)
}

// Remaining returns how long the cooldown still runs; zero when none is active
func (c *CooldownStore) Remaining(ctx context.Context, userID, metricType string) time.Duration {
	if c.redis == nil {
		return 0
	}
	return c.redis.TTL(ctx, CooldownKey(userID, metricType))
}
