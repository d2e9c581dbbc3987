package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters outlive their day a little so late increments near midnight land.
const usageKeyTTL = 48 * time.Hour

// RedisUsage counts chat requests per user per UTC day.
type RedisUsage struct {
	client *redis.Client
}

func NewRedisUsage(client *redis.Client) *RedisUsage {
	return &RedisUsage{client: client}
}

func usageKey(userID, day string) string {
	return "usage:" + userID + ":" + day
}

func (u *RedisUsage) Count(ctx context.Context, userID, day string) (int, error) {
	n, err := u.client.Get(ctx, usageKey(userID, day)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage get: %w", err)
	}
	return n, nil
}

func (u *RedisUsage) Increment(ctx context.Context, userID, day string) error {
	key := usageKey(userID, day)
	pipe := u.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, usageKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}
