// Package cache keeps wallet balances in Redis for display reads. The
// database stays authoritative: writers invalidate after commit and readers
// repopulate on a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBalanceCache(rdb *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

func balanceKey(userID string) string {
	return fmt.Sprintf("wallet:balance:%s", userID)
}

// Get returns the cached balance and whether it was present.
func (c *BalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading cached balance: %w", err)
	}
	cents, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing cached balance: %w", err)
	}
	return cents, true, nil
}

func (c *BalanceCache) Set(ctx context.Context, userID string, cents int64) error {
	if err := c.rdb.Set(ctx, balanceKey(userID), strconv.FormatInt(cents, 10), c.ttl).Err(); err != nil {
		return fmt.Errorf("caching balance: %w", err)
	}
	return nil
}

func (c *BalanceCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = balanceKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidating cached balances: %w", err)
	}
	return nil
}
