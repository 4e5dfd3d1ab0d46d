// Package cache implements the advisory stock-counter fast path
// described in spec.md §4.2. The store is always the source of
// truth; a stale or absent cache value must never be able to cause
// oversell, because every write path re-derives the authoritative
// value under a transaction and overwrites the cache before trusting
// it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the advisory cache lifetime for a product's
// available-stock counter (spec.md §4.2: "design target: 5 minutes"),
// used when NewCoordinator is given a zero ttl.
const DefaultTTL = 5 * time.Minute

// Coordinator is the advisory stock-counter cache.
type Coordinator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCoordinator returns a Coordinator backed by the given Redis
// client, with entries kept for ttl (DefaultTTL if zero). SPEC_FULL.md
// §6.2 exposes this as Config.CacheTTL.
func NewCoordinator(client *redis.Client, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{client: client, ttl: ttl}
}

func key(productID int64) string {
	return fmt.Sprintf("product:%s:available_stock", strconv.FormatInt(productID, 10))
}

// GetAvailable returns the cached value and whether it was present.
// Values are floored at zero on read.
func (c *Coordinator) GetAvailable(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.client.Get(ctx, key(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if val < 0 {
		val = 0
	}
	return val, true, nil
}

// Set overwrites the cached value with an authoritative one, the
// step every write path takes whenever it discovers the cache has
// diverged from the Stock Calculator's answer.
func (c *Coordinator) Set(ctx context.Context, productID int64, available int) error {
	return c.client.Set(ctx, key(productID), available, c.ttl).Err()
}

// Decrement atomically lowers the cached counter by qty. Called under
// the product's advisory lock immediately after a hold is created.
func (c *Coordinator) Decrement(ctx context.Context, productID int64, qty int) (int, error) {
	v, err := c.client.DecrBy(ctx, key(productID), int64(qty)).Result()
	if err != nil {
		return 0, err
	}
	c.client.Expire(ctx, key(productID), c.ttl)
	return int(v), nil
}

// Increment atomically raises the cached counter by qty. Called under
// the product's advisory lock when a hold is released.
func (c *Coordinator) Increment(ctx context.Context, productID int64, qty int) (int, error) {
	v, err := c.client.IncrBy(ctx, key(productID), int64(qty)).Result()
	if err != nil {
		return 0, err
	}
	c.client.Expire(ctx, key(productID), c.ttl)
	return int(v), nil
}

// Invalidate removes the cached value, forcing the next reader to
// recompute from the Stock Calculator.
func (c *Coordinator) Invalidate(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, key(productID)).Err()
}
