package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Cache wraps the shared redis client behind a circuit breaker. Every call is
// best effort: while redis is down or the breaker is open, reads report a
// miss and writes are dropped, so callers fall back to their store path
// without surfacing an error.
type Cache struct {
	rdb *redis.Client
	cb  *gobreaker.CircuitBreaker[any]
}

func NewCache(rdb *redis.Client) *Cache {
	settings := gobreaker.Settings{
		Name:    "redis",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// A missing key is a miss, not a redis failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	}
	return &Cache{rdb: rdb, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Get returns the cached value and whether it was present. Misses, redis
// errors and an open breaker all read the same way.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.cb.Execute(func() (any, error) {
		return c.rdb.Get(ctx, key).Result()
	})
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key with the given TTL; reports whether the write
// actually happened.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.rdb.Set(ctx, key, value, ttl).Err()
	})
	return err == nil
}

// Increment bumps a counter, arming the TTL on first use. ok=false means the
// cache is unavailable and the caller should decide without it.
func (c *Cache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	v, err := c.cb.Execute(func() (any, error) {
		n, err := c.rdb.Incr(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if n == 1 && ttl > 0 {
			if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
				return nil, err
			}
		}
		return n, nil
	})
	if err != nil {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Available probes redis liveness through the breaker.
func (c *Cache) Available(ctx context.Context) bool {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.rdb.Ping(ctx).Err()
	})
	return err == nil
}
