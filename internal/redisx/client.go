package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// New builds the shared-cache client. Timeouts are short on purpose: every
// caller treats redis as advisory, so a slow cache should turn into a miss
// rather than hold a checkout open.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
