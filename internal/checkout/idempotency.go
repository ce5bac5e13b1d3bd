package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

type OrderSource interface {
	FindByToken(ctx context.Context, userID, token string) (*orders.Order, error)
	GetByID(ctx context.Context, id string) (*orders.Order, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
}

// Resolver answers "has this (user, token) checkout already happened?".
// The cache is a fast path only; the store decides. A cache entry pointing
// at a missing order falls through to the store rather than erroring, since
// the entry may outlive a rolled-back write.
type Resolver struct {
	Orders OrderSource
	Cache  Cache
	TTL    time.Duration
}

// Resolve returns the previously materialized order for the token, or nil
// when the token is unseen. An empty token never matches anything.
func (r *Resolver) Resolve(ctx context.Context, userID, token string) (*orders.Order, error) {
	if token == "" {
		return nil, nil
	}

	key := fmt.Sprintf(redisx.KeyIdemCheckout, userID, token)
	if id, ok := r.Cache.Get(ctx, key); ok {
		o, err := r.Orders.GetByID(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
	}

	o, err := r.Orders.FindByToken(ctx, userID, token)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.Cache.Set(ctx, key, o.ID, r.TTL)
	return o, nil
}
