package redisx

import "time"

const (
	// Price facts: price:product:{id} / price:variant:{id} -> PriceFact JSON
	KeyPriceProduct = "price:product:%s"
	KeyPriceVariant = "price:variant:%s"

	// Idempotency fast-path: idem:checkout:{user_id}:{token} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Fixed-window rate limit counter: rl:{route}:{caller}
	KeyRateLimit = "rl:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup     = 48 * time.Hour
	TTLRateLimit = time.Minute
)
