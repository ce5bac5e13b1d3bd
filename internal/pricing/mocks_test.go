package pricing

import (
	"context"
	"time"
)

// fakeCache is an in-memory stand-in for the redis cache. Setting down makes
// every call behave like an outage: reads miss, writes drop.
type fakeCache struct {
	data map[string]string
	down bool
	sets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	if c.down {
		return "", false
	}
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) bool {
	if c.down {
		return false
	}
	c.sets++
	c.data[key] = value
	return true
}

// fakeCatalog serves fixed price maps and counts queries so tests can assert
// the cache actually short-circuits store reads.
type fakeCatalog struct {
	products map[string]float64
	variants map[string]*float64

	productCalls int
	variantCalls int
	err          error
}

func (c *fakeCatalog) ProductPrices(_ context.Context, ids []string) (map[string]float64, error) {
	c.productCalls++
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *fakeCatalog) VariantPrices(_ context.Context, ids []string) (map[string]*float64, error) {
	c.variantCalls++
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]*float64, len(ids))
	for _, id := range ids {
		if p, ok := c.variants[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }
