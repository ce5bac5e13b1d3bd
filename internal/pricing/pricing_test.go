package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

func newReconciler(cache *fakeCache, catalog *fakeCatalog) *Reconciler {
	return &Reconciler{
		Cache:     cache,
		Catalog:   catalog,
		TTL:       30 * time.Minute,
		Tolerance: 0.005,
	}
}

func TestReconcileFetchesAndCaches(t *testing.T) {
	cache := newFakeCache()
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 25.00}}
	r := newReconciler(cache, catalog)

	lines := []carts.Line{{ID: "l1", ProductID: "prod-1", Quantity: 2, UnitPriceSnapshot: 25.00}}

	facts, err := r.Reconcile(context.Background(), lines)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 25.00, facts[0].UnitPrice)
	assert.Equal(t, "l1", facts[0].Line.ID)
	assert.Equal(t, 1, catalog.productCalls)

	_, cached := cache.Get(context.Background(), fmt.Sprintf(redisx.KeyPriceProduct, "prod-1"))
	assert.True(t, cached, "fresh fact should be written back")

	// Second pass is served entirely from cache.
	_, err = r.Reconcile(context.Background(), lines)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.productCalls)
}

func TestReconcileVariantOverridesProduct(t *testing.T) {
	variantID := "var-1"
	cache := newFakeCache()
	catalog := &fakeCatalog{
		products: map[string]float64{"prod-1": 25.00},
		variants: map[string]*float64{"var-1": ptr(30.00)},
	}
	r := newReconciler(cache, catalog)

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", VariantID: &variantID, Quantity: 1, UnitPriceSnapshot: 30.00},
	})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 30.00, facts[0].UnitPrice)
	assert.Equal(t, 1, catalog.variantCalls)
}

func TestReconcileVariantWithoutOwnPriceInheritsProduct(t *testing.T) {
	variantID := "var-1"
	cache := newFakeCache()
	catalog := &fakeCatalog{
		products: map[string]float64{"prod-1": 25.00},
		variants: map[string]*float64{"var-1": nil},
	}
	r := newReconciler(cache, catalog)

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", VariantID: &variantID, Quantity: 1, UnitPriceSnapshot: 25.00},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, facts[0].UnitPrice)
}

func TestReconcileUnknownSubjectDrifts(t *testing.T) {
	cache := newFakeCache()
	catalog := &fakeCatalog{}
	r := newReconciler(cache, catalog)

	_, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-gone", Quantity: 1, UnitPriceSnapshot: 12.00},
	})

	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, "prod-gone", drift.ProductID)
	assert.Equal(t, 12.00, drift.Remembered)
	assert.Equal(t, 0.00, drift.Authoritative)
}

func TestReconcileToleranceBoundary(t *testing.T) {
	cache := newFakeCache()
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 25.00}}
	r := newReconciler(cache, catalog)

	// Inside the tolerance: rounding noise, not a price change.
	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.004},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, facts[0].UnitPrice, "charged price is the authoritative one")

	// Beyond it: reject.
	_, err = r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.01},
	})
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, 25.01, drift.Remembered)
	assert.Equal(t, 25.00, drift.Authoritative)
}

func TestReconcileExactToleranceIsNotDrift(t *testing.T) {
	// Comparison is strictly greater-than, so a difference of exactly the
	// tolerance still passes. 0.25 keeps the arithmetic exact in binary.
	cache := newFakeCache()
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 25.00}}
	r := &Reconciler{Cache: cache, Catalog: catalog, TTL: time.Minute, Tolerance: 0.25}

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.25},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, facts[0].UnitPrice)

	_, err = r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.26},
	})
	var drift *DriftError
	require.ErrorAs(t, err, &drift)
}

func TestReconcileCacheDownFallsBackToStore(t *testing.T) {
	cache := newFakeCache()
	cache.down = true
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 25.00}}
	r := newReconciler(cache, catalog)

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.00},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, facts[0].UnitPrice)
	assert.Equal(t, 1, catalog.productCalls)
}

func TestReconcileCorruptEntryRefetches(t *testing.T) {
	cache := newFakeCache()
	cache.data[fmt.Sprintf(redisx.KeyPriceProduct, "prod-1")] = "{not json"
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 25.00}}
	r := newReconciler(cache, catalog)

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.00},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.00, facts[0].UnitPrice)
	assert.Equal(t, 1, catalog.productCalls, "corrupt entry counts as a miss")
}

func TestReconcileStoreErrorPropagates(t *testing.T) {
	cache := newFakeCache()
	catalog := &fakeCatalog{err: errors.New("pg down")}
	r := newReconciler(cache, catalog)

	_, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 25.00},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch prices")
}

func TestReconcileDedupesSubjectsAcrossLines(t *testing.T) {
	cache := newFakeCache()
	catalog := &fakeCatalog{products: map[string]float64{"prod-1": 10.00}}
	r := newReconciler(cache, catalog)

	facts, err := r.Reconcile(context.Background(), []carts.Line{
		{ID: "l1", ProductID: "prod-1", Quantity: 1, UnitPriceSnapshot: 10.00},
		{ID: "l2", ProductID: "prod-1", Quantity: 3, UnitPriceSnapshot: 10.00},
	})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, 1, catalog.productCalls)
	assert.Equal(t, "l1", facts[0].Line.ID)
	assert.Equal(t, "l2", facts[1].Line.ID)
}
