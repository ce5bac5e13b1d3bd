package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/metrics"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

// Fact is a cached projection of the store's authoritative price for one
// product or variant. A nil UnitPrice on a variant means it sells at its
// product's price.
type Fact struct {
	SubjectKey string    `json:"subject_key"`
	UnitPrice  *float64  `json:"unit_price"`
	ObservedAt time.Time `json:"observed_at"`
}

// LineFact pairs a cart line with the unit price checkout will charge for it.
// The line's remembered snapshot is never used for charging.
type LineFact struct {
	Line      carts.Line
	UnitPrice float64
}

// DriftError reports a cart line whose remembered price differs from the
// authoritative price by more than the tolerance.
type DriftError struct {
	ProductID     string
	VariantID     *string
	Remembered    float64
	Authoritative float64
}

func (e *DriftError) Error() string {
	subject := e.ProductID
	if e.VariantID != nil {
		subject = *e.VariantID
	}
	return fmt.Sprintf("price drift on %s: remembered %.2f, current %.2f", subject, e.Remembered, e.Authoritative)
}

// Cache is the slice of the shared cache this package needs. Both calls are
// best effort: an outage reads as a miss and a dropped write.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
}

// CatalogSource answers the two batched price queries.
type CatalogSource interface {
	ProductPrices(ctx context.Context, ids []string) (map[string]float64, error)
	VariantPrices(ctx context.Context, ids []string) (map[string]*float64, error)
}

// Reconciler resolves the authoritative unit price for every cart line,
// cache first with batched store fallback, and rejects the checkout when a
// line's remembered price has drifted beyond Tolerance. The tolerance only
// absorbs float rounding noise, never a real price change.
type Reconciler struct {
	Cache     Cache
	Catalog   CatalogSource
	Metrics   *metrics.Metrics
	TTL       time.Duration
	Tolerance float64
}

func (r *Reconciler) Reconcile(ctx context.Context, lines []carts.Line) ([]LineFact, error) {
	productIDs, variantIDs := subjects(lines)

	productFacts := make(map[string]Fact, len(productIDs))
	variantFacts := make(map[string]Fact, len(variantIDs))

	missedProducts := r.readCached(ctx, redisx.KeyPriceProduct, productIDs, productFacts)
	missedVariants := r.readCached(ctx, redisx.KeyPriceVariant, variantIDs, variantFacts)

	if err := r.fetchMissing(ctx, missedProducts, missedVariants, productFacts, variantFacts); err != nil {
		return nil, err
	}

	out := make([]LineFact, 0, len(lines))
	for _, l := range lines {
		price := authoritativePrice(l, productFacts, variantFacts)
		if math.Abs(l.UnitPriceSnapshot-price) > r.Tolerance {
			return nil, &DriftError{
				ProductID:     l.ProductID,
				VariantID:     l.VariantID,
				Remembered:    l.UnitPriceSnapshot,
				Authoritative: price,
			}
		}
		out = append(out, LineFact{Line: l, UnitPrice: price})
	}
	return out, nil
}

// subjects collects the distinct product and variant ids the cart references.
func subjects(lines []carts.Line) (productIDs, variantIDs []string) {
	seenP := make(map[string]bool, len(lines))
	seenV := make(map[string]bool, len(lines))
	for _, l := range lines {
		if !seenP[l.ProductID] {
			seenP[l.ProductID] = true
			productIDs = append(productIDs, l.ProductID)
		}
		if l.VariantID != nil && !seenV[*l.VariantID] {
			seenV[*l.VariantID] = true
			variantIDs = append(variantIDs, *l.VariantID)
		}
	}
	return productIDs, variantIDs
}

// readCached fills facts from the cache and returns the ids that still need
// a store read. A corrupt entry counts as a miss and gets overwritten.
func (r *Reconciler) readCached(ctx context.Context, keyFormat string, ids []string, facts map[string]Fact) []string {
	var missed []string
	for _, id := range ids {
		if raw, ok := r.Cache.Get(ctx, fmt.Sprintf(keyFormat, id)); ok {
			var f Fact
			if err := json.Unmarshal([]byte(raw), &f); err == nil {
				facts[id] = f
				r.Metrics.PriceLookup(true)
				continue
			}
		}
		r.Metrics.PriceLookup(false)
		missed = append(missed, id)
	}
	return missed
}

// fetchMissing loads missed subjects from the store, at most one query per
// kind regardless of cart size, and writes the fresh facts back to the cache.
func (r *Reconciler) fetchMissing(ctx context.Context, productIDs, variantIDs []string, productFacts, variantFacts map[string]Fact) error {
	var (
		productPrices map[string]float64
		variantPrices map[string]*float64
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(productIDs) > 0 {
		g.Go(func() error {
			var err error
			productPrices, err = r.Catalog.ProductPrices(gctx, productIDs)
			return err
		})
	}
	if len(variantIDs) > 0 {
		g.Go(func() error {
			var err error
			variantPrices, err = r.Catalog.VariantPrices(gctx, variantIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	now := time.Now().UTC()
	for id, price := range productPrices {
		p := price
		f := Fact{SubjectKey: id, UnitPrice: &p, ObservedAt: now}
		productFacts[id] = f
		r.writeBack(ctx, fmt.Sprintf(redisx.KeyPriceProduct, id), f)
	}
	for id, price := range variantPrices {
		f := Fact{SubjectKey: id, UnitPrice: price, ObservedAt: now}
		variantFacts[id] = f
		r.writeBack(ctx, fmt.Sprintf(redisx.KeyPriceVariant, id), f)
	}
	return nil
}

func (r *Reconciler) writeBack(ctx context.Context, key string, f Fact) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	r.Cache.Set(ctx, key, string(b), r.TTL)
}

// authoritativePrice applies the variant-overrides-product rule. A subject
// the store no longer knows prices at 0, which the drift check surfaces.
func authoritativePrice(l carts.Line, productFacts, variantFacts map[string]Fact) float64 {
	if l.VariantID != nil {
		if f, ok := variantFacts[*l.VariantID]; ok && f.UnitPrice != nil {
			return *f.UnitPrice
		}
	}
	if f, ok := productFacts[l.ProductID]; ok && f.UnitPrice != nil {
		return *f.UnitPrice
	}
	return 0
}
