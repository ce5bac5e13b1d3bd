package checkout

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/catalog"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/compliance"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
)

type fakeCarts struct {
	cart  *carts.Cart
	err   error
	calls int
}

func (f *fakeCarts) ActiveCart(context.Context, string) (*carts.Cart, error) {
	f.calls++
	return f.cart, f.err
}

// fakeOrderStore keeps orders in maps and records what CreateWithLines was
// asked to persist, including which cart it was told to clear. Setting
// hideTokenOnce makes the first FindByToken miss, modeling a concurrent
// request whose insert lands between our check and our write.
type fakeOrderStore struct {
	byID    map[string]*orders.Order
	byToken map[string]*orders.Order

	created     *orders.Order
	clearedCart string
	createErr   error

	cancelled *orders.Order
	cancelErr error

	findErr       error
	getErr        error
	findCalls     int
	getCalls      int
	hideTokenOnce bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		byID:    map[string]*orders.Order{},
		byToken: map[string]*orders.Order{},
	}
}

func (f *fakeOrderStore) put(o *orders.Order) {
	f.byID[o.ID] = o
	if o.IdempotencyToken != nil {
		f.byToken[o.UserID+"/"+*o.IdempotencyToken] = o
	}
}

func (f *fakeOrderStore) FindByToken(_ context.Context, userID, token string) (*orders.Order, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.hideTokenOnce {
		f.hideTokenOnce = false
		return nil, orders.ErrNotFound
	}
	o, ok := f.byToken[userID+"/"+token]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id string) (*orders.Order, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.byID[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) CreateWithLines(_ context.Context, o *orders.Order, cartID string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = o
	f.clearedCart = cartID
	f.put(o)
	return nil
}

func (f *fakeOrderStore) Cancel(context.Context, string, string) (*orders.Order, error) {
	return f.cancelled, f.cancelErr
}

// fakeReconciler charges the listed price per product, or echoes the line's
// snapshot when the product is not listed.
type fakeReconciler struct {
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeReconciler) Reconcile(_ context.Context, lines []carts.Line) ([]pricing.LineFact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pricing.LineFact, 0, len(lines))
	for _, l := range lines {
		price, ok := f.prices[l.ProductID]
		if !ok {
			price = l.UnitPriceSnapshot
		}
		out = append(out, pricing.LineFact{Line: l, UnitPrice: price})
	}
	return out, nil
}

type fakeCompliance struct {
	res compliance.Result
	err error

	gotUserID  string
	gotStoreID string
	calls      int
}

func (f *fakeCompliance) Check(_ context.Context, userID, storeID string, _ []carts.Line) (compliance.Result, error) {
	f.calls++
	f.gotUserID = userID
	f.gotStoreID = storeID
	return f.res, f.err
}

type fakeCatalog struct {
	store    *catalog.Store
	storeErr error
	products map[string]string
	variants map[string]string
}

func (f *fakeCatalog) StoreByID(context.Context, string) (*catalog.Store, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return f.store, nil
}

func (f *fakeCatalog) ProductNames(context.Context, []string) (map[string]string, error) {
	return f.products, nil
}

func (f *fakeCatalog) VariantNames(context.Context, []string) (map[string]string, error) {
	return f.variants, nil
}

type fakePublisher struct {
	keys   [][]byte
	values [][]byte
}

func (f *fakePublisher) Publish(key, value []byte, _ ...kafkago.Header) {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
}

type fakeKV struct {
	data map[string]string
	down bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (c *fakeKV) Get(_ context.Context, key string) (string, bool) {
	if c.down {
		return "", false
	}
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) bool {
	if c.down {
		return false
	}
	c.data[key] = value
	return true
}
