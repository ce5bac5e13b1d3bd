package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/catalog"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/compliance"
	kafkax "github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/kafka"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/metrics"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

type Request struct {
	StoreID         string
	PaymentMethod   string
	DeliveryMethod  string
	DeliveryAddress string
	ContactName     string
	ContactPhone    string
	IdempotencyKey  string
	TraceID         string
}

type Result struct {
	Order    orders.View
	Replayed bool
}

type CartSource interface {
	ActiveCart(ctx context.Context, userID string) (*carts.Cart, error)
}

type OrderStore interface {
	OrderSource
	CreateWithLines(ctx context.Context, o *orders.Order, cartID string) error
	Cancel(ctx context.Context, orderID, userID string) (*orders.Order, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, lines []carts.Line) ([]pricing.LineFact, error)
}

type ComplianceChecker interface {
	Check(ctx context.Context, userID, storeID string, lines []carts.Line) (compliance.Result, error)
}

type CatalogSource interface {
	StoreByID(ctx context.Context, id string) (*catalog.Store, error)
	ProductNames(ctx context.Context, ids []string) (map[string]string, error)
	VariantNames(ctx context.Context, ids []string) (map[string]string, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service runs the checkout pipeline: resolve idempotency, load the cart,
// reconcile prices, check compliance, materialize the order, publish the
// event. Rejections come back as *Error; anything else is infrastructure.
type Service struct {
	Carts      CartSource
	Orders     OrderStore
	Catalog    CatalogSource
	Pricing    Reconciler
	Compliance ComplianceChecker
	Resolver   *Resolver
	Cache      Cache

	ProducerCreated   Publisher
	ProducerCancelled Publisher

	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Service string

	TaxRate float64
	IdemTTL time.Duration
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) Checkout(ctx context.Context, userID string, req Request) (Result, error) {
	start := time.Now()
	res, err := s.checkout(ctx, userID, req)
	s.Metrics.ObserveCheckout(time.Since(start))
	s.Metrics.CheckoutOutcome(outcome(res, err))
	return res, err
}

func outcome(res Result, err error) string {
	if err == nil {
		if res.Replayed {
			return "replayed"
		}
		return "created"
	}
	var ce *Error
	if errors.As(err, &ce) {
		return strings.ToLower(string(ce.Kind))
	}
	return "internal_error"
}

func (s *Service) checkout(ctx context.Context, userID string, req Request) (Result, error) {
	req, rejErr := validateRequest(req)
	if rejErr != nil {
		return Result{}, rejErr
	}

	if existing, err := s.Resolver.Resolve(ctx, userID, req.IdempotencyKey); err != nil {
		return Result{}, err
	} else if existing != nil {
		v, err := s.view(ctx, existing)
		if err != nil {
			return Result{}, err
		}
		return Result{Order: v, Replayed: true}, nil
	}

	cart, err := s.Carts.ActiveCart(ctx, userID)
	if errors.Is(err, carts.ErrNotFound) {
		return Result{}, reject(KindEmptyCart, "cart is empty, nothing to check out")
	}
	if err != nil {
		return Result{}, err
	}
	if len(cart.Lines) == 0 {
		return Result{}, reject(KindEmptyCart, "cart is empty, nothing to check out")
	}

	storeID := req.StoreID
	if storeID == "" && cart.StoreID != nil {
		storeID = *cart.StoreID
	}

	facts, err := s.Pricing.Reconcile(ctx, cart.Lines)
	if err != nil {
		var drift *pricing.DriftError
		if errors.As(err, &drift) {
			return Result{}, &Error{
				Kind:    KindPricingChanged,
				Message: "prices changed since the cart was built",
				Drift:   drift,
			}
		}
		return Result{}, err
	}

	check, err := s.Compliance.Check(ctx, userID, storeID, cart.Lines)
	if errors.Is(err, compliance.ErrLocationUnknown) {
		return Result{}, reject(KindLocationUnknown, "cannot determine the jurisdiction for this order")
	}
	if err != nil {
		return Result{}, err
	}
	if !check.OK {
		if len(check.Violations) == 1 && check.Violations[0].Code == compliance.CodeCheckError {
			return Result{}, &Error{
				Kind:       KindComplianceCheckError,
				Message:    check.Violations[0].Message,
				Violations: check.Violations,
			}
		}
		return Result{}, &Error{
			Kind:       KindComplianceViolation,
			Message:    "order violates compliance rules",
			Violations: check.Violations,
		}
	}

	order := s.buildOrder(userID, storeID, req, facts)

	replayed := false
	err = s.Orders.CreateWithLines(ctx, order, cart.ID)
	if errors.Is(err, orders.ErrTokenConflict) {
		// A concurrent attempt with the same token won the insert race.
		order, err = s.Orders.FindByToken(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return Result{}, err
		}
		replayed = true
	} else if err != nil {
		return Result{}, err
	}

	if req.IdempotencyKey != "" {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, userID, req.IdempotencyKey)
		s.Cache.Set(ctx, key, order.ID, s.IdemTTL)
	}

	if !replayed {
		s.publishCreated(order, req.TraceID)
		s.Log.Info().
			Str("order_id", order.ID).
			Str("user_id", userID).
			Str("store_id", order.StoreID).
			Float64("total", order.Total).
			Msg("order created")
	}

	v, err := s.view(ctx, order)
	if err != nil {
		return Result{}, err
	}
	return Result{Order: v, Replayed: replayed}, nil
}

var validPayment = map[string]bool{"CASH": true, "DEBIT": true, "CREDIT": true}

func validateRequest(req Request) (Request, *Error) {
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if !validPayment[req.PaymentMethod] {
		return req, reject(KindInvalidPaymentMethod, "payment method must be CASH, DEBIT or CREDIT")
	}

	req.DeliveryMethod = strings.ToUpper(strings.TrimSpace(req.DeliveryMethod))
	switch req.DeliveryMethod {
	case "":
		req.DeliveryMethod = "PICKUP"
	case "PICKUP":
	case "DELIVERY":
		if strings.TrimSpace(req.DeliveryAddress) == "" {
			return req, reject(KindInvalidAddress, "delivery orders need a delivery address")
		}
	default:
		return req, reject(KindInvalidAddress, "delivery method must be PICKUP or DELIVERY")
	}
	return req, nil
}

func (s *Service) buildOrder(userID, storeID string, req Request, facts []pricing.LineFact) *orders.Order {
	now := s.now().UTC()
	o := &orders.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		StoreID:        storeID,
		Status:         orders.StatusCreated,
		PaymentMethod:  req.PaymentMethod,
		DeliveryMethod: req.DeliveryMethod,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if v := strings.TrimSpace(req.DeliveryAddress); v != "" {
		o.DeliveryAddress = &v
	}
	if v := strings.TrimSpace(req.ContactName); v != "" {
		o.ContactName = &v
	}
	if v := strings.TrimSpace(req.ContactPhone); v != "" {
		o.ContactPhone = &v
	}
	if req.IdempotencyKey != "" {
		o.IdempotencyToken = &req.IdempotencyKey
	}

	var subtotal float64
	for _, f := range facts {
		lineTotal := round2(f.UnitPrice * float64(f.Line.Quantity))
		subtotal += lineTotal
		o.Lines = append(o.Lines, orders.Line{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: f.Line.ProductID,
			VariantID: f.Line.VariantID,
			Quantity:  f.Line.Quantity,
			UnitPrice: f.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	o.Subtotal = round2(subtotal)
	o.Tax = round2(o.Subtotal * s.TaxRate)
	o.Total = round2(o.Subtotal + o.Tax)
	return o
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Order returns one of the caller's orders. Asking for someone else's order
// reads the same as it not existing.
func (s *Service) Order(ctx context.Context, userID, orderID string) (orders.View, error) {
	o, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		return orders.View{}, err
	}
	if o.UserID != userID {
		return orders.View{}, orders.ErrNotFound
	}
	return s.view(ctx, o)
}

// Cancel moves the order to CANCELLED when its status still allows it and
// announces the transition.
func (s *Service) Cancel(ctx context.Context, userID, orderID, traceID string) (orders.View, error) {
	o, err := s.Orders.Cancel(ctx, orderID, userID)
	if err != nil {
		return orders.View{}, err
	}

	env := orders.NewEnvelope(orders.EventOrderCancelled, s.Service, traceID, o.ID,
		kafkax.MustMarshal(orders.OrderCancelledPayload{OrderID: o.ID, UserID: o.UserID}))
	s.ProducerCancelled.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCancelled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	s.Log.Info().Str("order_id", o.ID).Str("user_id", userID).Msg("order cancelled")

	return s.view(ctx, o)
}

func (s *Service) publishCreated(o *orders.Order, traceID string) {
	env := orders.NewEnvelope(orders.EventOrderCreated, s.Service, traceID, o.ID,
		kafkax.MustMarshal(orders.CreatedPayload(o)))
	s.ProducerCreated.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// view resolves display names best effort: the order data is authoritative,
// names are decoration, so a catalog hiccup degrades to placeholders rather
// than failing a checkout that already materialized.
func (s *Service) view(ctx context.Context, o *orders.Order) (orders.View, error) {
	storeName := ""
	if store, err := s.Catalog.StoreByID(ctx, o.StoreID); err == nil {
		storeName = store.Name
	} else if !errors.Is(err, catalog.ErrStoreNotFound) {
		s.Log.Warn().Err(err).Str("store_id", o.StoreID).Msg("store name lookup failed")
	}

	var productIDs, variantIDs []string
	seenP := make(map[string]bool)
	seenV := make(map[string]bool)
	for _, l := range o.Lines {
		if !seenP[l.ProductID] {
			seenP[l.ProductID] = true
			productIDs = append(productIDs, l.ProductID)
		}
		if l.VariantID != nil && !seenV[*l.VariantID] {
			seenV[*l.VariantID] = true
			variantIDs = append(variantIDs, *l.VariantID)
		}
	}

	productNames, err := s.Catalog.ProductNames(ctx, productIDs)
	if err != nil {
		s.Log.Warn().Err(err).Msg("product name lookup failed")
		productNames = nil
	}
	variantNames, err := s.Catalog.VariantNames(ctx, variantIDs)
	if err != nil {
		s.Log.Warn().Err(err).Msg("variant name lookup failed")
		variantNames = nil
	}

	return orders.BuildView(o, storeName, productNames, variantNames), nil
}
