package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/checkout"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
)

// CheckoutService is what the handler needs from the checkout pipeline.
type CheckoutService interface {
	Checkout(ctx context.Context, userID string, req checkout.Request) (checkout.Result, error)
	Order(ctx context.Context, userID, orderID string) (orders.View, error)
	Cancel(ctx context.Context, userID, orderID, traceID string) (orders.View, error)
}

type CheckoutHandler struct {
	Checkout CheckoutService
	Log      zerolog.Logger
}

type contactReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type checkoutReq struct {
	StoreID         string      `json:"store_id"`
	PaymentMethod   string      `json:"payment_method"`
	DeliveryMethod  string      `json:"delivery_method"`
	DeliveryAddress string      `json:"delivery_address"`
	Contact         *contactReq `json:"contact"`
	IdempotencyKey  string      `json:"idempotency_key"`
}

type checkoutResp struct {
	Order    orders.View `json:"order"`
	Replayed bool        `json:"replayed"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Violations any            `json:"violations,omitempty"`
	Pricing    *pricingDetail `json:"pricing,omitempty"`
}

type pricingDetail struct {
	ProductID       string  `json:"product_id"`
	VariantID       *string `json:"variant_id,omitempty"`
	RememberedPrice float64 `json:"remembered_price"`
	CurrentPrice    float64 `json:"current_price"`
}

func writeError(w http.ResponseWriter, code int, kind, msg string, violations any, drift *pricing.DriftError) {
	body := errBody{Code: kind, Message: msg, Violations: violations}
	if drift != nil {
		body.Pricing = &pricingDetail{
			ProductID:       drift.ProductID,
			VariantID:       drift.VariantID,
			RememberedPrice: drift.Remembered,
			CurrentPrice:    drift.Authoritative,
		}
	}
	writeJSON(w, code, map[string]errBody{"error": body})
}

// statusFor maps each rejection kind onto its HTTP status: request-shape
// problems are 400s, price drift is a 409 the client resolves by
// re-confirming, compliance blocks are 403, an unresolvable jurisdiction is
// 422, and a failed-closed compliance check is a retryable 503.
func statusFor(kind checkout.Kind) int {
	switch kind {
	case checkout.KindEmptyCart, checkout.KindInvalidPaymentMethod, checkout.KindInvalidAddress:
		return http.StatusBadRequest
	case checkout.KindPricingChanged:
		return http.StatusConflict
	case checkout.KindComplianceViolation:
		return http.StatusForbidden
	case checkout.KindLocationUnknown:
		return http.StatusUnprocessableEntity
	case checkout.KindComplianceCheckError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *CheckoutHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid json", nil, nil)
		return
	}
	// The header wins over the body so gateways can inject a key without
	// rewriting the payload.
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		req.IdempotencyKey = k
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	in := checkout.Request{
		StoreID:         req.StoreID,
		PaymentMethod:   req.PaymentMethod,
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		IdempotencyKey:  req.IdempotencyKey,
		TraceID:         middleware.GetReqID(r.Context()),
	}
	if req.Contact != nil {
		in.ContactName = req.Contact.Name
		in.ContactPhone = req.Contact.Phone
	}

	res, err := h.Checkout.Checkout(ctx, UserID(r.Context()), in)
	if err != nil {
		var ce *checkout.Error
		if errors.As(err, &ce) {
			writeError(w, statusFor(ce.Kind), string(ce.Kind), ce.Message, violationsOf(ce), ce.Drift)
			return
		}
		h.Log.Error().Err(err).Msg("checkout failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "something went wrong", nil, nil)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, checkoutResp{Order: res.Order, Replayed: res.Replayed})
}

func violationsOf(ce *checkout.Error) any {
	if len(ce.Violations) == 0 {
		return nil
	}
	return ce.Violations
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "missing order id", nil, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Checkout.Order(ctx, UserID(r.Context()), orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil, nil)
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "something went wrong", nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CheckoutHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "missing order id", nil, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	v, err := h.Checkout.Cancel(ctx, UserID(r.Context()), orderID, middleware.GetReqID(r.Context()))
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil, nil)
		return
	}
	if errors.Is(err, orders.ErrIllegalTransition) {
		writeError(w, http.StatusConflict, "NOT_CANCELLABLE", "order can no longer be cancelled", nil, nil)
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", orderID).Msg("cancel failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "something went wrong", nil, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
