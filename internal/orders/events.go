package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"

	eventVersion = 1
)

// Envelope is the wire frame shared by every event this service emits.
// CorrelationID carries the order id so consumers can stitch an order's
// history back together.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID string             `json:"order_id"`
	UserID  string             `json:"user_id"`
	StoreID string             `json:"store_id"`
	Total   float64            `json:"total"`
	Lines   []LineEventPayload `json:"lines"`
}

type LineEventPayload struct {
	ProductID string  `json:"product_id"`
	VariantID *string `json:"variant_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// NewEnvelope wraps a payload that is already JSON-encoded.
func NewEnvelope(eventType, producer, traceID, orderID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       payload,
	}
}

func CreatedPayload(o *Order) OrderCreatedPayload {
	p := OrderCreatedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		StoreID: o.StoreID,
		Total:   o.Total,
		Lines:   make([]LineEventPayload, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		p.Lines = append(p.Lines, LineEventPayload{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return p
}
