package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/kafka"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/redisx"
)

const (
	TopicPriceUpdated = "catalog.price.updated"
	EventPriceUpdated = "PriceUpdated"
)

// PriceUpdatedPayload mirrors what the catalog service publishes when a
// price changes. SubjectType is "product" or "variant".
type PriceUpdatedPayload struct {
	SubjectType string   `json:"subject_type"`
	SubjectID   string   `json:"subject_id"`
	UnitPrice   *float64 `json:"unit_price"`
}

// SyncHandler applies catalog price events to the shared cache so checkout
// sees fresh prices without waiting for TTL expiry.
type SyncHandler struct {
	Cache Cache
	TTL   time.Duration
	Log   zerolog.Logger
}

func (h *SyncHandler) HandleMessage(ctx context.Context, value []byte) error {
	var env orders.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType != EventPriceUpdated {
		return nil
	}

	// At-least-once delivery: skip events we already applied.
	dedupKey := fmt.Sprintf(redisx.KeyDedup, "pricesync", env.EventID)
	if _, seen := h.Cache.Get(ctx, dedupKey); seen {
		return nil
	}
	h.Cache.Set(ctx, dedupKey, "1", redisx.TTLDedup)

	payload, err := kafka.UnwrapPayload[PriceUpdatedPayload](env.Payload)
	if err != nil {
		return fmt.Errorf("unwrap payload: %w", err)
	}

	observedAt := env.OccurredAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	var key string
	switch payload.SubjectType {
	case "product":
		key = fmt.Sprintf(redisx.KeyPriceProduct, payload.SubjectID)
	case "variant":
		key = fmt.Sprintf(redisx.KeyPriceVariant, payload.SubjectID)
	default:
		h.Log.Warn().
			Str("subject_type", payload.SubjectType).
			Str("event_id", env.EventID).
			Msg("unknown price subject type, skipping")
		return nil
	}

	fact := Fact{SubjectKey: payload.SubjectID, UnitPrice: payload.UnitPrice, ObservedAt: observedAt}
	b, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}
	h.Cache.Set(ctx, key, string(b), h.TTL)

	h.Log.Info().
		Str("subject_type", payload.SubjectType).
		Str("subject_id", payload.SubjectID).
		Msg("price fact refreshed")
	return nil
}
