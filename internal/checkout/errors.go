package checkout

import (
	"fmt"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/compliance"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/pricing"
)

// Kind classifies checkout rejections so the transport layer can map each
// one to a status code without string matching.
type Kind string

const (
	KindEmptyCart            Kind = "EMPTY_CART"
	KindInvalidPaymentMethod Kind = "INVALID_PAYMENT_METHOD"
	KindInvalidAddress       Kind = "INVALID_ADDRESS"
	KindPricingChanged       Kind = "PRICING_CHANGED"
	KindComplianceViolation  Kind = "COMPLIANCE_VIOLATION"
	KindLocationUnknown      Kind = "LOCATION_UNKNOWN"
	KindComplianceCheckError Kind = "COMPLIANCE_CHECK_ERROR"
)

// Error is a rejected checkout. Violations and Drift carry the detail the
// client needs to fix the request; both may be nil.
type Error struct {
	Kind       Kind
	Message    string
	Violations []compliance.Violation
	Drift      *pricing.DriftError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func reject(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}
