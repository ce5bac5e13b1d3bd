package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/catalog"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/users"
)

const (
	CodeAgeNotVerified     = "AGE_NOT_VERIFIED"
	CodeDateOfBirthMissing = "DATE_OF_BIRTH_MISSING"
	CodeUnderage           = "UNDERAGE"
	CodeDailyDoseExceeded  = "DAILY_THC_LIMIT_EXCEEDED"
	CodeCheckError         = "COMPLIANCE_CHECK_ERROR"
)

// ErrLocationUnknown means no jurisdiction could be resolved for the order,
// so no rule set can be chosen. Distinct from a rule violation: the request
// itself is unserviceable.
var ErrLocationUnknown = errors.New("cannot resolve order jurisdiction")

type Violation struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	RemainingMg *float64 `json:"remaining_mg,omitempty"`
}

type Result struct {
	OK         bool
	Violations []Violation
}

type ProfileSource interface {
	Profile(ctx context.Context, userID string) (users.Profile, error)
}

type LocationSource interface {
	StoreByID(ctx context.Context, id string) (*catalog.Store, error)
}

type RuleSource interface {
	RuleByJurisdiction(ctx context.Context, code string) (Rule, error)
}

type HistorySource interface {
	SameDayLines(ctx context.Context, userID string, from, to time.Time, statuses []orders.Status) ([]orders.DoseLine, error)
}

type DoseSource interface {
	DoseFacts(ctx context.Context, ids []string) (map[string]catalog.DoseFact, error)
}

// Engine evaluates every rule for the jurisdiction and reports all
// violations at once, so the customer is not drip-fed one problem per
// attempt. Any lookup failure fails the check closed.
type Engine struct {
	Profiles  ProfileSource
	Locations LocationSource
	Rules     RuleSource
	History   HistorySource
	Doses     DoseSource

	// CountPending includes not-yet-confirmed orders in the daily dose sum.
	CountPending bool

	Log zerolog.Logger
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) Check(ctx context.Context, userID, storeID string, lines []carts.Line) (Result, error) {
	if storeID == "" {
		return Result{}, ErrLocationUnknown
	}

	store, err := e.Locations.StoreByID(ctx, storeID)
	if errors.Is(err, catalog.ErrStoreNotFound) {
		return Result{}, ErrLocationUnknown
	}
	if err != nil {
		return e.failClosed(err), nil
	}
	if store.JurisdictionCode == "" {
		return Result{}, ErrLocationUnknown
	}

	rule, err := e.Rules.RuleByJurisdiction(ctx, store.JurisdictionCode)
	if errors.Is(err, ErrNoRule) {
		e.Log.Warn().
			Str("jurisdiction", store.JurisdictionCode).
			Msg("no compliance rule for jurisdiction, allowing order")
		return Result{OK: true}, nil
	}
	if err != nil {
		return e.failClosed(err), nil
	}

	var violations []Violation

	if rule.MustVerifyAge {
		profile, err := e.Profiles.Profile(ctx, userID)
		if err != nil {
			return e.failClosed(err), nil
		}
		if v := ageViolation(profile, rule, e.now()); v != nil {
			violations = append(violations, *v)
		}
	}

	if rule.MaxDailyDoseMg > 0 {
		v, err := e.doseViolation(ctx, userID, rule, lines)
		if err != nil {
			return e.failClosed(err), nil
		}
		if v != nil {
			violations = append(violations, *v)
		}
	}

	return Result{OK: len(violations) == 0, Violations: violations}, nil
}

// failClosed collapses any infrastructure failure into a single violation so
// the order is blocked rather than waved through unchecked.
func (e *Engine) failClosed(err error) Result {
	e.Log.Error().Err(err).Msg("compliance check failed, blocking order")
	return Result{OK: false, Violations: []Violation{{
		Code:    CodeCheckError,
		Message: "compliance could not be verified, try again later",
	}}}
}

// ageViolation returns at most one violation; the three causes are mutually
// exclusive by construction.
func ageViolation(p users.Profile, rule Rule, now time.Time) *Violation {
	if !p.AgeVerified {
		return &Violation{Code: CodeAgeNotVerified, Message: "age verification is required before purchase"}
	}
	if p.DateOfBirth == nil {
		return &Violation{Code: CodeDateOfBirthMissing, Message: "date of birth is missing from the profile"}
	}
	if yearsBetween(*p.DateOfBirth, now) < rule.MinAge {
		return &Violation{Code: CodeUnderage, Message: fmt.Sprintf("minimum age is %d", rule.MinAge)}
	}
	return nil
}

// yearsBetween is calendar-accurate: the year difference drops by one until
// the birthday has passed in the current year.
func yearsBetween(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	anniversary := dob.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

func (e *Engine) doseViolation(ctx context.Context, userID string, rule Rule, lines []carts.Line) (*Violation, error) {
	from, to := dayBounds(e.now())

	statuses := []orders.Status{orders.StatusConfirmed, orders.StatusReady, orders.StatusCompleted}
	if e.CountPending {
		statuses = append(statuses, orders.StatusCreated, orders.StatusPending)
	}

	history, err := e.History.SameDayLines(ctx, userID, from, to, statuses)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	for _, h := range history {
		ids[h.ProductID] = true
	}
	for _, l := range lines {
		ids[l.ProductID] = true
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	facts, err := e.Doses.DoseFacts(ctx, idList)
	if err != nil {
		return nil, err
	}

	var existing float64
	for _, h := range history {
		existing += float64(h.Quantity) * mgPerUnit(facts[h.ProductID])
	}
	var cart float64
	for _, l := range lines {
		cart += float64(l.Quantity) * mgPerUnit(facts[l.ProductID])
	}

	if existing+cart > rule.MaxDailyDoseMg {
		remaining := rule.MaxDailyDoseMg - existing
		if remaining < 0 {
			remaining = 0
		}
		return &Violation{
			Code:        CodeDailyDoseExceeded,
			Message:     fmt.Sprintf("order would exceed the daily limit of %.0f mg", rule.MaxDailyDoseMg),
			RemainingMg: &remaining,
		}, nil
	}
	return nil, nil
}

// mgPerUnit prefers the explicit per-unit dose; a percentage by weight is
// converted on a 1 g unit-mass basis. Products with neither count zero.
func mgPerUnit(f catalog.DoseFact) float64 {
	if f.MgPerUnit != nil {
		return *f.MgPerUnit
	}
	if f.PctByWeight != nil {
		return *f.PctByWeight / 100 * 1000
	}
	return 0
}

// dayBounds is the local calendar day containing now, midnight to midnight.
func dayBounds(now time.Time) (from, to time.Time) {
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 1)
}
