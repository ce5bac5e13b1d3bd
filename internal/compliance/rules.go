package compliance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRule means the jurisdiction has no configured rule set. The engine
// treats that as allow, not as a failure.
var ErrNoRule = errors.New("no compliance rule for jurisdiction")

// Rule is the per-jurisdiction policy applied at checkout. A zero
// MaxDailyDoseMg disables the dose cap for that jurisdiction.
type Rule struct {
	JurisdictionCode string
	MinAge           int
	MustVerifyAge    bool
	MaxDailyDoseMg   float64
}

type RulesRepo struct{ DB *pgxpool.Pool }

func (r *RulesRepo) RuleByJurisdiction(ctx context.Context, code string) (Rule, error) {
	var rule Rule
	err := r.DB.QueryRow(ctx, `
		SELECT code, min_age, must_verify_age, max_daily_dose_mg
		FROM jurisdiction_rules WHERE code=$1`, code).
		Scan(&rule.JurisdictionCode, &rule.MinAge, &rule.MustVerifyAge, &rule.MaxDailyDoseMg)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNoRule
	}
	if err != nil {
		return Rule{}, err
	}
	return rule, nil
}
