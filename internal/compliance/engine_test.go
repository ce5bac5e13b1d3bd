package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/carts"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/catalog"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/orders"
	"github.com/SDawson777/nimbus-cannabis-mobile-sub001/internal/users"
)

// Fixed clock for every test: 2025-06-15 13:00 UTC.
var testNow = time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)

type fakeProfiles struct {
	profile users.Profile
	err     error
}

func (f *fakeProfiles) Profile(context.Context, string) (users.Profile, error) {
	return f.profile, f.err
}

type fakeLocations struct {
	store *catalog.Store
	err   error
}

func (f *fakeLocations) StoreByID(context.Context, string) (*catalog.Store, error) {
	return f.store, f.err
}

type fakeRules struct {
	rule Rule
	err  error
}

func (f *fakeRules) RuleByJurisdiction(context.Context, string) (Rule, error) {
	return f.rule, f.err
}

type fakeHistory struct {
	lines    []orders.DoseLine
	err      error
	statuses []orders.Status
	from, to time.Time
}

func (f *fakeHistory) SameDayLines(_ context.Context, _ string, from, to time.Time, statuses []orders.Status) ([]orders.DoseLine, error) {
	f.from, f.to = from, to
	f.statuses = statuses
	return f.lines, f.err
}

type fakeDoses struct {
	facts map[string]catalog.DoseFact
	err   error
}

func (f *fakeDoses) DoseFacts(context.Context, []string) (map[string]catalog.DoseFact, error) {
	return f.facts, f.err
}

func dob(year, month, day int) *time.Time {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func fptr(v float64) *float64 { return &v }

func verifiedAdult() users.Profile {
	return users.Profile{UserID: "user-1", DateOfBirth: dob(1990, 1, 1), AgeVerified: true}
}

type engineConfig struct {
	profiles  *fakeProfiles
	locations *fakeLocations
	rules     *fakeRules
	history   *fakeHistory
	doses     *fakeDoses
	pending   bool
}

func newEngine(c engineConfig) *Engine {
	if c.profiles == nil {
		c.profiles = &fakeProfiles{profile: verifiedAdult()}
	}
	if c.locations == nil {
		c.locations = &fakeLocations{store: &catalog.Store{ID: "store-1", JurisdictionCode: "US-NY"}}
	}
	if c.rules == nil {
		c.rules = &fakeRules{rule: Rule{JurisdictionCode: "US-NY", MinAge: 21, MustVerifyAge: true, MaxDailyDoseMg: 800}}
	}
	if c.history == nil {
		c.history = &fakeHistory{}
	}
	if c.doses == nil {
		c.doses = &fakeDoses{facts: map[string]catalog.DoseFact{}}
	}
	return &Engine{
		Profiles:     c.profiles,
		Locations:    c.locations,
		Rules:        c.rules,
		History:      c.history,
		Doses:        c.doses,
		CountPending: c.pending,
		Log:          zerolog.Nop(),
		Now:          func() time.Time { return testNow },
	}
}

func TestCheckPasses(t *testing.T) {
	doses := &fakeDoses{facts: map[string]catalog.DoseFact{
		"prod-1": {MgPerUnit: fptr(100)},
	}}
	e := newEngine(engineConfig{doses: doses})

	res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
		{ProductID: "prod-1", Quantity: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Empty(t, res.Violations)
}

func TestCheckNoRuleAllows(t *testing.T) {
	e := newEngine(engineConfig{rules: &fakeRules{err: ErrNoRule}})

	res, err := e.Check(context.Background(), "user-1", "store-1", nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestCheckLocationUnknown(t *testing.T) {
	t.Run("empty store id", func(t *testing.T) {
		e := newEngine(engineConfig{})
		_, err := e.Check(context.Background(), "user-1", "", nil)
		assert.ErrorIs(t, err, ErrLocationUnknown)
	})

	t.Run("store not found", func(t *testing.T) {
		e := newEngine(engineConfig{locations: &fakeLocations{err: catalog.ErrStoreNotFound}})
		_, err := e.Check(context.Background(), "user-1", "store-x", nil)
		assert.ErrorIs(t, err, ErrLocationUnknown)
	})

	t.Run("store without jurisdiction", func(t *testing.T) {
		e := newEngine(engineConfig{locations: &fakeLocations{store: &catalog.Store{ID: "store-1"}}})
		_, err := e.Check(context.Background(), "user-1", "store-1", nil)
		assert.ErrorIs(t, err, ErrLocationUnknown)
	})
}

func TestCheckAgeViolations(t *testing.T) {
	t.Run("not verified", func(t *testing.T) {
		e := newEngine(engineConfig{profiles: &fakeProfiles{profile: users.Profile{UserID: "user-1"}}})
		res, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		require.Len(t, res.Violations, 1)
		assert.Equal(t, CodeAgeNotVerified, res.Violations[0].Code)
	})

	t.Run("dob missing", func(t *testing.T) {
		e := newEngine(engineConfig{profiles: &fakeProfiles{profile: users.Profile{UserID: "user-1", AgeVerified: true}}})
		res, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		require.Len(t, res.Violations, 1)
		assert.Equal(t, CodeDateOfBirthMissing, res.Violations[0].Code)
	})

	t.Run("underage", func(t *testing.T) {
		e := newEngine(engineConfig{profiles: &fakeProfiles{profile: users.Profile{
			UserID: "user-1", DateOfBirth: dob(2010, 1, 1), AgeVerified: true,
		}}})
		res, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		require.Len(t, res.Violations, 1)
		assert.Equal(t, CodeUnderage, res.Violations[0].Code)
	})
}

func TestCheckAgeBoundary(t *testing.T) {
	// testNow is 2025-06-15; a 21st birthday on that exact day passes,
	// one day later fails.
	t.Run("birthday today", func(t *testing.T) {
		e := newEngine(engineConfig{profiles: &fakeProfiles{profile: users.Profile{
			UserID: "user-1", DateOfBirth: dob(2004, 6, 15), AgeVerified: true,
		}}})
		res, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		assert.True(t, res.OK)
	})

	t.Run("birthday tomorrow", func(t *testing.T) {
		e := newEngine(engineConfig{profiles: &fakeProfiles{profile: users.Profile{
			UserID: "user-1", DateOfBirth: dob(2004, 6, 16), AgeVerified: true,
		}}})
		res, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		require.Len(t, res.Violations, 1)
		assert.Equal(t, CodeUnderage, res.Violations[0].Code)
	})
}

func TestCheckCollectsAgeAndDoseTogether(t *testing.T) {
	doses := &fakeDoses{facts: map[string]catalog.DoseFact{
		"prod-1": {MgPerUnit: fptr(500)},
	}}
	e := newEngine(engineConfig{
		profiles: &fakeProfiles{profile: users.Profile{UserID: "user-1"}},
		doses:    doses,
	})

	res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
		{ProductID: "prod-1", Quantity: 2},
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, CodeAgeNotVerified, res.Violations[0].Code)
	assert.Equal(t, CodeDailyDoseExceeded, res.Violations[1].Code)
}

func TestCheckDoseAccumulatesSameDayOrders(t *testing.T) {
	history := &fakeHistory{lines: []orders.DoseLine{{ProductID: "prod-1", Quantity: 47}}}
	doses := &fakeDoses{facts: map[string]catalog.DoseFact{
		"prod-1": {MgPerUnit: fptr(17)},
		"prod-2": {MgPerUnit: fptr(1)},
	}}
	e := newEngine(engineConfig{history: history, doses: doses})

	// 47*17 = 799 mg already ordered today; 2 more mg breaks the 800 cap.
	res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
		{ProductID: "prod-2", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, CodeDailyDoseExceeded, v.Code)
	require.NotNil(t, v.RemainingMg)
	assert.Equal(t, 1.0, *v.RemainingMg)
}

func TestCheckDosePctByWeightFallback(t *testing.T) {
	// 20% by weight on a 1 g unit is 200 mg per unit.
	doses := &fakeDoses{facts: map[string]catalog.DoseFact{
		"prod-1": {PctByWeight: fptr(20)},
	}}
	e := newEngine(engineConfig{doses: doses})

	res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
		{ProductID: "prod-1", Quantity: 5},
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, CodeDailyDoseExceeded, res.Violations[0].Code)
	assert.Equal(t, 800.0, *res.Violations[0].RemainingMg)
}

func TestCheckZeroCapSkipsDose(t *testing.T) {
	history := &fakeHistory{err: errors.New("must not be called")}
	e := newEngine(engineConfig{
		rules:   &fakeRules{rule: Rule{JurisdictionCode: "US-NY", MinAge: 21, MustVerifyAge: true}},
		history: history,
	})

	res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
		{ProductID: "prod-1", Quantity: 100},
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestCheckCountedStatuses(t *testing.T) {
	base := []orders.Status{orders.StatusConfirmed, orders.StatusReady, orders.StatusCompleted}

	t.Run("confirmed only", func(t *testing.T) {
		history := &fakeHistory{}
		e := newEngine(engineConfig{history: history})
		_, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		assert.Equal(t, base, history.statuses)
	})

	t.Run("pending counted", func(t *testing.T) {
		history := &fakeHistory{}
		e := newEngine(engineConfig{history: history, pending: true})
		_, err := e.Check(context.Background(), "user-1", "store-1", nil)
		require.NoError(t, err)
		assert.Equal(t, append(base, orders.StatusCreated, orders.StatusPending), history.statuses)
	})
}

func TestCheckDayBounds(t *testing.T) {
	history := &fakeHistory{}
	e := newEngine(engineConfig{history: history})

	_, err := e.Check(context.Background(), "user-1", "store-1", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), history.from)
	assert.Equal(t, time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), history.to)
}

func TestCheckFailsClosed(t *testing.T) {
	boom := errors.New("pg down")

	cases := []struct {
		name string
		cfg  engineConfig
	}{
		{"store lookup", engineConfig{locations: &fakeLocations{err: boom}}},
		{"rule lookup", engineConfig{rules: &fakeRules{err: boom}}},
		{"profile lookup", engineConfig{profiles: &fakeProfiles{err: boom}}},
		{"history lookup", engineConfig{history: &fakeHistory{err: boom}}},
		{"dose lookup", engineConfig{doses: &fakeDoses{err: boom}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(tc.cfg)
			res, err := e.Check(context.Background(), "user-1", "store-1", []carts.Line{
				{ProductID: "prod-1", Quantity: 1},
			})
			require.NoError(t, err)
			assert.False(t, res.OK)
			require.Len(t, res.Violations, 1)
			assert.Equal(t, CodeCheckError, res.Violations[0].Code)
		})
	}
}
