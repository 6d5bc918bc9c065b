package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustCaps(t *testing.T, positions int, notional string) Caps {
	t.Helper()
	caps, err := NewCaps(positions, dec(notional), nil)
	require.NoError(t, err)
	return caps
}

func TestCapsValidation(t *testing.T) {
	_, err := NewCaps(0, dec("100"), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_open_positions", verr.Field)

	_, err = NewCaps(5, dec("-1"), nil)
	require.Error(t, err)

	_, err = NewCaps(5, dec("100"), map[string]decimal.Decimal{"okx": dec("0")})
	require.Error(t, err)

	caps, err := NewCaps(5, dec("100"), map[string]decimal.Decimal{"okx": dec("40")})
	require.NoError(t, err)
	ceiling, ok := caps.VenueNotional("okx")
	assert.True(t, ok)
	assert.True(t, ceiling.Equal(dec("40")))
	_, ok = caps.VenueNotional("binance")
	assert.False(t, ok)
}

func TestGovernorRefusesInvalidCaps(t *testing.T) {
	_, err := NewGovernor(Config{EnforceCaps: true}, Caps{}, nil, nil, nil, nil)
	require.Error(t, err)

	_, err = NewGovernor(Config{EnforceDailyLoss: true}, mustCaps(t, 1, "100"), nil, nil, nil, nil)
	require.Error(t, err, "daily loss enforcement without a cap must fail construction")
}

func TestScenarioCaps(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true}, mustCaps(t, 1, "100"), nil, nil, nil, nil)
	require.NoError(t, err)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("80")})
	require.True(t, d.Allowed)
	_, agg := g.Accounting().Snapshot("s1", false)
	assert.True(t, agg.OpenNotional.Equal(dec("80")))

	d = g.RecordIntent(Intent{Strategy: "s1", Notional: dec("30")})
	require.False(t, d.Allowed)
	assert.Equal(t, ReasonTotalNotionalCap, d.Reason)
	assert.True(t, d.Limit.Equal(dec("100")))
	assert.True(t, d.Current.Equal(dec("80")))

	_, agg = g.Accounting().Snapshot("s1", false)
	assert.True(t, agg.OpenNotional.Equal(dec("80")), "denied intent must not mutate totals")
}

func TestOpenPositionCap(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true}, mustCaps(t, 2, "1000"), nil, nil, nil, nil)
	require.NoError(t, err)

	require.True(t, g.RecordIntent(Intent{Strategy: "s1", Notional: dec("10")}).Allowed)
	require.True(t, g.RecordIntent(Intent{Strategy: "s2", Notional: dec("10")}).Allowed)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("10")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOpenPositionCap, d.Reason)
}

func TestVenueNotionalCeiling(t *testing.T) {
	caps, err := NewCaps(10, dec("1000"), map[string]decimal.Decimal{"okx": dec("50")})
	require.NoError(t, err)
	g, err := NewGovernor(Config{EnforceCaps: true}, caps, nil, nil, nil, nil)
	require.NoError(t, err)

	d := g.RecordIntent(Intent{Strategy: "s1", Venue: "okx", Notional: dec("60")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonVenueNotionalCap, d.Reason)

	assert.True(t, g.RecordIntent(Intent{Strategy: "s1", Venue: "binance", Notional: dec("60")}).Allowed)
}

func TestDryRunBypass(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true, DryRun: true}, mustCaps(t, 1, "10"), nil, nil, nil, nil)
	require.NoError(t, err)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("5000")})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonDryRunBypass, d.Reason)
}

func TestSimulatedTrackIsolated(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true}, mustCaps(t, 5, "100"), nil, nil, nil, nil)
	require.NoError(t, err)

	require.True(t, g.RecordIntent(Intent{Strategy: "s1", Notional: dec("90"), Simulated: true}).Allowed)

	// Simulated exposure never affects real caps.
	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("90")})
	assert.True(t, d.Allowed)

	_, simAgg := g.Accounting().Snapshot("s1", true)
	_, realAgg := g.Accounting().Snapshot("s1", false)
	assert.True(t, simAgg.OpenNotional.Equal(dec("90")))
	assert.True(t, realAgg.OpenNotional.Equal(dec("90")))
}

func TestBudgetInvariant(t *testing.T) {
	b := NewBudgetBook()
	require.NoError(t, b.SetCap("s1", dec("100")))

	require.NoError(t, b.Allocate("s1", dec("60")))
	err := b.Allocate("s1", dec("50"))
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.True(t, b.Allocated("s1").Equal(dec("60")), "rejected allocation must not mutate")

	// Lowering the cap clamps the allocation down, never raises it.
	require.NoError(t, b.SetCap("s1", dec("40")))
	assert.True(t, b.Allocated("s1").Equal(dec("40")))

	b.Release("s1", dec("100"))
	assert.True(t, b.Allocated("s1").IsZero())
}

func TestBudgetExhaustionDenies(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true, EnforceBudget: true}, mustCaps(t, 10, "10000"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Budgets().SetCap("s1", dec("100")))

	require.True(t, g.RecordIntent(Intent{Strategy: "s1", Notional: dec("99.9999995")}).Allowed)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("1")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBudgetExhausted, d.Reason)

	// Unconfigured strategies are denied, not defaulted to unlimited.
	d = g.RecordIntent(Intent{Strategy: "mystery", Notional: dec("1")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBudgetUnconfigured, d.Reason)
}

func TestLossesAccrueIntoBudget(t *testing.T) {
	g, err := NewGovernor(Config{EnforceBudget: true}, mustCaps(t, 10, "10000"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Budgets().SetCap("s1", dec("50")))

	g.RecordFill("s1", decimal.Zero, dec("-49.999999"), 0, false)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("10")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBudgetExhausted, d.Reason)
}

func TestDailyLossRecomputes(t *testing.T) {
	dl, err := NewDailyLossCap(dec("100"))
	require.NoError(t, err)

	dl.AddRealized(dec("-100"))
	assert.True(t, dl.Breached())

	// A same-day gain bringing losses back to 40 clears the breach.
	dl.AddRealized(dec("60"))
	assert.False(t, dl.Breached())
	assert.True(t, dl.LossesToday().Equal(dec("40")))
}

func TestDailyLossRollover(t *testing.T) {
	dl, err := NewDailyLossCap(dec("100"))
	require.NoError(t, err)

	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	dl.now = func() time.Time { return current }

	dl.AddRealized(dec("-150"))
	require.True(t, dl.Breached())

	current = current.Add(2 * time.Hour) // next UTC day
	assert.False(t, dl.Breached())
	assert.True(t, dl.LossesToday().IsZero())
}

func TestDailyLossGatesIntents(t *testing.T) {
	dl, err := NewDailyLossCap(dec("100"))
	require.NoError(t, err)
	g, err := NewGovernor(Config{EnforceCaps: true, EnforceDailyLoss: true}, mustCaps(t, 10, "10000"), dl, nil, nil, nil)
	require.NoError(t, err)

	g.RecordFill("s1", decimal.Zero, dec("-120"), 0, false)

	d := g.RecordIntent(Intent{Strategy: "s1", Notional: dec("10")})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLossCap, d.Reason)
}

type captureSkips struct {
	mu    sync.Mutex
	calls [][2]string
}

func (c *captureSkips) RecordRiskSkip(strategy, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, [2]string{strategy, reason})
}

func TestDenialsReachSkipSink(t *testing.T) {
	sink := &captureSkips{}
	g, err := NewGovernor(Config{EnforceCaps: true}, mustCaps(t, 1, "100"), nil, nil, sink, nil)
	require.NoError(t, err)

	g.RecordIntent(Intent{Strategy: "s1", Notional: dec("80")})
	g.RecordIntent(Intent{Strategy: "s1", Notional: dec("30")})

	require.Len(t, sink.calls, 1)
	assert.Equal(t, [2]string{"s1", ReasonTotalNotionalCap}, sink.calls[0])
}

// Two hundred concurrent intents against a 100-notional ceiling: the
// validate-then-mutate critical section must never let the total overrun.
func TestConcurrentIntentsNeverOverrun(t *testing.T) {
	g, err := NewGovernor(Config{EnforceCaps: true}, mustCaps(t, 1000, "100"), nil, nil, nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordIntent(Intent{Strategy: "s1", Notional: dec("10")})
		}()
	}
	wg.Wait()

	_, agg := g.Accounting().Snapshot("s1", false)
	assert.True(t, agg.OpenNotional.LessThanOrEqual(dec("100")),
		"open notional overran the cap: %s", agg.OpenNotional)
	assert.Equal(t, 10, agg.OpenPositions)
}

func TestAccountingDailyReset(t *testing.T) {
	a := NewAccounting()
	current := time.Date(2025, 6, 1, 23, 0, 0, 0, time.Local)
	a.now = func() time.Time { return current }

	a.ApplyFill("s1", dec("100"), dec("-30"), 1, false)
	s, _ := a.Snapshot("s1", false)
	require.True(t, s.RealizedToday.Equal(dec("-30")))
	require.True(t, s.BudgetUsedToday.Equal(dec("30")))

	current = current.Add(26 * time.Hour)
	s, agg := a.Snapshot("s1", false)
	assert.True(t, s.RealizedToday.IsZero())
	assert.True(t, s.BudgetUsedToday.IsZero())
	// Open exposure persists across the rollover.
	assert.True(t, s.OpenNotional.Equal(dec("100")))
	assert.Equal(t, 1, agg.OpenPositions)
}

func TestRecordFillReleasesBudget(t *testing.T) {
	g, err := NewGovernor(Config{EnforceBudget: true}, mustCaps(t, 10, "10000"), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, g.Budgets().SetCap("s1", dec("100")))

	require.True(t, g.RecordIntent(Intent{Strategy: "s1", Notional: dec("80")}).Allowed)
	assert.True(t, g.Budgets().Allocated("s1").Equal(dec("80")))

	g.RecordFill("s1", dec("-80"), dec("2"), -1, false)
	assert.True(t, g.Budgets().Allocated("s1").IsZero())
}
