package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Totals is a snapshot of one bookkeeping bucket (one strategy, or the
// aggregate across strategies).
type Totals struct {
	OpenNotional    decimal.Decimal
	OpenPositions   int
	RealizedToday   decimal.Decimal
	BudgetUsedToday decimal.Decimal
}

type track struct {
	byStrategy map[string]*Totals
	aggregate  Totals
}

func newTrack() track {
	return track{byStrategy: make(map[string]*Totals)}
}

func (t *track) strategy(name string) *Totals {
	s, ok := t.byStrategy[name]
	if !ok {
		s = &Totals{}
		t.byStrategy[name] = s
	}
	return s
}

// Accounting keeps per-strategy and aggregate open-notional, position counts
// and daily PnL counters, with a parallel simulated track that never touches
// the real one. Daily counters reset on local-date rollover; open notional
// and position counts persist, they describe live exposure rather than a day.
//
// All mutation happens under one mutex. ApplyIntentChecked runs its caller's
// validation inside the same critical section as the mutation, so two
// concurrent intents can never both pass against stale totals.
type Accounting struct {
	mu   sync.Mutex
	real track
	sim  track
	day  string
	now  func() time.Time
}

func NewAccounting() *Accounting {
	return &Accounting{real: newTrack(), sim: newTrack(), now: time.Now}
}

// Snapshot returns copies of the strategy's totals and the aggregate totals
// for the chosen track.
func (a *Accounting) Snapshot(strategy string, simulated bool) (Totals, Totals) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollLocked()
	tr := a.trackFor(simulated)
	return *tr.strategy(strategy), tr.aggregate
}

// ApplyIntentChecked validates and records an intent atomically. The check
// function sees the strategy and aggregate totals as they are inside the
// lock; when it returns true the intent's notional and position are recorded,
// otherwise nothing changes.
func (a *Accounting) ApplyIntentChecked(strategy string, notional decimal.Decimal, simulated bool, check func(strategy, aggregate Totals) bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollLocked()

	tr := a.trackFor(simulated)
	s := tr.strategy(strategy)
	if check != nil && !check(*s, tr.aggregate) {
		return false
	}
	s.OpenNotional = s.OpenNotional.Add(notional)
	s.OpenPositions++
	tr.aggregate.OpenNotional = tr.aggregate.OpenNotional.Add(notional)
	tr.aggregate.OpenPositions++
	return true
}

// ApplyFill records fill-driven exposure and PnL changes. notionalDelta is
// negative when a position closes; realizedDelta carries the realized PnL of
// the fill. Losses accrue into the strategy's budget-used counter.
func (a *Accounting) ApplyFill(strategy string, notionalDelta, realizedDelta decimal.Decimal, positionsDelta int, simulated bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollLocked()

	tr := a.trackFor(simulated)
	s := tr.strategy(strategy)
	applyFillTo(s, notionalDelta, realizedDelta, positionsDelta)
	applyFillTo(&tr.aggregate, notionalDelta, realizedDelta, positionsDelta)
}

func applyFillTo(t *Totals, notionalDelta, realizedDelta decimal.Decimal, positionsDelta int) {
	t.OpenNotional = t.OpenNotional.Add(notionalDelta)
	if t.OpenNotional.IsNegative() {
		t.OpenNotional = decimal.Zero
	}
	t.OpenPositions += positionsDelta
	if t.OpenPositions < 0 {
		t.OpenPositions = 0
	}
	t.RealizedToday = t.RealizedToday.Add(realizedDelta)
	if realizedDelta.IsNegative() {
		t.BudgetUsedToday = t.BudgetUsedToday.Add(realizedDelta.Neg())
	}
}

// Reset clears both tracks, for tests and explicit teardown.
func (a *Accounting) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.real = newTrack()
	a.sim = newTrack()
	a.day = ""
}

func (a *Accounting) trackFor(simulated bool) *track {
	if simulated {
		return &a.sim
	}
	return &a.real
}

// rollLocked zeroes the daily counters when the local date changes.
func (a *Accounting) rollLocked() {
	today := a.now().Local().Format(dayLayout)
	if a.day == today {
		return
	}
	a.day = today
	for _, tr := range []*track{&a.real, &a.sim} {
		for _, s := range tr.byStrategy {
			s.RealizedToday = decimal.Zero
			s.BudgetUsedToday = decimal.Zero
		}
		tr.aggregate.RealizedToday = decimal.Zero
		tr.aggregate.BudgetUsedToday = decimal.Zero
	}
}
