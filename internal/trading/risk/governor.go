package risk

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Denial reason codes carried in Decision.Reason.
const (
	ReasonDryRunBypass       = "dry_run_bypass"
	ReasonDailyLossCap       = "daily_loss_cap"
	ReasonTotalNotionalCap   = "total_notional_cap"
	ReasonVenueNotionalCap   = "venue_notional_cap"
	ReasonOpenPositionCap    = "open_position_cap"
	ReasonBudgetExhausted    = "budget_exhausted"
	ReasonBudgetUnconfigured = "budget_unconfigured"
	ReasonInvalidIntent      = "invalid_intent"
)

// budgetEpsilon guards the budget exhaustion comparison against rounding
// residue from many small loss accruals.
var budgetEpsilon = decimal.New(1, -6)

// Decision is the structured outcome of a risk check. Breaches are values,
// not errors: the caller rejects the trade and surfaces the reason without
// unwinding a call stack.
type Decision struct {
	Allowed bool
	Reason  string
	Limit   decimal.Decimal
	Current decimal.Decimal
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string, limit, current decimal.Decimal) Decision {
	return Decision{Reason: reason, Limit: limit, Current: current}
}

// Intent describes a strategy's wish to open exposure.
type Intent struct {
	Strategy  string
	Venue     string
	Notional  decimal.Decimal
	Positions int // projected new open positions, usually 1
	Simulated bool
}

// Config carries the governor's feature toggles, resolved once at startup
// from named configuration and passed down rather than read from ambient
// state.
type Config struct {
	EnforceCaps      bool
	EnforceBudget    bool
	EnforceDailyLoss bool
	DryRun           bool
}

// SkipRecorder is the external counter sink for denied intents.
type SkipRecorder interface {
	RecordRiskSkip(strategy, reason string)
}

type nopSkipRecorder struct{}

func (nopSkipRecorder) RecordRiskSkip(string, string) {}

// Governor gates every order intent against caps, budgets and the daily-loss
// circuit breaker. Validate-then-mutate runs as one critical section in
// RecordIntent, so concurrent intents serialize against the same totals.
type Governor struct {
	mu        sync.Mutex
	cfg       Config
	caps      Caps
	acct      *Accounting
	budgets   *BudgetBook
	dailyLoss *DailyLossCap
	skips     SkipRecorder
	logger    *zap.Logger
}

// NewGovernor builds a governor. Caps must come from NewCaps and, when daily
// loss enforcement is on, dailyLoss must be present: a misconfigured governor
// fails construction instead of degrading into default-allow.
func NewGovernor(cfg Config, caps Caps, dailyLoss *DailyLossCap, budgets *BudgetBook, skips SkipRecorder, logger *zap.Logger) (*Governor, error) {
	if !caps.Valid() {
		return nil, &ValidationError{Field: "caps", Reason: "not built by NewCaps"}
	}
	if cfg.EnforceDailyLoss && dailyLoss == nil {
		return nil, &ValidationError{Field: "daily_loss_cap", Reason: "enforcement enabled without a cap"}
	}
	if budgets == nil {
		budgets = NewBudgetBook()
	}
	if skips == nil {
		skips = nopSkipRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		cfg:       cfg,
		caps:      caps,
		acct:      NewAccounting(),
		budgets:   budgets,
		dailyLoss: dailyLoss,
		skips:     skips,
		logger:    logger,
	}, nil
}

// Accounting exposes the governor's bookkeeping for snapshots and teardown.
func (g *Governor) Accounting() *Accounting { return g.acct }

// Budgets exposes the budget book for configuration.
func (g *Governor) Budgets() *BudgetBook { return g.budgets }

// DailyLoss exposes the daily-loss breaker, nil when not configured.
func (g *Governor) DailyLoss() *DailyLossCap { return g.dailyLoss }

// Validate checks an intent against current totals without recording it.
func (g *Governor) Validate(intent Intent) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	strat, agg := g.acct.Snapshot(intent.Strategy, intent.Simulated)
	d := g.evaluate(intent, strat, agg)
	if !d.Allowed {
		g.recordDenial(intent, d)
	}
	return d
}

// RecordIntent validates and, when allowed, books the intent's notional and
// position in one critical section. On denial nothing is mutated.
func (g *Governor) RecordIntent(intent Intent) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !intent.Notional.IsPositive() {
		d := deny(ReasonInvalidIntent, decimal.Zero, intent.Notional)
		g.recordDenial(intent, d)
		return d
	}

	var d Decision
	ok := g.acct.ApplyIntentChecked(intent.Strategy, intent.Notional, intent.Simulated, func(strat, agg Totals) bool {
		d = g.evaluate(intent, strat, agg)
		if !d.Allowed {
			return false
		}
		if g.cfg.EnforceBudget && !intent.Simulated && !g.bypassed(intent) {
			if err := g.budgets.Allocate(intent.Strategy, intent.Notional); err != nil {
				cap, _ := g.budgets.Cap(intent.Strategy)
				d = deny(ReasonBudgetExhausted, cap, g.budgets.Allocated(intent.Strategy))
				return false
			}
		}
		return true
	})
	if !ok && d.Allowed {
		// The check fn sets d on every failure path; this is unreachable.
		d = deny(ReasonInvalidIntent, decimal.Zero, intent.Notional)
	}
	if !d.Allowed {
		g.recordDenial(intent, d)
	}
	return d
}

// RecordFill books a fill's exposure and realized PnL changes. A negative
// notional delta (position closing) releases the strategy's budget
// allocation; losses feed the daily-loss breaker and the budget-used
// counter.
func (g *Governor) RecordFill(strategy string, notionalDelta, realizedDelta decimal.Decimal, positionsDelta int, simulated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.acct.ApplyFill(strategy, notionalDelta, realizedDelta, positionsDelta, simulated)
	if simulated {
		return
	}
	if g.dailyLoss != nil && !realizedDelta.IsZero() {
		g.dailyLoss.AddRealized(realizedDelta)
	}
	if notionalDelta.IsNegative() {
		g.budgets.Release(strategy, notionalDelta.Neg())
	}
}

func (g *Governor) bypassed(intent Intent) bool {
	return g.cfg.DryRun || intent.Simulated
}

// evaluate applies the checks in order; the first failure wins.
func (g *Governor) evaluate(intent Intent, strat, agg Totals) Decision {
	if g.bypassed(intent) {
		return Decision{Allowed: true, Reason: ReasonDryRunBypass}
	}

	if g.cfg.EnforceDailyLoss && g.dailyLoss != nil && g.dailyLoss.Breached() {
		return deny(ReasonDailyLossCap, g.dailyLoss.Cap(), g.dailyLoss.LossesToday())
	}

	if g.cfg.EnforceCaps {
		projected := agg.OpenNotional.Add(intent.Notional)
		if projected.GreaterThan(g.caps.MaxTotalNotional()) {
			return deny(ReasonTotalNotionalCap, g.caps.MaxTotalNotional(), agg.OpenNotional)
		}
		if ceiling, ok := g.caps.VenueNotional(intent.Venue); ok && intent.Notional.GreaterThan(ceiling) {
			return deny(ReasonVenueNotionalCap, ceiling, intent.Notional)
		}
		positions := intent.Positions
		if positions <= 0 {
			positions = 1
		}
		if agg.OpenPositions+positions > g.caps.MaxOpenPositions() {
			return deny(ReasonOpenPositionCap,
				decimal.NewFromInt(int64(g.caps.MaxOpenPositions())),
				decimal.NewFromInt(int64(agg.OpenPositions)))
		}
	}

	if g.cfg.EnforceBudget {
		cap, ok := g.budgets.Cap(intent.Strategy)
		if !ok {
			return deny(ReasonBudgetUnconfigured, decimal.Zero, decimal.Zero)
		}
		used := g.budgets.Allocated(intent.Strategy).Add(strat.BudgetUsedToday)
		if used.GreaterThanOrEqual(cap.Sub(budgetEpsilon)) {
			return deny(ReasonBudgetExhausted, cap, used)
		}
	}

	return allow()
}

func (g *Governor) recordDenial(intent Intent, d Decision) {
	g.skips.RecordRiskSkip(intent.Strategy, d.Reason)
	g.logger.Warn("intent denied",
		zap.String("strategy", intent.Strategy),
		zap.String("venue", intent.Venue),
		zap.String("reason", d.Reason),
		zap.String("limit", d.Limit.String()),
		zap.String("current", d.Current.String()),
		zap.String("notional", intent.Notional.String()),
	)
}
