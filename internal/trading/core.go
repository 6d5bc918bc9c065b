// Package trading wires the decision core together: the risk governor, the
// venue-pair router, flow-control registries and the client-id generator,
// built from validated configuration and injected into callers instead of
// living as process-wide singletons.
package trading

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/stratoquant/hedgecore/internal/config"
	"github.com/stratoquant/hedgecore/internal/trading/clientid"
	"github.com/stratoquant/hedgecore/internal/trading/flowcontrol"
	"github.com/stratoquant/hedgecore/internal/trading/orderstate"
	"github.com/stratoquant/hedgecore/internal/trading/risk"
	"github.com/stratoquant/hedgecore/internal/trading/router"
	"github.com/stratoquant/hedgecore/internal/trading/watchdog"
	"github.com/stratoquant/hedgecore/pkg/metrics"
)

// Core is the assembled decision core. Construct one per process (or per
// test) with NewCore and pass it down; Reset tears mutable state back to
// empty between tests.
type Core struct {
	Governor  *risk.Governor
	Router    *router.Selector
	Cooldowns *flowcontrol.CooldownRegistry
	Deadlines *flowcontrol.DeadlineTracker
	IDs       clientid.Generator

	logger *zap.Logger
}

// NewCore builds a decision core from validated configuration. Health and
// skips may be nil; the watchdog then always reports healthy and denials are
// only logged.
func NewCore(cfg *config.Config, logger *zap.Logger, health watchdog.Health, skips risk.SkipRecorder) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	governor, err := buildGovernor(cfg.Risk, skips, logger)
	if err != nil {
		return nil, fmt.Errorf("build governor: %w", err)
	}

	selector, err := buildSelector(cfg.Router, health, logger)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	fc := cfg.FlowControl
	return &Core{
		Governor:  governor,
		Router:    selector,
		Cooldowns: flowcontrol.NewCooldownRegistry(fc.CooldownMaxEntries),
		Deadlines: flowcontrol.NewDeadlineTracker(fc.AckTimeout, fc.FillTimeout, fc.DeadlineMaxEntries),
		IDs:       clientid.Generator{BucketSeconds: cfg.ClientID.BucketSeconds},
		logger:    logger,
	}, nil
}

// NewDefaultCore builds a core from the built-in configuration defaults, for
// tests and self-checks that do not carry a config file.
func NewDefaultCore(logger *zap.Logger) (*Core, error) {
	return NewCore(config.Default(), logger, watchdog.AlwaysHealthy, nil)
}

// FoldUpdate merges an exchange callback into the order's canonical state and
// keeps the surrounding bookkeeping current: absorbed duplicates bump the
// duplicate-fill counter, fill progress and acks advance the order's deadline
// phase, and a terminal state drops deadline tracking.
func (c *Core) FoldUpdate(orderID string, state orderstate.State, update map[string]any) orderstate.State {
	next := orderstate.Apply(state, update)

	if next.LastEvent == orderstate.EventDuplicateFillIgnored {
		metrics.DuplicateFills.Inc()
	}
	switch {
	case next.Status.Terminal():
		c.Deadlines.Done(orderID)
	case next.CumFilled.GreaterThan(state.CumFilled):
		c.Deadlines.OnFillProgress(orderID)
	case next.Status == orderstate.StatusAck && state.Status != orderstate.StatusAck:
		c.Deadlines.OnAck(orderID)
	}
	return next
}

// Reset clears all mutable bookkeeping: accounting, budget allocations, the
// daily-loss accumulator and both flow-control registries. Configured caps
// and budget ceilings survive.
func (c *Core) Reset() {
	c.Governor.Accounting().Reset()
	c.Governor.Budgets().ResetAllocations()
	if dl := c.Governor.DailyLoss(); dl != nil {
		dl.Reset()
	}
	c.Cooldowns.Reset()
	c.Deadlines.Reset()
}

func buildGovernor(rc config.RiskConfig, skips risk.SkipRecorder, logger *zap.Logger) (*risk.Governor, error) {
	totalNotional, err := config.Decimal(rc.MaxTotalNotional)
	if err != nil {
		return nil, fmt.Errorf("max_total_notional: %w", err)
	}
	ceilings, err := config.DecimalMap(rc.VenueCeilings)
	if err != nil {
		return nil, fmt.Errorf("venue_ceilings: %w", err)
	}
	caps, err := risk.NewCaps(rc.MaxOpenPositions, totalNotional, ceilings)
	if err != nil {
		return nil, err
	}

	lossCap, err := config.Decimal(rc.DailyLossCap)
	if err != nil {
		return nil, fmt.Errorf("daily_loss_cap: %w", err)
	}
	dailyLoss, err := risk.NewDailyLossCap(lossCap)
	if err != nil {
		return nil, err
	}

	budgets := risk.NewBudgetBook()
	budgetCaps, err := config.DecimalMap(rc.StrategyBudgets)
	if err != nil {
		return nil, fmt.Errorf("strategy_budgets: %w", err)
	}
	for strategy, cap := range budgetCaps {
		if err := budgets.SetCap(strategy, cap); err != nil {
			return nil, fmt.Errorf("budget for %s: %w", strategy, err)
		}
	}

	gcfg := risk.Config{
		EnforceCaps:      rc.EnforceCaps,
		EnforceBudget:    rc.EnforceBudget,
		EnforceDailyLoss: rc.EnforceDailyLoss,
		DryRun:           rc.DryRun,
	}
	return risk.NewGovernor(gcfg, caps, dailyLoss, budgets, skips, logger)
}

func buildSelector(rc config.RouterConfig, health watchdog.Health, logger *zap.Logger) (*router.Selector, error) {
	minEdge, err := config.Decimal(rc.MinEdgeBps)
	if err != nil {
		return nil, fmt.Errorf("min_edge_bps: %w", err)
	}
	minNotional, err := config.Decimal(rc.MinNotional)
	if err != nil {
		return nil, fmt.Errorf("min_notional: %w", err)
	}
	slippage, err := config.Decimal(rc.SlippagePct)
	if err != nil {
		return nil, fmt.Errorf("slippage_pct: %w", err)
	}
	prefs, err := config.DecimalMap(rc.Preferences)
	if err != nil {
		return nil, fmt.Errorf("preferences: %w", err)
	}

	return router.NewSelector(router.Config{
		FreshnessWindow: rc.FreshnessWindow,
		MinEdgeBps:      minEdge,
		MinNotional:     minNotional,
		SlippagePct:     slippage,
		QtyPrecision:    rc.QtyPrecision,
		Horizon:         rc.Horizon,
		MakerPossible:   rc.MakerPossible,
		FundingAware:    rc.FundingAware,
		Preferences:     prefs,
	}, health, logger), nil
}
