package trading

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratoquant/hedgecore/internal/config"
	"github.com/stratoquant/hedgecore/internal/trading/orderstate"
	"github.com/stratoquant/hedgecore/internal/trading/risk"
	"github.com/stratoquant/hedgecore/internal/trading/watchdog"
)

func testCoreConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			EnforceCaps:      true,
			EnforceBudget:    true,
			EnforceDailyLoss: true,
			MaxOpenPositions: 5,
			MaxTotalNotional: "100000",
			VenueCeilings:    map[string]string{"binance": "50000"},
			DailyLossCap:     "2000",
			StrategyBudgets:  map[string]string{"basis": "30000"},
		},
		FlowControl: config.FlowControlConfig{
			CooldownMaxEntries: 128,
			DeadlineMaxEntries: 128,
			AckTimeout:         5 * time.Second,
			FillTimeout:        time.Minute,
		},
		Router: config.RouterConfig{
			FreshnessWindow: 3 * time.Second,
			Horizon:         time.Hour,
			MinEdgeBps:      "1.0",
			MinNotional:     "10",
			SlippagePct:     "0.001",
			QtyPrecision:    4,
		},
		ClientID: config.ClientIDConfig{BucketSeconds: 60},
	}
}

func TestNewCoreWiresEverything(t *testing.T) {
	core, err := NewCore(testCoreConfig(), zap.NewNop(), watchdog.AlwaysHealthy, nil)
	require.NoError(t, err)

	require.NotNil(t, core.Governor)
	require.NotNil(t, core.Router)
	require.NotNil(t, core.Cooldowns)
	require.NotNil(t, core.Deadlines)

	cap, ok := core.Governor.Budgets().Cap("basis")
	require.True(t, ok)
	assert.True(t, cap.Equal(decimal.NewFromInt(30000)))
	assert.True(t, core.Governor.DailyLoss().Cap().Equal(decimal.NewFromInt(2000)))

	d := core.Governor.RecordIntent(risk.Intent{
		Strategy: "basis",
		Venue:    "binance",
		Notional: decimal.NewFromInt(1000),
	})
	assert.True(t, d.Allowed)
}

func TestNewCoreRejectsMalformedConfig(t *testing.T) {
	cfg := testCoreConfig()
	cfg.Risk.MaxTotalNotional = "bogus"
	_, err := NewCore(cfg, zap.NewNop(), nil, nil)
	require.Error(t, err)

	cfg = testCoreConfig()
	cfg.Risk.MaxOpenPositions = 0
	_, err = NewCore(cfg, zap.NewNop(), nil, nil)
	require.Error(t, err)

	cfg = testCoreConfig()
	cfg.Router.SlippagePct = "x"
	_, err = NewCore(cfg, zap.NewNop(), nil, nil)
	require.Error(t, err)

	_, err = NewCore(nil, zap.NewNop(), nil, nil)
	require.Error(t, err)
}

func TestNewDefaultCore(t *testing.T) {
	core, err := NewDefaultCore(zap.NewNop())
	require.NoError(t, err)

	d := core.Governor.RecordIntent(risk.Intent{
		Strategy: "smoke",
		Venue:    "test",
		Notional: decimal.NewFromInt(1),
	})
	// Default budgets are unconfigured, so budget enforcement denies.
	assert.False(t, d.Allowed)
}

func TestFoldUpdateLifecycle(t *testing.T) {
	core, err := NewCore(testCoreConfig(), zap.NewNop(), nil, nil)
	require.NoError(t, err)

	core.Deadlines.OnSubmit("ord-7")
	state := orderstate.State{Status: orderstate.StatusNew, Qty: decimal.NewFromInt(5)}

	state = core.FoldUpdate("ord-7", state, map[string]any{"status": "ack"})
	assert.Equal(t, orderstate.StatusAck, state.Status)

	state = core.FoldUpdate("ord-7", state, map[string]any{"cum_qty": "2", "fill_id": "f1"})
	assert.Equal(t, orderstate.StatusPartial, state.Status)

	dup := core.FoldUpdate("ord-7", state, map[string]any{"cum_qty": "2", "fill_id": "f1"})
	assert.Equal(t, orderstate.EventDuplicateFillIgnored, dup.LastEvent)
	assert.True(t, dup.CumFilled.Equal(state.CumFilled))

	state = core.FoldUpdate("ord-7", dup, map[string]any{"cum_qty": "5", "fill_id": "f2"})
	assert.Equal(t, orderstate.StatusFilled, state.Status)
	assert.Equal(t, 0, core.Deadlines.Len())
}

func TestCoreReset(t *testing.T) {
	core, err := NewCore(testCoreConfig(), zap.NewNop(), nil, nil)
	require.NoError(t, err)

	require.True(t, core.Governor.RecordIntent(risk.Intent{
		Strategy: "basis", Venue: "binance", Notional: decimal.NewFromInt(500),
	}).Allowed)
	core.Cooldowns.Hit("basis:binance", time.Minute, "manual")
	core.Deadlines.OnSubmit("ord-1")

	core.Reset()

	strat, _ := core.Governor.Accounting().Snapshot("basis", false)
	assert.True(t, strat.OpenNotional.IsZero())
	assert.True(t, core.Governor.Budgets().Allocated("basis").IsZero())
	assert.False(t, core.Cooldowns.IsCooling("basis:binance"))
	assert.Equal(t, 0, core.Deadlines.Len())

	// Budget ceilings survive a reset.
	cap, ok := core.Governor.Budgets().Cap("basis")
	require.True(t, ok)
	assert.True(t, cap.Equal(decimal.NewFromInt(30000)))
}
