package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratoquant/hedgecore/internal/config"
	"github.com/stratoquant/hedgecore/internal/trading"
	"github.com/stratoquant/hedgecore/internal/trading/orderstate"
	"github.com/stratoquant/hedgecore/internal/trading/risk"
	"github.com/stratoquant/hedgecore/internal/trading/router"
	"github.com/stratoquant/hedgecore/internal/trading/watchdog"
	"github.com/stratoquant/hedgecore/pkg/logger"
	"github.com/stratoquant/hedgecore/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to hedgecore.yaml (defaults used when empty)")
	flag.Parse()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	var cfg *config.Config
	if *configPath != "" {
		manager := config.NewManager(zapLogger)
		if err := manager.Load(*configPath); err != nil {
			zapLogger.Fatal("Failed to load configuration", zap.Error(err))
		}
		cfg = manager.Get()
	} else {
		zapLogger.Warn("No config file given, using built-in defaults")
		cfg = config.Default()
	}

	core, err := trading.NewCore(cfg, zapLogger, watchdog.AlwaysHealthy, metrics.SkipRecorder{})
	if err != nil {
		zapLogger.Fatal("Failed to build decision core", zap.Error(err))
	}

	if err := selfCheck(core, zapLogger); err != nil {
		zapLogger.Fatal("Decision core self-check failed", zap.Error(err))
	}
	zapLogger.Info("Decision core self-check passed")
}

// selfCheck drives a simulated intent through every stage of the decision
// core: governor, router, client-id derivation, order-state merge and
// flow-control tracking. Nothing is sent anywhere; the run verifies the
// configured core is internally consistent before a host process embeds it.
func selfCheck(core *trading.Core, zapLogger *zap.Logger) error {
	defer core.Reset()

	decision := core.Governor.Validate(risk.Intent{
		Strategy:  "selfcheck",
		Venue:     "simulated",
		Notional:  decimal.NewFromInt(1),
		Positions: 1,
		Simulated: true,
	})
	zapLogger.Info("governor check",
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason))

	now := time.Now()
	quotes := []router.Quote{
		{Venue: "sim-a", Bid: decimal.RequireFromString("101.00"), Ask: decimal.RequireFromString("100.00"), At: now},
		{Venue: "sim-b", Bid: decimal.RequireFromString("102.00"), Ask: decimal.RequireFromString("100.10"), At: now},
	}
	plan, reason := core.Router.SelectPair(quotes, decimal.NewFromInt(10000))
	if plan != nil {
		zapLogger.Info("router check",
			zap.String("long", plan.Long.Venue),
			zap.String("short", plan.Short.Venue),
			zap.String("edge_bps", plan.EdgeBps.String()))
	} else {
		zapLogger.Info("router check", zap.String("rejected", reason))
	}

	id := core.IDs.Generate("selfcheck", "sim-a", "BTC-PERP", "buy", now, "")
	zapLogger.Info("client id check", zap.String("id", id))

	state := orderstate.State{Status: orderstate.StatusNew, Qty: decimal.NewFromInt(1)}
	state = orderstate.Apply(state, map[string]any{"status": "ack"})
	state = orderstate.Apply(state, map[string]any{"cum_qty": "1", "fill_id": "sc-1"})
	if state.Status != orderstate.StatusFilled {
		return fmt.Errorf("order state merge ended in %s, want %s", state.Status, orderstate.StatusFilled)
	}

	core.Deadlines.OnSubmit(id)
	core.Deadlines.Done(id)
	core.Cooldowns.Hit("selfcheck", time.Second, "selfcheck")
	if !core.Cooldowns.IsCooling("selfcheck") {
		return fmt.Errorf("cooldown registry did not retain the selfcheck key")
	}
	return nil
}
