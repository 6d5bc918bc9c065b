// Package config provides centralized configuration for the decision core,
// loaded from YAML files and HEDGECORE_ environment variables with
// validation and hot reload.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the complete decision-core configuration.
type Config struct {
	Environment string        `mapstructure:"environment" yaml:"environment" validate:"omitempty,oneof=development staging production"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Risk        RiskConfig        `mapstructure:"risk" yaml:"risk" validate:"required"`
	FlowControl FlowControlConfig `mapstructure:"flow_control" yaml:"flow_control" validate:"required"`
	Router      RouterConfig      `mapstructure:"router" yaml:"router" validate:"required"`
	ClientID    ClientIDConfig    `mapstructure:"client_id" yaml:"client_id"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// RiskConfig holds the governor's caps, budgets and enforcement toggles.
// Money amounts are decimal strings so no precision is lost in transit.
type RiskConfig struct {
	EnforceCaps      bool `mapstructure:"enforce_caps" yaml:"enforce_caps"`
	EnforceBudget    bool `mapstructure:"enforce_budget" yaml:"enforce_budget"`
	EnforceDailyLoss bool `mapstructure:"enforce_daily_loss" yaml:"enforce_daily_loss"`
	DryRun           bool `mapstructure:"dry_run" yaml:"dry_run"`

	MaxOpenPositions int               `mapstructure:"max_open_positions" yaml:"max_open_positions" validate:"required,min=1"`
	MaxTotalNotional string            `mapstructure:"max_total_notional" yaml:"max_total_notional" validate:"required,decimal"`
	VenueCeilings    map[string]string `mapstructure:"venue_ceilings" yaml:"venue_ceilings" validate:"dive,decimal"`
	DailyLossCap     string            `mapstructure:"daily_loss_cap" yaml:"daily_loss_cap" validate:"required,decimal"`
	StrategyBudgets  map[string]string `mapstructure:"strategy_budgets" yaml:"strategy_budgets" validate:"dive,decimal"`
}

// FlowControlConfig bounds the cooldown and deadline registries.
type FlowControlConfig struct {
	CooldownMaxEntries int           `mapstructure:"cooldown_max_entries" yaml:"cooldown_max_entries" validate:"min=1"`
	DeadlineMaxEntries int           `mapstructure:"deadline_max_entries" yaml:"deadline_max_entries" validate:"min=1"`
	AckTimeout         time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout" validate:"required"`
	FillTimeout        time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout" validate:"required"`
}

// RouterConfig tunes venue-pair selection.
type RouterConfig struct {
	FreshnessWindow time.Duration     `mapstructure:"freshness_window" yaml:"freshness_window" validate:"required"`
	Horizon         time.Duration     `mapstructure:"horizon" yaml:"horizon"`
	MinEdgeBps      string            `mapstructure:"min_edge_bps" yaml:"min_edge_bps" validate:"required,decimal"`
	MinNotional     string            `mapstructure:"min_notional" yaml:"min_notional" validate:"required,decimal"`
	SlippagePct     string            `mapstructure:"slippage_pct" yaml:"slippage_pct" validate:"required,decimal"`
	QtyPrecision    int32             `mapstructure:"qty_precision" yaml:"qty_precision" validate:"min=0,max=18"`
	MakerPossible   bool              `mapstructure:"maker_possible" yaml:"maker_possible"`
	FundingAware    bool              `mapstructure:"funding_aware" yaml:"funding_aware"`
	Preferences     map[string]string `mapstructure:"preferences" yaml:"preferences" validate:"dive,decimal"`
}

// ClientIDConfig tunes deterministic order-id derivation.
type ClientIDConfig struct {
	BucketSeconds int64 `mapstructure:"bucket_seconds" yaml:"bucket_seconds" validate:"omitempty,min=1"`
}

// Default returns a fully-populated development configuration with
// permissive caps, for tests and self-checks that carry no config file.
func Default() *Config {
	return &Config{
		Environment: "development",
		Logging:     LoggingConfig{Level: "info"},
		Risk: RiskConfig{
			EnforceCaps:      true,
			EnforceBudget:    true,
			EnforceDailyLoss: true,
			MaxOpenPositions: 1000,
			MaxTotalNotional: "1000000000",
			DailyLossCap:     "1000000",
		},
		FlowControl: FlowControlConfig{
			CooldownMaxEntries: 4096,
			DeadlineMaxEntries: 4096,
			AckTimeout:         5 * time.Second,
			FillTimeout:        time.Minute,
		},
		Router: RouterConfig{
			FreshnessWindow: 3 * time.Second,
			Horizon:         time.Hour,
			MinEdgeBps:      "1.0",
			MinNotional:     "10",
			SlippagePct:     "0.001",
			QtyPrecision:    4,
		},
		ClientID: ClientIDConfig{BucketSeconds: 60},
	}
}

// Decimal parses a decimal string field that already passed validation.
func Decimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// DecimalMap parses a map of decimal string fields.
func DecimalMap(in map[string]string) (map[string]decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		d, err := Decimal(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}
