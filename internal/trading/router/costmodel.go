package router

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	tenThousand = decimal.NewFromInt(10_000)
	two         = decimal.NewFromInt(2)
)

// amountPrecision is the decimal precision of computed cost amounts; rounding
// is half-even to keep drift out of long fill sequences.
const amountPrecision = 8

// FeeTier is one rung of a venue's volume-tiered fee schedule.
type FeeTier struct {
	Name           string
	MinNotional30d decimal.Decimal
	MakerBps       decimal.Decimal
	TakerBps       decimal.Decimal
}

// TierTable selects fee rates by rolling 30-day traded notional.
type TierTable struct {
	Tiers              []FeeTier
	Rolling30dNotional decimal.Decimal
}

// Best returns the highest tier whose threshold the rolling notional clears.
func (t *TierTable) Best() (FeeTier, bool) {
	var best FeeTier
	found := false
	for _, tier := range t.Tiers {
		if t.Rolling30dNotional.GreaterThanOrEqual(tier.MinNotional30d) {
			if !found || tier.MinNotional30d.GreaterThanOrEqual(best.MinNotional30d) {
				best = tier
				found = true
			}
		}
	}
	return best, found
}

// ImpactModel adds a surcharge for orders large relative to the available
// book liquidity.
type ImpactModel struct {
	// CoefficientBps scales the notional/liquidity ratio into basis points.
	CoefficientBps decimal.Decimal
	// MaxBps caps the surcharge; zero means uncapped.
	MaxBps decimal.Decimal
}

// SurchargeBps returns the impact surcharge for the given order notional
// against the available liquidity.
func (m ImpactModel) SurchargeBps(notional, liquidity decimal.Decimal) decimal.Decimal {
	if !liquidity.IsPositive() || !notional.IsPositive() {
		return decimal.Zero
	}
	bps := m.CoefficientBps.Mul(notional).Div(liquidity)
	if m.MaxBps.IsPositive() && bps.GreaterThan(m.MaxBps) {
		return m.MaxBps
	}
	return bps
}

// Cost is the modeled execution cost of one leg.
type Cost struct {
	Bps       decimal.Decimal
	Amount    decimal.Decimal
	Mode      ExecutionMode
	Breakdown map[string]decimal.Decimal
}

// EffectiveCost models the all-in execution cost of one leg in basis points
// and quote-currency amount.
//
// The execution mode is maker when allowed and the rebated maker rate does
// not exceed the taker rate. Funding accrues continuously over the horizon
// and flips sign for the short side (a positive funding rate is paid by
// longs, earned by shorts). A tier table, when supplied, replaces the meta
// fee rates with the best rolling-30-day tier; an impact model adds a
// surcharge scaled by notional against book liquidity.
func EffectiveCost(side Side, qty, price decimal.Decimal, horizon time.Duration, makerPossible bool, meta VenueMeta, tiers *TierTable, impact *ImpactModel) Cost {
	return effectiveCost(side, qty, price, horizon, makerPossible, meta, tiers, impact, fundingHours(horizon))
}

// FundingAwareCost is EffectiveCost with the funding component gated on the
// venue's next funding event: a horizon that ends before the event pays no
// funding at all.
func FundingAwareCost(now time.Time, side Side, qty, price decimal.Decimal, horizon time.Duration, makerPossible bool, meta VenueMeta, tiers *TierTable, impact *ImpactModel) Cost {
	hours := fundingHours(horizon)
	if !meta.NextFundingAt.IsZero() && meta.NextFundingAt.After(now.Add(horizon)) {
		hours = decimal.Zero
	}
	return effectiveCost(side, qty, price, horizon, makerPossible, meta, tiers, impact, hours)
}

func effectiveCost(side Side, qty, price decimal.Decimal, horizon time.Duration, makerPossible bool, meta VenueMeta, tiers *TierTable, impact *ImpactModel, fundingHrs decimal.Decimal) Cost {
	makerBps := meta.MakerBps
	takerBps := meta.TakerBps
	if tiers != nil {
		if tier, ok := tiers.Best(); ok {
			makerBps = tier.MakerBps
			takerBps = tier.TakerBps
		}
	}

	mode := ModeTaker
	feeBps := takerBps
	if makerPossible && makerBps.Sub(meta.VIPRebateBps).LessThanOrEqual(takerBps) {
		mode = ModeMaker
		feeBps = makerBps.Sub(meta.VIPRebateBps)
	}

	fundingBps := meta.FundingBpsPerHour.Mul(fundingHrs)
	if side == SideShort {
		fundingBps = fundingBps.Neg()
	}

	notional := qty.Mul(price)
	impactBps := decimal.Zero
	if impact != nil {
		impactBps = impact.SurchargeBps(notional, meta.BookLiquidity)
	}

	totalBps := feeBps.Add(fundingBps).Add(impactBps)
	amount := notional.Mul(totalBps).Div(tenThousand).RoundBank(amountPrecision)

	return Cost{
		Bps:    totalBps,
		Amount: amount,
		Mode:   mode,
		Breakdown: map[string]decimal.Decimal{
			"fee_bps":     feeBps,
			"funding_bps": fundingBps,
			"impact_bps":  impactBps,
			"total_bps":   totalBps,
			"amount":      amount,
		},
	}
}

func fundingHours(horizon time.Duration) decimal.Decimal {
	if horizon <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(horizon)).Div(decimal.NewFromInt(int64(time.Hour)))
}
