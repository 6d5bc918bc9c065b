// Cost-aware venue selection: fee/funding/impact modeling and pairwise
// venue-pair scoring for two-leg hedge placement.
package router

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a hedge leg.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExecutionMode is the fee role the cost model expects for a leg.
type ExecutionMode string

const (
	ModeMaker ExecutionMode = "maker"
	ModeTaker ExecutionMode = "taker"
)

// VenueMeta describes a venue's fee and funding characteristics at a point in
// time. FundingBpsPerHour is signed: positive means longs pay shorts.
type VenueMeta struct {
	MakerBps          decimal.Decimal
	TakerBps          decimal.Decimal
	VIPRebateBps      decimal.Decimal
	FundingBpsPerHour decimal.Decimal
	NextFundingAt     time.Time
	// BookLiquidity is the notional resting near the top of book, fed to
	// the impact model. Zero disables the impact surcharge.
	BookLiquidity decimal.Decimal
}

// Quote is an immutable snapshot of a venue's top of book.
type Quote struct {
	Venue string
	Bid   decimal.Decimal
	Ask   decimal.Decimal
	Meta  VenueMeta
	At    time.Time
}

// Leg is one side of the hedge plan.
type Leg struct {
	Venue      string
	Side       Side
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal
}

// RoutePlan is the two-leg placement produced by pair selection.
type RoutePlan struct {
	Long           Leg
	Short          Leg
	ReferencePrice decimal.Decimal
	EdgeBps        decimal.Decimal
	Notional       decimal.Decimal
}
