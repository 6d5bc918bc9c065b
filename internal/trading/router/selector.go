package router

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stratoquant/hedgecore/internal/trading/watchdog"
	"github.com/stratoquant/hedgecore/pkg/metrics"
)

// Rejection reasons returned by SelectPair.
const (
	RejectTradingHalted      = "trading_halted"
	RejectInsufficientQuotes = "insufficient_quotes"
	RejectEdgeBelowMin       = "edge_below_min"
	RejectNotionalBelowMin   = "notional_below_min"
)

var one = decimal.NewFromInt(1)

// Config tunes pair selection.
type Config struct {
	// FreshnessWindow drops quotes older than this before scoring.
	FreshnessWindow time.Duration
	// MinEdgeBps is the smallest net edge worth placing a pair for.
	MinEdgeBps decimal.Decimal
	// MinNotional is the smallest order size worth placing at all.
	MinNotional decimal.Decimal
	// SlippagePct buffers leg limit prices, e.g. 0.001 widens by 0.1%.
	SlippagePct decimal.Decimal
	// QtyPrecision is the decimal precision leg quantities are truncated to.
	QtyPrecision int32
	// Horizon is the expected holding time fed to the cost model.
	Horizon time.Duration
	// MakerPossible allows the cost model to assume post-only placement.
	MakerPossible bool
	// FundingAware gates the funding component on each venue's next
	// funding event instead of accruing it unconditionally.
	FundingAware bool
	// Preferences scales pair edges per venue in [0,1]; missing venues
	// default to 1.
	Preferences map[string]decimal.Decimal
}

// Selector scores every ordered venue pair against live quotes and picks the
// highest net-edge two-leg plan.
type Selector struct {
	cfg    Config
	health watchdog.Health
	logger *zap.Logger
	tiers  map[string]*TierTable
	impact *ImpactModel
	now    func() time.Time
}

func NewSelector(cfg Config, health watchdog.Health, logger *zap.Logger) *Selector {
	if health == nil {
		health = watchdog.AlwaysHealthy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		cfg:    cfg,
		health: health,
		logger: logger,
		now:    time.Now,
	}
}

// SetTierTable installs a venue's volume-tier fee schedule.
func (s *Selector) SetTierTable(venue string, table *TierTable) {
	if s.tiers == nil {
		s.tiers = make(map[string]*TierTable)
	}
	s.tiers[venue] = table
}

// SetImpactModel installs the shared book-impact surcharge model.
func (s *Selector) SetImpactModel(m *ImpactModel) { s.impact = m }

// SelectPair evaluates every ordered (long, short) venue pair over the live
// quotes and returns the plan with the highest preference-scaled net edge,
// or nil and a rejection reason.
func (s *Selector) SelectPair(quotes []Quote, notional decimal.Decimal) (*RoutePlan, string) {
	if !s.health.OverallOK() {
		return s.reject(RejectTradingHalted, zap.Skip())
	}
	if notional.LessThan(s.cfg.MinNotional) {
		return s.reject(RejectNotionalBelowMin,
			zap.String("notional", notional.String()),
			zap.String("min_notional", s.cfg.MinNotional.String()))
	}

	live := s.liveQuotes(quotes)
	if len(live) < 2 {
		return s.reject(RejectInsufficientQuotes, zap.Int("live_quotes", len(live)))
	}

	var best *RoutePlan
	for i := range live {
		for j := range live {
			if i == j {
				continue
			}
			plan := s.score(live[i], live[j], notional)
			if plan == nil {
				continue
			}
			if best == nil || plan.EdgeBps.GreaterThan(best.EdgeBps) {
				best = plan
			}
		}
	}
	if best == nil || best.EdgeBps.LessThan(s.cfg.MinEdgeBps) {
		return s.reject(RejectEdgeBelowMin,
			zap.String("min_edge_bps", s.cfg.MinEdgeBps.String()))
	}

	metrics.RoutesSelected.WithLabelValues(best.Long.Venue, best.Short.Venue).Inc()
	s.logger.Info("route selected",
		zap.String("long_venue", best.Long.Venue),
		zap.String("short_venue", best.Short.Venue),
		zap.String("edge_bps", best.EdgeBps.String()),
		zap.String("qty", best.Long.Qty.String()))
	return best, ""
}

func (s *Selector) reject(reason string, fields ...zap.Field) (*RoutePlan, string) {
	metrics.RoutesRejected.WithLabelValues(reason).Inc()
	s.logger.Debug("route rejected", append(fields, zap.String("reason", reason))...)
	return nil, reason
}

func (s *Selector) liveQuotes(quotes []Quote) []Quote {
	failing := make(map[string]bool)
	for _, v := range s.health.FailingExchanges() {
		failing[v] = true
	}
	now := s.now()
	live := quotes[:0:0]
	for _, q := range quotes {
		if failing[q.Venue] {
			continue
		}
		if s.cfg.FreshnessWindow > 0 && now.Sub(q.At) > s.cfg.FreshnessWindow {
			continue
		}
		if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
			continue
		}
		live = append(live, q)
	}
	return live
}

// score builds the candidate plan for buying on long and selling on short.
// It returns nil when the pair cannot produce a positive-quantity plan.
func (s *Selector) score(long, short Quote, notional decimal.Decimal) *RoutePlan {
	refPrice := long.Ask.Add(short.Bid).Div(two)
	if !refPrice.IsPositive() {
		return nil
	}
	qty := notional.Div(refPrice).Truncate(s.cfg.QtyPrecision)
	if !qty.IsPositive() {
		return nil
	}

	grossBps := short.Bid.Sub(long.Ask).Div(refPrice).Mul(tenThousand)
	longCost := s.legCost(SideLong, qty, long.Ask, long.Meta, long.Venue)
	shortCost := s.legCost(SideShort, qty, short.Bid, short.Meta, short.Venue)
	edge := grossBps.Sub(longCost.Bps).Sub(shortCost.Bps)
	edge = edge.Mul(s.pairPreference(long.Venue, short.Venue))

	slip := s.cfg.SlippagePct
	return &RoutePlan{
		Long: Leg{
			Venue:      long.Venue,
			Side:       SideLong,
			Qty:        qty,
			LimitPrice: long.Ask.Mul(one.Add(slip)),
		},
		Short: Leg{
			Venue:      short.Venue,
			Side:       SideShort,
			Qty:        qty,
			LimitPrice: short.Bid.Mul(one.Sub(slip)),
		},
		ReferencePrice: refPrice,
		EdgeBps:        edge,
		Notional:       qty.Mul(refPrice),
	}
}

func (s *Selector) legCost(side Side, qty, price decimal.Decimal, meta VenueMeta, venue string) Cost {
	tiers := s.tiers[venue]
	if s.cfg.FundingAware {
		return FundingAwareCost(s.now(), side, qty, price, s.cfg.Horizon, s.cfg.MakerPossible, meta, tiers, s.impact)
	}
	return EffectiveCost(side, qty, price, s.cfg.Horizon, s.cfg.MakerPossible, meta, tiers, s.impact)
}

func (s *Selector) pairPreference(long, short string) decimal.Decimal {
	p := s.venuePreference(long)
	if q := s.venuePreference(short); q.LessThan(p) {
		p = q
	}
	return p
}

func (s *Selector) venuePreference(venue string) decimal.Decimal {
	if p, ok := s.cfg.Preferences[venue]; ok {
		return p
	}
	return one
}
