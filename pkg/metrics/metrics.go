package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RiskSkips counts trade intents denied by the risk governor, by strategy and
// reason code.
var RiskSkips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hedgecore_risk_skips_total",
		Help: "Total number of intents denied by the risk governor",
	},
	[]string{"strategy", "reason"},
)

// DuplicateFills counts exchange updates absorbed as duplicate fills.
var DuplicateFills = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "hedgecore_duplicate_fills_total",
		Help: "Total number of duplicate fill updates ignored by the order state merge",
	},
)

// Route selection outcomes
var (
	RoutesSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgecore_routes_selected_total",
			Help: "Total number of venue pairs selected by the router",
		},
		[]string{"long_venue", "short_venue"},
	)

	RoutesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgecore_routes_rejected_total",
			Help: "Total number of routing attempts rejected, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(RiskSkips, DuplicateFills)
	prometheus.MustRegister(RoutesSelected, RoutesRejected)
}

// SkipRecorder adapts the RiskSkips counter to the governor's narrow sink
// interface so risk code does not depend on prometheus directly.
type SkipRecorder struct{}

func (SkipRecorder) RecordRiskSkip(strategy, reason string) {
	RiskSkips.WithLabelValues(strategy, reason).Inc()
}
