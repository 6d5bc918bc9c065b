// Idempotent merge of exchange order updates into a canonical per-order snapshot.
package orderstate

import (
	"github.com/shopspring/decimal"
)

// Status is the canonical lifecycle state of an order.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusPending  Status = "PENDING"
	StatusAck      Status = "ACK"
	StatusPartial  Status = "PARTIAL"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Transient last-event markers set by Apply. They describe what the most recent
// update did to the state and are overwritten on every call.
const (
	EventDuplicateFillIgnored = "duplicate_fill_ignored"
	EventStaleStatusIgnored   = "stale_status_ignored"
)

// fillTolerance absorbs float noise in reported cumulative quantities.
var fillTolerance = decimal.New(1, -9)

// State is the canonical snapshot of a single order. It is created on
// submission and mutated only through Apply; persistence is the caller's
// responsibility.
type State struct {
	Status     Status
	Qty        decimal.Decimal
	CumFilled  decimal.Decimal
	AvgPrice   decimal.NullDecimal
	LastFillID string
	LastEvent  string
}

// NewState returns the initial snapshot for a freshly submitted order.
func NewState(qty decimal.Decimal) State {
	return State{Status: StatusNew, Qty: qty}
}

// Apply folds a loosely structured exchange update into the state and returns
// the new snapshot. It is pure and safe to call concurrently for distinct
// orders.
//
// Quantity fields are extracted through ordered candidate-key tables (the same
// logical field arrives under many spellings across venues). A duplicate fill,
// detected by a matching fill identifier or a reported cumulative that does
// not advance past the recorded one, leaves the cumulative untouched and sets
// EventDuplicateFillIgnored instead of erroring, which keeps replays under
// at-least-once delivery harmless.
func Apply(s State, update map[string]any) State {
	next := s
	next.LastEvent = ""

	if qty, ok := extractDecimal(update, qtyKeys); ok && qty.IsPositive() {
		next.Qty = qty
	}

	cum, hasCum := extractDecimal(update, cumKeys)
	derived := false
	if !hasCum {
		if rem, ok := extractDecimal(update, remainingKeys); ok && next.Qty.IsPositive() {
			cum = next.Qty.Sub(rem)
			hasCum = true
		} else if last, ok := extractDecimal(update, lastFillKeys); ok && last.IsPositive() {
			cum = s.CumFilled.Add(last)
			hasCum = true
			derived = true
		}
	}

	fillID, _ := extractString(update, fillIDKeys)

	duplicate := false
	switch {
	case fillID != "" && fillID == s.LastFillID:
		duplicate = true
	case !derived && hasCum && cum.IsPositive() &&
		cum.LessThanOrEqual(s.CumFilled.Add(fillTolerance)) && s.CumFilled.IsPositive():
		duplicate = true
	}

	if duplicate {
		next.LastEvent = EventDuplicateFillIgnored
	} else if hasCum {
		// Monotonic: the cumulative never regresses.
		if cum.GreaterThan(next.CumFilled) {
			next.CumFilled = cum
		}
		if fillID != "" {
			next.LastFillID = fillID
		}
		if avg, ok := extractDecimal(update, avgPriceKeys); ok && avg.IsPositive() {
			next.AvgPrice = decimal.NullDecimal{Decimal: avg, Valid: true}
		}
	}

	status, stale := resolveStatus(s, next, update, cum, hasCum)
	next.Status = status
	if stale {
		// A dropped stale status outranks the duplicate marker: callers
		// want to log conflicting venue reports, not mere replays.
		next.LastEvent = EventStaleStatusIgnored
	}
	return next
}

// resolveStatus picks the next status. Terminal states are frozen. An explicit
// status hint from the update takes precedence over inference, except that a
// cumulative implying FILLED beats a non-terminal hint, and a terminal
// cancel-family hint carrying a regressed cumulative is dropped as stale.
func resolveStatus(prev State, next State, update map[string]any, cum decimal.Decimal, hasCum bool) (Status, bool) {
	if prev.Status.Terminal() {
		return prev.Status, false
	}

	inferred := inferStatus(next)
	stale := false

	hint, hasHint := extractStatus(update)
	if hasHint && isCancelFamily(hint) && hasCum && cum.LessThan(prev.CumFilled) {
		// A stale reject/cancel after a later fill: prefer the
		// higher-cumulative, non-regressing state.
		hasHint = false
		stale = true
	}

	if hasHint {
		if inferred == StatusFilled && !hint.Terminal() {
			return StatusFilled, stale
		}
		if inferred == StatusPartial && (hint == StatusNew || hint == StatusPending || hint == StatusAck) {
			return StatusPartial, stale
		}
		return hint, stale
	}
	if inferred != "" {
		return inferred, stale
	}
	return prev.Status, stale
}

func isCancelFamily(s Status) bool {
	return s == StatusCanceled || s == StatusRejected || s == StatusExpired
}

// inferStatus derives FILLED/PARTIAL from the cumulative vs requested quantity
// when the update carries no usable status of its own.
func inferStatus(s State) Status {
	if s.Qty.IsPositive() && s.CumFilled.GreaterThanOrEqual(s.Qty.Sub(fillTolerance)) {
		return StatusFilled
	}
	if s.CumFilled.IsPositive() {
		return StatusPartial
	}
	return ""
}
