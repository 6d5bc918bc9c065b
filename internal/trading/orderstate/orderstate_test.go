package orderstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLifecycle(t *testing.T) {
	s := NewState(dec("5"))
	require.Equal(t, StatusNew, s.Status)

	s = Apply(s, map[string]any{"status": "open"})
	assert.Equal(t, StatusAck, s.Status)
	assert.True(t, s.CumFilled.IsZero())

	s = Apply(s, map[string]any{
		"status":     "partially_filled",
		"filled_qty": "2",
		"fill_id":    "f-1",
		"avg_price":  100.5,
	})
	assert.Equal(t, StatusPartial, s.Status)
	assert.True(t, s.CumFilled.Equal(dec("2")))
	require.True(t, s.AvgPrice.Valid)
	assert.True(t, s.AvgPrice.Decimal.Equal(dec("100.5")))

	// Duplicate of the same fill: state unchanged, marker set.
	d := Apply(s, map[string]any{
		"status":     "partially_filled",
		"filled_qty": "2",
		"fill_id":    "f-1",
	})
	assert.Equal(t, EventDuplicateFillIgnored, d.LastEvent)
	assert.True(t, d.CumFilled.Equal(dec("2")))
	assert.Equal(t, StatusPartial, d.Status)

	s = Apply(d, map[string]any{"executedQty": 5.0, "fill_id": "f-2"})
	assert.Equal(t, StatusFilled, s.Status)
	assert.True(t, s.CumFilled.Equal(dec("5")))

	// Terminal: further updates are no-ops on status and quantity.
	after := Apply(s, map[string]any{"status": "canceled", "filled": "3"})
	assert.Equal(t, StatusFilled, after.Status)
	assert.True(t, after.CumFilled.Equal(dec("5")))
}

func TestIdempotence(t *testing.T) {
	updates := []map[string]any{
		{"status": "ack"},
		{"cum_filled": "1.5", "fill_id": "a"},
		{"cum_filled": "4", "fill_id": "b", "avg_price": "99.75"},
		{"status": "FILLED", "cum_filled": "5", "fill_id": "c"},
	}

	s := NewState(dec("5"))
	for _, u := range updates {
		once := Apply(s, u)
		twice := Apply(once, u)

		// Second application may only set the duplicate marker.
		assert.Equal(t, once.Status, twice.Status)
		assert.True(t, once.CumFilled.Equal(twice.CumFilled))
		assert.Equal(t, once.LastFillID, twice.LastFillID)
		assert.Equal(t, once.AvgPrice.Valid, twice.AvgPrice.Valid)

		s = once
	}
}

func TestMonotonicCumulative(t *testing.T) {
	s := NewState(dec("10"))
	seq := []map[string]any{
		{"cum_qty": "3", "fill_id": "1"},
		{"cum_qty": "3", "fill_id": "1"},
		{"cum_qty": "2", "fill_id": "0"}, // regressed report
		{"cum_qty": "7", "fill_id": "2"},
	}
	prev := decimal.Zero
	for _, u := range seq {
		s = Apply(s, u)
		assert.True(t, s.CumFilled.GreaterThanOrEqual(prev),
			"cumulative regressed: %s < %s", s.CumFilled, prev)
		prev = s.CumFilled
	}
	assert.True(t, s.CumFilled.Equal(dec("7")))
}

func TestFieldAliases(t *testing.T) {
	// remaining derives the cumulative when no cum field is present
	s := NewState(dec("8"))
	s = Apply(s, map[string]any{"leaves_qty": "6"})
	assert.True(t, s.CumFilled.Equal(dec("2")))
	assert.Equal(t, StatusPartial, s.Status)

	// last-fill quantity accumulates on top of the recorded cumulative
	s = Apply(s, map[string]any{"last_fill_qty": 3, "trade_id": "t9"})
	assert.True(t, s.CumFilled.Equal(dec("5")))

	// json.Number and string quantities both parse
	s2 := NewState(dec("1"))
	s2 = Apply(s2, map[string]any{"executed_qty": "1.0", "status": "executed"})
	assert.Equal(t, StatusFilled, s2.Status)
}

func TestStaleTerminalStatusIgnored(t *testing.T) {
	s := NewState(dec("5"))
	s = Apply(s, map[string]any{"cum_filled": "4", "fill_id": "x"})
	require.Equal(t, StatusPartial, s.Status)

	// A stale reject carrying an older cumulative must not regress the state.
	s = Apply(s, map[string]any{"status": "rejected", "cum_filled": "1", "fill_id": "w"})
	assert.Equal(t, StatusPartial, s.Status)
	assert.True(t, s.CumFilled.Equal(dec("4")))
	assert.Equal(t, EventStaleStatusIgnored, s.LastEvent)
}

func TestStatusInference(t *testing.T) {
	// An ack hint with a cumulative implying fills is upgraded.
	s := NewState(dec("4"))
	s = Apply(s, map[string]any{"status": "open", "filled": "4"})
	assert.Equal(t, StatusFilled, s.Status)

	s2 := NewState(dec("4"))
	s2 = Apply(s2, map[string]any{"status": "open", "filled": "1"})
	assert.Equal(t, StatusPartial, s2.Status)

	// Cancel after a partial keeps the cancel.
	s2 = Apply(s2, map[string]any{"status": "cancelled", "filled": "1"})
	assert.Equal(t, StatusCanceled, s2.Status)
	assert.True(t, s2.CumFilled.Equal(dec("1")))
}

func TestUnknownStatusIgnored(t *testing.T) {
	s := NewState(dec("5"))
	s = Apply(s, map[string]any{"status": "???", "cum_filled": "2", "fill_id": "a"})
	assert.Equal(t, StatusPartial, s.Status)
}
