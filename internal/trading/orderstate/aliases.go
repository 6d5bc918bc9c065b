package orderstate

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Ordered candidate keys per logical field, tried in priority order. Venues
// spell the same field differently; first present value wins.
var (
	qtyKeys = []string{
		"qty", "quantity", "orig_qty", "origQty", "order_qty", "amount", "size",
	}
	cumKeys = []string{
		"cum_filled", "cum_qty", "cumQty", "cumulative_filled", "filled",
		"filled_qty", "filledQty", "executed_qty", "executedQty", "cum_exec_qty",
	}
	remainingKeys = []string{
		"remaining", "remaining_qty", "leaves_qty", "leavesQty", "unfilled",
	}
	lastFillKeys = []string{
		"last_fill_qty", "last_filled_qty", "lastFilledQty", "fill_qty",
		"last_qty", "last_executed_qty",
	}
	avgPriceKeys = []string{
		"avg_price", "avgPrice", "average_price", "avg_fill_price", "price_avg",
	}
	fillIDKeys = []string{
		"fill_id", "fillId", "trade_id", "tradeId", "exec_id", "execId",
		"last_trade_id",
	}
	statusKeys = []string{
		"status", "order_status", "orderStatus", "state", "exec_status",
	}
)

// statusAliases maps normalized venue status spellings to canonical statuses.
// Keys are lowercased with separators stripped, see normalizeToken.
var statusAliases = map[string]Status{
	"new":     StatusNew,
	"created": StatusNew,
	"init":    StatusNew,

	"pending":       StatusPending,
	"pendingnew":    StatusPending,
	"pendingsubmit": StatusPending,
	"submitted":     StatusPending,
	"queued":        StatusPending,

	"ack":          StatusAck,
	"acked":        StatusAck,
	"acknowledged": StatusAck,
	"accepted":     StatusAck,
	"open":         StatusAck,
	"live":         StatusAck,
	"working":      StatusAck,

	"partial":         StatusPartial,
	"partialfill":     StatusPartial,
	"partiallyfilled": StatusPartial,
	"partfilled":      StatusPartial,

	"filled":      StatusFilled,
	"fill":        StatusFilled,
	"executed":    StatusFilled,
	"done":        StatusFilled,
	"fullyfilled": StatusFilled,

	"canceled":  StatusCanceled,
	"cancelled": StatusCanceled,
	"cancel":    StatusCanceled,

	"rejected": StatusRejected,
	"reject":   StatusRejected,
	"denied":   StatusRejected,

	"expired":  StatusExpired,
	"expire":   StatusExpired,
	"timeout":  StatusExpired,
	"timedout": StatusExpired,
}

func extractDecimal(update map[string]any, keys []string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if v, ok := update[k]; ok {
			if d, ok := toDecimal(v); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func extractString(update map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := update[k]; ok {
			switch x := v.(type) {
			case string:
				if s := strings.TrimSpace(x); s != "" {
					return s, true
				}
			case int, int64, uint64, float64, json.Number:
				if d, ok := toDecimal(v); ok {
					return d.String(), true
				}
			}
		}
	}
	return "", false
}

func extractStatus(update map[string]any) (Status, bool) {
	raw, ok := extractString(update, statusKeys)
	if !ok {
		return "", false
	}
	st, ok := statusAliases[normalizeToken(raw)]
	return st, ok
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, s)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint64:
		return decimal.NewFromUint64(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}
