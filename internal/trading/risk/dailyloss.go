package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const dayLayout = "2006-01-02"

// DailyLossCap is the daily-loss circuit breaker. Realized PnL accrues into a
// UTC-day accumulator; the breach condition is recomputed from current losses
// against the cap on every query, so a same-day recovery clears it. The
// accumulator resets on UTC day rollover.
type DailyLossCap struct {
	mu       sync.Mutex
	cap      decimal.Decimal
	realized decimal.Decimal
	day      string
	now      func() time.Time
}

// NewDailyLossCap builds the breaker. The cap must be positive.
func NewDailyLossCap(cap decimal.Decimal) (*DailyLossCap, error) {
	if !cap.IsPositive() {
		return nil, &ValidationError{Field: "daily_loss_cap", Reason: "must be positive"}
	}
	return &DailyLossCap{cap: cap, now: time.Now}, nil
}

// AddRealized folds a realized PnL delta into today's accumulator.
func (c *DailyLossCap) AddRealized(delta decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	c.realized = c.realized.Add(delta)
}

// Breached reports whether today's losses have reached the cap.
func (c *DailyLossCap) Breached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.lossesLocked().GreaterThanOrEqual(c.cap)
}

// LossesToday returns today's losses as a non-negative amount.
func (c *DailyLossCap) LossesToday() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.lossesLocked()
}

// Cap returns the configured loss cap.
func (c *DailyLossCap) Cap() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cap
}

// SetCap lowers or raises the cap. Non-positive values are rejected.
func (c *DailyLossCap) SetCap(cap decimal.Decimal) error {
	if !cap.IsPositive() {
		return &ValidationError{Field: "daily_loss_cap", Reason: "must be positive"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cap = cap
	return nil
}

// Reset clears the accumulator, for tests and explicit teardown.
func (c *DailyLossCap) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realized = decimal.Zero
	c.day = ""
}

func (c *DailyLossCap) lossesLocked() decimal.Decimal {
	if c.realized.IsNegative() {
		return c.realized.Neg()
	}
	return decimal.Zero
}

func (c *DailyLossCap) rollLocked() {
	today := c.now().UTC().Format(dayLayout)
	if c.day == today {
		return
	}
	c.day = today
	c.realized = decimal.Zero
}
