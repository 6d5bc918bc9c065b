package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrBudgetExceeded is returned when an allocation would push a strategy past
// its cap. The rejected allocation leaves the book untouched.
var ErrBudgetExceeded = fmt.Errorf("risk: strategy budget exceeded")

type strategyBudget struct {
	cap       decimal.Decimal
	allocated decimal.Decimal
}

// BudgetBook tracks per-strategy notional budgets. The invariant
// allocation <= cap holds at all times: allocations that would breach are
// rejected without mutation, and lowering a cap clamps the existing
// allocation down.
type BudgetBook struct {
	mu      sync.Mutex
	budgets map[string]*strategyBudget
}

func NewBudgetBook() *BudgetBook {
	return &BudgetBook{budgets: make(map[string]*strategyBudget)}
}

// SetCap installs or updates a strategy's budget cap. A lowered cap clamps
// the current allocation down to the new cap; it never raises an allocation.
func (b *BudgetBook) SetCap(strategy string, cap decimal.Decimal) error {
	if cap.IsNegative() {
		return &ValidationError{
			Field:  fmt.Sprintf("budget[%s]", strategy),
			Reason: "must not be negative",
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.budgets[strategy]
	if !ok {
		b.budgets[strategy] = &strategyBudget{cap: cap}
		return nil
	}
	sb.cap = cap
	if sb.allocated.GreaterThan(cap) {
		sb.allocated = cap
	}
	return nil
}

// Allocate reserves amount against the strategy's budget.
func (b *BudgetBook) Allocate(strategy string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "allocation", Reason: "must be positive"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.budgets[strategy]
	if !ok {
		return fmt.Errorf("risk: no budget configured for strategy %q", strategy)
	}
	if sb.allocated.Add(amount).GreaterThan(sb.cap) {
		return ErrBudgetExceeded
	}
	sb.allocated = sb.allocated.Add(amount)
	return nil
}

// Release returns amount to the strategy's budget, clamped at zero.
func (b *BudgetBook) Release(strategy string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.budgets[strategy]
	if !ok {
		return
	}
	sb.allocated = sb.allocated.Sub(amount)
	if sb.allocated.IsNegative() {
		sb.allocated = decimal.Zero
	}
}

// Cap returns the strategy's budget cap and whether one is configured.
func (b *BudgetBook) Cap(strategy string) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.budgets[strategy]
	if !ok {
		return decimal.Zero, false
	}
	return sb.cap, true
}

// Allocated returns the strategy's current allocation.
func (b *BudgetBook) Allocated(strategy string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.budgets[strategy]
	if !ok {
		return decimal.Zero
	}
	return sb.allocated
}

// Reset drops all budgets, for tests and explicit teardown.
func (b *BudgetBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets = make(map[string]*strategyBudget)
}

// ResetAllocations zeroes every allocation while keeping configured caps.
func (b *BudgetBook) ResetAllocations() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sb := range b.budgets {
		sb.allocated = decimal.Zero
	}
}
