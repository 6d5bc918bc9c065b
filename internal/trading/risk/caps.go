// Risk caps, budgets and accounting for the trade decision core.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports an invalid construction-time configuration value.
// Invalid caps fail construction; they are never silently clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("risk: invalid %s: %s", e.Field, e.Reason)
}

// Caps holds the hard financial safety limits. Immutable after validated
// construction.
type Caps struct {
	maxOpenPositions int
	maxTotalNotional decimal.Decimal
	perVenueNotional map[string]decimal.Decimal
	valid            bool
}

// NewCaps validates and builds the cap set. Non-positive values are rejected.
// perVenue may be nil; when present every ceiling must be positive.
func NewCaps(maxOpenPositions int, maxTotalNotional decimal.Decimal, perVenue map[string]decimal.Decimal) (Caps, error) {
	if maxOpenPositions <= 0 {
		return Caps{}, &ValidationError{Field: "max_open_positions", Reason: "must be positive"}
	}
	if !maxTotalNotional.IsPositive() {
		return Caps{}, &ValidationError{Field: "max_total_notional", Reason: "must be positive"}
	}
	var venues map[string]decimal.Decimal
	if len(perVenue) > 0 {
		venues = make(map[string]decimal.Decimal, len(perVenue))
		for venue, ceiling := range perVenue {
			if !ceiling.IsPositive() {
				return Caps{}, &ValidationError{
					Field:  fmt.Sprintf("venue_notional[%s]", venue),
					Reason: "must be positive",
				}
			}
			venues[venue] = ceiling
		}
	}
	return Caps{
		maxOpenPositions: maxOpenPositions,
		maxTotalNotional: maxTotalNotional,
		perVenueNotional: venues,
		valid:            true,
	}, nil
}

// MaxOpenPositions returns the open-position cap.
func (c Caps) MaxOpenPositions() int { return c.maxOpenPositions }

// MaxTotalNotional returns the total open-notional ceiling.
func (c Caps) MaxTotalNotional() decimal.Decimal { return c.maxTotalNotional }

// VenueNotional returns the per-venue ceiling, if one is configured.
func (c Caps) VenueNotional(venue string) (decimal.Decimal, bool) {
	ceiling, ok := c.perVenueNotional[venue]
	return ceiling, ok
}

// Valid reports whether the caps came out of NewCaps. The zero value is
// invalid; the governor refuses to start on it.
func (c Caps) Valid() bool { return c.valid }
