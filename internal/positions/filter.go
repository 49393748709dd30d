// internal/positions/filter.go
package positions

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

// Filter drops zero-size positions and positions whose market value is
// below minValue. It runs once on freshly fetched data, never on stored
// snapshots.
func Filter(raw domain.Positions, minValue decimal.Decimal) domain.Positions {
	out := make(domain.Positions, len(raw))
	for sym, pos := range raw {
		if pos.Size.IsZero() {
			continue
		}
		if pos.MarketValue.LessThan(minValue) {
			continue
		}
		out[sym] = pos
	}
	return out
}
