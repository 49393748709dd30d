// internal/tracker/detector.go
package tracker

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

// Detector diffs two position maps of one address. It holds no state.
type Detector struct {
	// MinChangeThreshold is the smallest absolute market value delta that
	// counts as an increase or decrease.
	MinChangeThreshold decimal.Decimal
}

// NewDetector returns a Detector with the given threshold.
func NewDetector(minChangeThreshold decimal.Decimal) Detector {
	return Detector{MinChangeThreshold: minChangeThreshold}
}

// Detect compares previous against current and returns the changes sorted
// by symbol. Identical inputs produce no changes.
func (d Detector) Detect(address string, previous, current domain.Positions, at time.Time) []domain.PositionChange {
	symbols := make([]string, 0, len(previous)+len(current))
	for sym := range current {
		symbols = append(symbols, sym)
	}
	for sym := range previous {
		if _, ok := current[sym]; !ok {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var changes []domain.PositionChange
	for _, sym := range symbols {
		prev, hadPrev := previous[sym]
		cur, hasCur := current[sym]

		change := domain.PositionChange{
			Address:    address,
			Symbol:     sym,
			OccurredAt: at,
		}

		switch {
		case hasCur && !hadPrev:
			change.Kind = domain.ChangeOpened
			change.Current = &cur
			change.Magnitude = cur.MarketValue

		case hadPrev && !hasCur:
			change.Kind = domain.ChangeClosed
			change.Previous = &prev
			change.Magnitude = prev.MarketValue

		default:
			delta := cur.MarketValue.Sub(prev.MarketValue)
			if delta.Abs().LessThan(d.MinChangeThreshold) || delta.IsZero() {
				continue
			}
			change.Kind = domain.ChangeIncreased
			if delta.IsNegative() {
				change.Kind = domain.ChangeDecreased
			}
			change.Previous = &prev
			change.Current = &cur
			change.Magnitude = delta.Abs()
		}

		changes = append(changes, change)
	}

	return changes
}
