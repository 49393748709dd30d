// internal/domain/position.go
package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a perpetual position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// ParseSide converts a stored side back into a Side.
func ParseSide(s string) (Side, error) {
	side := Side(s)
	if !side.Valid() {
		return "", fmt.Errorf("unknown side %q", s)
	}
	return side, nil
}

// Position is one observation of an account's exposure on a single symbol.
// It is a value type: a newer observation replaces it wholesale.
type Position struct {
	Symbol        string          `json:"symbol"`
	Size          decimal.Decimal `json:"size"`
	Side          Side            `json:"side"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	ObservedAt    time.Time       `json:"observedAt"`
}

// NewPosition builds a Position from an exchange-style signed size.
// Negative sizes are shorts; the stored size is always absolute and the
// market value is |size| × entry price.
func NewPosition(symbol string, signedSize, entryPrice, pnl decimal.Decimal, at time.Time) Position {
	side := SideLong
	if signedSize.IsNegative() {
		side = SideShort
	}
	size := signedSize.Abs()

	return Position{
		Symbol:        symbol,
		Size:          size,
		Side:          side,
		EntryPrice:    entryPrice,
		MarketValue:   size.Mul(entryPrice),
		UnrealizedPnL: pnl,
		ObservedAt:    at,
	}
}

// Equal compares two positions by value, decimals by numeric value.
func (p Position) Equal(o Position) bool {
	return p.Symbol == o.Symbol &&
		p.Side == o.Side &&
		p.Size.Equal(o.Size) &&
		p.EntryPrice.Equal(o.EntryPrice) &&
		p.MarketValue.Equal(o.MarketValue) &&
		p.UnrealizedPnL.Equal(o.UnrealizedPnL) &&
		p.ObservedAt.Equal(o.ObservedAt)
}

// Positions maps symbol to position for a single address.
type Positions map[string]Position

// Clone returns a copy that shares nothing with p.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for sym, pos := range p {
		out[sym] = pos
	}
	return out
}

// TotalValue sums the market value of all positions.
func (p Positions) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p {
		total = total.Add(pos.MarketValue)
	}
	return total
}

// Symbols returns the symbols of p in sorted order.
func (p Positions) Symbols() []string {
	out := make([]string, 0, len(p))
	for sym := range p {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Snapshot maps tracked address to its latest positions.
type Snapshot map[string]Positions

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for addr, positions := range s {
		out[addr] = positions.Clone()
	}
	return out
}
