// internal/domain/change.go
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChangeKind is the closed set of position transitions.
type ChangeKind uint8

const (
	ChangeOpened ChangeKind = iota + 1
	ChangeClosed
	ChangeIncreased
	ChangeDecreased
)

// ChangeKinds lists every kind in declaration order.
var ChangeKinds = []ChangeKind{ChangeOpened, ChangeClosed, ChangeIncreased, ChangeDecreased}

func (k ChangeKind) String() string {
	switch k {
	case ChangeOpened:
		return "opened"
	case ChangeClosed:
		return "closed"
	case ChangeIncreased:
		return "increased"
	case ChangeDecreased:
		return "decreased"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(k))
}

// Valid reports whether k is a declared kind.
func (k ChangeKind) Valid() bool {
	return k >= ChangeOpened && k <= ChangeDecreased
}

// ParseChangeKind is the inverse of String.
func ParseChangeKind(s string) (ChangeKind, error) {
	for _, k := range ChangeKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

func (k ChangeKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid change kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ChangeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseChangeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

var ErrInvalidChange = errors.New("invalid position change")

// PositionChange describes one detected transition for (Address, Symbol).
// Magnitude is the absolute market value delta, or the full value for
// opened and closed.
type PositionChange struct {
	Address    string          `json:"address"`
	Symbol     string          `json:"symbol"`
	Kind       ChangeKind      `json:"kind"`
	Previous   *Position       `json:"previous,omitempty"`
	Current    *Position       `json:"current,omitempty"`
	Magnitude  decimal.Decimal `json:"magnitude"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Validate checks the presence of Previous/Current against the kind.
func (c PositionChange) Validate() error {
	if c.Magnitude.IsNegative() {
		return fmt.Errorf("%w: negative magnitude %s", ErrInvalidChange, c.Magnitude)
	}
	switch c.Kind {
	case ChangeOpened:
		if c.Previous != nil || c.Current == nil {
			return fmt.Errorf("%w: opened needs only a current position", ErrInvalidChange)
		}
	case ChangeClosed:
		if c.Previous == nil || c.Current != nil {
			return fmt.Errorf("%w: closed needs only a previous position", ErrInvalidChange)
		}
	case ChangeIncreased, ChangeDecreased:
		if c.Previous == nil || c.Current == nil {
			return fmt.Errorf("%w: %s needs both positions", ErrInvalidChange, c.Kind)
		}
	default:
		return fmt.Errorf("%w: kind %s", ErrInvalidChange, c.Kind)
	}
	return nil
}

// Side returns the side of whichever position is present, preferring current.
func (c PositionChange) Side() Side {
	if c.Current != nil {
		return c.Current.Side
	}
	if c.Previous != nil {
		return c.Previous.Side
	}
	return ""
}
