// internal/domain/address.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

// AddressSource tells where a tracked address came from.
type AddressSource string

const (
	SourceStatic  AddressSource = "static"
	SourceDynamic AddressSource = "dynamic"
)

// TrackedAddress is an account whose positions are polled every cycle.
type TrackedAddress struct {
	Address string        `json:"address"`
	Label   string        `json:"label"`
	AddedAt time.Time     `json:"addedAt"`
	Source  AddressSource `json:"source"`
}

const addressLength = 42

var ErrInvalidAddress = errors.New("invalid address format")

// ValidateAddress accepts exactly "0x" followed by 40 hex digits.
func ValidateAddress(address string) error {
	if len(address) != addressLength {
		return fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidAddress, addressLength, len(address))
	}
	if address[:2] != "0x" {
		return fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	for i := 2; i < len(address); i++ {
		if !isHex(address[i]) {
			return fmt.Errorf("%w: non-hex character %q at %d", ErrInvalidAddress, address[i], i)
		}
	}
	return nil
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// ShortAddress renders 0x1234...abcd for display.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
