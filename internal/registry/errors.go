// internal/registry/errors.go
package registry

import (
	"errors"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
)

var (
	// ErrInvalidFormat is returned for malformed addresses.
	ErrInvalidFormat = domain.ErrInvalidAddress

	ErrAlreadyTracked = errors.New("address already tracked")
	ErrNotTracked     = errors.New("address not tracked")

	// ErrPersist marks a mutation that succeeded in memory but could not be
	// written to disk.
	ErrPersist = errors.New("failed to persist registry")
)
