package rvhal

import (
	"errors"
	"fmt"
)

var (
	// Driver-facing registry
	ErrInvalidSource   = errors.New("invalid_source")
	ErrInvalidPriority = errors.New("invalid_priority")
	ErrSourceDisabled  = errors.New("source_disabled")
	ErrUnknownSource   = errors.New("unknown_source")

	// Lifecycle
	ErrNotInitialized     = errors.New("not_initialized")
	ErrAlreadyInitialized = errors.New("already_initialized")
	ErrVectorBaseLocked   = errors.New("vector_base_locked")
	ErrVectorMisaligned   = errors.New("vector_base_misaligned")

	// Configuration
	ErrUnknownChip       = errors.New("unknown_chip")
	ErrUnknownPeripheral = errors.New("unknown_peripheral")
	ErrUnsupported       = errors.New("unsupported")
)

// TokenError reports misuse of a critical section token: releasing it
// twice, out of nesting order, or on a different hart. It is raised with
// panic, never returned.
type TokenError struct {
	Depth, Want int
	Reason      string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("rvhal: critical section token %s (token depth %d, hart depth %d)", e.Reason, e.Depth, e.Want)
}
