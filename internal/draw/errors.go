package draw

import (
	"errors"
	"fmt"
)

var (
	// ErrDrawNotFound means no draw exists with the given id.
	ErrDrawNotFound = errors.New("draw not found")

	// ErrDrawNotPending means the draw already left pending: it was
	// executed, is executing right now, or failed. Callers must not treat
	// this as "no winners" — their request did not trigger the execution.
	ErrDrawNotPending = errors.New("draw already executed or in progress")

	// ErrInvariantViolation indicates the engine was about to persist a
	// corrupt result (duplicate winner, broken rank sequence). It should
	// never occur given a correct selector.
	ErrInvariantViolation = errors.New("invariant violation")
)

// InsufficientEligibleError is returned when a draw requests more winners
// than the eligible pool holds. It carries both counts so callers can
// adjust rather than guess.
type InsufficientEligibleError struct {
	Requested int
	Eligible  int
}

func (e *InsufficientEligibleError) Error() string {
	return fmt.Sprintf("insufficient eligible participants: requested %d, eligible %d", e.Requested, e.Eligible)
}

// StorageError wraps a failed read or write against the participant or draw
// stores. The draw it interrupted is forced to failed; retrying requires a
// new draw.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
