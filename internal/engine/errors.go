// Package engine implements the opportunity-and-allocation decision pipeline:
// eligibility gating, funding EMA tracking, candidate selection, sizing,
// allocation, yield estimation, drift reporting, and alert evaluation.
package engine

import (
	"errors"
	"fmt"
)

// TransientDataError marks a fetch failure or partial data for one ticker.
// The cycle skips the ticker and continues; only a run of consecutive misses
// surfaces to the operator.
type TransientDataError struct {
	Ticker string
	Err    error
}

func (e *TransientDataError) Error() string {
	return fmt.Sprintf("transient data error for %s: %v", e.Ticker, e.Err)
}

func (e *TransientDataError) Unwrap() error { return e.Err }

// InvariantViolation marks arithmetic the engine must never silently correct,
// such as allocation buckets not summing to deployable capital. It fails the
// cycle and the prior allocation stays in place.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

// ErrConfigIncomplete blocks allocation computation until the operator has
// supplied NAV and emergency buffer. It maps to ACTION state, not CRITICAL.
var ErrConfigIncomplete = errors.New("user configuration incomplete: NAV and emergency buffer required")

// ErrCycleLeaseHeld means another decision cycle is in flight; the caller
// skips this tick rather than running concurrently.
var ErrCycleLeaseHeld = errors.New("decision cycle lease held by another owner")
