// Package csp implements a user-space CSP synchronization kernel:
// synchronous typed channels, multiway barriers, alternation (external
// choice) over guards, and parallel composition of processes. Application
// code builds process graphs out of these primitives; the package itself
// never schedules work onto cores, persists anything, or crosses an
// address-space boundary — it delegates all of that to the goroutines the
// caller starts.
package csp

import (
	"errors"
	"fmt"
)

type (
	// PoisonedError is raised by any channel operation performed on a
	// channel whose poison strength is greater than zero. It is the one
	// error kind intended as ordinary control flow: a process that
	// cooperates with poison catches it, propagates the same strength to
	// its other channels, and returns.
	PoisonedError struct {
		// Strength is the poison strength the channel was poisoned with.
		Strength int
	}

	// ProtocolViolationError is raised when a caller misuses a channel's
	// extended-read protocol (ending a read that was never started,
	// starting one that is already in progress) or misshapes an Alt
	// pre-condition mask (wrong length, index out of range). It indicates
	// a programming error in the caller, not a concurrency hazard.
	ProtocolViolationError struct {
		Reason string
	}

	// OwnershipViolationError is raised when an Alt or an AltingBarrier
	// front-end, both of which are single-owner objects, is used from a
	// task other than the one that first used it.
	OwnershipViolationError struct {
		Reason string
	}

	// InvariantViolationError indicates that a barrier's or alting
	// barrier's internal counters have gone out of range, that a firing
	// has been observed twice, or that a front-end has been contracted
	// from a base it was never registered with. It signals corruption of
	// the kernel's own bookkeeping, not a caller mistake, and per spec is
	// expected to be fatal: see MustNotInvariantViolation.
	InvariantViolationError struct {
		Reason string
	}
)

func (e PoisonedError) Error() string {
	return fmt.Sprintf("csp: poisoned: strength %d", e.Strength)
}

// Is reports whether target is also a PoisonedError, regardless of
// strength, so callers can use errors.Is(err, PoisonedError{}) as a type
// check without caring about the exact strength.
func (e PoisonedError) Is(target error) bool {
	_, ok := target.(PoisonedError)
	return ok
}

func (e ProtocolViolationError) Error() string {
	return "csp: protocol violation: " + e.Reason
}

func (e OwnershipViolationError) Error() string {
	return "csp: ownership violation: " + e.Reason
}

func (e InvariantViolationError) Error() string {
	return "csp: invariant violation: " + e.Reason
}

// Fatal reports true: per spec §7, an InvariantViolationError indicates
// kernel-internal corruption and processes are not expected to recover
// from it, unlike the other three error kinds.
func (e InvariantViolationError) Fatal() bool { return true }

// MustNotInvariantViolation panics if err is an InvariantViolationError,
// and otherwise returns err unchanged. It gives callers that want the
// documented "abort the process" policy for InvariantViolation an explicit
// opt-in, without forcing every caller of a barrier or alting barrier to
// pay for a panic-recover on the other three, recoverable, error kinds.
func MustNotInvariantViolation(err error) error {
	var iv InvariantViolationError
	if errors.As(err, &iv) {
		panic(iv)
	}
	return err
}
