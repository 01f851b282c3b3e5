package csp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoisonedError_IsIgnoresStrength(t *testing.T) {
	err := PoisonedError{Strength: 5}
	assert.True(t, errors.Is(err, PoisonedError{Strength: 1}))
	assert.False(t, errors.Is(err, ProtocolViolationError{}))
}

func TestMustNotInvariantViolation_Panics(t *testing.T) {
	assert.Panics(t, func() {
		_ = MustNotInvariantViolation(InvariantViolationError{Reason: "corrupt"})
	})
}

func TestMustNotInvariantViolation_PassesThroughOtherErrors(t *testing.T) {
	err := ProtocolViolationError{Reason: "bad mask"}
	assert.Equal(t, error(err), MustNotInvariantViolation(err))
	assert.Nil(t, MustNotInvariantViolation(nil))
}

func TestInvariantViolationError_Fatal(t *testing.T) {
	assert.True(t, InvariantViolationError{}.Fatal())
}
