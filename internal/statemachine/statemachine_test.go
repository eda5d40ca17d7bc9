package statemachine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{Reason: "status_mismatch"}
	assert.Equal(t, "statemachine: invalid_transition(status_mismatch)", err.Error())
}

func TestErrAlreadyDoneIsDistinctSentinel(t *testing.T) {
	assert.False(t, errors.Is(ErrAlreadyDone, &InvalidTransitionError{}))
	assert.True(t, errors.Is(ErrAlreadyDone, ErrAlreadyDone))
}
