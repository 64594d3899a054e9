package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOfSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("appointments: create: %w", Conflict("slot %s taken", "09:00"))

	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "CONFLICT: slot 09:00 taken", errors.Unwrap(err).Error())
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "load session")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, TypeInternal, TypeOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestTypeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("boom")))
	assert.False(t, IsValidation(nil))
}
