package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	cause := stderrors.New("connection reset")

	assert.Equal(t, "NOT_FOUND: queue entry not found", NewNotFoundError("queue entry not found").Error())
	assert.Equal(t, "STORE_UNAVAILABLE: failed to list waiting entries: connection reset",
		NewStoreUnavailableError("failed to list waiting entries", cause).Error())
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("call next: %w", NewInvalidTransitionError("entry is completed"))

	assert.True(t, IsType(err, ErrorTypeInvalidTransition))
	assert.False(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeInternal))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}

func TestAsAppError_KeepsCause(t *testing.T) {
	cause := stderrors.New("deadline exceeded")
	err := NewStoreUnavailableError("store timed out", cause)

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeStoreUnavailable, appErr.Type)
	assert.ErrorIs(t, err, cause)
}
