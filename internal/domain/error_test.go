package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create snippet: %w", ErrFuturePeriod)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrFuturePeriod))
	assert.False(t, errors.Is(err, ErrInvalidPeriod))
	assert.Equal(t, "create snippet: future period", err.Error())
}

func TestStorageErrorKeepsMessage(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := NewStorageError("upsert snippet", cause)
	assert.Equal(t, "upsert snippet: duplicate key value violates unique constraint", err.Error())
	assert.True(t, errors.Is(err, cause))

	// Already wrapped errors are not wrapped twice.
	assert.Same(t, err, NewStorageError("outer", err))
	assert.Nil(t, NewStorageError("noop", nil))
}

func TestHandlerError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewHandlerError(cause, "fetch %s items", "calendar")
	assert.Equal(t, "fetch calendar items: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))

	bare := NewHandlerError(nil, "user not found: %s", "u-1")
	assert.Equal(t, "user not found: u-1", bare.Error())
}
