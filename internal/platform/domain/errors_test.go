package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("saving booking: %w", NewConflictError("booking was modified"))

	assert.True(t, IsConflict(err))
	assert.False(t, IsCapacity(err))
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
}

func TestCapacityErrorMessage(t *testing.T) {
	err := NewCapacityError()
	assert.Equal(t, "not enough seats for the selected section", err.Error())
}

func TestTransientErrorUnwraps(t *testing.T) {
	cause := errors.New("serialization failure")
	err := NewTransientError("please try again", cause)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
}

func TestNewPaginatedResult(t *testing.T) {
	res := NewPaginatedResult[int](nil, 41, 2, 20)
	assert.Equal(t, 3, res.TotalPages)
	assert.NotNil(t, res.Items)
}
