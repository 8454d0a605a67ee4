package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableMatchesStorageSentinel(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Unavailable(cause, "failed to read usage record")

	assert.True(t, Is(err, ErrStorageUnavailable))
	assert.True(t, Is(err, cause))
	assert.Equal(t, "failed to read usage record: dial tcp: connection refused", err.Error())
}

func TestWrapDoesNotMatchStorageSentinel(t *testing.T) {
	err := Wrap(ErrDuplicateWindow, "failed to increment usage")

	assert.False(t, Is(err, ErrStorageUnavailable))
	assert.True(t, Is(err, ErrDuplicateWindow))
	assert.Equal(t, CodeInternal, err.Code)
}

func TestWrappedTwiceStillClassified(t *testing.T) {
	err := fmt.Errorf("tracker: %w", Unavailable(fmt.Errorf("timeout"), "failed to delete usage record"))

	var typed *Error
	assert.True(t, As(err, &typed))
	assert.Equal(t, CodeStorageUnavailable, typed.Code)
	assert.True(t, Is(err, ErrStorageUnavailable))
}
