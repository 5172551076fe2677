package edgedb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goerch/edgedb-net/internal/protocol"
)

func TestFromServerErrorCopiesAllFields(t *testing.T) {
	se := protocol.ServerError{
		Code:        0x1234,
		Message:     "division by zero",
		Hints:       []string{"check your divisor"},
		ShouldRetry: true,
	}
	got := fromServerError(se)

	assert.Equal(t, uint32(0x1234), got.Code)
	assert.Equal(t, "division by zero", got.Message)
	assert.Equal(t, []string{"check your divisor"}, got.Hints)
	assert.True(t, got.ShouldRetry)
	assert.False(t, got.ShouldReconcileState)
}

func TestErrorTemporaryReflectsShouldRetry(t *testing.T) {
	retryable := &Error{ShouldRetry: true}
	assert.True(t, retryable.Temporary())

	notRetryable := &Error{ShouldRetry: false}
	assert.False(t, notRetryable.Temporary())
}

func TestIsRetryableForTransportClientError(t *testing.T) {
	err := protocol.NewTransportError("connection reset", nil)
	assert.True(t, IsRetryable(err))
}

func TestIsRetryableForNonTransportClientError(t *testing.T) {
	err := protocol.NewMisuseError("transaction already closed")
	assert.False(t, IsRetryable(err))
}

func TestIsRetryableForServerError(t *testing.T) {
	retryable := &Error{ShouldRetry: true}
	assert.True(t, IsRetryable(retryable))

	notRetryable := &Error{ShouldRetry: false}
	assert.False(t, IsRetryable(notRetryable))
}

func TestIsRetryableForUnrelatedErrorType(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("some other failure")))
}

func TestJoinErrorsReturnsNilForNoErrors(t *testing.T) {
	assert.NoError(t, joinErrors())
	assert.NoError(t, joinErrors(nil, nil))
}

func TestJoinErrorsKeepsSoleErrorMessage(t *testing.T) {
	e := errors.New("boom")
	got := joinErrors(e, nil)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "boom")
}

func TestJoinErrorsAggregatesMultipleFailures(t *testing.T) {
	e1 := errors.New("first failure")
	e2 := errors.New("second failure")
	got := joinErrors(e1, e2)

	require.Error(t, got)
	assert.Contains(t, got.Error(), "first failure")
	assert.Contains(t, got.Error(), "second failure")
}
