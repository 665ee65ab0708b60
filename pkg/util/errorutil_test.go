package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughWrapped(t *testing.T) {
	inner := NewInvalidState("ticket already resolved", map[string]any{"ticket_id": "t1"})
	wrapped := fmt.Errorf("resolve: %w", inner)

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeInvalidState, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.Equal(t, "t1", de.Details["ticket_id"])
}

func TestToDomainError_UnknownBecomesInternal(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
}

func TestNewTransient_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewTransient("account store", cause)

	assert.True(t, HasCode(err, CodeTransient))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "account store temporarily unavailable")
	assert.False(t, HasCode(err, CodeNotFound))
}
