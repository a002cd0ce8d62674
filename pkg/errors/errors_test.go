package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{http.StatusBadRequest, ErrInvalidInput, false},
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusConflict, ErrConflict, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusGatewayTimeout, ErrTimeout, true},
		{http.StatusBadGateway, ErrTemporaryFailure, true},
		{http.StatusTeapot, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatus(tt.status, "boom")
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestStatusCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(fmt.Errorf("plain")))
}

func TestConfigurationErrorIsNotRetryable(t *testing.T) {
	err := NewConfigurationError("missing key").WithContext("key", "AIRTABLE_API_KEY")
	assert.False(t, IsRetryable(err))
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, "AIRTABLE_API_KEY", err.Context["key"])
}
