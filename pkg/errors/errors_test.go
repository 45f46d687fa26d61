package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"timeout", NewTimeoutError("fetch"), true},
		{"network", NewNetworkError("connection refused"), true},
		{"upstream", NewUpstreamError("tracker", "503"), true},
		{"rate limit", NewRateLimitError("slow down"), true},
		{"validation", NewValidationError("bad payload"), false},
		{"authentication", NewAuthenticationError("denied"), false},
		{"not found", NewNotFoundError("entity"), false},
		{"configuration", NewConfigurationError("bad weights"), false},
		{"scoring input", NewScoringInputError("e1", "id mismatch"), false},
		{"plain error", fmt.Errorf("unknown"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestIsType_SeesThroughWrapping(t *testing.T) {
	cause := NewRateLimitError("429 from provider")
	wrapped := fmt.Errorf("fetch_tracker failed: %w", cause)

	assert.True(t, IsType(wrapped, ErrorTypeRateLimit))
	assert.False(t, IsType(wrapped, ErrorTypeNetwork))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", GetCode(wrapped))
	assert.Equal(t, ErrorTypeRateLimit, GetType(wrapped))
}

func TestAppError_DetailsAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewNetworkError("request failed").
		WithCause(cause).
		WithDetail("source", "ledger")

	assert.Contains(t, err.Error(), "NETWORK_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, "ledger", err.Details["source"])
}
