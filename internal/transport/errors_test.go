package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkError(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  *NetworkError
		want string
	}{
		{
			name: "with status code",
			err:  &NetworkError{Operation: "start", StatusCode: 503, Err: base},
			want: "network error during start (HTTP 503): connection reset",
		},
		{
			name: "without status code",
			err:  &NetworkError{Operation: "resume", Err: base},
			want: "network error during resume: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())

			wrapped := fmt.Errorf("transfer failed: %w", tt.err)

			var netErr *NetworkError
			assert.True(t, errors.As(wrapped, &netErr))
			assert.ErrorIs(t, wrapped, base)
		})
	}
}

func TestRangeNotSupportedError(t *testing.T) {
	err := &RangeNotSupportedError{URL: "https://cdn/x"}

	assert.Equal(t, "server does not support range requests for https://cdn/x", err.Error())

	var target *RangeNotSupportedError
	assert.True(t, errors.As(fmt.Errorf("resume: %w", err), &target))
}

func TestNewHandle(t *testing.T) {
	a, b := NewHandle(), NewHandle()

	assert.NotEmpty(t, a.String())
	assert.NotEqual(t, a, b)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "progress", EventProgress.String())
	assert.Equal(t, "completed", EventCompleted.String())
	assert.Equal(t, "failed", EventFailed.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
