package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	err := New(ErrValidation, "title is required")
	assert.Equal(t, "[VALIDATION_ERROR] title is required", err.Error())

	wrapped := Wrap(ErrNetwork, "list tasks", context.DeadlineExceeded)
	assert.Equal(t, "[NETWORK_ERROR] list tasks: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}

func TestIsWalksChain(t *testing.T) {
	inner := Wrap(ErrTimeout, "probe", context.DeadlineExceeded)
	outer := Wrap(ErrUnreachable, "sync aborted", inner)
	viaFmt := fmt.Errorf("pass failed: %w", outer)

	assert.True(t, Is(viaFmt, ErrUnreachable))
	assert.True(t, Is(viaFmt, ErrTimeout))
	assert.False(t, Is(viaFmt, ErrAuth))
	assert.Equal(t, ErrUnreachable, CodeOf(viaFmt))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", New(ErrNetwork, "dial"), true},
		{"timeout", New(ErrTimeout, "slow"), true},
		{"wrapped timeout", fmt.Errorf("create: %w", New(ErrTimeout, "slow")), true},
		{"validation", New(ErrValidation, "bad"), false},
		{"auth", New(ErrAuth, "expired"), false},
		{"plain", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
