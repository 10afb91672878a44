package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindTagging(t *testing.T) {
	err := NewError(KindUnknownTarget, "deliver", nil)

	assert.True(t, IsUnknownTarget(err))
	assert.False(t, IsShutdown(err))
	assert.False(t, IsTransport(err))
	assert.Contains(t, err.Error(), "deliver")
	assert.Contains(t, err.Error(), "unknown-target")
}

func TestErrorUnwrapAndWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindTransport, "send_activity", cause)

	require.True(t, IsTransport(err))
	assert.ErrorIs(t, err, cause)

	// Tagging survives further wrapping.
	wrapped := fmt.Errorf("submit failed: %w", err)
	assert.True(t, IsTransport(wrapped))
}

func TestIsHelpersRejectPlainErrors(t *testing.T) {
	plain := errors.New("boom")

	assert.False(t, IsShutdown(plain))
	assert.False(t, IsUnknownTarget(plain))
	assert.False(t, IsTransport(plain))
	assert.False(t, IsQueueContention(plain))
}
