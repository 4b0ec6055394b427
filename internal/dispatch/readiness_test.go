package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadiness_InitializingToReady(t *testing.T) {
	r := NewReadiness()

	assert.Equal(t, StateInitializing, r.State())
	assert.False(t, r.Ready())

	r.MarkReady()

	assert.Equal(t, StateReady, r.State())
	assert.True(t, r.Ready())
}

func TestReadiness_InitializingToFailed(t *testing.T) {
	r := NewReadiness()

	r.MarkFailed("permission snapshot load failed")

	assert.Equal(t, StateFailed, r.State())
	assert.False(t, r.Ready())
	assert.Equal(t, "permission snapshot load failed", r.Reason())
}

func TestReadiness_FailedStaysFailed(t *testing.T) {
	r := NewReadiness()

	r.MarkFailed("tx snapshot load failed")
	r.MarkReady()

	assert.Equal(t, StateFailed, r.State())
}

func TestReadiness_StateString(t *testing.T) {
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
