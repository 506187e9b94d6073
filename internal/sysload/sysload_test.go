package sysload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hevcbatch/internal/config"
)

func TestEnabled(t *testing.T) {
	assert.False(t, New(config.Throttle{}, "/tmp").Enabled())
	assert.True(t, New(config.Throttle{MaxCPUPercent: 90}, "/tmp").Enabled())
	assert.True(t, New(config.Throttle{MinFreeMemMB: 512}, "/tmp").Enabled())
	assert.True(t, New(config.Throttle{MinFreeDiskMB: 1024}, "/tmp").Enabled())
}

func TestWaitDisabledReturnsImmediately(t *testing.T) {
	g := New(config.Throttle{}, "/tmp")

	// Even a cancelled context must not block a disabled guard
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, g.Wait(ctx))
}

func TestCheckGenerousThresholds(t *testing.T) {
	// Thresholds no healthy host can violate
	g := New(config.Throttle{MinFreeMemMB: 1, MinFreeDiskMB: 1}, t.TempDir())
	require.NoError(t, g.Check())
}
