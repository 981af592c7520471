package loadtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Converges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := Run(ctx, &Config{
		Devices:        3,
		TasksPerDevice: 5,
		EditsPerDevice: 4,
		Dir:            t.TempDir(),
	})
	require.NoError(t, err)

	assert.True(t, report.Converged, "divergent devices: %v", report.Divergent)
	assert.Equal(t, 3, report.Devices)
	// 5 created per device, one deleted per device.
	assert.Equal(t, 3*4, report.Tasks)
	// Creates, edits and deletes are all replayed: 3 * (5 + 4 + 1).
	assert.Equal(t, 30, report.Operations)
	// Each deletion is seen as a conflict by the two other devices.
	assert.Equal(t, 3*2, report.Conflicts)
	assert.Zero(t, report.Sync.Errors)
}

func TestRun_Defaults(t *testing.T) {
	cfg := withDefaults(nil)
	assert.Equal(t, 5, cfg.Devices)
	assert.Equal(t, 20, cfg.TasksPerDevice)
	assert.Equal(t, 10, cfg.EditsPerDevice)
	assert.Equal(t, "loadtest", cfg.Username)
	assert.NotNil(t, cfg.Logger)

	cfg = withDefaults(&Config{EditsPerDevice: -1})
	assert.Zero(t, cfg.EditsPerDevice)
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)
	assert.Equal(t, 100, stats.Passes)
	assert.Equal(t, time.Millisecond, stats.Min)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 51*time.Millisecond, stats.P50)
	assert.Equal(t, 96*time.Millisecond, stats.P95)
	assert.Equal(t, 100*time.Millisecond, stats.P99)
	assert.Equal(t, 50500*time.Microsecond, stats.Mean)

	assert.Zero(t, computeLatencyStats(nil).Passes)
}
