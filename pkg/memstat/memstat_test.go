package memstat

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	econerrors "github.com/ajitpratap0/econdash/pkg/errors"
)

type fakeProcess struct {
	info    *process.MemoryInfoStat
	percent float32
	err     error
}

func (f fakeProcess) MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error) {
	return f.info, f.err
}

func (f fakeProcess) MemoryPercentWithContext(context.Context) (float32, error) {
	return f.percent, f.err
}

type clearer struct {
	data, resources int
	panics          bool
}

func (c *clearer) ClearData() {
	if c.panics {
		panic("cache gone")
	}
	c.data++
}

func (c *clearer) ClearResources() { c.resources++ }

func TestUsageOfCurrentProcess(t *testing.T) {
	r, err := NewReporter(Options{})
	require.NoError(t, err)

	u, err := r.Usage(context.Background())
	require.NoError(t, err)
	assert.Greater(t, u.ResidentMB, 0.0)
	assert.GreaterOrEqual(t, u.VirtualMB, u.ResidentMB)
	assert.Greater(t, u.Goroutines, 0)
}

func TestUsageConvertsToMegabytes(t *testing.T) {
	r := newReporter(fakeProcess{
		info:    &process.MemoryInfoStat{RSS: 256 * mb, VMS: 1024 * mb},
		percent: 12.5,
	}, Options{})

	u, err := r.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 256.0, u.ResidentMB)
	assert.Equal(t, 1024.0, u.VirtualMB)
	assert.Equal(t, 12.5, u.Percent)
}

func TestUsageFailureIsSystemError(t *testing.T) {
	r := newReporter(fakeProcess{err: errors.New("permission denied")}, Options{})
	_, err := r.Usage(context.Background())
	assert.True(t, econerrors.IsType(err, econerrors.ErrorTypeSystem))
}

func TestClearCaches(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := &clearer{}
	r := newReporter(fakeProcess{}, Options{Caches: c, Logger: zap.New(core)})

	r.ClearCaches()
	assert.Equal(t, 1, c.data)
	assert.Equal(t, 1, c.resources)
	assert.Equal(t, 1, logs.FilterMessage("caches cleared").Len())
}

func TestClearCachesNeverPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newReporter(fakeProcess{}, Options{Caches: &clearer{panics: true}, Logger: zap.New(core)})

	assert.NotPanics(t, r.ClearCaches)
	assert.Equal(t, 1, logs.FilterMessage("failed to clear caches").Len())

	r = newReporter(fakeProcess{}, Options{Logger: zap.New(core)})
	assert.NotPanics(t, r.ClearCaches)
	assert.Equal(t, 1, logs.FilterMessage("no caches configured, nothing to clear").Len())
}

func TestTuneRuntimeAppliesOnce(t *testing.T) {
	r := newReporter(fakeProcess{}, Options{})
	defer debug.SetGCPercent(100)

	assert.True(t, r.TuneRuntime(TuneOptions{GCPercent: 150}))
	assert.False(t, r.TuneRuntime(TuneOptions{GCPercent: 50}))
	assert.Equal(t, 150, debug.SetGCPercent(100))
}

func TestLimitBytesSaturates(t *testing.T) {
	assert.Equal(t, int64(512*mb), limitBytes(512))
	assert.Equal(t, int64(math.MaxInt64/mb*mb), limitBytes(math.MaxInt64/mb))
	assert.Equal(t, int64(math.MaxInt64), limitBytes(math.MaxInt64/mb+1))
	assert.Equal(t, int64(math.MaxInt64), limitBytes(math.MaxInt64))
}

func TestCompact(t *testing.T) {
	r := newReporter(fakeProcess{}, Options{})
	stats := r.Compact()
	assert.GreaterOrEqual(t, stats.HeapBeforeMB, 0.0)
	assert.GreaterOrEqual(t, stats.ReleasedMB, 0.0)
}
