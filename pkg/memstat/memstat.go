// Package memstat reports process memory and releases the caches and heap
// the dashboard holds.
package memstat

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/ajitpratap0/econdash/pkg/logger"
)

const mb = 1024 * 1024

// CacheClearer is implemented by presentation adapters.
type CacheClearer interface {
	ClearData()
	ClearResources()
}

// processInfo is the subset of *process.Process the reporter reads.
type processInfo interface {
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
	MemoryPercentWithContext(ctx context.Context) (float32, error)
}

// Options configures a Reporter.
type Options struct {
	// Caches is cleared by ClearCaches; may be nil.
	Caches CacheClearer
	Logger *zap.Logger
}

// Usage is a memory snapshot of the current process.
type Usage struct {
	ResidentMB float64 `json:"resident_mb"`
	VirtualMB  float64 `json:"virtual_mb"`
	// Percent is resident memory over total system memory.
	Percent float64 `json:"percent"`
	// HeapMB and Goroutines come from the Go runtime.
	HeapMB     float64 `json:"heap_mb"`
	Goroutines int     `json:"goroutines"`
}

// Reporter queries and reduces the memory of the current process.
type Reporter struct {
	proc   processInfo
	caches CacheClearer
	logger *zap.Logger
}

// NewReporter creates a Reporter bound to the current process.
func NewReporter(opts Options) (*Reporter, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSystem, "failed to open process handle")
	}
	return newReporter(proc, opts), nil
}

func newReporter(proc processInfo, opts Options) *Reporter {
	return &Reporter{
		proc:   proc,
		caches: opts.Caches,
		logger: logger.Named(opts.Logger, "memstat"),
	}
}

// Usage returns the current memory usage. OS query failures are returned as
// errors of type ErrorTypeSystem.
func (r *Reporter) Usage(ctx context.Context) (Usage, error) {
	info, err := r.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Usage{}, errors.Wrap(err, errors.ErrorTypeSystem, "failed to read process memory")
	}
	percent, err := r.proc.MemoryPercentWithContext(ctx)
	if err != nil {
		return Usage{}, errors.Wrap(err, errors.ErrorTypeSystem, "failed to read memory percent")
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Usage{
		ResidentMB: float64(info.RSS) / mb,
		VirtualMB:  float64(info.VMS) / mb,
		Percent:    float64(percent),
		HeapMB:     float64(ms.HeapAlloc) / mb,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}

// ClearCaches empties the data and resource caches. Failures are logged and
// never propagate.
func (r *Reporter) ClearCaches() {
	if r.caches == nil {
		r.logger.Warn("no caches configured, nothing to clear")
		return
	}
	if err := clearSafely(r.caches); err != nil {
		r.logger.Error("failed to clear caches", zap.Error(err))
		return
	}
	r.logger.Info("caches cleared")
}

func clearSafely(c CacheClearer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cache clear panicked: %v", p)
		}
	}()
	c.ClearData()
	c.ClearResources()
	return nil
}

// TuneOptions holds process-wide runtime settings. Zero fields are left
// untouched.
type TuneOptions struct {
	// GCPercent is passed to debug.SetGCPercent.
	GCPercent int
	// MemoryLimitMB is a soft heap limit passed to debug.SetMemoryLimit.
	MemoryLimitMB int64
}

var tuneOnce sync.Once

// TuneRuntime applies opts once per process. It reports whether this call
// applied them; later calls are no-ops.
func (r *Reporter) TuneRuntime(opts TuneOptions) bool {
	applied := false
	tuneOnce.Do(func() {
		applied = true
		fields := make([]zap.Field, 0, 2)
		if opts.GCPercent != 0 {
			prev := debug.SetGCPercent(opts.GCPercent)
			fields = append(fields, zap.Int("gc_percent", opts.GCPercent), zap.Int("previous_gc_percent", prev))
		}
		if opts.MemoryLimitMB > 0 {
			debug.SetMemoryLimit(limitBytes(opts.MemoryLimitMB))
			fields = append(fields, zap.Int64("memory_limit_mb", opts.MemoryLimitMB))
		}
		r.logger.Info("runtime tuned", fields...)
	})
	return applied
}

// CompactStats reports the heap around a Compact call.
type CompactStats struct {
	HeapBeforeMB float64 `json:"heap_before_mb"`
	HeapAfterMB  float64 `json:"heap_after_mb"`
	ReleasedMB   float64 `json:"released_mb"`
}

// Compact forces a collection and returns freed memory to the OS.
func (r *Reporter) Compact() CompactStats {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	runtime.GC()
	debug.FreeOSMemory()

	runtime.ReadMemStats(&after)
	stats := CompactStats{
		HeapBeforeMB: float64(before.HeapAlloc) / mb,
		HeapAfterMB:  float64(after.HeapAlloc) / mb,
		ReleasedMB:   float64(after.HeapReleased) / mb,
	}
	r.logger.Debug("heap compacted",
		zap.Float64("heap_before_mb", stats.HeapBeforeMB),
		zap.Float64("heap_after_mb", stats.HeapAfterMB))
	return stats
}

// limitBytes converts megabytes to bytes, saturating at math.MaxInt64.
func limitBytes(mbs int64) int64 {
	if mbs > math.MaxInt64/mb {
		return math.MaxInt64
	}
	return mbs * mb
}
