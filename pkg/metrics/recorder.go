package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/internal/clock"
	"github.com/ajitpratap0/econdash/pkg/logger"
)

const (
	tracerName = "github.com/ajitpratap0/econdash/pkg/metrics"

	// sketchAccuracy is the relative accuracy of reported quantiles.
	sketchAccuracy = 0.01
)

// CacheObserver receives cache lookups outcomes.
type CacheObserver interface {
	RecordHit()
	RecordMiss()
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the time source used to measure durations.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithTracer sets the tracer used by MeasureContext.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// Recorder collects timing samples and cache counters.
type Recorder struct {
	mu      sync.Mutex
	timings map[string]*timing

	hits   atomic.Int64
	misses atomic.Int64

	clock  clock.Clock
	tracer trace.Tracer
	logger *zap.Logger
}

type timing struct {
	samples  []float64
	sketch   *ddsketch.DDSketch
	total    float64
	min      float64
	max      float64
	failures int64
}

// NewRecorder creates an empty Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		timings: make(map[string]*timing),
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	r.logger = logger.Named(r.logger, "metrics")
	return r
}

// RecordHit counts a cache hit.
func (r *Recorder) RecordHit() { r.hits.Add(1) }

// RecordMiss counts a cache miss.
func (r *Recorder) RecordMiss() { r.misses.Add(1) }

// Observe appends a successful sample for op.
func (r *Recorder) Observe(op string, d time.Duration) {
	seconds := d.Seconds()

	r.mu.Lock()
	t := r.timingLocked(op)
	t.samples = append(t.samples, seconds)
	if len(t.samples) == 1 || seconds < t.min {
		t.min = seconds
	}
	if seconds > t.max {
		t.max = seconds
	}
	t.total += seconds
	if t.sketch != nil {
		_ = t.sketch.Add(seconds)
	}
	r.mu.Unlock()

	r.logger.Debug("operation timed",
		zap.String("operation", op),
		zap.Duration("duration", d))
}

// fail counts a call of op that returned an error.
func (r *Recorder) fail(op string, err error) {
	r.mu.Lock()
	r.timingLocked(op).failures++
	r.mu.Unlock()

	r.logger.Debug("operation failed",
		zap.String("operation", op),
		zap.Error(err))
}

func (r *Recorder) timingLocked(op string) *timing {
	t, ok := r.timings[op]
	if !ok {
		t = &timing{}
		if sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy); err == nil {
			t.sketch = sketch
		}
		r.timings[op] = t
	}
	return t
}

// Samples returns a copy of the samples recorded for op, in seconds and in
// call order.
func (r *Recorder) Samples(op string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timings[op]
	if !ok {
		return nil
	}
	return append([]float64(nil), t.samples...)
}

// Operations returns the names of every operation seen, sorted.
func (r *Recorder) Operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, 0, len(r.timings))
	for op := range r.timings {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// OperationStats summarizes the samples of one operation. Durations are in
// seconds.
type OperationStats struct {
	Calls    int     `json:"calls"`
	Total    float64 `json:"total"`
	Average  float64 `json:"average"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P50      float64 `json:"p50"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
	Failures int64   `json:"failures"`
}

// CacheStats summarizes cache lookups.
type CacheStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// Report is a point-in-time snapshot of a Recorder.
type Report struct {
	Operations map[string]OperationStats `json:"operations"`
	Cache      CacheStats                `json:"cache"`
}

// Stats returns a snapshot of all operations and the cache counters. The hit
// ratio is zero when no lookups were recorded.
func (r *Recorder) Stats() Report {
	report := Report{Operations: make(map[string]OperationStats)}

	r.mu.Lock()
	for op, t := range r.timings {
		s := OperationStats{
			Calls:    len(t.samples),
			Total:    t.total,
			Min:      t.min,
			Max:      t.max,
			Failures: t.failures,
		}
		if s.Calls > 0 {
			s.Average = t.total / float64(s.Calls)
			if t.sketch != nil {
				s.P50 = quantile(t.sketch, 0.50)
				s.P95 = quantile(t.sketch, 0.95)
				s.P99 = quantile(t.sketch, 0.99)
			}
		}
		report.Operations[op] = s
	}
	r.mu.Unlock()

	hits, misses := r.hits.Load(), r.misses.Load()
	report.Cache = CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		report.Cache.HitRatio = float64(hits) / float64(total)
	}
	return report
}

func quantile(s *ddsketch.DDSketch, q float64) float64 {
	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

// Reset drops every sample and zeroes the counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.timings = make(map[string]*timing)
	r.mu.Unlock()

	r.hits.Store(0)
	r.misses.Store(0)
}
