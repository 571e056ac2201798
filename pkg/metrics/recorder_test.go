package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/econdash/internal/clock"
)

func loadIndicator() (int, error) { return 42, nil }

func newMockRecorder(opts ...Option) (*Recorder, *clock.Mock) {
	mock := clock.NewMock(time.Time{})
	return NewRecorder(append([]Option{WithClock(mock)}, opts...)...), mock
}

func TestMeasureRecordsSuccessfulCalls(t *testing.T) {
	rec, mock := newMockRecorder()

	fetch := Measure(rec, "fetch_ipca", func() (string, error) {
		mock.Advance(2 * time.Second)
		return "ok", nil
	})

	v, err := fetch()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = fetch()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	assert.Equal(t, []float64{2, 2}, rec.Samples("fetch_ipca"))
}

func TestMeasureCountsFailuresWithoutSampling(t *testing.T) {
	rec, _ := newMockRecorder()
	boom := errors.New("bcb unavailable")

	fetch := Measure(rec, "fetch_selic", func() (float64, error) { return 0, boom })
	_, err := fetch()
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, rec.Samples("fetch_selic"))
	stats := rec.Stats().Operations["fetch_selic"]
	assert.Equal(t, 0, stats.Calls)
	assert.Equal(t, int64(1), stats.Failures)
}

func TestMeasurePropagatesPanics(t *testing.T) {
	rec, _ := newMockRecorder()
	fn := MeasureErr(rec, "explode", func() error { panic("bad row") })

	assert.PanicsWithValue(t, "bad row", func() { _ = fn() })
	assert.Empty(t, rec.Samples("explode"))
}

func TestMeasureUsesFunctionName(t *testing.T) {
	rec, _ := newMockRecorder()
	v, err := Measure(rec, "", loadIndicator)()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []string{"loadIndicator"}, rec.Operations())
}

func TestMeasure1PassesArgument(t *testing.T) {
	rec, mock := newMockRecorder()
	double := Measure1(rec, "double", func(n int) (int, error) {
		mock.Advance(time.Second)
		return n * 2, nil
	})

	v, err := double(21)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Len(t, rec.Samples("double"), 1)
}

func TestStatsAggregates(t *testing.T) {
	rec, _ := newMockRecorder()
	for _, s := range []float64{1, 2, 3} {
		rec.Observe("render", time.Duration(s*float64(time.Second)))
	}

	s := rec.Stats().Operations["render"]
	assert.Equal(t, 3, s.Calls)
	assert.InDelta(t, 6, s.Total, 1e-9)
	assert.InDelta(t, 2, s.Average, 1e-9)
	assert.InDelta(t, 1, s.Min, 1e-9)
	assert.InDelta(t, 3, s.Max, 1e-9)
	assert.InEpsilon(t, 2, s.P50, 0.02)
	assert.InEpsilon(t, 3, s.P99, 0.02)
}

func TestHitRatio(t *testing.T) {
	rec, _ := newMockRecorder()
	assert.Equal(t, 0.0, rec.Stats().Cache.HitRatio)

	rec.RecordHit()
	rec.RecordHit()
	rec.RecordHit()
	rec.RecordMiss()

	cache := rec.Stats().Cache
	assert.Equal(t, int64(3), cache.Hits)
	assert.Equal(t, int64(1), cache.Misses)
	assert.Equal(t, 0.75, cache.HitRatio)
}

func TestReset(t *testing.T) {
	rec, _ := newMockRecorder()
	rec.Observe("render", time.Second)
	rec.RecordHit()
	rec.RecordMiss()

	rec.Reset()

	report := rec.Stats()
	assert.Empty(t, report.Operations)
	assert.Equal(t, CacheStats{}, report.Cache)
}

func TestTimeRecordsOnce(t *testing.T) {
	rec, mock := newMockRecorder()
	stop := rec.Time("layout")
	mock.Advance(500 * time.Millisecond)
	stop()
	stop()
	assert.Equal(t, []float64{0.5}, rec.Samples("layout"))
}

func TestMeasureContextOpensSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	rec, _ := newMockRecorder(WithTracer(tp.Tracer("test")))

	ok := MeasureContext(rec, "query_ibge", func(ctx context.Context) (int, error) { return 1, nil })
	bad := MeasureContext(rec, "query_bcb", func(ctx context.Context) (int, error) { return 0, errors.New("timeout") })

	_, err := ok(context.Background())
	require.NoError(t, err)
	_, err = bad(context.Background())
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "query_ibge", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "query_bcb", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestFailuresAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec, _ := newMockRecorder(WithLogger(zap.New(core)))

	_ = MeasureErr(rec, "save", func() error { return errors.New("disk full") })()

	entries := logs.FilterMessage("operation failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "save", entries[0].ContextMap()["operation"])
}

func TestConcurrentMeasure(t *testing.T) {
	rec := NewRecorder()
	fn := Measure(rec, "parallel", func() (int, error) { return 1, nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fn()
			rec.RecordHit()
		}()
	}
	wg.Wait()

	report := rec.Stats()
	assert.Equal(t, 50, report.Operations["parallel"].Calls)
	assert.Equal(t, int64(50), report.Cache.Hits)
}

func TestCollector(t *testing.T) {
	rec, _ := newMockRecorder()
	rec.Observe("render", time.Second)
	rec.RecordHit()
	rec.RecordMiss()

	c := NewCollector(rec, "econdash")
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	expected := `
# HELP econdash_cache_hits_total Cache hits reported to the recorder.
# TYPE econdash_cache_hits_total counter
econdash_cache_hits_total 1
# HELP econdash_cache_hit_ratio Cache hits over lookups, zero before the first lookup.
# TYPE econdash_cache_hit_ratio gauge
econdash_cache_hit_ratio 0.5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"econdash_cache_hits_total", "econdash_cache_hit_ratio"))
}
