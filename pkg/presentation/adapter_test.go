package presentation

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/econdash/pkg/config"
	"github.com/ajitpratap0/econdash/pkg/metrics"
)

type seriesQuery struct {
	Code  int
	Start string
}

func TestCacheDataMemoizesPerArgument(t *testing.T) {
	rec := metrics.NewRecorder()
	m := NewMemory(MemoryOptions{Observer: rec})

	var calls atomic.Int32
	load := CacheData(m, "load_series", time.Hour, func(q seriesQuery) (string, error) {
		calls.Add(1)
		return q.Start, nil
	})

	for i := 0; i < 3; i++ {
		v, err := load(seriesQuery{Code: 433, Start: "2020-01-01"})
		require.NoError(t, err)
		assert.Equal(t, "2020-01-01", v)
	}
	_, err := load(seriesQuery{Code: 433, Start: "2021-01-01"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, m.Stats().Data["load_series"])

	cache := rec.Stats().Cache
	assert.Equal(t, int64(2), cache.Hits)
	assert.Equal(t, int64(2), cache.Misses)
}

func TestCacheDataExpires(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	var calls atomic.Int32
	load := CacheData(m, "short", 30*time.Millisecond, func(code int) (int, error) {
		return int(calls.Add(1)), nil
	})

	v, _ := load(1)
	assert.Equal(t, 1, v)
	v, _ = load(1)
	assert.Equal(t, 1, v)

	time.Sleep(80 * time.Millisecond)
	v, _ = load(1)
	assert.Equal(t, 2, v)
}

func TestCacheDataDoesNotCacheErrors(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	var calls atomic.Int32
	load := CacheData(m, "flaky", time.Hour, func(code int) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("timeout")
		}
		return code, nil
	})

	_, err := load(7)
	assert.Error(t, err)
	v, err := load(7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheDataCollapsesConcurrentFills(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	var calls atomic.Int32
	release := make(chan struct{})
	load := CacheData(m, "slow", time.Hour, func(code int) (int, error) {
		calls.Add(1)
		<-release
		return code * 10, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := load(4)
			assert.NoError(t, err)
			assert.Equal(t, 40, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheDataMaxEntries(t *testing.T) {
	m := NewMemory(MemoryOptions{MaxEntries: 2})
	load := CacheData(m, "bounded", time.Hour, func(code int) (int, error) { return code, nil })
	for i := 0; i < 5; i++ {
		_, _ = load(i)
	}
	assert.Equal(t, 2, m.Stats().Data["bounded"])
}

func TestCacheResourceSharesOneInstance(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	type model struct{ id int32 }
	var calls atomic.Int32
	get := CacheResource(m, "forecast_model", time.Hour, func() (*model, error) {
		return &model{id: calls.Add(1)}, nil
	})

	a, err := get()
	require.NoError(t, err)
	b, err := get()
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Stats().Resources["forecast_model"])
}

func TestRewrapSharesCache(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	var calls atomic.Int32
	fetch := func(code int) (int, error) {
		calls.Add(1)
		return code * 10, nil
	}

	first := CacheData(m, "load_series", time.Hour, fetch)
	v, err := first(433)
	require.NoError(t, err)
	assert.Equal(t, 4330, v)

	second := CacheData(m, "load_series", time.Minute, fetch)
	v, err = second(433)
	require.NoError(t, err)
	assert.Equal(t, 4330, v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"load_series"}, m.Names(KindData))

	newClient := func() (string, error) {
		calls.Add(1)
		return "client", nil
	}
	r1 := CacheResource(m, "bcb_client", time.Hour, newClient)
	r2 := CacheResource(m, "bcb_client", time.Hour, newClient)
	_, _ = r1()
	_, _ = r2()
	assert.Equal(t, int32(2), calls.Load())
}

func TestRewrapDoesNotGrowGoroutines(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	fetch := func(code int) (int, error) { return code, nil }
	newClient := func() (string, error) { return "client", nil }

	CacheData(m, "load_series", time.Hour, fetch)
	CacheResource(m, "bcb_client", time.Hour, newClient)
	before := runtime.NumGoroutine()

	for i := 0; i < 100; i++ {
		CacheData(m, "load_series", time.Hour, fetch)
		CacheResource(m, "bcb_client", time.Hour, newClient)
	}

	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)
	assert.Equal(t, []string{"load_series"}, m.Names(KindData))
	assert.Equal(t, []string{"bcb_client"}, m.Names(KindResource))
}

func TestRewrapWithOtherTypeIsUncached(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	CacheData(m, "load_series", time.Hour, func(code int) (int, error) { return code, nil })

	var calls atomic.Int32
	load := CacheData(m, "load_series", time.Hour, func(code int) (string, error) {
		calls.Add(1)
		return "x", nil
	})
	for i := 0; i < 3; i++ {
		v, err := load(1)
		require.NoError(t, err)
		assert.Equal(t, "x", v)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestClearByKind(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	var dataCalls, resourceCalls atomic.Int32
	load := CacheData(m, "data", time.Hour, func(code int) (int, error) { return int(dataCalls.Add(1)), nil })
	get := CacheResource(m, "resource", time.Hour, func() (int, error) { return int(resourceCalls.Add(1)), nil })

	_, _ = load(1)
	_, _ = get()

	m.ClearData()
	assert.Equal(t, 0, m.Stats().Data["data"])
	assert.Equal(t, 1, m.Stats().Resources["resource"])

	_, _ = load(1)
	_, _ = get()
	assert.Equal(t, int32(2), dataCalls.Load())
	assert.Equal(t, int32(1), resourceCalls.Load())

	m.ClearResources()
	_, _ = get()
	assert.Equal(t, int32(2), resourceCalls.Load())
	assert.Equal(t, []string{"data"}, m.Names(KindData))
}

func TestNoopCallsEveryTime(t *testing.T) {
	var calls atomic.Int32
	load := CacheData(Noop{}, "load", time.Hour, func(code int) (int, error) {
		calls.Add(1)
		return code, nil
	})
	get := CacheResource(Noop{}, "res", time.Hour, func() (int, error) {
		calls.Add(1)
		return 0, nil
	})

	_, _ = load(1)
	_, _ = load(1)
	_, _ = get()
	_, _ = get()
	assert.Equal(t, int32(4), calls.Load())

	var a Adapter = Noop{}
	a.ClearData()
	a.ClearResources()
	assert.Empty(t, a.Stats().Data)
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefault().Cache
	cfg.Enabled = false
	assert.IsType(t, Noop{}, FromConfig(cfg, nil, nil))

	cfg.Enabled = true
	assert.IsType(t, &Memory{}, FromConfig(cfg, nil, nil))
}
