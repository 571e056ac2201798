// Package presentation memoizes the dashboard's data and resource calls and
// paginates long tables.
//
// The dashboard wraps its extraction functions once at startup:
//
//	cache := presentation.NewMemory(presentation.MemoryOptions{Observer: rec})
//	loadSeries := presentation.CacheData(cache, "load_series", 30*time.Minute, fetchSeries)
//	client := presentation.CacheResource(cache, "bcb_client", 2*time.Hour, newClient)
//
// Passing Noop{} instead turns both wrappers into plain calls.
package presentation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/econdash/pkg/config"
	"github.com/ajitpratap0/econdash/pkg/logger"
	"github.com/ajitpratap0/econdash/pkg/metrics"
)

// Kind separates per-argument data caches from shared resources.
type Kind string

const (
	KindData     Kind = "data"
	KindResource Kind = "resource"
)

// Adapter is the memoization capability handed to CacheData and
// CacheResource.
type Adapter interface {
	// ClearData empties every data cache.
	ClearData()
	// ClearResources empties every resource cache.
	ClearResources()
	// Stats reports the live entries of every registered cache.
	Stats() Stats

	// registry returns nil when the adapter does not memoize.
	registry() *registry
}

// Stats maps cache names to their live entry counts, per kind.
type Stats struct {
	Data      map[string]int `json:"data"`
	Resources map[string]int `json:"resources"`
}

// Noop is an Adapter that never memoizes.
type Noop struct{}

func (Noop) ClearData()          {}
func (Noop) ClearResources()     {}
func (Noop) Stats() Stats        { return Stats{Data: map[string]int{}, Resources: map[string]int{}} }
func (Noop) registry() *registry { return nil }

// MemoryOptions configures a Memory adapter.
type MemoryOptions struct {
	// MaxEntries bounds each data cache; zero means unbounded.
	MaxEntries int
	// DefaultTTL applies when a wrapper is created with a non-positive TTL.
	DefaultTTL time.Duration
	Observer   metrics.CacheObserver
	Logger     *zap.Logger
}

// Memory memoizes in process memory with per-cache TTLs.
type Memory struct {
	reg *registry
}

// NewMemory creates a Memory adapter.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	return &Memory{reg: &registry{
		caches:     map[Kind]map[string]*entry{KindData: {}, KindResource: {}},
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		observer:   opts.Observer,
		logger:     logger.Named(opts.Logger, "presentation"),
	}}
}

// FromConfig returns a Memory adapter, or Noop when caching is disabled.
func FromConfig(cfg config.CacheConfig, observer metrics.CacheObserver, l *zap.Logger) Adapter {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewMemory(MemoryOptions{
		MaxEntries: cfg.MaxEntries,
		DefaultTTL: cfg.DefaultTTL,
		Observer:   observer,
		Logger:     l,
	})
}

func (m *Memory) ClearData()          { m.reg.purge(KindData) }
func (m *Memory) ClearResources()     { m.reg.purge(KindResource) }
func (m *Memory) Stats() Stats        { return m.reg.stats() }
func (m *Memory) registry() *registry { return m.reg }

type purger interface {
	Purge()
	Len() int
}

// entry is one named cache and the flight group that fills it.
type entry struct {
	cache purger
	group *singleflight.Group
}

type registry struct {
	mu         sync.Mutex
	caches     map[Kind]map[string]*entry
	maxEntries int
	defaultTTL time.Duration
	observer   metrics.CacheObserver
	logger     *zap.Logger
}

// acquire returns the cache registered under kind and name, creating it on
// first use. Later wrappers share the first cache, its ttl and its size.
func (r *registry) acquire(kind Kind, name string, create func() purger) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.caches[kind][name]; ok {
		return e
	}
	e := &entry{cache: create(), group: &singleflight.Group{}}
	r.caches[kind][name] = e
	r.logger.Debug("cache registered", zap.String("kind", string(kind)), zap.String("name", name))
	return e
}

func (r *registry) purge(kind Kind) {
	r.mu.Lock()
	caches := make([]purger, 0, len(r.caches[kind]))
	for _, e := range r.caches[kind] {
		caches = append(caches, e.cache)
	}
	r.mu.Unlock()

	for _, c := range caches {
		c.Purge()
	}
	r.logger.Info("caches cleared", zap.String("kind", string(kind)), zap.Int("caches", len(caches)))
}

func (r *registry) stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Data: map[string]int{}, Resources: map[string]int{}}
	for name, e := range r.caches[KindData] {
		s.Data[name] = e.cache.Len()
	}
	for name, e := range r.caches[KindResource] {
		s.Resources[name] = e.cache.Len()
	}
	return s
}

// Names returns the registered cache names of kind, sorted.
func (m *Memory) Names(kind Kind) []string {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	names := make([]string, 0, len(m.reg.caches[kind]))
	for name := range m.reg.caches[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mismatch reports a name reused with a different value type. The caller
// falls back to uncached calls.
func (r *registry) mismatch(kind Kind, name string) {
	r.logger.Error("cache name reused with a different type, calls will not be cached",
		zap.String("kind", string(kind)), zap.String("name", name))
}

func (r *registry) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return r.defaultTTL
	}
	return ttl
}

func (r *registry) hit() {
	if r.observer != nil {
		r.observer.RecordHit()
	}
}

func (r *registry) miss() {
	if r.observer != nil {
		r.observer.RecordMiss()
	}
}

// CacheData memoizes fn per argument for ttl. Arguments are keyed by their
// Go-syntax representation, so pointer arguments are keyed by address.
// Concurrent calls with the same argument share one invocation; errors are
// returned to every waiter and not cached.
//
// Each name owns one cache per adapter. Wrapping again under a name already
// in use shares the existing cache; the ttl of the first wrap applies.
func CacheData[A, T any](a Adapter, name string, ttl time.Duration, fn func(A) (T, error)) func(A) (T, error) {
	reg := a.registry()
	if reg == nil {
		return fn
	}

	e := reg.acquire(KindData, name, func() purger {
		return expirable.NewLRU[string, T](reg.maxEntries, nil, reg.ttl(ttl))
	})
	lru, ok := e.cache.(*expirable.LRU[string, T])
	if !ok {
		reg.mismatch(KindData, name)
		return fn
	}
	group := e.group

	return func(arg A) (T, error) {
		key := fmt.Sprintf("%#v", arg)
		if v, ok := lru.Get(key); ok {
			reg.hit()
			return v, nil
		}
		return fill(reg, group, lru, name, key, func() (T, error) { return fn(arg) })
	}
}

// CacheResource memoizes a single shared value for ttl. Names are shared the
// same way as in CacheData.
func CacheResource[T any](a Adapter, name string, ttl time.Duration, fn func() (T, error)) func() (T, error) {
	reg := a.registry()
	if reg == nil {
		return fn
	}

	e := reg.acquire(KindResource, name, func() purger {
		return expirable.NewLRU[string, T](1, nil, reg.ttl(ttl))
	})
	lru, ok := e.cache.(*expirable.LRU[string, T])
	if !ok {
		reg.mismatch(KindResource, name)
		return fn
	}
	group := e.group

	return func() (T, error) {
		if v, ok := lru.Get(name); ok {
			reg.hit()
			return v, nil
		}
		return fill(reg, group, lru, name, name, fn)
	}
}

func fill[T any](reg *registry, group *singleflight.Group, lru *expirable.LRU[string, T], name, key string, fn func() (T, error)) (T, error) {
	res, err, _ := group.Do(key, func() (interface{}, error) {
		if v, ok := lru.Get(key); ok {
			return v, nil
		}
		reg.miss()
		v, err := fn()
		if err != nil {
			reg.logger.Warn("cached call failed", zap.String("name", name), zap.Error(err))
			return nil, err
		}
		lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
