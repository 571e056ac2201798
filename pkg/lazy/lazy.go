// Package lazy memoizes expensive values behind named producers that run on
// first use.
package lazy

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/econdash/pkg/logger"
	"github.com/ajitpratap0/econdash/pkg/metrics"
)

// reloadPrefix separates reload flights from first-use fills of the same key.
const reloadPrefix = "reload\x00"

// Producer computes the value for a key.
type Producer[V any] func() (V, error)

// Options configures a Cache.
type Options struct {
	Logger *zap.Logger
	// Observer, when set, sees a hit for every materialized lookup and a
	// miss for every producer invocation.
	Observer metrics.CacheObserver
}

// Cache maps keys to producers and to the values they produced.
//
// A producer runs at most once between two clears of its key, even when
// many goroutines ask for it at the same time. Producer errors are logged
// and never memoized.
type Cache[V any] struct {
	mu        sync.Mutex
	producers map[string]Producer[V]
	values    map[string]V
	// generation changes on every clear so that a fill started before the
	// clear does not store its value.
	generation map[string]uint64

	group    singleflight.Group
	observer metrics.CacheObserver
	logger   *zap.Logger
}

// New creates an empty Cache.
func New[V any](opts Options) *Cache[V] {
	return &Cache[V]{
		producers:  make(map[string]Producer[V]),
		values:     make(map[string]V),
		generation: make(map[string]uint64),
		observer:   opts.Observer,
		logger:     logger.Named(opts.Logger, "lazy"),
	}
}

// Register stores producer under key, replacing any previous one. The
// producer is not invoked, and a value already materialized for key stays
// until it is cleared or reloaded.
func (c *Cache[V]) Register(key string, producer Producer[V]) {
	c.mu.Lock()
	c.producers[key] = producer
	c.mu.Unlock()
}

// Get returns the value for key, invoking its producer on first use.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.get(key, false)
}

// Reload invokes the producer for key again and replaces the stored value.
func (c *Cache[V]) Reload(key string) (V, bool) {
	return c.get(key, true)
}

func (c *Cache[V]) get(key string, forceReload bool) (V, bool) {
	var zero V

	c.mu.Lock()
	if !forceReload {
		if v, ok := c.values[key]; ok {
			c.mu.Unlock()
			c.hit()
			return v, true
		}
	}
	producer, ok := c.producers[key]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("no producer registered", zap.String("key", key))
		return zero, false
	}
	c.mu.Unlock()

	flight := key
	if forceReload {
		flight = reloadPrefix + key
	}
	res, err, _ := c.group.Do(flight, func() (interface{}, error) {
		c.mu.Lock()
		if !forceReload {
			if v, ok := c.values[key]; ok {
				c.mu.Unlock()
				return v, nil
			}
		} else {
			// Fills that started before this reload must not store.
			c.generation[key]++
		}
		gen := c.generation[key]
		c.mu.Unlock()
		if forceReload {
			c.group.Forget(key)
		}

		c.miss()
		v, err := producer()
		if err != nil {
			c.logger.Error("producer failed", zap.String("key", key), zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		if c.generation[key] == gen {
			c.values[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return zero, false
	}
	v, _ := res.(V)
	return v, true
}

// Loaded reports whether key currently holds a materialized value.
func (c *Cache[V]) Loaded(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

// Keys returns the registered keys, sorted.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.producers))
	for k := range c.producers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear drops the materialized value for key. Its producer stays registered.
func (c *Cache[V]) Clear(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.generation[key]++
	c.mu.Unlock()
	c.group.Forget(key)
	c.group.Forget(reloadPrefix + key)
}

// ClearAll drops every materialized value. Producers stay registered.
func (c *Cache[V]) ClearAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.values)+len(c.producers))
	for k := range c.values {
		keys = append(keys, k)
	}
	for k := range c.producers {
		keys = append(keys, k)
	}
	c.values = make(map[string]V)
	for _, k := range keys {
		c.generation[k]++
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.group.Forget(k)
		c.group.Forget(reloadPrefix + k)
	}
}

func (c *Cache[V]) hit() {
	if c.observer != nil {
		c.observer.RecordHit()
	}
}

func (c *Cache[V]) miss() {
	if c.observer != nil {
		c.observer.RecordMiss()
	}
}
