package payload

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/logger"
	"github.com/ajitpratap0/econdash/pkg/metrics"
)

// Store persists payload bytes under a key with a lifetime.
type Store interface {
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// FrameCache keeps compressed frames in a Store.
type FrameCache struct {
	store      Store
	compressor *Compressor
	observer   metrics.CacheObserver
	logger     *zap.Logger
}

// NewFrameCache creates a FrameCache. observer may be nil.
func NewFrameCache(store Store, compressor *Compressor, observer metrics.CacheObserver, l *zap.Logger) *FrameCache {
	return &FrameCache{
		store:      store,
		compressor: compressor,
		observer:   observer,
		logger:     logger.Named(l, "frame_cache"),
	}
}

// Save compresses f and stores it under key for ttl.
func (c *FrameCache) Save(ctx context.Context, key string, f *frame.Frame, ttl time.Duration) error {
	p := c.compressor.Compress(f)
	if len(p.Data) == 0 {
		return errors.Wrap(p.Err, errors.ErrorTypeSerialization, "frame could not be serialized").
			WithDetail("key", key)
	}
	if p.Degraded {
		c.logger.Warn("storing degraded payload", zap.String("key", key), zap.Error(p.Err))
	}
	if err := c.store.Put(ctx, key, p.Data, ttl); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to store payload").WithDetail("key", key)
	}
	return nil
}

// Load returns the frame stored under key. A store failure is logged and
// reported as a miss.
func (c *FrameCache) Load(ctx context.Context, key string) (frame.Result, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("payload lookup failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if !ok {
		c.miss()
		return frame.Result{}, false
	}
	c.hit()
	return c.compressor.Decompress(data), true
}

// Invalidate removes key.
func (c *FrameCache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to delete payload").WithDetail("key", key)
	}
	return nil
}

func (c *FrameCache) hit() {
	if c.observer != nil {
		c.observer.RecordHit()
	}
}

func (c *FrameCache) miss() {
	if c.observer != nil {
		c.observer.RecordMiss()
	}
}
