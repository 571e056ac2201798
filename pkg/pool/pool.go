// Package pool provides typed object pooling for the payload path.
//
// Encoding and compression build short-lived byte buffers for every payload.
// Buffers drawn from the shared pool are reset on return; buffers that grew
// past MaxPooledBuffer are dropped so one large frame does not pin memory.
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//	_ = enc.Encode(buf)
//	out := pool.Detach(buf)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MaxPooledBuffer is the largest buffer capacity returned to the pool.
const MaxPooledBuffer = 4 << 20

// Pool is a type-safe wrapper around sync.Pool that counts allocations and
// objects in use. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	keep  func(T) bool
	stats struct {
		allocated atomic.Int64
		inUse     atomic.Int64
		gets      atomic.Int64
	}
}

// New creates a pool. reset, when non-nil, runs on Put before the object
// is pooled.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// WithKeep sets a predicate deciding whether a returned object is pooled.
func (p *Pool[T]) WithKeep(keep func(T) bool) *Pool[T] {
	p.keep = keep
	return p
}

// Get retrieves an object, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	p.stats.gets.Add(1)
	p.stats.inUse.Add(1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool.
func (p *Pool[T]) Put(obj T) {
	p.stats.inUse.Add(-1)
	if p.keep != nil && !p.keep(obj) {
		return
	}
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats reports allocations, objects currently checked out, and Get calls.
// gets - allocated approximates the number of reuses.
func (p *Pool[T]) Stats() (allocated, inUse, gets int64) {
	return p.stats.allocated.Load(), p.stats.inUse.Load(), p.stats.gets.Load()
}

var buffers = New(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) { b.Reset() },
).WithKeep(func(b *bytes.Buffer) bool { return b.Cap() <= MaxPooledBuffer })

// GetBuffer returns an empty buffer from the shared pool.
func GetBuffer() *bytes.Buffer { return buffers.Get() }

// PutBuffer returns buf to the shared pool. buf must not be used afterwards.
func PutBuffer(buf *bytes.Buffer) { buffers.Put(buf) }

// Detach copies the contents of buf so the buffer can go back to the pool.
func Detach(buf *bytes.Buffer) []byte {
	return bytes.Clone(buf.Bytes())
}

// BufferStats reports the shared buffer pool statistics.
func BufferStats() (allocated, inUse, gets int64) { return buffers.Stats() }
