package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := New(func() []int { return make([]int, 0, 8) }, nil)
	s := p.Get()
	assert.Equal(t, 8, cap(s))
	p.Put(s)

	b := New(func() *bytes.Buffer { return new(bytes.Buffer) }, func(b *bytes.Buffer) { b.Reset() })
	buf := b.Get()
	buf.WriteString("ipca")
	b.Put(buf)
	assert.Zero(t, b.Get().Len())
}

func TestPoolStats(t *testing.T) {
	p := New(func() *int { return new(int) }, nil)
	x := p.Get()
	y := p.Get()
	allocated, inUse, gets := p.Stats()
	assert.Equal(t, int64(2), allocated)
	assert.Equal(t, int64(2), inUse)
	assert.Equal(t, int64(2), gets)

	p.Put(x)
	p.Put(y)
	_, inUse, _ = p.Stats()
	assert.Zero(t, inUse)
}

func TestKeepDropsObjects(t *testing.T) {
	resets := 0
	p := New(func() *bytes.Buffer { return new(bytes.Buffer) }, func(*bytes.Buffer) { resets++ }).
		WithKeep(func(b *bytes.Buffer) bool { return b.Cap() < 16 })

	big := p.Get()
	big.Grow(64)
	p.Put(big)
	assert.Zero(t, resets)
}

func TestDetachSurvivesReuse(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("selic")
	out := Detach(buf)
	PutBuffer(buf)

	again := GetBuffer()
	again.WriteString("XXXXX")
	assert.Equal(t, []byte("selic"), out)
	PutBuffer(again)
}

func TestSharedBuffersConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := GetBuffer()
			assert.Zero(t, buf.Len())
			buf.WriteString("payload")
			PutBuffer(buf)
		}()
	}
	wg.Wait()
	_, inUse, _ := BufferStats()
	assert.Zero(t, inUse)
}
