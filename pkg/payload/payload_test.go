package payload

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/econdash/pkg/codec"
	"github.com/ajitpratap0/econdash/pkg/compression"
	econerrors "github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/metrics"
)

func indicators(t *testing.T) *frame.Frame {
	t.Helper()
	n := 120
	dates := make([]time.Time, n)
	values := make([]float64, n)
	names := make([]string, n)
	for i := range dates {
		dates[i] = time.Date(2014, time.Month(i%12+1), 1, 0, 0, 0, 0, time.UTC).AddDate(i/12, 0, 0)
		values[i] = 4 + math.Sin(float64(i)/6)
		names[i] = []string{"ipca", "selic", "pib"}[i%3]
	}
	values[7] = math.NaN()
	f, err := frame.New(
		frame.NewTimeColumn("data", dates),
		frame.NewFloat64("valor", values),
		frame.EncodeCategory("indicador", names),
	)
	require.NoError(t, err)
	return f
}

func newCompressor(t *testing.T, opts Options) (*Compressor, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	opts.Logger = zap.New(core)
	c, err := New(opts)
	require.NoError(t, err)
	return c, logs
}

type brokenCodec struct{}

func (brokenCodec) Name() string                        { return "broken" }
func (brokenCodec) Encode(*frame.Frame) ([]byte, error) { return nil, errors.New("encoder exploded") }
func (brokenCodec) Decode([]byte) (*frame.Frame, error) { return nil, errors.New("decoder exploded") }

type brokenCompressor struct{ compression.Compressor }

func (brokenCompressor) Compress([]byte) ([]byte, error) { return nil, errors.New("no space") }

func TestDefaultRoundTrip(t *testing.T) {
	c, logs := newCompressor(t, Options{})
	original := indicators(t)

	p := c.Compress(original)
	require.False(t, p.Degraded)
	require.NoError(t, p.Err)
	assert.True(t, p.Compressed)
	assert.Equal(t, compression.Gzip, p.Algorithm)
	assert.Equal(t, codec.ArrowName, p.Codec)
	assert.Equal(t, compression.Gzip, compression.Detect(p.Data))

	res := c.Decompress(p.Data)
	require.False(t, res.Degraded)
	assert.True(t, original.Equal(res.Frame))
	assert.Equal(t, original.Kinds(), res.Frame.Kinds())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRoundTripEveryAlgorithmAndCodec(t *testing.T) {
	original := indicators(t)
	for _, alg := range compression.Algorithms() {
		for _, cd := range []codec.Codec{codec.Arrow(nil), codec.JSON()} {
			t.Run(string(alg)+"/"+cd.Name(), func(t *testing.T) {
				c, _ := newCompressor(t, Options{Algorithm: alg, Codec: cd})
				p := c.Compress(original)
				require.False(t, p.Degraded)
				assert.Equal(t, alg != compression.None, p.Compressed)

				res := c.Decompress(p.Data)
				require.False(t, res.Degraded, "err: %v", res.Err)
				assert.True(t, original.Equal(res.Frame))
			})
		}
	}
}

func TestDecompressReadsOtherFramedFormats(t *testing.T) {
	original := indicators(t)
	zstdComp, _ := newCompressor(t, Options{Algorithm: compression.Zstd})
	gzipComp, _ := newCompressor(t, Options{})

	res := gzipComp.Decompress(zstdComp.Compress(original).Data)
	assert.False(t, res.Degraded)
	assert.True(t, original.Equal(res.Frame))
}

func TestDecompressUncompressedInputFallsBack(t *testing.T) {
	original := indicators(t)
	raw, err := codec.Arrow(nil).Encode(original)
	require.NoError(t, err)

	c, logs := newCompressor(t, Options{})
	res := c.Decompress(raw)

	assert.True(t, res.Degraded)
	assert.True(t, econerrors.IsType(res.Err, econerrors.ErrorTypeCompression))
	assert.True(t, original.Equal(res.Frame))
	assert.Equal(t, 1, logs.FilterMessage("payload decompression failed, reading as uncompressed").Len())
}

func TestDecompressUncompressedWithNoneIsNotDegraded(t *testing.T) {
	original := indicators(t)
	c, _ := newCompressor(t, Options{Algorithm: compression.None})
	raw, err := codec.Arrow(nil).Encode(original)
	require.NoError(t, err)

	res := c.Decompress(raw)
	assert.False(t, res.Degraded)
	assert.True(t, original.Equal(res.Frame))
}

func TestDecompressGarbageReturnsEmptyFrame(t *testing.T) {
	c, logs := newCompressor(t, Options{})

	for _, in := range [][]byte{nil, []byte("not a payload"), {0x1f, 0x8b, 0x00, 0x01}} {
		res := c.Decompress(in)
		require.True(t, res.Degraded)
		require.Error(t, res.Err)
		assert.Equal(t, 0, res.Frame.Len())
		assert.Equal(t, 0, res.Frame.Width())
	}
	assert.Equal(t, 3, logs.FilterMessage("payload unreadable, returning empty frame").Len())
}

func TestEncodingFailureUsesFallbackCodec(t *testing.T) {
	original := indicators(t)
	c, logs := newCompressor(t, Options{Codec: brokenCodec{}})

	p := c.Compress(original)
	require.True(t, p.Degraded)
	assert.False(t, p.Compressed)
	assert.Equal(t, codec.JSONName, p.Codec)
	assert.True(t, econerrors.IsType(p.Err, econerrors.ErrorTypeSerialization))
	assert.Equal(t, 1, logs.FilterMessage("payload encoding failed, using fallback codec").Len())

	res := c.Decompress(p.Data)
	assert.True(t, res.Degraded)
	assert.True(t, original.Equal(res.Frame))
}

func TestEverythingFailingYieldsEmptyPayload(t *testing.T) {
	c, logs := newCompressor(t, Options{Codec: brokenCodec{}, Fallback: brokenCodec{}})

	p := c.Compress(indicators(t))
	assert.True(t, p.Degraded)
	assert.Empty(t, p.Data)
	assert.NotNil(t, p.Data)
	assert.Error(t, p.Err)
	assert.Equal(t, 1, logs.FilterMessage("fallback encoding failed").Len())
}

func TestCompressionFailureKeepsEncoding(t *testing.T) {
	original := indicators(t)
	c, _ := newCompressor(t, Options{})
	c.comp = brokenCompressor{c.comp}

	p := c.Compress(original)
	require.True(t, p.Degraded)
	assert.False(t, p.Compressed)
	assert.True(t, econerrors.IsType(p.Err, econerrors.ErrorTypeCompression))

	decoded, err := codec.Arrow(nil).Decode(p.Data)
	require.NoError(t, err)
	assert.True(t, original.Equal(decoded))
}

func TestCompressNilFrame(t *testing.T) {
	c, _ := newCompressor(t, Options{Codec: codec.JSON()})
	p := c.Compress(nil)
	require.False(t, p.Degraded)
	res := c.Decompress(p.Data)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, res.Frame.Width())
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New(Options{Algorithm: "brotli"})
	assert.True(t, econerrors.IsType(err, econerrors.ErrorTypeConfig))
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryStore() *memoryStore { return &memoryStore{data: map[string][]byte{}} }

func (s *memoryStore) Put(_ context.Context, key string, data []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = data
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	d, ok := s.data[key]
	return d, ok, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestFrameCache(t *testing.T) {
	ctx := context.Background()
	c, _ := newCompressor(t, Options{})
	store := newMemoryStore()
	rec := metrics.NewRecorder()
	cache := NewFrameCache(store, c, rec, zap.NewNop())
	original := indicators(t)

	_, ok := cache.Load(ctx, "ipca")
	assert.False(t, ok)

	require.NoError(t, cache.Save(ctx, "ipca", original, time.Hour))
	res, ok := cache.Load(ctx, "ipca")
	require.True(t, ok)
	assert.False(t, res.Degraded)
	assert.True(t, original.Equal(res.Frame))

	require.NoError(t, cache.Invalidate(ctx, "ipca"))
	_, ok = cache.Load(ctx, "ipca")
	assert.False(t, ok)

	stats := rec.Stats().Cache
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestFrameCacheStoreErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newCompressor(t, Options{})
	store := newMemoryStore()
	store.err = io.ErrUnexpectedEOF
	core, logs := observer.New(zapcore.ErrorLevel)
	cache := NewFrameCache(store, c, nil, zap.New(core))

	err := cache.Save(ctx, "selic", indicators(t), time.Minute)
	assert.True(t, econerrors.IsType(err, econerrors.ErrorTypeStorage))

	_, ok := cache.Load(ctx, "selic")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("payload lookup failed").Len())
}

func TestFrameCacheRejectsUnserializableFrame(t *testing.T) {
	c, _ := newCompressor(t, Options{Codec: brokenCodec{}, Fallback: brokenCodec{}})
	cache := NewFrameCache(newMemoryStore(), c, nil, zap.NewNop())

	err := cache.Save(context.Background(), "pib", indicators(t), time.Minute)
	assert.True(t, econerrors.IsType(err, econerrors.ErrorTypeSerialization))
}
