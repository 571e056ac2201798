// Package econdash is the performance layer of the economic indicators
// dashboard. It sits between the BCB/IBGE extraction code and the rendering
// shell and keeps the dashboard responsive on large series.
//
// # Architecture
//
// Leaf packages first:
//
//   - pkg/frame: the tabular dataset passed between every component
//   - pkg/codec: Arrow IPC and JSON serialization of frames
//   - pkg/compression: gzip, zstd, s2, snappy and lz4 compressors
//   - pkg/metrics: timing samples, quantiles and cache hit counters
//   - pkg/payload: frame to compressed bytes and back, with explicit fallbacks
//   - pkg/lazy: keyed values produced on first use
//   - pkg/shrink: dtype narrowing and date-ordered downsampling
//   - pkg/presentation: memoized data and resource calls, pagination
//   - pkg/memstat: process memory reporting and runtime tuning
//   - pkg/store: SQLite store for compressed payloads
//
// # Quick Start
//
//	rec := metrics.NewRecorder()
//	cache := presentation.NewMemory(presentation.MemoryOptions{Observer: rec})
//	load := presentation.CacheData(cache, "load_series", 30*time.Minute,
//		metrics.Measure1(rec, "load_series", fetchSeries))
//
//	series, err := load(433)
//	small := shrink.New(shrink.Options{}).OptimizeTypes(series).Frame
//
// Operations that can fall back never fail outright: they return a
// frame.Result or payload.Payload with Degraded set and the cause in Err.
//
// # Command Line
//
//	econdash inspect ipca.csv --target 200 --plot valor
//	econdash mem --compact
//	econdash cache stats
package econdash
