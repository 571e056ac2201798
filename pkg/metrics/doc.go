// Package metrics records execution timings and cache effectiveness for the
// dashboard's data calls.
//
// # Overview
//
// A Recorder keeps, per operation name, the ordered duration samples of every
// successful call together with a DDSketch for quantiles, and a pair of
// hit/miss counters shared by the caches that report to it.
//
// Functions are timed by wrapping them:
//
//	rec := metrics.NewRecorder()
//	load := metrics.Measure1(rec, "load_series", fetchSeries)
//	series, err := load("ipca")
//
//	stop := rec.Time("render")
//	render(series)
//	stop()
//
// Stats returns a point-in-time Report and NewCollector exposes the same data
// to Prometheus.
//
// # Concurrency
//
// Timing maps are guarded by a mutex; hit and miss counters are atomics.
// A Recorder is safe for concurrent use.
package metrics
