package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// collector exports a Recorder snapshot on every scrape.
type collector struct {
	rec *Recorder

	calls    *prometheus.Desc
	failures *prometheus.Desc
	seconds  *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
	hitRatio *prometheus.Desc
}

// NewCollector returns a prometheus.Collector over rec. Register it on the
// registry of your choice:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(rec, "econdash"))
func NewCollector(rec *Recorder, namespace string) prometheus.Collector {
	op := []string{"operation"}
	return &collector{
		rec: rec,
		calls: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "operation", "calls_total"),
			"Successful calls per measured operation.", op, nil),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "operation", "failures_total"),
			"Failed calls per measured operation.", op, nil),
		seconds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "operation", "duration_seconds"),
			"Duration of successful calls per measured operation.", op, nil),
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Cache hits reported to the recorder.", nil, nil),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Cache misses reported to the recorder.", nil, nil),
		hitRatio: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hit_ratio"),
			"Cache hits over lookups, zero before the first lookup.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.calls
	ch <- c.failures
	ch <- c.seconds
	ch <- c.hits
	ch <- c.misses
	ch <- c.hitRatio
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	report := c.rec.Stats()

	for op, s := range report.Operations {
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(s.Calls), op)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures), op)
		ch <- prometheus.MustNewConstSummary(c.seconds, uint64(s.Calls), s.Total,
			map[float64]float64{0.5: s.P50, 0.95: s.P95, 0.99: s.P99}, op)
	}

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(report.Cache.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(report.Cache.Misses))
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, report.Cache.HitRatio)
}
