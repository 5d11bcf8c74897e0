package kvsearch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports operation counters and latencies.
type PrometheusCollector struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	hits     prometheus.Histogram
	bulkRows prometheus.Counter
}

// NewPrometheusCollector registers the kvsearch metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusCollector{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvsearch",
			Name:      "operations_total",
			Help:      "Table operations by kind and outcome.",
		}, []string{"op", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvsearch",
			Name:      "operation_duration_seconds",
			Help:      "Table operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		hits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kvsearch",
			Name:      "search_hits",
			Help:      "Hits returned per search page.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		bulkRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "kvsearch",
			Name:      "bulk_rows_total",
			Help:      "Rows indexed by bulk calls.",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordUpsert implements MetricsCollector.
func (p *PrometheusCollector) RecordUpsert(d time.Duration, err error) {
	p.ops.WithLabelValues("upsert", status(err)).Inc()
	p.latency.WithLabelValues("upsert").Observe(d.Seconds())
}

// RecordBulk implements MetricsCollector.
func (p *PrometheusCollector) RecordBulk(count, failed int, d time.Duration) {
	st := "ok"
	if failed > 0 {
		st = "error"
	}
	p.ops.WithLabelValues("bulk", st).Inc()
	p.latency.WithLabelValues("bulk").Observe(d.Seconds())
	p.bulkRows.Add(float64(count))
}

// RecordSearch implements MetricsCollector.
func (p *PrometheusCollector) RecordSearch(hits int, partial bool, d time.Duration, err error) {
	st := status(err)
	if err == nil && partial {
		st = "partial"
	}
	p.ops.WithLabelValues("search", st).Inc()
	p.latency.WithLabelValues("search").Observe(d.Seconds())
	if err == nil {
		p.hits.Observe(float64(hits))
	}
}

// RecordDelete implements MetricsCollector.
func (p *PrometheusCollector) RecordDelete(d time.Duration, err error) {
	p.ops.WithLabelValues("delete", status(err)).Inc()
	p.latency.WithLabelValues("delete").Observe(d.Seconds())
}
