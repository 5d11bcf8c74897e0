package kvsearch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems;
// NewPrometheusCollector provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordUpsert is called after each single-row upsert.
	RecordUpsert(duration time.Duration, err error)

	// RecordBulk is called after each bulk indexing call. count is the
	// number of rows indexed, failed is 1 if the call stopped on an error.
	RecordBulk(count, failed int, duration time.Duration)

	// RecordSearch is called after each search. hits is the page size.
	RecordSearch(hits int, partial bool, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(time.Duration, error)            {}
func (NoopMetricsCollector) RecordBulk(int, int, time.Duration)           {}
func (NoopMetricsCollector) RecordSearch(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertCount      atomic.Int64
	UpsertErrors     atomic.Int64
	UpsertTotalNanos atomic.Int64
	BulkCount        atomic.Int64
	BulkRows         atomic.Int64
	BulkFailed       atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchPartial    atomic.Int64
	SearchHits       atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordBulk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulk(count, failed int, _ time.Duration) {
	b.BulkCount.Add(1)
	b.BulkRows.Add(int64(count))
	b.BulkFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(hits int, partial bool, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
		return
	}
	b.SearchHits.Add(int64(hits))
	if partial {
		b.SearchPartial.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:    b.UpsertCount.Load(),
		UpsertErrors:   b.UpsertErrors.Load(),
		UpsertAvgNanos: avg(b.UpsertTotalNanos.Load(), b.UpsertCount.Load()),
		BulkCount:      b.BulkCount.Load(),
		BulkRows:       b.BulkRows.Load(),
		BulkFailed:     b.BulkFailed.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchPartial:  b.SearchPartial.Load(),
		SearchHits:     b.SearchHits.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount    int64
	UpsertErrors   int64
	UpsertAvgNanos int64
	BulkCount      int64
	BulkRows       int64
	BulkFailed     int64
	SearchCount    int64
	SearchErrors   int64
	SearchPartial  int64
	SearchHits     int64
	SearchAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
}
