package unibase

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordIndex is called after each Index call.
	// count is the batch size, rejected the number of documents not applied.
	RecordIndex(count, rejected int, duration time.Duration)

	// RecordSearch is called after each Search call.
	// queries is the number of query documents, k the effective limit.
	RecordSearch(queries, k int, duration time.Duration, err error)

	// RecordDelete is called after each Delete call.
	RecordDelete(count, notFound int, duration time.Duration)

	// RecordUpdate is called after each Update call.
	RecordUpdate(count, notFound int, duration time.Duration)

	// RecordPersist is called after each Persist call.
	RecordPersist(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIndex(int, int, time.Duration)         {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(int, int, time.Duration)        {}
func (NoopMetricsCollector) RecordUpdate(int, int, time.Duration)        {}
func (NoopMetricsCollector) RecordPersist(time.Duration, error)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IndexCount       atomic.Int64
	IndexDocs        atomic.Int64
	IndexRejected    atomic.Int64
	SearchCount      atomic.Int64
	SearchQueries    atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteNotFound   atomic.Int64
	UpdateCount      atomic.Int64
	UpdateNotFound   atomic.Int64
	PersistCount     atomic.Int64
	PersistErrors    atomic.Int64
}

// RecordIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIndex(count, rejected int, _ time.Duration) {
	b.IndexCount.Add(1)
	b.IndexDocs.Add(int64(count))
	b.IndexRejected.Add(int64(rejected))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(queries, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchQueries.Add(int64(queries))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(count, notFound int, _ time.Duration) {
	b.DeleteCount.Add(int64(count - notFound))
	b.DeleteNotFound.Add(int64(notFound))
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(count, notFound int, _ time.Duration) {
	b.UpdateCount.Add(int64(count - notFound))
	b.UpdateNotFound.Add(int64(notFound))
}

// RecordPersist implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPersist(_ time.Duration, err error) {
	b.PersistCount.Add(1)
	if err != nil {
		b.PersistErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IndexCount:     b.IndexCount.Load(),
		IndexDocs:      b.IndexDocs.Load(),
		IndexRejected:  b.IndexRejected.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchQueries:  b.SearchQueries.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteNotFound: b.DeleteNotFound.Load(),
		UpdateCount:    b.UpdateCount.Load(),
		UpdateNotFound: b.UpdateNotFound.Load(),
		PersistCount:   b.PersistCount.Load(),
		PersistErrors:  b.PersistErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IndexCount     int64
	IndexDocs      int64
	IndexRejected  int64
	SearchCount    int64
	SearchQueries  int64
	SearchErrors   int64
	SearchAvgNanos int64
	DeleteCount    int64
	DeleteNotFound int64
	UpdateCount    int64
	UpdateNotFound int64
	PersistCount   int64
	PersistErrors  int64
}
