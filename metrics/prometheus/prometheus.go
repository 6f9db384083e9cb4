// Package prometheus exports unibase operation metrics to Prometheus.
//
//	reg := stdprometheus.NewRegistry()
//	mc := prometheus.NewCollector(reg)
//	db, _ := unibase.Open(ctx, "./ws", unibase.WithMetricsCollector(mc))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prometheus

import (
	"time"

	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/unibase"
)

var _ unibase.MetricsCollector = (*Collector)(nil)

// Options configures metric names.
type Options struct {
	// Namespace prefixes every metric name.
	Namespace string

	// ConstLabels are attached to every metric, e.g. the workspace name.
	ConstLabels stdprometheus.Labels

	// Buckets are the latency histogram buckets in seconds.
	Buckets []float64
}

// DefaultOptions contains the default configuration options.
var DefaultOptions = Options{
	Namespace: "unibase",
	Buckets:   stdprometheus.DefBuckets,
}

// Collector implements unibase.MetricsCollector with Prometheus counters
// and histograms.
type Collector struct {
	opLatency *stdprometheus.HistogramVec
	ops       *stdprometheus.CounterVec
	errors    *stdprometheus.CounterVec
	docs      *stdprometheus.CounterVec
	queries   stdprometheus.Counter
	limit     stdprometheus.Histogram
}

// NewCollector creates a Collector and registers it with reg. A nil reg
// uses the default registerer.
func NewCollector(reg stdprometheus.Registerer, optFns ...func(o *Options)) *Collector {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if reg == nil {
		reg = stdprometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "operation_duration_seconds",
			Help:        "Latency of unibase operations.",
			ConstLabels: opts.ConstLabels,
			Buckets:     opts.Buckets,
		}, []string{"op"}),
		ops: stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "operations_total",
			Help:        "Number of unibase operations.",
			ConstLabels: opts.ConstLabels,
		}, []string{"op"}),
		errors: stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "operation_errors_total",
			Help:        "Number of failed unibase operations.",
			ConstLabels: opts.ConstLabels,
		}, []string{"op"}),
		docs: stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "documents_total",
			Help:        "Documents processed by mutations, by outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{"op", "outcome"}),
		queries: stdprometheus.NewCounter(stdprometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "search_queries_total",
			Help:        "Query documents evaluated by Search.",
			ConstLabels: opts.ConstLabels,
		}),
		limit: stdprometheus.NewHistogram(stdprometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "search_limit",
			Help:        "Effective number of neighbors requested per query.",
			ConstLabels: opts.ConstLabels,
			Buckets:     stdprometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	reg.MustRegister(c.opLatency, c.ops, c.errors, c.docs, c.queries, c.limit)
	return c
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.ops.WithLabelValues(op).Inc()
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.errors.WithLabelValues(op).Inc()
	}
}

// RecordIndex implements unibase.MetricsCollector.
func (c *Collector) RecordIndex(count, rejected int, d time.Duration) {
	c.observe("index", d, nil)
	c.docs.WithLabelValues("index", "applied").Add(float64(count - rejected))
	c.docs.WithLabelValues("index", "rejected").Add(float64(rejected))
}

// RecordSearch implements unibase.MetricsCollector.
func (c *Collector) RecordSearch(queries, k int, d time.Duration, err error) {
	c.observe("search", d, err)
	c.queries.Add(float64(queries))
	if err == nil && k > 0 {
		c.limit.Observe(float64(k))
	}
}

// RecordDelete implements unibase.MetricsCollector.
func (c *Collector) RecordDelete(count, notFound int, d time.Duration) {
	c.observe("delete", d, nil)
	c.docs.WithLabelValues("delete", "applied").Add(float64(count - notFound))
	c.docs.WithLabelValues("delete", "not_found").Add(float64(notFound))
}

// RecordUpdate implements unibase.MetricsCollector.
func (c *Collector) RecordUpdate(count, notFound int, d time.Duration) {
	c.observe("update", d, nil)
	c.docs.WithLabelValues("update", "applied").Add(float64(count - notFound))
	c.docs.WithLabelValues("update", "not_found").Add(float64(notFound))
}

// RecordPersist implements unibase.MetricsCollector.
func (c *Collector) RecordPersist(d time.Duration, err error) {
	c.observe("persist", d, err)
}
