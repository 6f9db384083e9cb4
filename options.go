package unibase

import (
	"log/slog"

	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/index/hnsw"
	"github.com/hupe1980/unibase/lock"
	"github.com/hupe1980/unibase/persistence"
	"github.com/hupe1980/unibase/resource"
)

// Backend selects the nearest-neighbor implementation.
type Backend = index.Kind

const (
	// BackendFlat is the exact brute-force backend.
	BackendFlat = index.KindFlat
	// BackendHNSW is the approximate graph backend.
	BackendHNSW = index.KindHNSW
)

type options struct {
	backend          Backend
	metric           distance.Metric
	dims             map[string]int
	hnswOptions      []func(o *hnsw.Options)
	codec            codec.Codec
	compression      persistence.Compression
	retain           int
	store            blobstore.BlobStore
	locker           lock.Locker
	noLock           bool
	metricsCollector MetricsCollector
	logger           *Logger
	resources        resource.Config
}

// Option configures Open.
type Option func(*options)

// WithBackend selects the backend used for a fresh workspace. A workspace
// that already holds a snapshot keeps the backend it was saved with.
// Default: BackendFlat.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMetric selects the distance metric for a fresh workspace.
// Default: cosine.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithDimension declares an embedding field and its dimension up front.
// Without it, the first indexed document fixes the schema.
func WithDimension(field string, dim int) Option {
	return func(o *options) {
		if o.dims == nil {
			o.dims = make(map[string]int)
		}
		o.dims[field] = dim
	}
}

// WithHNSW tunes the graph backend. The metric always follows WithMetric.
//
// Example:
//
//	db, err := unibase.Open(ctx, "./ws",
//	    unibase.WithBackend(unibase.BackendHNSW),
//	    unibase.WithHNSW(func(o *hnsw.Options) {
//	        o.M = 32
//	        o.EFConstruction = 400
//	    }))
func WithHNSW(optFns ...func(o *hnsw.Options)) Option {
	return func(o *options) {
		o.hnswOptions = append(o.hnswOptions, optFns...)
	}
}

// WithCodec configures the codec used for scalar fields in snapshots.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures snapshot compression. Default: none.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSnapshotRetention keeps the n most recent snapshots instead of only
// the current one.
func WithSnapshotRetention(n int) Option {
	return func(o *options) {
		o.retain = n
	}
}

// WithBlobStore stores the workspace in store instead of the local
// directory named by the workspace argument of Open.
//
// Example with S3:
//
//	store, _ := s3.New(ctx, "my-bucket", func(o *s3.Options) { o.Prefix = "products" })
//	db, _ := unibase.Open(ctx, "products", unibase.WithBlobStore(store))
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLocker replaces the workspace lock. Local workspaces default to a
// file lock; other stores default to no lock.
func WithLocker(l lock.Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithoutLock disables workspace locking.
func WithoutLock() Option {
	return func(o *options) {
		o.noLock = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &unibase.BasicMetricsCollector{}
//	db, _ := unibase.Open(ctx, "./ws", unibase.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := unibase.NewJSONLogger(slog.LevelInfo)
//	db, _ := unibase.Open(ctx, "./ws", unibase.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceConfig bounds memory, concurrent searches and snapshot IO.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resources = cfg
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		backend:          BackendFlat,
		metric:           distance.MetricCosine,
		codec:            codec.Default,
		compression:      persistence.CompressionNone,
		retain:           1,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
