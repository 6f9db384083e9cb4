package unibase

import (
	"context"
	"slices"

	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index/hnsw"
	"github.com/hupe1980/unibase/persistence"
)

// Builder is an immutable fluent alternative to Open with options.
// Each method returns a new builder with the updated configuration.
//
// Example:
//
//	db, err := unibase.HNSW("./ws").
//	    SquaredL2().
//	    M(32).
//	    EFConstruction(400).
//	    Open(ctx)
type Builder struct {
	workspace string
	opts      []Option
}

// Flat starts a builder for a workspace served by the exact backend.
func Flat(workspace string) Builder {
	return Builder{workspace: workspace, opts: []Option{WithBackend(BackendFlat)}}
}

// HNSW starts a builder for a workspace served by the graph backend.
func HNSW(workspace string) Builder {
	return Builder{workspace: workspace, opts: []Option{WithBackend(BackendHNSW)}}
}

func (b Builder) with(o Option) Builder {
	b.opts = append(slices.Clone(b.opts), o)
	return b
}

func (b Builder) hnsw(fn func(o *hnsw.Options)) Builder {
	return b.with(WithHNSW(fn))
}

// Cosine sets the distance metric to cosine (normalized vectors).
func (b Builder) Cosine() Builder { return b.with(WithMetric(distance.MetricCosine)) }

// SquaredL2 sets the distance metric to squared Euclidean distance.
func (b Builder) SquaredL2() Builder { return b.with(WithMetric(distance.MetricL2)) }

// DotProduct sets the distance metric to the negative inner product.
func (b Builder) DotProduct() Builder { return b.with(WithMetric(distance.MetricDot)) }

// Dimension declares an embedding field.
func (b Builder) Dimension(field string, dim int) Builder {
	return b.with(WithDimension(field, dim))
}

// M sets the maximum number of connections per layer of the graph.
// Default: 16.
func (b Builder) M(m int) Builder {
	return b.hnsw(func(o *hnsw.Options) { o.M = m })
}

// EFConstruction sets the candidate list size used while inserting.
// Default: 200.
//
// Note: This is different from search-time EF, which is set per query.
func (b Builder) EFConstruction(ef int) Builder {
	return b.hnsw(func(o *hnsw.Options) { o.EFConstruction = ef })
}

// EFSearch sets the default query beam width. Default: 10*limit.
func (b Builder) EFSearch(ef int) Builder {
	return b.hnsw(func(o *hnsw.Options) { o.EFSearch = ef })
}

// Heuristic enables or disables diversity-based neighbor selection.
// Default: true.
func (b Builder) Heuristic(enabled bool) Builder {
	return b.hnsw(func(o *hnsw.Options) { o.Heuristic = enabled })
}

// RandomSeed sets the seed of the graph level generator.
func (b Builder) RandomSeed(seed int64) Builder {
	return b.hnsw(func(o *hnsw.Options) { o.Seed = seed })
}

// Codec sets the scalar field codec.
func (b Builder) Codec(c codec.Codec) Builder { return b.with(WithCodec(c)) }

// Compression sets snapshot compression.
func (b Builder) Compression(c persistence.Compression) Builder {
	return b.with(WithCompression(c))
}

// BlobStore stores the workspace in store.
func (b Builder) BlobStore(store blobstore.BlobStore) Builder {
	return b.with(WithBlobStore(store))
}

// Logger sets the structured logger.
func (b Builder) Logger(l *Logger) Builder { return b.with(WithLogger(l)) }

// Metrics sets the metrics collector.
func (b Builder) Metrics(mc MetricsCollector) Builder {
	return b.with(WithMetricsCollector(mc))
}

// Options appends arbitrary options.
func (b Builder) Options(opts ...Option) Builder {
	for _, o := range opts {
		b = b.with(o)
	}
	return b
}

// Open opens the workspace with the accumulated configuration.
func (b Builder) Open(ctx context.Context) (*Unibase, error) {
	return Open(ctx, b.workspace, b.opts...)
}
