// Package index defines the capability shared by the nearest-neighbor
// backends and the on-disk framing used to persist them.
//
// Both backends address vectors by row, the dense document-store slot of the
// document that owns the vector, so a search result can be resolved back to
// a document id without any backend-specific lookup.
package index

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/unibase/distance"
)

// Kind identifies a backend implementation.
type Kind uint8

const (
	// KindFlat is the exact brute-force backend.
	KindFlat Kind = 1
	// KindHNSW is the approximate hierarchical graph backend.
	KindHNSW Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindHNSW:
		return "hnsw"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ParseKind parses the stable backend name used in configs and manifests.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flat", "exact":
		return KindFlat, nil
	case "hnsw", "graph":
		return KindHNSW, nil
	default:
		return 0, fmt.Errorf("index: unknown backend %q", s)
	}
}

// SearchResult represents a search result.
type SearchResult struct {
	// Row is the document-store row of the matching vector.
	Row uint32

	// Distance is the distance between the query vector and the result vector.
	Distance float32
}

// SearchOptions tunes a single query.
type SearchOptions struct {
	// EF is the beam width of a graph search. Zero selects the backend
	// default. Values below k are raised to k. Ignored by the flat backend.
	EF int
}

// Index is the capability both backends implement.
//
// Implementations are safe for concurrent use: searches may run in parallel
// with each other, mutations are serialized internally.
type Index interface {
	// Kind returns the backend kind.
	Kind() Kind

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Metric returns the distance metric.
	Metric() distance.Metric

	// Len returns the number of live vectors.
	Len() int

	// Add stores v under a row that is not live yet.
	Add(row uint32, v []float32) error

	// Remove drops the vector stored under row. It reports whether row was live.
	Remove(row uint32) bool

	// Replace swaps the vector stored under a live row.
	Replace(row uint32, v []float32) error

	// Search returns up to k live rows ordered by ascending distance.
	Search(q []float32, k int, opts SearchOptions) ([]SearchResult, error)

	// WriteTo serializes the index, header included.
	io.WriterTo
}

// Compactor is implemented by backends that accumulate removed entries and
// can reclaim them.
type Compactor interface {
	Compact(ctx context.Context) error
}

// PrepareVector validates v against dim and metric and returns the copy the
// backend should store: normalized for cosine, verbatim otherwise.
func PrepareVector(v []float32, dim int, metric distance.Metric) ([]float32, error) {
	if len(v) != dim {
		return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	if !distance.IsFinite(v) {
		return nil, ErrNonFinite
	}
	if metric.NormalizesVectors() {
		out, ok := distance.NormalizeL2Copy(v)
		if !ok {
			return nil, ErrZeroVector
		}
		return out, nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}
