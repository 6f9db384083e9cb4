// Package flat provides the exact nearest-neighbor backend: a dense
// row-aligned matrix that is scanned in full for every query.
package flat

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/internal/queue"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

func init() {
	index.RegisterLoader(index.KindFlat, Load)
}

// Options contains configuration options for the flat index.
type Options struct {
	// Metric is the distance metric. Cosine normalizes stored vectors and queries.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Metric: distance.MetricCosine,
}

// Flat is the exact backend.
//
// Vectors live in one row-major matrix indexed by row; a removed row keeps its
// slot and is dropped from the live bitmap, so scans never see it.
type Flat struct {
	mu sync.RWMutex

	dim    int
	opts   Options
	dist   distance.Func
	matrix []float32
	live   *roaring.Bitmap
}

// New creates a new flat index with the given dimension and options.
func New(dimension int, optFns ...func(o *Options)) (*Flat, error) {
	if dimension <= 0 {
		return nil, index.ErrInvalidDimension
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		dim:  dimension,
		opts: opts,
		dist: dist,
		live: roaring.New(),
	}, nil
}

// Kind implements index.Index.
func (f *Flat) Kind() index.Kind { return index.KindFlat }

// Dimension implements index.Index.
func (f *Flat) Dimension() int { return f.dim }

// Metric implements index.Index.
func (f *Flat) Metric() distance.Metric { return f.opts.Metric }

// Len returns the number of live rows.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(f.live.GetCardinality())
}

// Build replaces the index content with vectors[i] stored under rows[i].
func (f *Flat) Build(rows []uint32, vectors [][]float32) error {
	if len(rows) != len(vectors) {
		return fmt.Errorf("flat: %d rows for %d vectors", len(rows), len(vectors))
	}

	prepared := make([][]float32, len(vectors))
	for i, v := range vectors {
		p, err := index.PrepareVector(v, f.dim, f.opts.Metric)
		if err != nil {
			return fmt.Errorf("flat: row %d: %w", rows[i], err)
		}
		prepared[i] = p
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.matrix = f.matrix[:0]
	f.live.Clear()
	for i, row := range rows {
		if f.live.Contains(row) {
			return &index.ErrRowExists{Row: row}
		}
		f.set(row, prepared[i])
	}
	return nil
}

// Add stores v under row.
func (f *Flat) Add(row uint32, v []float32) error {
	p, err := index.PrepareVector(v, f.dim, f.opts.Metric)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.live.Contains(row) {
		return &index.ErrRowExists{Row: row}
	}
	f.set(row, p)
	return nil
}

// Remove drops row from the scan set.
func (f *Flat) Remove(row uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live.CheckedRemove(row)
}

// Replace overwrites the vector stored under a live row.
func (f *Flat) Replace(row uint32, v []float32) error {
	p, err := index.PrepareVector(v, f.dim, f.opts.Metric)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.live.Contains(row) {
		return &index.ErrRowNotFound{Row: row}
	}
	f.set(row, p)
	return nil
}

// Vector returns a copy of the stored (possibly normalized) vector for row.
func (f *Flat) Vector(row uint32) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.live.Contains(row) {
		return nil, false
	}
	out := make([]float32, f.dim)
	copy(out, f.row(row))
	return out, true
}

// Search scores every live row against q and returns the k closest,
// ties broken by ascending row.
func (f *Flat) Search(q []float32, k int, _ index.SearchOptions) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	query, err := index.PrepareVector(q, f.dim, f.opts.Metric)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	top := queue.NewMax(min(k, int(f.live.GetCardinality())))

	it := f.live.Iterator()
	for it.HasNext() {
		row := it.Next()
		top.PushBounded(queue.Item{
			Node:     row,
			Distance: f.dist(query, f.row(row)),
			Seq:      uint64(row),
		}, k)
	}

	items := top.Sorted()
	results := make([]index.SearchResult, len(items))
	for i, item := range items {
		results[i] = index.SearchResult{Row: item.Node, Distance: item.Distance}
	}
	return results, nil
}

func (f *Flat) row(row uint32) []float32 {
	off := int(row) * f.dim
	return f.matrix[off : off+f.dim]
}

func (f *Flat) set(row uint32, v []float32) {
	need := (int(row) + 1) * f.dim
	if need > len(f.matrix) {
		if need > cap(f.matrix) {
			grown := make([]float32, need, max(need, 2*cap(f.matrix)))
			copy(grown, f.matrix)
			f.matrix = grown
		} else {
			f.matrix = f.matrix[:need]
		}
	}
	copy(f.row(row), v)
	f.live.Add(row)
}
