package hnsw

import (
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/internal/queue"
)

// Search returns up to k live rows closest to q, closest first.
//
// The beam width is opts.EF when set, else Options.EFSearch, else 10*k, and
// never less than k. When tombstones crowd live nodes out of the beam so
// that fewer than min(k, Len()) rows come back, the result is completed
// with an exact scan over the live nodes.
func (h *HNSW) Search(q []float32, k int, opts index.SearchOptions) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	query, err := index.PrepareVector(q, h.dim, h.opts.Metric)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.live == 0 {
		return []index.SearchResult{}, nil
	}

	ef := opts.EF
	if ef <= 0 {
		ef = h.opts.EFSearch
	}
	if ef <= 0 {
		ef = 10 * k
	}
	ef = max(ef, k)

	curr := queue.Item{Node: h.ep, Distance: h.dist(query, h.nodes[h.ep].vector)}
	for l := h.maxLevel; l > 0; l-- {
		curr = h.greedy(query, curr, l)
	}

	found := h.searchLayer(query, curr, ef, 0)

	items := make([]queue.Item, 0, k)
	for _, it := range found {
		if h.nodes[it.Node].deleted {
			continue
		}
		items = append(items, it)
		if len(items) == k {
			break
		}
	}

	if len(items) < min(k, h.live) {
		items = h.exact(query, k)
	}

	results := make([]index.SearchResult, len(items))
	for i, it := range items {
		results[i] = index.SearchResult{Row: h.nodes[it.Node].row, Distance: it.Distance}
	}
	return results, nil
}

// exact scans every live node and returns the k closest, ties broken by
// insertion order.
func (h *HNSW) exact(q []float32, k int) []queue.Item {
	top := queue.NewMax(k)
	for id, n := range h.nodes {
		if n.deleted {
			continue
		}
		top.PushBounded(queue.Item{
			Node:     uint32(id),
			Distance: h.dist(q, n.vector),
			Seq:      uint64(id),
		}, k)
	}
	return top.Sorted()
}
