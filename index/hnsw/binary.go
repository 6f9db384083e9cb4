package hnsw

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/internal/binio"
)

// ErrCorruptGraph is returned by Load when the serialized graph references
// nodes or levels that do not exist.
var ErrCorruptGraph = errors.New("hnsw: corrupt graph")

// WriteTo writes the graph as: header, dimension, metric, construction
// parameters, entry point, then every node (tombstones included) with its
// row, level, deletion flag, vector and per-level adjacency lists.
func (h *HNSW) WriteTo(w io.Writer) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := binio.NewWriter(w)
	index.WriteHeader(bw, index.KindHNSW)

	bw.Uint32(uint32(h.dim))
	bw.Uint8(uint8(h.opts.Metric))
	bw.Uint32(uint32(h.opts.M))
	bw.Uint32(uint32(h.opts.EFConstruction))
	bw.Uint32(uint32(h.opts.EFSearch))
	bw.Bool(h.opts.Heuristic)
	bw.Int64(h.opts.Seed)

	bw.Uint32(h.ep)
	bw.Uint32(uint32(h.maxLevel))
	bw.Uint32(uint32(len(h.nodes)))

	for _, n := range h.nodes {
		bw.Uint32(n.row)
		bw.Uint8(uint8(n.level))
		bw.Bool(n.deleted)
		bw.Float32s(n.vector)
		for l := 0; l <= n.level; l++ {
			bw.Uint32s(n.friends[l])
		}
	}

	return bw.N(), bw.Err()
}

// Load reads a graph body written by WriteTo. The header has already been
// consumed by index.Load.
//
// The level generator is reseeded from the stored seed and the node count,
// so inserts after a restore stay reproducible.
func Load(r io.Reader) (index.Index, error) {
	br := binio.NewReader(r)

	dim := int(br.Uint32())
	metric := distance.Metric(br.Uint8())
	m := int(br.Uint32())
	efc := int(br.Uint32())
	efs := int(br.Uint32())
	heuristic := br.Bool()
	seed := br.Int64()

	ep := br.Uint32()
	maxLevel := int(br.Uint32())
	count := br.Len(math.MaxUint32)
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("hnsw: read header: %w", err)
	}
	if maxLevel > maxLevelCap {
		return nil, fmt.Errorf("%w: max level %d", ErrCorruptGraph, maxLevel)
	}

	h, err := New(dim, func(o *Options) {
		o.Metric = metric
		o.M = m
		o.EFConstruction = efc
		o.EFSearch = efs
		o.Heuristic = heuristic
		o.Seed = seed
	})
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}

	h.nodes = make([]*node, 0, min(count, 1<<20))
	for id := range count {
		n := &node{
			row:     br.Uint32(),
			level:   int(br.Uint8()),
			deleted: br.Bool(),
		}
		if n.level > maxLevel {
			return nil, fmt.Errorf("%w: node %d level %d above max %d", ErrCorruptGraph, id, n.level, maxLevel)
		}
		n.vector = br.Float32s(dim)
		n.friends = make([][]uint32, n.level+1)
		for l := range n.friends {
			n.friends[l] = br.Uint32s()
		}
		if err := br.Err(); err != nil {
			return nil, fmt.Errorf("hnsw: read node %d: %w", id, err)
		}

		if !n.deleted {
			if _, dup := h.rows[n.row]; dup {
				return nil, fmt.Errorf("%w: row %d bound twice", ErrCorruptGraph, n.row)
			}
			h.rows[n.row] = uint32(id)
			h.live++
		}
		h.nodes = append(h.nodes, n)
	}

	for id, n := range h.nodes {
		for l, friends := range n.friends {
			for _, f := range friends {
				if int(f) >= count || h.nodes[f].level < l {
					return nil, fmt.Errorf("%w: node %d links to %d on level %d", ErrCorruptGraph, id, f, l)
				}
			}
		}
	}

	if count > 0 {
		if int(ep) >= count || h.nodes[ep].level != maxLevel {
			return nil, fmt.Errorf("%w: entry point %d", ErrCorruptGraph, ep)
		}
		h.ep = ep
		h.maxLevel = maxLevel
	}

	h.rng = rand.New(rand.NewSource(seed + int64(count))) // nolint gosec

	return h, nil
}
