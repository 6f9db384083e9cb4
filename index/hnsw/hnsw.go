// Package hnsw provides the approximate nearest-neighbor backend, a
// Hierarchical Navigable Small World graph.
//
// Nodes live in an arena addressed by stable uint32 ids. Removing a row only
// marks its node deleted: the node stays in every neighbor list so the graph
// keeps its reachability, and searches step over it when emitting results.
// Replacing a row's vector deletes the old node and inserts a fresh one,
// since a node's position in the graph depends on its vector. Compact
// rebuilds the graph from live nodes once tombstones pile up.
package hnsw

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/internal/queue"
)

// Compile-time checks to ensure HNSW satisfies the index interfaces.
var (
	_ index.Index     = (*HNSW)(nil)
	_ index.Compactor = (*HNSW)(nil)
)

func init() {
	index.RegisterLoader(index.KindHNSW, Load)
}

// maxLevelCap bounds the drawn node level.
const maxLevelCap = 16

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Reasonable range for M is 2-100. Higher M works better on datasets with high intrinsic dimensionality and/or high recall,
	// while low M works better for datasets with low intrinsic dimensionality and/or low recalls.
	// Layer 0 allows up to 2*M connections per node.
	M int

	// EFConstruction is the size of the dynamic candidate list used while inserting.
	EFConstruction int

	// EFSearch is the default query beam width. Zero means 10*k.
	// A per-query value in index.SearchOptions takes precedence.
	EFSearch int

	// Heuristic indicates whether to use the diversity heuristic (true) or plain
	// closest-M selection (false) when choosing neighbors.
	Heuristic bool

	// Metric is the distance metric. Cosine normalizes stored vectors and queries.
	Metric distance.Metric

	// Seed seeds the level generator so that construction is reproducible.
	Seed int64
}

// DefaultOptions contains the default configuration options for HNSW.
var DefaultOptions = Options{
	M:              16,
	EFConstruction: 200,
	EFSearch:       0,
	Heuristic:      true,
	Metric:         distance.MetricCosine,
	Seed:           1,
}

type node struct {
	row     uint32
	level   int
	vector  []float32
	friends [][]uint32 // friends[l] holds the neighbor ids on layer l
	deleted bool
}

// HNSW represents the Hierarchical Navigable Small World graph
type HNSW struct {
	mu sync.RWMutex

	dim   int
	opts  Options
	mmax  int     // Max number of connections per element/per layer
	mmax0 int     // Max for the 0 layer
	ml    float64 // Normalization factor for level generation
	dist  distance.Func
	rng   *rand.Rand

	nodes    []*node
	rows     map[uint32]uint32 // live row -> node id
	ep       uint32            // entry point node id
	maxLevel int               // level of the entry point
	live     int
}

// New creates a new HNSW instance with the given dimension and options
func New(dimension int, optFns ...func(o *Options)) (*HNSW, error) {
	if dimension <= 0 {
		return nil, index.ErrInvalidDimension
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero: 1 / log(1)
		opts.M = 2
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}

	dist, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &HNSW{
		dim:   dimension,
		opts:  opts,
		mmax:  opts.M,
		mmax0: 2 * opts.M,
		ml:    1 / math.Log(float64(opts.M)),
		dist:  dist,
		rng:   rand.New(rand.NewSource(opts.Seed)), // nolint gosec
		rows:  make(map[uint32]uint32),
	}, nil
}

// Kind implements index.Index.
func (h *HNSW) Kind() index.Kind { return index.KindHNSW }

// Dimension implements index.Index.
func (h *HNSW) Dimension() int { return h.dim }

// Metric implements index.Index.
func (h *HNSW) Metric() distance.Metric { return h.opts.Metric }

// Options returns the construction options.
func (h *HNSW) Options() Options { return h.opts }

// Len returns the number of live nodes.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Add inserts v as a new node bound to row.
func (h *HNSW) Add(row uint32, v []float32) error {
	p, err := index.PrepareVector(v, h.dim, h.opts.Metric)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rows[row]; ok {
		return &index.ErrRowExists{Row: row}
	}
	h.insert(row, p, h.randomLevel())
	return nil
}

// Remove tombstones the node bound to row.
func (h *HNSW) Remove(row uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tombstone(row)
}

// Replace tombstones the node bound to row and inserts v as a fresh node
// bound to the same row.
func (h *HNSW) Replace(row uint32, v []float32) error {
	p, err := index.PrepareVector(v, h.dim, h.opts.Metric)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.tombstone(row) {
		return &index.ErrRowNotFound{Row: row}
	}
	h.insert(row, p, h.randomLevel())
	return nil
}

// Vector returns a copy of the stored (possibly normalized) vector for row.
func (h *HNSW) Vector(row uint32) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	id, ok := h.rows[row]
	if !ok {
		return nil, false
	}
	out := make([]float32, h.dim)
	copy(out, h.nodes[id].vector)
	return out, true
}

func (h *HNSW) randomLevel() int {
	// 1-Float64() lies in (0, 1], keeping the logarithm finite.
	level := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
	return min(level, maxLevelCap)
}

func (h *HNSW) tombstone(row uint32) bool {
	id, ok := h.rows[row]
	if !ok {
		return false
	}
	h.nodes[id].deleted = true
	delete(h.rows, row)
	h.live--
	return true
}

// insert links a new node at every layer up to level. Caller holds the write lock.
func (h *HNSW) insert(row uint32, vec []float32, level int) {
	id := uint32(len(h.nodes))
	n := &node{
		row:     row,
		level:   level,
		vector:  vec,
		friends: make([][]uint32, level+1),
	}
	h.nodes = append(h.nodes, n)
	h.rows[row] = id
	h.live++

	if id == 0 {
		h.ep = id
		h.maxLevel = level
		return
	}

	// Find single shortest path from top layers above our current node, which will be our new starting-point
	curr := queue.Item{Node: h.ep, Distance: h.dist(vec, h.nodes[h.ep].vector)}
	for l := h.maxLevel; l > level; l-- {
		curr = h.greedy(vec, curr, l)
	}

	// For all levels equal and below our current node, find the top (closest) candidates and create a link
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, curr, h.opts.EFConstruction, l)

		neighbours := h.selectNeighbours(candidates, h.mmax)
		n.friends[l] = make([]uint32, len(neighbours))
		for i, nb := range neighbours {
			n.friends[l][i] = nb.Node
		}
		for _, nb := range neighbours {
			h.link(nb.Node, id, l)
		}

		if len(candidates) > 0 {
			curr = candidates[0]
		}
	}

	if level > h.maxLevel {
		h.ep = id
		h.maxLevel = level
	}
}

// greedy walks layer level with beam width 1, moving to the closest
// neighbor until no neighbor improves on the current node.
func (h *HNSW) greedy(q []float32, curr queue.Item, level int) queue.Item {
	for changed := true; changed; {
		changed = false

		n := h.nodes[curr.Node]
		if level >= len(n.friends) {
			return curr
		}
		for _, nb := range n.friends[level] {
			d := h.dist(q, h.nodes[nb].vector)
			if d < curr.Distance {
				curr = queue.Item{Node: nb, Distance: d}
				changed = true
			}
		}
	}
	return curr
}

// searchLayer performs a beam search of width ef on one layer and returns
// the best candidates found, closest first. Deleted nodes are included; they
// remain valid hops.
func (h *HNSW) searchLayer(q []float32, ep queue.Item, ef, level int) []queue.Item {
	visited := acquireVisited(len(h.nodes))
	defer releaseVisited(visited)
	visited.Set(uint(ep.Node))

	ep.Seq = 0
	var seq uint64

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	top := queue.NewMax(ef)
	top.Push(ep)

	for candidates.Len() > 0 {
		candidate, _ := candidates.Pop()
		if worst, _ := top.Top(); top.Len() >= ef && candidate.Distance > worst.Distance {
			break
		}

		n := h.nodes[candidate.Node]
		if level >= len(n.friends) {
			continue
		}

		for _, nb := range n.friends[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))
			seq++

			item := queue.Item{Node: nb, Distance: h.dist(q, h.nodes[nb].vector), Seq: seq}
			if top.PushBounded(item, ef) {
				candidates.Push(item)
			}
		}
	}

	return top.Sorted()
}

// selectNeighbours picks up to m neighbors from candidates sorted closest first.
//
// With the heuristic, a candidate is kept only if it is closer to the new
// node than to every neighbor kept so far; rejected candidates fill any
// remaining slots in order.
func (h *HNSW) selectNeighbours(candidates []queue.Item, m int) []queue.Item {
	if len(candidates) <= m {
		return candidates
	}
	if !h.opts.Heuristic {
		return candidates[:m]
	}

	selected := make([]queue.Item, 0, m)
	var rejected []queue.Item

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		good := true
		cv := h.nodes[c.Node].vector
		for _, s := range selected {
			if h.dist(h.nodes[s.Node].vector, cv) < c.Distance {
				good = false
				break
			}
		}

		if good {
			selected = append(selected, c)
		} else {
			rejected = append(rejected, c)
		}
	}

	for _, r := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, r)
	}

	return selected
}

// link adds a directed edge first -> second on level and prunes first's
// list back to its cap.
func (h *HNSW) link(first, second uint32, level int) {
	maxConnections := h.mmax
	// HNSW allows double the connections for the bottom level (0)
	if level == 0 {
		maxConnections = h.mmax0
	}

	n := h.nodes[first]
	n.friends[level] = append(n.friends[level], second)
	if len(n.friends[level]) <= maxConnections {
		return
	}

	candidates := make([]queue.Item, len(n.friends[level]))
	for i, id := range n.friends[level] {
		candidates[i] = queue.Item{
			Node:     id,
			Distance: h.dist(n.vector, h.nodes[id].vector),
			Seq:      uint64(i),
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return queue.Before(candidates[i], candidates[j]) })

	kept := h.selectNeighbours(candidates, maxConnections)
	friends := make([]uint32, len(kept))
	for i, k := range kept {
		friends[i] = k.Node
	}
	n.friends[level] = friends
}
