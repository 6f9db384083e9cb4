package hnsw

import (
	"context"
	"fmt"
	"strings"
)

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

// Stats is a snapshot of the graph shape.
type Stats struct {
	Nodes          int
	Live           int
	Deleted        int
	MaxLevel       int
	EntryPoint     uint32
	M              int
	MMax0          int
	EFConstruction int
	EFSearch       int
	Levels         []LevelStats
}

// String renders the stats as an indented report.
func (s Stats) String() string {
	var b strings.Builder

	fmt.Fprintln(&b, "Parameters:")
	fmt.Fprintf(&b, "\tM = %d\n", s.M)
	fmt.Fprintf(&b, "\tmmax0 = %d\n", s.MMax0)
	fmt.Fprintf(&b, "\tefConstruction = %d\n", s.EFConstruction)
	fmt.Fprintf(&b, "\tefSearch = %d\n", s.EFSearch)
	fmt.Fprintf(&b, "\tep = %d\n", s.EntryPoint)
	fmt.Fprintf(&b, "\tmaxLevel = %d\n\n", s.MaxLevel)

	fmt.Fprintf(&b, "Nodes = %d (live %d, deleted %d)\n\n", s.Nodes, s.Live, s.Deleted)

	fmt.Fprintln(&b, "Node Levels:")
	for _, l := range s.Levels {
		fmt.Fprintf(&b, "\tLevel %d:\n", l.Level)
		fmt.Fprintf(&b, "\t\tNumber of nodes: %d\n", l.Nodes)
		fmt.Fprintf(&b, "\t\tNumber of connections: %d\n", l.Connections)
		fmt.Fprintf(&b, "\t\tAverage connections per node: %.2f\n", l.AvgConnections)
	}

	return b.String()
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Nodes:          len(h.nodes),
		Live:           h.live,
		Deleted:        len(h.nodes) - h.live,
		MaxLevel:       h.maxLevel,
		EntryPoint:     h.ep,
		M:              h.mmax,
		MMax0:          h.mmax0,
		EFConstruction: h.opts.EFConstruction,
		EFSearch:       h.opts.EFSearch,
	}
	if len(h.nodes) == 0 {
		return s
	}

	s.Levels = make([]LevelStats, h.maxLevel+1)
	for l := range s.Levels {
		s.Levels[l].Level = l
	}
	for _, n := range h.nodes {
		for l := 0; l <= n.level; l++ {
			s.Levels[l].Nodes++
			s.Levels[l].Connections += len(n.friends[l])
		}
	}
	for l := range s.Levels {
		if s.Levels[l].Nodes > 0 {
			s.Levels[l].AvgConnections = float64(s.Levels[l].Connections) / float64(s.Levels[l].Nodes)
		}
	}

	return s
}

// Compact rebuilds the graph from its live nodes, dropping tombstones.
// Nodes keep their rows, vectors and levels.
func (h *HNSW) Compact(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.live == len(h.nodes) {
		return nil
	}

	old := h.nodes
	h.nodes = make([]*node, 0, h.live)
	h.rows = make(map[uint32]uint32, h.live)
	h.ep, h.maxLevel, h.live = 0, 0, 0

	inserted := 0
	for _, n := range old {
		if n.deleted {
			continue
		}
		if inserted%1024 == 0 {
			if err := ctx.Err(); err != nil {
				// Restore the previous graph.
				h.restore(old)
				return err
			}
		}
		h.insert(n.row, n.vector, n.level)
		inserted++
	}

	return nil
}

func (h *HNSW) restore(nodes []*node) {
	h.nodes = nodes
	h.rows = make(map[uint32]uint32, len(nodes))
	h.live = 0
	h.maxLevel = 0
	for id, n := range nodes {
		if !n.deleted {
			h.rows[n.row] = uint32(id)
			h.live++
		}
		if id == 0 || n.level > h.maxLevel {
			h.ep = uint32(id)
			h.maxLevel = n.level
		}
	}
}
