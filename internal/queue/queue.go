// Package queue provides the binary heaps used by the flat scan and the
// graph beam search.
package queue

import "container/heap"

// Item is a candidate in a search: a node (or row) and its distance to the
// query. Seq records the order in which the candidate was discovered and
// breaks distance ties, so two runs over the same data order equal distances
// identically.
type Item struct {
	Node     uint32
	Distance float32
	Seq      uint64
}

// Before reports whether a ranks ahead of b in a best-first ordering.
func Before(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Seq < b.Seq
}

// PriorityQueue is a binary heap of Items on top of container/heap.
//
// A min-heap pops the best candidate first; a max-heap pops the worst first
// and is used for bounded result sets.
type PriorityQueue struct {
	h items
}

var _ heap.Interface = (*items)(nil)

// items implements heap.Interface.
type items struct {
	isMaxHeap bool
	list      []Item
}

func (h *items) Len() int { return len(h.list) }

func (h *items) Less(i, j int) bool {
	if h.isMaxHeap {
		return Before(h.list[j], h.list[i])
	}
	return Before(h.list[i], h.list[j])
}

func (h *items) Swap(i, j int) { h.list[i], h.list[j] = h.list[j], h.list[i] }

func (h *items) Push(x any) { h.list = append(h.list, x.(Item)) }

func (h *items) Pop() any {
	n := len(h.list)
	item := h.list[n-1]
	h.list = h.list[:n-1]
	return item
}

// NewMin creates a min-heap with room for capacity items.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{h: items{list: make([]Item, 0, capacity)}}
}

// NewMax creates a max-heap with room for capacity items.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{h: items{isMaxHeap: true, list: make([]Item, 0, capacity)}}
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int { return pq.h.Len() }

// Reset empties the queue, keeping its storage.
func (pq *PriorityQueue) Reset() { pq.h.list = pq.h.list[:0] }

// Top returns the top element of the heap.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.h.list) == 0 {
		return Item{}, false
	}
	return pq.h.list[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Item) {
	heap.Push(&pq.h, item)
}

// Pop removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) Pop() (Item, bool) {
	if len(pq.h.list) == 0 {
		return Item{}, false
	}
	return heap.Pop(&pq.h).(Item), true
}

// PushBounded keeps at most k items in a max-heap: item is added while the
// heap is short and otherwise replaces the current worst if it ranks ahead.
// It reports whether item was kept.
func (pq *PriorityQueue) PushBounded(item Item, k int) bool {
	if len(pq.h.list) < k {
		pq.Push(item)
		return true
	}
	if k == 0 || !Before(item, pq.h.list[0]) {
		return false
	}
	pq.h.list[0] = item
	heap.Fix(&pq.h, 0)
	return true
}

// Sorted drains the queue and returns its items best-first.
func (pq *PriorityQueue) Sorted() []Item {
	out := make([]Item, len(pq.h.list))
	if pq.h.isMaxHeap {
		for i := len(out) - 1; i >= 0; i-- {
			out[i], _ = pq.Pop()
		}
		return out
	}
	for i := range out {
		out[i], _ = pq.Pop()
	}
	return out
}
