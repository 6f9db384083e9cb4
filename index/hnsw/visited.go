package hnsw

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// visitedPool recycles the visited sets of beam searches. A set grows to the
// largest graph it has walked and is cleared before reuse.
var visitedPool = sync.Pool{
	New: func() any { return bitset.New(0) },
}

// acquireVisited returns an empty visited set able to hold n nodes without
// reallocating.
func acquireVisited(n int) *bitset.BitSet {
	v := visitedPool.Get().(*bitset.BitSet)
	v.ClearAll()
	if n > 0 && v.Len() < uint(n) {
		// Setting the last bit grows the backing words once.
		v.Set(uint(n - 1)).Clear(uint(n - 1))
	}
	return v
}

func releaseVisited(v *bitset.BitSet) {
	visitedPool.Put(v)
}
