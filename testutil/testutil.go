package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

// UnitVectors generates L2-normalized Gaussian vectors, uniform on the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vectors := make([][]float32, num)
	for i := range num {
		vec := make([]float32, dimensions)
		var norm float64
		for j := range vec {
			v := r.rand.NormFloat64()
			vec[j] = float32(v)
			norm += v * v
		}
		if norm == 0 {
			norm = 1
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range vec {
			vec[j] *= inv
		}
		vectors[i] = vec
	}
	return vectors
}

// Word returns a random lowercase ASCII word of length n.
func (r *RNG) Word(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.rand.Intn(26))
	}
	return string(b)
}

// Documents generates num documents with ids "doc-<i>", a random five-letter
// "text" field and a uniform random vector of the given dimension stored
// under model.DefaultEmbeddingField.
func (r *RNG) Documents(num, dimensions int) []model.Document {
	vectors := r.UniformVectors(num, dimensions)
	docs := make([]model.Document, num)
	for i := range docs {
		docs[i] = model.NewDocument(fmt.Sprintf("doc-%d", i)).
			WithText(r.Word(5)).
			WithEmbedding(model.DefaultEmbeddingField, vectors[i]).
			Build()
	}
	return docs
}

// ExactTopK returns the indices of the k vectors closest to q under fn,
// ties broken by ascending index.
func ExactTopK(vectors [][]float32, q []float32, k int, fn distance.Func) []uint32 {
	type scored struct {
		idx  uint32
		dist float32
	}

	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{idx: uint32(i), dist: fn(q, v)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	k = min(k, len(all))
	out := make([]uint32, k)
	for i := range k {
		out[i] = all[i].idx
	}
	return out
}

// Recall returns the fraction of want that appears in got.
func Recall(got, want []uint32) float64 {
	if len(want) == 0 {
		return 1
	}
	seen := make(map[uint32]struct{}, len(got))
	for _, g := range got {
		seen[g] = struct{}{}
	}
	hits := 0
	for _, w := range want {
		if _, ok := seen[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
