package hnsw

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/testutil"
)

func build(t *testing.T, vectors [][]float32, optFns ...func(o *Options)) *HNSW {
	t.Helper()

	h, err := New(len(vectors[0]), optFns...)
	require.NoError(t, err)
	for i, v := range vectors {
		require.NoError(t, h.Add(uint32(i), v))
	}
	return h
}

func rows(res []index.SearchResult) []uint32 {
	out := make([]uint32, len(res))
	for i, r := range res {
		out[i] = r.Row
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, index.ErrInvalidDimension)

	h, err := New(8, func(o *Options) { o.M = 1; o.EFConstruction = 0 })
	require.NoError(t, err)
	assert.Equal(t, 2, h.Options().M)
	assert.Equal(t, 2, h.Options().EFConstruction)
	assert.Equal(t, index.KindHNSW, h.Kind())
	assert.Equal(t, distance.MetricCosine, h.Metric())

	res, err := h.Search(make([]float32, 8), 1, index.SearchOptions{})
	assert.ErrorIs(t, err, index.ErrZeroVector)
	assert.Nil(t, res)

	q := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	res, err = h.Search(q, 3, index.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRecall(t *testing.T) {
	rng := testutil.NewRNG(42)
	vectors := rng.UnitVectors(2000, 32)
	queries := rng.UnitVectors(50, 32)

	h := build(t, vectors)

	var total float64
	for _, q := range queries {
		res, err := h.Search(q, 10, index.SearchOptions{EF: 100})
		require.NoError(t, err)
		require.Len(t, res, 10)

		want := testutil.ExactTopK(vectors, q, 10, distance.CosineDistance)
		total += testutil.Recall(rows(res), want)
	}

	assert.GreaterOrEqual(t, total/float64(len(queries)), 0.9)
}

func TestSelfMatch(t *testing.T) {
	rng := testutil.NewRNG(7)
	vectors := rng.UniformVectors(2000, 128)

	h := build(t, vectors)
	require.Equal(t, 2000, h.Len())

	for i := 0; i < len(vectors); i += 40 {
		res, err := h.Search(vectors[i], 10, index.SearchOptions{EF: 500})
		require.NoError(t, err)
		require.Len(t, res, 10)
		assert.Equal(t, uint32(i), res[0].Row)
		assert.InDelta(t, 0, res[0].Distance, 1e-4)
		for j := 1; j < len(res); j++ {
			assert.LessOrEqual(t, res[j-1].Distance, res[j].Distance)
		}
	}
}

func TestVisitedReuse(t *testing.T) {
	v := acquireVisited(100)
	assert.GreaterOrEqual(t, v.Len(), uint(100))
	v.Set(3).Set(99)
	releaseVisited(v)

	v = acquireVisited(200)
	defer releaseVisited(v)
	assert.Zero(t, v.Count())
	assert.GreaterOrEqual(t, v.Len(), uint(200))

	assert.NotPanics(t, func() { releaseVisited(acquireVisited(0)) })
}

func TestConcurrentSearch(t *testing.T) {
	rng := testutil.NewRNG(11)
	vectors := rng.UnitVectors(500, 16)
	queries := rng.UnitVectors(32, 16)
	h := build(t, vectors)

	want := make([][]uint32, len(queries))
	for i, q := range queries {
		res, err := h.Search(q, 5, index.SearchOptions{EF: 50})
		require.NoError(t, err)
		want[i] = rows(res)
	}

	got := make([][]uint32, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.Search(q, 5, index.SearchOptions{EF: 50})
			if err == nil {
				got[i] = rows(res)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, want, got)
}

func TestLimitCoversAllLive(t *testing.T) {
	rng := testutil.NewRNG(3)
	vectors := rng.UniformVectors(300, 16)
	h := build(t, vectors)

	res, err := h.Search(vectors[0], 1000, index.SearchOptions{EF: 20})
	require.NoError(t, err)
	assert.Len(t, res, 300)

	seen := make(map[uint32]bool, len(res))
	for _, r := range res {
		seen[r.Row] = true
	}
	assert.Len(t, seen, 300)
}

func TestRemove(t *testing.T) {
	rng := testutil.NewRNG(5)
	vectors := rng.UniformVectors(500, 16)
	h := build(t, vectors, func(o *Options) { o.Metric = distance.MetricL2 })

	assert.True(t, h.Remove(42))
	assert.False(t, h.Remove(42))
	assert.Equal(t, 499, h.Len())

	res, err := h.Search(vectors[42], 10, index.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res, 10)
	assert.NotContains(t, rows(res), uint32(42))

	var exists *index.ErrRowExists
	assert.ErrorAs(t, h.Add(1, vectors[1]), &exists)
	require.NoError(t, h.Add(42, vectors[42]))
	res, err = h.Search(vectors[42], 1, index.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), res[0].Row)
}

func TestMostlyDeleted(t *testing.T) {
	rng := testutil.NewRNG(11)
	vectors := rng.UniformVectors(1000, 16)
	h := build(t, vectors)

	for i := range 950 {
		require.True(t, h.Remove(uint32(i)))
	}
	require.Equal(t, 50, h.Len())

	res, err := h.Search(vectors[0], 20, index.SearchOptions{EF: 20})
	require.NoError(t, err)
	require.Len(t, res, 20)
	for _, r := range res {
		assert.GreaterOrEqual(t, r.Row, uint32(950))
	}

	res, err = h.Search(vectors[0], 100, index.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, res, 50)
}

func TestReplace(t *testing.T) {
	rng := testutil.NewRNG(13)
	vectors := rng.UniformVectors(200, 8)
	h := build(t, vectors)

	var notFound *index.ErrRowNotFound
	assert.ErrorAs(t, h.Replace(999, vectors[0]), &notFound)

	target := vectors[150]
	require.NoError(t, h.Replace(3, target))
	assert.Equal(t, 200, h.Len())

	res, err := h.Search(target, 2, index.SearchOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{3, 150}, rows(res))

	st := h.Stats()
	assert.Equal(t, 201, st.Nodes)
	assert.Equal(t, 1, st.Deleted)
}

func TestDeterministic(t *testing.T) {
	rng := testutil.NewRNG(17)
	vectors := rng.UniformVectors(400, 16)
	q := rng.UniformVectors(1, 16)[0]

	a := build(t, vectors, func(o *Options) { o.Seed = 99 })
	b := build(t, vectors, func(o *Options) { o.Seed = 99 })

	ra, err := a.Search(q, 10, index.SearchOptions{})
	require.NoError(t, err)
	rb, err := b.Search(q, 10, index.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
	assert.Equal(t, a.Stats(), b.Stats())
}

func TestTiesBreakByDiscovery(t *testing.T) {
	h, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)
	for row := range uint32(4) {
		require.NoError(t, h.Add(row, []float32{1, 1}))
	}

	a, err := h.Search([]float32{1, 1}, 4, index.SearchOptions{})
	require.NoError(t, err)
	b, err := h.Search([]float32{1, 1}, 4, index.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.ElementsMatch(t, []uint32{0, 1, 2, 3}, rows(a))
}

func TestWriteToLoad(t *testing.T) {
	rng := testutil.NewRNG(19)
	vectors := rng.UniformVectors(300, 12)
	h := build(t, vectors, func(o *Options) { o.M = 8; o.EFSearch = 40 })
	h.Remove(7)

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	loaded, err := index.Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.IsType(t, &HNSW{}, loaded)

	g := loaded.(*HNSW)
	assert.Equal(t, 299, g.Len())
	assert.Equal(t, 8, g.Options().M)
	assert.Equal(t, 40, g.Options().EFSearch)
	assert.Equal(t, h.Stats(), g.Stats())

	for _, q := range rng.UniformVectors(10, 12) {
		want, err := h.Search(q, 5, index.SearchOptions{})
		require.NoError(t, err)
		got, err := g.Search(q, 5, index.SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Loaded graphs accept further inserts.
	require.NoError(t, g.Add(1000, vectors[0]))
	assert.Equal(t, 300, g.Len())
}

func TestLoadRejectsCorruptInput(t *testing.T) {
	rng := testutil.NewRNG(23)
	h := build(t, rng.UniformVectors(20, 4))

	var buf bytes.Buffer
	_, err := h.WriteTo(&buf)
	require.NoError(t, err)

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err = index.Load(bytes.NewReader(truncated))
	assert.Error(t, err)

	_, err = index.Load(bytes.NewReader([]byte("nope")))
	assert.ErrorIs(t, err, index.ErrBadHeader)
}

func TestCompact(t *testing.T) {
	rng := testutil.NewRNG(29)
	vectors := rng.UniformVectors(600, 16)
	h := build(t, vectors)

	for i := 0; i < 600; i += 2 {
		h.Remove(uint32(i))
	}
	require.Equal(t, 300, h.Len())

	require.NoError(t, h.Compact(context.Background()))

	st := h.Stats()
	assert.Equal(t, 300, st.Nodes)
	assert.Zero(t, st.Deleted)
	assert.Equal(t, 300, h.Len())

	res, err := h.Search(vectors[301], 1, index.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(301), res[0].Row)

	v, ok := h.Vector(301)
	require.True(t, ok)
	assert.Len(t, v, 16)
	_, ok = h.Vector(300)
	assert.False(t, ok)
}

func TestCompactCancelled(t *testing.T) {
	rng := testutil.NewRNG(31)
	h := build(t, rng.UniformVectors(50, 4))
	h.Remove(0)
	before := h.Stats()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, h.Compact(ctx), context.Canceled)
	assert.Equal(t, before, h.Stats())
}

func TestStatsString(t *testing.T) {
	rng := testutil.NewRNG(37)
	h := build(t, rng.UniformVectors(100, 4))

	st := h.Stats()
	require.NotEmpty(t, st.Levels)
	assert.Equal(t, 100, st.Levels[0].Nodes)
	assert.Contains(t, st.String(), "Level 0:")
}
