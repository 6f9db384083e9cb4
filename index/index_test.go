package index

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/internal/binio"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("exact")
	require.NoError(t, err)
	assert.Equal(t, KindFlat, k)

	k, err = ParseKind("HNSW")
	require.NoError(t, err)
	assert.Equal(t, KindHNSW, k)

	_, err = ParseKind("ivf")
	assert.Error(t, err)
}

func TestPrepareVector(t *testing.T) {
	t.Run("dimension", func(t *testing.T) {
		_, err := PrepareVector([]float32{1, 2}, 3, distance.MetricL2)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("cosine normalizes", func(t *testing.T) {
		v, err := PrepareVector([]float32{0, 2}, 2, distance.MetricCosine)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, v)
	})

	t.Run("cosine zero", func(t *testing.T) {
		_, err := PrepareVector([]float32{0, 0}, 2, distance.MetricCosine)
		assert.ErrorIs(t, err, ErrZeroVector)
	})

	t.Run("l2 copies", func(t *testing.T) {
		src := []float32{0, 0}
		v, err := PrepareVector(src, 2, distance.MetricL2)
		require.NoError(t, err)
		v[0] = 1
		assert.Zero(t, src[0])
	})
}

func TestLoadHeader(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := Load(bytes.NewReader([]byte{1, 2, 3, 4, 1, 0, 1}))
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Load(bytes.NewReader([]byte{0x55}))
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("unknown kind", func(t *testing.T) {
		var buf bytes.Buffer
		w := binio.NewWriter(&buf)
		WriteHeader(w, Kind(99))
		require.NoError(t, w.Err())

		_, err := Load(&buf)
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("dispatch", func(t *testing.T) {
		called := false
		RegisterLoader(Kind(200), func(r io.Reader) (Index, error) {
			called = true
			return nil, nil
		})

		var buf bytes.Buffer
		w := binio.NewWriter(&buf)
		WriteHeader(w, Kind(200))
		require.NoError(t, w.Err())

		_, err := Load(&buf)
		require.NoError(t, err)
		assert.True(t, called)
	})
}
