package integration_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/model"
	"github.com/hupe1980/unibase/testutil"
)

func TestFullLifecycle(t *testing.T) {
	for _, b := range []unibase.Backend{unibase.BackendFlat, unibase.BackendHNSW} {
		t.Run(b.String(), func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			// 1. Open
			db, err := unibase.Open(ctx, dir, unibase.WithBackend(b), unibase.WithMetric(distance.MetricL2))
			require.NoError(t, err)

			// 2. Index
			book := model.NewDocument("book-1").
				WithText("v1").
				WithField("version", 1).
				WithEmbedding("embedding", []float32{1, 0}).
				Build()
			_, err = db.Index(ctx, []model.Document{book})
			require.NoError(t, err)

			// 3. Get (verify index)
			got, ok := db.GetByID("book-1")
			require.True(t, ok)
			assert.Equal(t, "v1", got.Text())
			assert.InDeltaSlice(t, []float32{1, 0}, got.Embeddings["embedding"], 1e-6)

			// 4. Search (visible immediately)
			res, err := db.Search(ctx, []model.Document{vecDoc("", []float32{1, 0})}, unibase.WithLimit(1))
			require.NoError(t, err)
			assert.Equal(t, []string{"book-1"}, res[0].IDs())

			// 5. Replace: same id, new vector and fields
			_, err = db.Index(ctx, []model.Document{
				model.NewDocument("book-1").WithText("v2").WithEmbedding("embedding", []float32{0, 1}).Build(),
				vecDoc("book-2", []float32{1, 0.1}),
			})
			require.NoError(t, err)

			got, _ = db.GetByID("book-1")
			assert.Equal(t, "v2", got.Text())
			_, hasVersion := got.Field("version")
			assert.False(t, hasVersion, "index replaces the whole document")

			res, err = db.Search(ctx, []model.Document{vecDoc("", []float32{0, 1})}, unibase.WithLimit(1))
			require.NoError(t, err)
			assert.Equal(t, []string{"book-1"}, res[0].IDs())

			// 6. Update merges
			_, err = db.Update(ctx, []model.Document{model.NewDocument("book-2").WithField("version", 7).Build()})
			require.NoError(t, err)
			got, _ = db.GetByID("book-2")
			v, _ := got.Field("version")
			assert.EqualValues(t, 7, v)
			assert.Equal(t, []float32{1, 0.1}, got.Embeddings["embedding"])

			// 7. Persist and close
			require.NoError(t, db.Persist(ctx))
			require.NoError(t, db.Close())

			// 8. Reopen: settings and documents survive
			db, err = unibase.Open(ctx, dir)
			require.NoError(t, err)
			defer db.Close()

			assert.Equal(t, b, db.Backend())
			assert.Equal(t, distance.MetricL2, db.Metric())
			assert.Equal(t, 2, db.NumDocs())

			got, ok = db.GetByID("book-1")
			require.True(t, ok)
			assert.Equal(t, "v2", got.Text())

			// 9. Delete, then search no longer sees it
			report, err := db.DeleteByID(ctx, "book-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"book-1"}, report.Applied)

			res, err = db.Search(ctx, []model.Document{vecDoc("", []float32{0, 1})})
			require.NoError(t, err)
			assert.Equal(t, []string{"book-2"}, res[0].IDs())
		})
	}
}

func TestLifecycle_ManyPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	docs := testutil.NewRNG(3).Documents(300, 16)

	for round := range 3 {
		db, err := unibase.Open(ctx, dir, unibase.WithBackend(unibase.BackendHNSW))
		require.NoError(t, err)

		assert.Equal(t, round*100, db.NumDocs(), "round %d", round)
		_, err = db.Index(ctx, docs[round*100:(round+1)*100])
		require.NoError(t, err)

		require.NoError(t, db.Persist(ctx))
		require.NoError(t, db.Close())
	}

	db, err := unibase.Open(ctx, dir)
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, 300, db.NumDocs())
	for i := 0; i < 300; i += 37 {
		id := fmt.Sprintf("doc-%d", i)
		got, ok := db.GetByID(id)
		require.True(t, ok, id)
		assert.Equal(t, docs[i], got)
	}
}
