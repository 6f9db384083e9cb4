package benchmark_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/model"
	"github.com/hupe1980/unibase/testutil"
)

var backends = []unibase.Backend{unibase.BackendFlat, unibase.BackendHNSW}

func formatDim(dim int) string {
	return fmt.Sprintf("dim=%d", dim)
}

func formatCount(n int) string {
	return fmt.Sprintf("n=%d", n)
}

// setup opens an in-memory workspace holding size random documents.
func setup(b *testing.B, backend unibase.Backend, dim, size int) (*unibase.Unibase, []model.Document) {
	b.Helper()

	db, err := unibase.Open(context.Background(), "bench",
		unibase.WithBlobStore(blobstore.NewMemoryStore()),
		unibase.WithBackend(backend),
		unibase.WithMetric(distance.MetricL2),
	)
	if err != nil {
		b.Fatal(err)
	}

	docs := testutil.NewRNG(1).Documents(size, dim)
	if _, err := db.Index(context.Background(), docs); err != nil {
		b.Fatal(err)
	}
	return db, docs
}

// queries pre-generates n query documents outside the timed region.
func queries(n, dim int) []model.Document {
	qs := testutil.NewRNG(2).Documents(n, dim)
	for i := range qs {
		qs[i].ID = ""
	}
	return qs
}

// rowOf maps the generated "doc-<i>" ids back to i.
func rowOf(b *testing.B, id string) uint32 {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "doc-"))
	if err != nil {
		b.Fatal(err)
	}
	return uint32(n)
}

// recallAtK measures the recall of db against an exact L2 scan of docs.
func recallAtK(b *testing.B, db *unibase.Unibase, docs, qs []model.Document, k int, opts ...unibase.SearchOption) float64 {
	b.Helper()

	vectors := make([][]float32, len(docs))
	for i, d := range docs {
		vectors[i] = d.Embeddings[model.DefaultEmbeddingField]
	}

	results, err := db.Search(context.Background(), qs, append(opts, unibase.WithLimit(k))...)
	if err != nil {
		b.Fatal(err)
	}

	var sum float64
	for i, res := range results {
		truth := testutil.ExactTopK(vectors, qs[i].Embeddings[model.DefaultEmbeddingField], k, distance.SquaredL2)
		got := make([]uint32, len(res.Matches))
		for j, m := range res.Matches {
			got[j] = rowOf(b, m.ID)
		}
		sum += testutil.Recall(got, truth)
	}
	return sum / float64(len(results))
}
