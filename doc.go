// Package unibase is a document-oriented nearest-neighbor index.
//
// Documents carry an id, scalar fields and one or more fixed-dimension
// embeddings. Unibase answers k-nearest-neighbor queries against one
// embedding field, with an exact (flat) or an approximate (HNSW) backend
// behind the same id-keyed API.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := unibase.Open(ctx, "./books")
//	defer db.Close()
//
//	doc := model.NewDocument("book-1").
//	    WithText("A fascinating story").
//	    WithField("author", "Author A").
//	    WithEmbedding("embedding", vec).
//	    Build()
//	report, _ := db.Index(ctx, []model.Document{doc})
//
//	results, _ := db.Search(ctx, []model.Document{query}, unibase.WithLimit(5))
//	for _, m := range results[0].Matches {
//	    fmt.Println(m.ID, m.Score, m.Text())
//	}
//
//	_ = db.Persist(ctx)
//
// # Workspaces
//
// A workspace holds the snapshots of one index. By default it is a local
// directory; WithBlobStore places it in S3, MinIO or memory. Opening a
// workspace restores its last snapshot. Only one instance may hold a
// workspace at a time.
//
// # Semantics
//
//   - Indexing an existing id replaces the document and keeps its row.
//   - Update merges fields and always reinserts the vectors.
//   - Delete and update report unknown ids instead of failing.
//   - GetByID reports a missing id with false, never an error.
//   - Malformed documents in a batch are rejected and reported; the rest
//     of the batch is applied.
package unibase
