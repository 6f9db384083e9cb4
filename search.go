package unibase

import (
	"context"
	"fmt"
	"iter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/docstore"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/model"
)

// DefaultLimit is the number of matches returned when no limit is given.
const DefaultLimit = 10

type searchOptions struct {
	limit int
	field string
	ef    int
}

// SearchOption configures a Search call.
type SearchOption func(*searchOptions)

// WithLimit sets the number of matches per query. It is capped to the
// number of live documents.
func WithLimit(k int) SearchOption {
	return func(o *searchOptions) {
		o.limit = k
	}
}

// WithSearchField selects the embedding field to search. It may be omitted
// when the schema has a single embedding field.
func WithSearchField(name string) SearchOption {
	return func(o *searchOptions) {
		o.field = name
	}
}

// WithEF sets the graph beam width for this call. Values below the limit
// are raised to it. Ignored by the flat backend.
func WithEF(ef int) SearchOption {
	return func(o *searchOptions) {
		o.ef = ef
	}
}

// Search returns one result per query document, in input order, each
// holding the stored documents nearest to the query's vector ranked best
// first.
//
// Every query is validated before any is run: a query that does not fit
// the schema fails the whole call with ErrSchemaMismatch.
func (u *Unibase) Search(ctx context.Context, queries []model.Document, optFns ...SearchOption) ([]model.Result, error) {
	start := time.Now()

	so := searchOptions{limit: DefaultLimit}
	for _, fn := range optFns {
		fn(&so)
	}

	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		return nil, ErrClosed
	}

	results, k, err := u.search(ctx, queries, &so)
	u.logger.LogSearch(ctx, len(queries), k, so.field, err)
	u.metrics.RecordSearch(len(queries), k, time.Since(start), err)
	return results, err
}

func (u *Unibase) search(ctx context.Context, queries []model.Document, so *searchOptions) ([]model.Result, int, error) {
	if so.limit <= 0 {
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidLimit, so.limit)
	}
	if so.ef < 0 {
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidEF, so.ef)
	}

	field, err := u.searchField(so.field)
	if err != nil {
		return nil, 0, err
	}
	so.field = field

	results := make([]model.Result, len(queries))
	for i, q := range queries {
		results[i] = model.Result{Query: q.Clone(), Matches: []model.Match{}}
	}

	k := min(so.limit, u.docs.Count())
	if field == "" || k == 0 {
		return results, k, nil
	}

	idx := u.indexes[field]
	vectors := make([][]float32, len(queries))
	for i, q := range queries {
		v, ok := q.Embeddings[field]
		if !ok {
			return nil, k, translateError(field, &docstore.ErrMissingField{Field: field})
		}
		if _, err := index.PrepareVector(v, idx.Dimension(), idx.Metric()); err != nil {
			return nil, k, translateError(field, err)
		}
		vectors[i] = v
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(u.rc.Config().MaxConcurrentSearches))

	for i, v := range vectors {
		g.Go(func() error {
			if err := u.rc.AcquireSearch(gctx); err != nil {
				return err
			}
			defer u.rc.ReleaseSearch()

			hits, err := idx.Search(v, k, index.SearchOptions{EF: so.ef})
			if err != nil {
				return translateError(field, err)
			}
			results[i].Matches = u.hydrate(hits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, k, err
	}
	return results, k, nil
}

// searchField resolves the field a search runs against. A named field must
// be declared; the empty result means the schema is still empty and no field
// was named.
func (u *Unibase) searchField(requested string) (string, error) {
	fields := u.docs.Fields()

	if requested != "" {
		if _, ok := u.docs.Dimension(requested); !ok {
			return "", translateError(requested, &docstore.ErrUnknownField{Field: requested})
		}
		return requested, nil
	}

	switch len(fields) {
	case 0:
		return "", nil
	case 1:
		return fields[0], nil
	default:
		return "", fmt.Errorf("%w: search field required, schema has %v", ErrSchemaMismatch, fields)
	}
}

func (u *Unibase) hydrate(hits []index.SearchResult) []model.Match {
	matches := make([]model.Match, 0, len(hits))
	for _, h := range hits {
		doc, ok := u.docs.GetRow(h.Row)
		if !ok {
			continue
		}
		matches = append(matches, model.Match{
			Document: doc,
			Distance: h.Distance,
			Score:    distance.Score(u.metric, h.Distance),
		})
	}
	return matches
}

// Query creates a fluent search for a single query document.
//
// Example:
//
//	matches, err := db.Query(doc).
//	    Limit(5).
//	    Field("embedding").
//	    EF(100).
//	    Execute(ctx)
//
//	// Or with streaming:
//	for m, err := range db.Query(doc).Limit(100).Stream(ctx) {
//	    if err != nil { break }
//	    if m.Score < 0.8 { break }
//	    process(m)
//	}
func (u *Unibase) Query(doc model.Document) QueryBuilder {
	return QueryBuilder{u: u, doc: doc, limit: DefaultLimit}
}

// QueryBuilder is an immutable builder for a single-document search.
type QueryBuilder struct {
	u     *Unibase
	doc   model.Document
	limit int
	field string
	ef    int
}

// Limit sets the number of matches.
func (qb QueryBuilder) Limit(k int) QueryBuilder {
	qb.limit = k
	return qb
}

// Field sets the embedding field to search.
func (qb QueryBuilder) Field(name string) QueryBuilder {
	qb.field = name
	return qb
}

// EF sets the graph beam width.
func (qb QueryBuilder) EF(ef int) QueryBuilder {
	qb.ef = ef
	return qb
}

// Execute runs the search and returns the ranked matches.
func (qb QueryBuilder) Execute(ctx context.Context) ([]model.Match, error) {
	results, err := qb.u.Search(ctx, []model.Document{qb.doc},
		WithLimit(qb.limit),
		WithSearchField(qb.field),
		WithEF(qb.ef),
	)
	if err != nil {
		return nil, err
	}
	return results[0].Matches, nil
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (qb QueryBuilder) MustExecute(ctx context.Context) []model.Match {
	matches, err := qb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return matches
}

// Stream returns an iterator over the matches, best first. Breaking out of
// the loop stops the iteration.
func (qb QueryBuilder) Stream(ctx context.Context) iter.Seq2[model.Match, error] {
	return func(yield func(model.Match, error) bool) {
		matches, err := qb.Execute(ctx)
		if err != nil {
			yield(model.Match{}, err)
			return
		}
		for _, m := range matches {
			if !yield(m, nil) {
				return
			}
		}
	}
}
