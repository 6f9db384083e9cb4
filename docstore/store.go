// Package docstore holds the authoritative copy of every document and the
// bidirectional mapping between document ids and dense rows.
//
// Rows are 0-based and append-only. Removing a document leaves a hole at its
// row; replacing a document keeps its row. The backends address vectors by
// row, so a search result resolves to a document through IDOf and GetRow.
//
// The store also owns the embedding schema: the set of embedding fields and
// their dimensions, fixed by Declare or by the first stored document.
package docstore

import (
	"maps"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/unibase/model"
)

// Store is an in-memory document table. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs []*model.Document // indexed by row; nil marks a hole
	rows map[string]uint32
	live *roaring.Bitmap
	dims map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rows: make(map[string]uint32),
		live: roaring.New(),
		dims: make(map[string]int),
	}
}

// Declare fixes the dimension of an embedding field before any document is
// stored. Declaring a known field again with the same dimension is a no-op.
func (s *Store) Declare(field string, dim int) error {
	if field == "" {
		return ErrEmptyField
	}
	if dim <= 0 {
		return &ErrDimensionMismatch{Field: field, Expected: 1, Actual: dim}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.dims[field]; ok {
		if cur != dim {
			return &ErrDimensionMismatch{Field: field, Expected: cur, Actual: dim}
		}
		return nil
	}
	if s.live.GetCardinality() > 0 {
		return &ErrUnknownField{Field: field}
	}
	s.dims[field] = dim
	return nil
}

// Validate checks doc against the schema without storing it.
func (s *Store) Validate(doc model.Document) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validate(doc)
}

func (s *Store) validate(doc model.Document) error {
	if doc.ID == "" {
		return ErrEmptyID
	}
	if len(doc.Embeddings) == 0 {
		return ErrNoEmbeddings
	}

	if len(s.dims) == 0 {
		for _, field := range doc.EmbeddingFields() {
			if field == "" {
				return ErrEmptyField
			}
			if len(doc.Embeddings[field]) == 0 {
				return &ErrDimensionMismatch{Field: field, Expected: 1, Actual: 0}
			}
		}
		return nil
	}

	for _, field := range doc.EmbeddingFields() {
		want, ok := s.dims[field]
		if !ok {
			return &ErrUnknownField{Field: field}
		}
		if got := len(doc.Embeddings[field]); got != want {
			return &ErrDimensionMismatch{Field: field, Expected: want, Actual: got}
		}
	}
	for field := range s.dims {
		if _, ok := doc.Embeddings[field]; !ok {
			return &ErrMissingField{Field: field}
		}
	}
	return nil
}

// InsertOrReplace stores a copy of doc. An existing id keeps its row and
// replaced is true; a new id is appended at the next row.
func (s *Store) InsertOrReplace(doc model.Document) (row uint32, replaced bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(doc); err != nil {
		return 0, false, err
	}

	if len(s.dims) == 0 {
		for field, vec := range doc.Embeddings {
			s.dims[field] = len(vec)
		}
	}

	stored := doc.Clone()
	if row, ok := s.rows[doc.ID]; ok {
		s.docs[row] = &stored
		return row, true, nil
	}

	row = uint32(len(s.docs))
	s.docs = append(s.docs, &stored)
	s.rows[doc.ID] = row
	s.live.Add(row)
	return row, false, nil
}

// Get returns a copy of the document stored under id.
func (s *Store) Get(id string) (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return model.Document{}, false
	}
	return s.docs[row].Clone(), true
}

// GetRow returns a copy of the document stored at row.
func (s *Store) GetRow(row uint32) (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(row) >= len(s.docs) || s.docs[row] == nil {
		return model.Document{}, false
	}
	return s.docs[row].Clone(), true
}

// Remove deletes the document stored under id and returns it with the row
// it occupied.
func (s *Store) Remove(id string) (model.Document, uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return model.Document{}, 0, false
	}
	doc := s.docs[row]
	s.docs[row] = nil
	delete(s.rows, id)
	s.live.Remove(row)
	return *doc, row, true
}

// RowOf returns the row of id.
func (s *Store) RowOf(id string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	return row, ok
}

// IDOf returns the id stored at row.
func (s *Store) IDOf(row uint32) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(row) >= len(s.docs) || s.docs[row] == nil {
		return "", false
	}
	return s.docs[row].ID, true
}

// Count returns the number of live documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Rows returns the number of rows ever allocated, holes included.
func (s *Store) Rows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Dimension returns the dimension of an embedding field.
func (s *Store) Dimension(field string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dim, ok := s.dims[field]
	return dim, ok
}

// Fields returns the embedding field names in sorted order.
func (s *Store) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.dims))
}

// Each calls fn for every live document in ascending row order until fn
// returns false. The document passed to fn must not be modified.
func (s *Store) Each(fn func(row uint32, doc *model.Document) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it := s.live.Iterator()
	for it.HasNext() {
		row := it.Next()
		if !fn(row, s.docs[row]) {
			return
		}
	}
}
