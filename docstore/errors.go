package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyID is returned for a document without an id.
	ErrEmptyID = errors.New("docstore: empty document id")

	// ErrEmptyField is returned for an embedding stored under an empty name.
	ErrEmptyField = errors.New("docstore: empty embedding field name")

	// ErrNoEmbeddings is returned for a document that carries no embedding.
	ErrNoEmbeddings = errors.New("docstore: document has no embeddings")

	// ErrBadHeader is returned by Load for input that is not a document table.
	ErrBadHeader = errors.New("docstore: bad section header")
)

// ErrDimensionMismatch is returned when an embedding does not have the
// dimension fixed for its field.
type ErrDimensionMismatch struct {
	Field    string
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("docstore: field %q: dimension mismatch: expected %d, got %d", e.Field, e.Expected, e.Actual)
}

// ErrMissingField is returned when a document lacks an embedding field of
// the schema.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("docstore: missing embedding field %q", e.Field)
}

// ErrUnknownField is returned when a document carries an embedding field
// the schema does not know.
type ErrUnknownField struct {
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("docstore: unknown embedding field %q", e.Field)
}
