package unibase

import (
	"errors"
	"fmt"

	"github.com/hupe1980/unibase/docstore"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/index/hnsw"
	"github.com/hupe1980/unibase/lock"
	"github.com/hupe1980/unibase/persistence"
)

var (
	// ErrSchemaMismatch is returned when a document or query does not fit the
	// embedding schema: a missing or unknown field, a wrong dimension, or an
	// ambiguous search field.
	ErrSchemaMismatch = errors.New("unibase: schema mismatch")

	// ErrWorkspaceCorrupt is returned by Open when the persisted snapshot
	// cannot be restored. The instance refuses to start empty over it.
	ErrWorkspaceCorrupt = errors.New("unibase: workspace corrupt")

	// ErrWorkspaceLocked is returned by Open when another instance owns the
	// workspace.
	ErrWorkspaceLocked = errors.New("unibase: workspace locked")

	// ErrInvalidLimit is returned when a search limit is not positive.
	ErrInvalidLimit = errors.New("unibase: limit must be positive")

	// ErrInvalidEF is returned when a search beam width is negative.
	ErrInvalidEF = errors.New("unibase: ef must not be negative")

	// ErrZeroVector is returned for an all-zero vector under the cosine metric.
	ErrZeroVector = errors.New("unibase: zero vector")

	// ErrCapacity is returned when indexing a document would exceed the
	// configured memory limit.
	ErrCapacity = errors.New("unibase: memory limit exceeded")

	// ErrInvalidDocument is returned for a document that cannot be stored,
	// such as one without embeddings or with a NaN or infinite component.
	ErrInvalidDocument = errors.New("unibase: invalid document")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("unibase: closed")
)

// ErrDimensionMismatch reports a vector whose length differs from the
// dimension of its embedding field. It matches ErrSchemaMismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Field    string
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("unibase: dimension mismatch for field %q: expected %d, got %d", e.Field, e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// Is makes the error match ErrSchemaMismatch.
func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrSchemaMismatch }

// Rejection records a document of a batch that was not applied.
type Rejection struct {
	// Position is the index of the document in the batch.
	Position int
	ID       string
	Err      error
}

func (r Rejection) Error() string {
	return fmt.Sprintf("document %d (%q): %v", r.Position, r.ID, r.Err)
}

func (r Rejection) Unwrap() error { return r.Err }

// batchError is returned when every document of a batch was rejected.
func batchError(op string, rejected []Rejection) error {
	if len(rejected) == 1 {
		return fmt.Errorf("unibase: %s: %w", op, rejected[0])
	}
	return fmt.Errorf("unibase: %s: all %d documents rejected, first: %w", op, len(rejected), rejected[0])
}

// translateError maps errors of the lower layers onto the package's error
// taxonomy. The original error stays reachable through errors.Is/As.
func translateError(field string, err error) error {
	if err == nil {
		return nil
	}

	var ddm *docstore.ErrDimensionMismatch
	if errors.As(err, &ddm) {
		return &ErrDimensionMismatch{Field: ddm.Field, Expected: ddm.Expected, Actual: ddm.Actual, cause: err}
	}
	var idm *index.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return &ErrDimensionMismatch{Field: field, Expected: idm.Expected, Actual: idm.Actual, cause: err}
	}

	var missing *docstore.ErrMissingField
	var unknown *docstore.ErrUnknownField
	switch {
	case errors.As(err, &missing), errors.As(err, &unknown), errors.Is(err, docstore.ErrEmptyField):
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	case errors.Is(err, docstore.ErrNoEmbeddings), errors.Is(err, docstore.ErrEmptyID):
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	case errors.Is(err, index.ErrNonFinite):
		return fmt.Errorf("%w: field %q: %w", ErrInvalidDocument, field, err)
	case errors.Is(err, index.ErrZeroVector):
		return fmt.Errorf("%w: field %q: %w", ErrZeroVector, field, err)
	case errors.Is(err, index.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidLimit, err)
	case errors.Is(err, lock.ErrLocked):
		return fmt.Errorf("%w: %w", ErrWorkspaceLocked, err)
	case errors.Is(err, persistence.ErrCorrupt),
		errors.Is(err, docstore.ErrBadHeader),
		errors.Is(err, index.ErrBadHeader),
		errors.Is(err, hnsw.ErrCorruptGraph):
		return fmt.Errorf("%w: %w", ErrWorkspaceCorrupt, err)
	}

	return err
}
