package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("index: k must be positive")

	// ErrZeroVector is returned when a vector with zero norm is given to a
	// cosine index.
	ErrZeroVector = errors.New("index: zero vector cannot be normalized")

	// ErrNonFinite is returned for a vector with a NaN or infinite component.
	ErrNonFinite = errors.New("index: vector has non-finite component")

	// ErrInvalidDimension is returned when an index is created with dimension <= 0.
	ErrInvalidDimension = errors.New("index: dimension must be positive")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrRowExists is returned by Add for a row that is already live.
type ErrRowExists struct {
	Row uint32
}

func (e *ErrRowExists) Error() string {
	return fmt.Sprintf("index: row %d already exists", e.Row)
}

// ErrRowNotFound is returned by Replace for a row that is not live.
type ErrRowNotFound struct {
	Row uint32
}

func (e *ErrRowNotFound) Error() string {
	return fmt.Sprintf("index: row %d not found", e.Row)
}
