package persistence

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxhash64 of data, as recorded in the manifest.
func Checksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// ChecksumWriter wraps an io.Writer and computes a running xxhash64.
type ChecksumWriter struct {
	w    io.Writer
	hash *xxhash.Digest
	n    int64
}

// NewChecksumWriter creates a new checksumming writer.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, hash: xxhash.New()}
}

// Write implements io.Writer.
func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	_, _ = cw.hash.Write(p[:n])
	cw.n += int64(n)
	return n, err
}

// Sum returns the checksum of everything written so far.
func (cw *ChecksumWriter) Sum() uint64 { return cw.hash.Sum64() }

// Size returns the number of bytes written so far.
func (cw *ChecksumWriter) Size() int64 { return cw.n }

// ChecksumMismatchError is returned when a snapshot file does not match the
// checksum recorded in its manifest.
type ChecksumMismatchError struct {
	File     string
	Expected uint64
	Actual   uint64
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch in %s: expected 0x%016x, got 0x%016x", e.File, e.Expected, e.Actual)
}

// Unwrap makes a mismatch match ErrCorrupt.
func (e *ChecksumMismatchError) Unwrap() error { return ErrCorrupt }
