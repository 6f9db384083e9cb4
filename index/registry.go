package index

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/unibase/internal/binio"
)

const (
	// Magic opens every serialized index ("UBIX").
	Magic uint32 = 0x58494255

	// FormatVersion is the current index section version.
	FormatVersion uint16 = 1
)

// ErrBadHeader is returned when an index section does not start with a
// valid header.
var ErrBadHeader = errors.New("index: bad section header")

// Loader constructs an index instance from the body of a serialized index.
// The reader is positioned right after the header.
type Loader func(r io.Reader) (Index, error)

var (
	loaderMu sync.RWMutex
	loaders  = map[Kind]Loader{}
)

// RegisterLoader registers a loader for a backend kind.
//
// Index implementations should typically call this from an init() function.
func RegisterLoader(kind Kind, loader Loader) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	loaders[kind] = loader
}

// WriteHeader writes the common section header for kind.
func WriteHeader(w *binio.Writer, kind Kind) {
	w.Uint32(Magic)
	w.Uint16(FormatVersion)
	w.Uint8(uint8(kind))
}

// Load reads a serialized index from r, dispatching on the kind recorded in
// its header to a registered loader.
func Load(r io.Reader) (Index, error) {
	br := binio.NewReader(r)
	magic := br.Uint32()
	version := br.Uint16()
	kind := Kind(br.Uint8())
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: magic 0x%08x", ErrBadHeader, magic)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, version)
	}

	loaderMu.RLock()
	loader, ok := loaders[kind]
	loaderMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no loader for %v", ErrBadHeader, kind)
	}

	return loader(r)
}
