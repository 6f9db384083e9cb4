// Package persistence writes and restores workspace snapshots.
//
// A snapshot is a set of section files plus a JSON manifest that records
// each file's size and xxhash64. The CURRENT blob names the active
// manifest; replacing it is the only step that makes a new snapshot
// visible, so a failure at any earlier point leaves the previous snapshot
// in place.
//
//	SNAPSHOT-000007/documents.bin
//	SNAPSHOT-000007/index-000.bin
//	MANIFEST-000007.json
//	CURRENT
package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/resource"
)

var (
	// ErrNoSnapshot is returned by Load for a workspace without a snapshot.
	ErrNoSnapshot = errors.New("persistence: no snapshot")

	// ErrCorrupt is returned when a snapshot cannot be trusted.
	ErrCorrupt = errors.New("persistence: snapshot corrupt")
)

// Section is one file of a snapshot.
type Section struct {
	Name  string
	Write func(w io.Writer) error
}

// Options configures a Manager.
type Options struct {
	// Compression is applied to every section written.
	Compression Compression

	// Retain is how many snapshots are kept, including the current one.
	Retain int

	// Resources throttles snapshot IO. Nil means unthrottled.
	Resources *resource.Controller
}

// DefaultOptions keep only the current snapshot, uncompressed.
var DefaultOptions = Options{
	Compression: CompressionNone,
	Retain:      1,
}

// Manager saves and loads snapshots of one workspace.
type Manager struct {
	store blobstore.BlobStore
	opts  Options

	mu     sync.Mutex
	lastID uint64
}

// NewManager returns a manager over store.
func NewManager(store blobstore.BlobStore, optFns ...func(o *Options)) *Manager {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retain < 1 {
		opts.Retain = 1
	}
	return &Manager{store: store, opts: opts}
}

// Store returns the underlying blob store.
func (m *Manager) Store() blobstore.BlobStore { return m.store }

// Save writes sections as a new snapshot described by meta and makes it
// current. meta's ID, Version, CreatedAt, Compression and Files are filled
// in; the returned manifest is the one committed.
func (m *Manager) Save(ctx context.Context, meta Manifest, sections []Section) (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.nextID(ctx)
	if err != nil {
		return nil, err
	}

	man := meta
	man.Version = ManifestVersion
	man.ID = id
	man.CreatedAt = time.Now().UTC()
	man.Compression = m.opts.Compression.String()
	man.Files = make([]FileInfo, 0, len(sections))

	seen := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		if s.Name == "" || strings.ContainsAny(s.Name, "/\\") {
			return nil, fmt.Errorf("persistence: invalid section name %q", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("persistence: duplicate section %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		fi, err := m.writeSection(ctx, id, s)
		if err != nil {
			return nil, fmt.Errorf("persistence: write section %s: %w", s.Name, err)
		}
		man.Files = append(man.Files, fi)
	}

	data, err := encodeManifest(&man)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, ManifestName(id), data); err != nil {
		return nil, fmt.Errorf("persistence: write manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The swap.
	if err := m.store.Put(ctx, CurrentFileName, []byte(ManifestName(id))); err != nil {
		return nil, fmt.Errorf("persistence: swap %s: %w", CurrentFileName, err)
	}
	m.lastID = id

	// Garbage is harmless, so collection failures are not reported.
	_ = m.collect(ctx, id)

	return &man, nil
}

func (m *Manager) writeSection(ctx context.Context, id uint64, s Section) (FileInfo, error) {
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return FileInfo{}, err
	}

	payload, err := compress(buf.Bytes(), m.opts.Compression)
	if err != nil {
		return FileInfo{}, err
	}

	fi := FileInfo{Section: s.Name, Path: sectionPath(id, s.Name)}
	err = blobstore.WriteFunc(ctx, m.store, fi.Path, func(w io.Writer) error {
		cw := NewChecksumWriter(m.opts.Resources.LimitWriter(ctx, w))
		if _, err := cw.Write(payload); err != nil {
			return err
		}
		fi.Size, fi.Checksum = cw.Size(), cw.Sum()
		return nil
	})
	return fi, err
}

// nextID is one past every id present in the store, so ids of abandoned
// saves are never reused.
func (m *Manager) nextID(ctx context.Context) (uint64, error) {
	maxID := m.lastID

	for _, prefix := range []string{manifestPrefix, snapshotPrefix} {
		names, err := m.store.List(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("persistence: list %s: %w", prefix, err)
		}
		for _, n := range names {
			if id, ok := parseID(n); ok && id > maxID {
				maxID = id
			}
		}
	}
	return maxID + 1, nil
}

// collect deletes every snapshot except current and the Retain-1 newest
// committed ones before it. Leftovers of failed saves are removed too.
func (m *Manager) collect(ctx context.Context, current uint64) error {
	manifests, err := m.store.List(ctx, manifestPrefix)
	if err != nil {
		return err
	}

	var committed []uint64
	for _, n := range manifests {
		if id, ok := parseID(n); ok && id < current {
			committed = append(committed, id)
		}
	}
	sort.Slice(committed, func(i, j int) bool { return committed[i] > committed[j] })

	keep := map[uint64]bool{current: true}
	for i := 0; i < len(committed) && i < m.opts.Retain-1; i++ {
		keep[committed[i]] = true
	}

	snapshots, err := m.store.List(ctx, snapshotPrefix)
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range append(snapshots, manifests...) {
		id, ok := parseID(n)
		if !ok || keep[id] || id > current {
			continue
		}
		if err := m.store.Delete(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot is a loaded, verified snapshot.
type Snapshot struct {
	Manifest *Manifest
	sections map[string][]byte
}

// Section returns the decompressed content of the named section.
func (s *Snapshot) Section(name string) (io.Reader, error) {
	data, ok := s.sections[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing section %s", ErrCorrupt, name)
	}
	return bytes.NewReader(data), nil
}

// Sections returns the section names in manifest order.
func (s *Snapshot) Sections() []string {
	names := make([]string, 0, len(s.Manifest.Files))
	for _, f := range s.Manifest.Files {
		names = append(names, f.Section)
	}
	return names
}

// Load reads and verifies the current snapshot. It returns ErrNoSnapshot
// when the workspace has never been saved and an error wrapping ErrCorrupt
// when the snapshot is damaged.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := blobstore.ReadAll(ctx, m.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	name := strings.TrimSpace(string(cur))
	id, ok := parseID(name)
	if !ok || name != ManifestName(id) {
		return nil, fmt.Errorf("%w: %s names %q", ErrCorrupt, CurrentFileName, name)
	}

	data, err := m.read(ctx, name)
	if err != nil {
		return nil, err
	}
	man, err := decodeManifest(data)
	if err != nil {
		return nil, err
	}
	if man.ID != id {
		return nil, fmt.Errorf("%w: manifest %s has id %d", ErrCorrupt, name, man.ID)
	}

	comp, err := ParseCompression(man.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	snap := &Snapshot{Manifest: man, sections: make(map[string][]byte, len(man.Files))}
	for _, f := range man.Files {
		raw, err := m.read(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		if int64(len(raw)) != f.Size {
			return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrCorrupt, f.Path, len(raw), f.Size)
		}
		if sum := Checksum(raw); sum != f.Checksum {
			return nil, &ChecksumMismatchError{File: f.Path, Expected: f.Checksum, Actual: sum}
		}

		content, err := decompress(raw, comp)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.Path, err)
		}
		snap.sections[f.Section] = content
	}

	if id > m.lastID {
		m.lastID = id
	}
	return snap, nil
}

// read fetches a blob the manifest chain refers to; a missing blob makes
// the snapshot corrupt.
func (m *Manager) read(ctx context.Context, name string) ([]byte, error) {
	b, err := m.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: missing %s", ErrCorrupt, name)
		}
		return nil, err
	}
	defer func() { _ = b.Close() }()

	size := b.Size()
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, size)
	if _, err := io.ReadFull(m.opts.Resources.LimitReader(ctx, rc), data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s truncated", ErrCorrupt, name)
		}
		return nil, err
	}
	return data, nil
}
