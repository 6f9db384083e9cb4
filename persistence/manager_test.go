package persistence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/resource"
)

func bytesSection(name string, data []byte) Section {
	return Section{Name: name, Write: func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}}
}

func payload(n int) []byte {
	rng := rand.New(rand.NewSource(7))
	b := make([]byte, n)
	for i := range b {
		// Half compressible, half noise.
		if i%2 == 0 {
			b[i] = byte(i / 64)
		} else {
			b[i] = byte(rng.Intn(256))
		}
	}
	return b
}

func readSection(t *testing.T, snap *Snapshot, name string) []byte {
	t.Helper()
	r, err := snap.Section(name)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	big := payload(3*blockSize + 123)

	stores := map[string]func(t *testing.T) blobstore.BlobStore{
		"memory": func(*testing.T) blobstore.BlobStore { return blobstore.NewMemoryStore() },
		"local":  func(t *testing.T) blobstore.BlobStore { return blobstore.NewLocalStore(t.TempDir()) },
	}

	for storeName, newStore := range stores {
		for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
			t.Run(storeName+"/"+comp.String(), func(t *testing.T) {
				m := NewManager(newStore(t), func(o *Options) {
					o.Compression = comp
					o.Resources = resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})
				})

				saved, err := m.Save(ctx, Manifest{
					Backend: "hnsw",
					Metric:  "cosine",
					Codec:   "go-json",
					Dims:    map[string]int{"embedding": 4},
					NumDocs: 2,
				}, []Section{
					bytesSection("documents", []byte("docs")),
					bytesSection("embedding", big),
					bytesSection("empty", nil),
				})
				require.NoError(t, err)
				assert.Equal(t, uint64(1), saved.ID)
				assert.Equal(t, comp.String(), saved.Compression)
				require.Len(t, saved.Files, 3)

				snap, err := NewManager(m.Store()).Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, saved.ID, snap.Manifest.ID)
				assert.Equal(t, "hnsw", snap.Manifest.Backend)
				assert.Equal(t, map[string]int{"embedding": 4}, snap.Manifest.Dims)
				assert.Equal(t, 2, snap.Manifest.NumDocs)
				assert.Equal(t, []string{"documents", "embedding", "empty"}, snap.Sections())

				assert.Equal(t, []byte("docs"), readSection(t, snap, "documents"))
				assert.True(t, bytes.Equal(big, readSection(t, snap, "embedding")))
				assert.Empty(t, readSection(t, snap, "empty"))

				_, err = snap.Section("missing")
				assert.ErrorIs(t, err, ErrCorrupt)
			})
		}
	}
}

func TestCompressionShrinks(t *testing.T) {
	data := bytes.Repeat([]byte("unibase "), 100000)
	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		packed, err := compress(data, c)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(data)/4, c.String())

		got, err := decompress(packed, c)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		_, err = decompress(packed[:len(packed)-1], c)
		assert.Error(t, err)
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	got, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	_, err = ParseCompression("snappy")
	assert.Error(t, err)
}

func TestLoadEmptyWorkspace(t *testing.T) {
	_, err := NewManager(blobstore.NewMemoryStore()).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRetention(t *testing.T) {
	ctx := context.Background()

	for _, retain := range []int{1, 2} {
		store := blobstore.NewMemoryStore()
		m := NewManager(store, func(o *Options) { o.Retain = retain })

		for i := 0; i < 4; i++ {
			_, err := m.Save(ctx, Manifest{}, []Section{bytesSection("documents", []byte{byte(i)})})
			require.NoError(t, err)
		}

		manifests, err := store.List(ctx, manifestPrefix)
		require.NoError(t, err)
		assert.Len(t, manifests, retain)
		assert.Equal(t, ManifestName(4), manifests[len(manifests)-1])

		snapshots, err := store.List(ctx, snapshotPrefix)
		require.NoError(t, err)
		assert.Len(t, snapshots, retain)

		snap, err := m.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{3}, readSection(t, snap, "documents"))
	}
}

func TestRetentionLocal(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	m := NewManager(store)

	for i := 0; i < 3; i++ {
		_, err := m.Save(ctx, Manifest{}, []Section{bytesSection("documents", []byte{byte(i)})})
		require.NoError(t, err)
	}

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{CurrentFileName, ManifestName(3), sectionPath(3, "documents")}, names)
}

// failingStore fails Put for one name and Create for names with a prefix.
type failingStore struct {
	blobstore.BlobStore
	failPut    string
	failCreate string
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Put(ctx context.Context, name string, data []byte) error {
	if name == s.failPut {
		return errInjected
	}
	return s.BlobStore.Put(ctx, name, data)
}

func (s *failingStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if s.failCreate != "" && strings.HasPrefix(name, s.failCreate) {
		return nil, errInjected
	}
	return s.BlobStore.Create(ctx, name)
}

func TestFailedSaveKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()

	cases := map[string]func(fs *failingStore){
		"current swap": func(fs *failingStore) { fs.failPut = CurrentFileName },
		"manifest":     func(fs *failingStore) { fs.failPut = ManifestName(2) },
		"section":      func(fs *failingStore) { fs.failCreate = SnapshotDir(2) + "/embedding" },
	}

	for name, inject := range cases {
		t.Run(name, func(t *testing.T) {
			fs := &failingStore{BlobStore: blobstore.NewMemoryStore()}
			m := NewManager(fs)

			_, err := m.Save(ctx, Manifest{NumDocs: 1}, []Section{
				bytesSection("documents", []byte("v1")),
				bytesSection("embedding", []byte("e1")),
			})
			require.NoError(t, err)

			inject(fs)
			_, err = m.Save(ctx, Manifest{NumDocs: 2}, []Section{
				bytesSection("documents", []byte("v2")),
				bytesSection("embedding", []byte("e2")),
			})
			require.ErrorIs(t, err, errInjected)

			snap, err := NewManager(fs).Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), snap.Manifest.ID)
			assert.Equal(t, 1, snap.Manifest.NumDocs)
			assert.Equal(t, []byte("v1"), readSection(t, snap, "documents"))

			// The next save skips the abandoned id and sweeps its leftovers.
			*fs = failingStore{BlobStore: fs.BlobStore}
			saved, err := m.Save(ctx, Manifest{NumDocs: 3}, []Section{bytesSection("documents", []byte("v3"))})
			require.NoError(t, err)
			assert.Equal(t, uint64(3), saved.ID)

			names, err := fs.List(ctx, SnapshotDir(2))
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestSectionWriterError(t *testing.T) {
	m := NewManager(blobstore.NewMemoryStore())
	boom := errors.New("boom")

	_, err := m.Save(context.Background(), Manifest{}, []Section{{
		Name:  "documents",
		Write: func(io.Writer) error { return boom },
	}})
	require.ErrorIs(t, err, boom)

	_, err = m.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSaveRejectsBadSectionNames(t *testing.T) {
	m := NewManager(blobstore.NewMemoryStore())
	ctx := context.Background()

	for _, sections := range [][]Section{
		{bytesSection("", nil)},
		{bytesSection("a/b", nil)},
		{bytesSection("a", nil), bytesSection("a", nil)},
	} {
		_, err := m.Save(ctx, Manifest{}, sections)
		assert.Error(t, err)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*blobstore.MemoryStore, *Manifest) {
		store := blobstore.NewMemoryStore()
		man, err := NewManager(store, func(o *Options) { o.Compression = CompressionZSTD }).
			Save(ctx, Manifest{}, []Section{bytesSection("documents", payload(4096))})
		require.NoError(t, err)
		return store, man
	}

	t.Run("flipped byte", func(t *testing.T) {
		store, man := setup(t)
		require.True(t, store.Corrupt(man.Files[0].Path, 100))

		_, err := NewManager(store).Load(ctx)
		require.ErrorIs(t, err, ErrCorrupt)

		var mismatch *ChecksumMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, man.Files[0].Path, mismatch.File)
	})

	t.Run("missing section", func(t *testing.T) {
		store, man := setup(t)
		require.NoError(t, store.Delete(ctx, man.Files[0].Path))

		_, err := NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated section", func(t *testing.T) {
		store, man := setup(t)
		data, err := blobstore.ReadAll(ctx, store, man.Files[0].Path)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, man.Files[0].Path, data[:len(data)/2]))

		_, err = NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("garbled current", func(t *testing.T) {
		store, _ := setup(t)
		require.NoError(t, store.Put(ctx, CurrentFileName, []byte("not-a-manifest")))

		_, err := NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("dangling current", func(t *testing.T) {
		store, _ := setup(t)
		require.NoError(t, store.Put(ctx, CurrentFileName, []byte(ManifestName(9))))

		_, err := NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("garbled manifest", func(t *testing.T) {
		store, man := setup(t)
		require.NoError(t, store.Put(ctx, ManifestName(man.ID), []byte("{")))

		_, err := NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("future manifest version", func(t *testing.T) {
		store, man := setup(t)
		data, err := blobstore.ReadAll(ctx, store, ManifestName(man.ID))
		require.NoError(t, err)
		data = bytes.Replace(data, []byte(`"version": 1`), []byte(`"version": 99`), 1)
		require.NoError(t, store.Put(ctx, ManifestName(man.ID), data))

		_, err = NewManager(store).Load(ctx)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestParseID(t *testing.T) {
	id, ok := parseID(ManifestName(42))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	id, ok = parseID(sectionPath(7, "documents"))
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)

	_, ok = parseID("LOCK")
	assert.False(t, ok)
	_, ok = parseID("MANIFEST-abc.json")
	assert.False(t, ok)
}

func TestChecksumWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := NewChecksumWriter(&buf)
	_, err := cw.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = cw.Write([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, int64(11), cw.Size())
	assert.Equal(t, Checksum([]byte("hello world")), cw.Sum())
}
