package docstore

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/internal/binio"
	"github.com/hupe1980/unibase/model"
)

const (
	// Magic opens a serialized document table ("UBDS").
	Magic uint32 = 0x53444255

	// FormatVersion is the current document table version. Version 1 tables
	// stored scalar fields as one codec blob per document and are still read.
	FormatVersion uint16 = 2

	formatVersionCodecFields uint16 = 1
)

// WriteTo writes the table using codec.Default for scalar fields.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	return s.Save(w, codec.Default)
}

// Save writes the table as: header, codec name, schema, row count, live-row
// bitmap, then every live document in ascending row order. Scalar fields
// are written with their kinds and c encodes values of any other type;
// embeddings are stored raw.
func (s *Store) Save(w io.Writer, c codec.Codec) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, err := s.live.ToBytes()
	if err != nil {
		return 0, fmt.Errorf("docstore: encode live rows: %w", err)
	}

	bw := binio.NewWriter(w)
	bw.Uint32(Magic)
	bw.Uint16(FormatVersion)
	bw.String(c.Name())

	fields := slices.Sorted(maps.Keys(s.dims))
	bw.Uint32(uint32(len(fields)))
	for _, f := range fields {
		bw.String(f)
		bw.Uint32(uint32(s.dims[f]))
	}

	bw.Uint32(uint32(len(s.docs)))
	bw.Bytes(bm)

	it := s.live.Iterator()
	for it.HasNext() {
		doc := s.docs[it.Next()]

		bw.String(doc.ID)
		if err := writeFields(bw, c, doc.Fields); err != nil {
			return bw.N(), fmt.Errorf("docstore: encode fields of %q: %w", doc.ID, err)
		}
		for _, f := range fields {
			bw.Float32s(doc.Embeddings[f])
		}
	}

	return bw.N(), bw.Err()
}

// Load reads a table written by Save. The scalar field codec is taken from
// the table itself.
func Load(r io.Reader) (*Store, error) {
	br := binio.NewReader(r)

	magic := br.Uint32()
	version := br.Uint16()
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: magic 0x%08x", ErrBadHeader, magic)
	}
	if version != FormatVersion && version != formatVersionCodecFields {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, version)
	}

	name := br.String()
	c, ok := codec.ByName(name)
	if br.Err() == nil && !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrBadHeader, name)
	}

	s := New()

	nfields := br.Len(1 << 16)
	fields := make([]string, 0, nfields)
	for range nfields {
		f := br.String()
		s.dims[f] = int(br.Uint32())
		fields = append(fields, f)
	}

	nrows := int(br.Uint32())
	bm := br.Bytes()
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("docstore: read header: %w", err)
	}

	live := roaring.New()
	if err := live.UnmarshalBinary(bm); err != nil {
		return nil, fmt.Errorf("docstore: decode live rows: %w", err)
	}
	if !live.IsEmpty() && int(live.Maximum()) >= nrows {
		return nil, fmt.Errorf("%w: live row %d beyond row count %d", ErrBadHeader, live.Maximum(), nrows)
	}

	s.docs = make([]*model.Document, nrows)
	s.live = live

	it := live.Iterator()
	for it.HasNext() {
		row := it.Next()

		doc := &model.Document{ID: br.String()}

		var (
			scalars map[string]any
			err     error
		)
		if version == formatVersionCodecFields {
			scalars, err = codec.DecodeFields(c, br.Bytes())
		} else {
			scalars, err = readFields(br, c, 0)
		}
		if err != nil {
			return nil, fmt.Errorf("docstore: decode fields of %q: %w", doc.ID, err)
		}
		doc.Fields = scalars

		if len(fields) > 0 {
			doc.Embeddings = make(map[string][]float32, len(fields))
		}
		for _, f := range fields {
			doc.Embeddings[f] = br.Float32s(s.dims[f])
		}
		if err := br.Err(); err != nil {
			return nil, fmt.Errorf("docstore: read row %d: %w", row, err)
		}

		if _, dup := s.rows[doc.ID]; dup {
			return nil, fmt.Errorf("%w: id %q stored twice", ErrBadHeader, doc.ID)
		}

		s.docs[row] = doc
		s.rows[doc.ID] = row
	}

	return s, nil
}
