package flat

import (
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/unibase/distance"
	"github.com/hupe1980/unibase/index"
	"github.com/hupe1980/unibase/internal/binio"
)

// WriteTo writes the index as: header, dimension, metric, live-row bitmap,
// then the vectors of live rows in ascending row order.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bm, err := f.live.ToBytes()
	if err != nil {
		return 0, fmt.Errorf("flat: encode live rows: %w", err)
	}

	bw := binio.NewWriter(w)
	index.WriteHeader(bw, index.KindFlat)
	bw.Uint32(uint32(f.dim))
	bw.Uint8(uint8(f.opts.Metric))
	bw.Bytes(bm)

	it := f.live.Iterator()
	for it.HasNext() {
		bw.Float32s(f.row(it.Next()))
	}

	return bw.N(), bw.Err()
}

// Load reads a flat index body written by WriteTo. The header has already
// been consumed by index.Load.
func Load(r io.Reader) (index.Index, error) {
	br := binio.NewReader(r)
	dim := int(br.Uint32())
	metric := distance.Metric(br.Uint8())
	bm := br.Bytes()
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("flat: read header: %w", err)
	}

	f, err := New(dim, func(o *Options) { o.Metric = metric })
	if err != nil {
		return nil, fmt.Errorf("flat: %w", err)
	}

	live := roaring.New()
	if err := live.UnmarshalBinary(bm); err != nil {
		return nil, fmt.Errorf("flat: decode live rows: %w", err)
	}

	it := live.Iterator()
	for it.HasNext() {
		row := it.Next()
		v := br.Float32s(dim)
		if err := br.Err(); err != nil {
			return nil, fmt.Errorf("flat: read row %d: %w", row, err)
		}
		f.set(row, v)
	}

	return f, nil
}
