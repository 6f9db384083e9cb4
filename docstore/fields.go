package docstore

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/unibase/codec"
	"github.com/hupe1980/unibase/internal/binio"
)

// Scalar field values are written as a kind byte followed by the payload,
// so a restored document carries the same Go types it was indexed with.
// Values of any other type go through the table's codec and restore as
// whatever the codec decodes them to.
const (
	kindNil uint8 = iota
	kindString
	kindBool
	kindInt
	kindInt8
	kindInt16
	kindInt32
	kindInt64
	kindUint
	kindUint8
	kindUint16
	kindUint32
	kindUint64
	kindFloat32
	kindFloat64
	kindBytes
	kindStrings
	kindInts
	kindInt64s
	kindFloat32s
	kindFloat64s
	kindList
	kindMap
	kindCodec uint8 = 0xFF
)

const (
	// maxNesting bounds list and map nesting on read.
	maxNesting = 64
	// maxListLen bounds the element count of one list or map on read.
	maxListLen = 1 << 24
)

func writeFields(bw *binio.Writer, c codec.Codec, fields map[string]any) error {
	bw.Uint32(uint32(len(fields)))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		bw.String(k)
		if err := writeValue(bw, c, fields[k]); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	return bw.Err()
}

func writeValue(bw *binio.Writer, c codec.Codec, v any) error {
	switch x := v.(type) {
	case nil:
		bw.Uint8(kindNil)
	case string:
		bw.Uint8(kindString)
		bw.String(x)
	case bool:
		bw.Uint8(kindBool)
		bw.Bool(x)
	case int:
		bw.Uint8(kindInt)
		bw.Int64(int64(x))
	case int8:
		bw.Uint8(kindInt8)
		bw.Int64(int64(x))
	case int16:
		bw.Uint8(kindInt16)
		bw.Int64(int64(x))
	case int32:
		bw.Uint8(kindInt32)
		bw.Int64(int64(x))
	case int64:
		bw.Uint8(kindInt64)
		bw.Int64(x)
	case uint:
		bw.Uint8(kindUint)
		bw.Uint64(uint64(x))
	case uint8:
		bw.Uint8(kindUint8)
		bw.Uint64(uint64(x))
	case uint16:
		bw.Uint8(kindUint16)
		bw.Uint64(uint64(x))
	case uint32:
		bw.Uint8(kindUint32)
		bw.Uint64(uint64(x))
	case uint64:
		bw.Uint8(kindUint64)
		bw.Uint64(x)
	case float32:
		bw.Uint8(kindFloat32)
		bw.Float32s([]float32{x})
	case float64:
		bw.Uint8(kindFloat64)
		bw.Float64(x)
	case []byte:
		bw.Uint8(kindBytes)
		bw.Bytes(x)
	case []string:
		bw.Uint8(kindStrings)
		bw.Uint32(uint32(len(x)))
		for _, s := range x {
			bw.String(s)
		}
	case []int:
		bw.Uint8(kindInts)
		bw.Uint32(uint32(len(x)))
		for _, n := range x {
			bw.Int64(int64(n))
		}
	case []int64:
		bw.Uint8(kindInt64s)
		bw.Uint32(uint32(len(x)))
		for _, n := range x {
			bw.Int64(n)
		}
	case []float32:
		bw.Uint8(kindFloat32s)
		bw.Uint32(uint32(len(x)))
		bw.Float32s(x)
	case []float64:
		bw.Uint8(kindFloat64s)
		bw.Uint32(uint32(len(x)))
		for _, f := range x {
			bw.Float64(f)
		}
	case []any:
		bw.Uint8(kindList)
		bw.Uint32(uint32(len(x)))
		for i, e := range x {
			if err := writeValue(bw, c, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case map[string]any:
		bw.Uint8(kindMap)
		if err := writeFields(bw, c, x); err != nil {
			return err
		}
	default:
		data, err := c.Marshal(x)
		if err != nil {
			return err
		}
		bw.Uint8(kindCodec)
		bw.Bytes(data)
	}
	return bw.Err()
}

func readFields(br *binio.Reader, c codec.Codec, depth int) (map[string]any, error) {
	n := br.Len(maxListLen)
	if err := br.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	fields := make(map[string]any, n)
	for range n {
		k := br.String()
		v, err := readValue(br, c, depth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = v
	}
	return fields, nil
}

func readValue(br *binio.Reader, c codec.Codec, depth int) (any, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrBadHeader, maxNesting)
	}

	kind := br.Uint8()
	if err := br.Err(); err != nil {
		return nil, err
	}

	var v any
	switch kind {
	case kindNil:
	case kindString:
		v = br.String()
	case kindBool:
		v = br.Bool()
	case kindInt:
		v = int(br.Int64())
	case kindInt8:
		v = int8(br.Int64())
	case kindInt16:
		v = int16(br.Int64())
	case kindInt32:
		v = int32(br.Int64())
	case kindInt64:
		v = br.Int64()
	case kindUint:
		v = uint(br.Uint64())
	case kindUint8:
		v = uint8(br.Uint64())
	case kindUint16:
		v = uint16(br.Uint64())
	case kindUint32:
		v = uint32(br.Uint64())
	case kindUint64:
		v = br.Uint64()
	case kindFloat32:
		if f := br.Float32s(1); len(f) == 1 {
			v = f[0]
		}
	case kindFloat64:
		v = br.Float64()
	case kindBytes:
		v = br.Bytes()
	case kindStrings:
		out := make([]string, br.Len(maxListLen))
		for i := range out {
			out[i] = br.String()
		}
		v = out
	case kindInts:
		out := make([]int, br.Len(maxListLen))
		for i := range out {
			out[i] = int(br.Int64())
		}
		v = out
	case kindInt64s:
		out := make([]int64, br.Len(maxListLen))
		for i := range out {
			out[i] = br.Int64()
		}
		v = out
	case kindFloat32s:
		n := br.Len(maxListLen)
		out := br.Float32s(n)
		if out == nil {
			out = []float32{}
		}
		v = out
	case kindFloat64s:
		out := make([]float64, br.Len(maxListLen))
		for i := range out {
			out[i] = br.Float64()
		}
		v = out
	case kindList:
		out := make([]any, br.Len(maxListLen))
		for i := range out {
			e, err := readValue(br, c, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = e
		}
		v = out
	case kindMap:
		m, err := readFields(br, c, depth+1)
		if err != nil {
			return nil, err
		}
		if m == nil {
			m = map[string]any{}
		}
		v = m
	case kindCodec:
		data := br.Bytes()
		if err := br.Err(); err != nil {
			return nil, err
		}
		if err := c.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown field kind %d", ErrBadHeader, kind)
	}
	return v, br.Err()
}
