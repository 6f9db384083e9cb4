// Package binio implements the little-endian primitives used by every
// on-disk section (document table, flat matrix, graph). Writers and readers
// carry a sticky error so encoders can be written as straight-line code and
// checked once at the end.
package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxSliceLen bounds length prefixes read from disk so that a corrupt
// length cannot trigger a huge allocation.
const MaxSliceLen = 1 << 31

// ErrInvalidLength is returned when a length prefix exceeds MaxSliceLen.
var ErrInvalidLength = errors.New("binio: invalid length prefix")

// Writer writes little-endian values to an io.Writer.
type Writer struct {
	w   io.Writer
	n   int64
	err error
	buf [8]byte
}

// NewWriter creates a new Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered.
func (bw *Writer) Err() error { return bw.err }

// N returns the number of bytes written so far.
func (bw *Writer) N() int64 { return bw.n }

func (bw *Writer) write(p []byte) {
	if bw.err != nil {
		return
	}
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	bw.err = err
}

// Uint8 writes a single byte.
func (bw *Writer) Uint8(v uint8) {
	bw.buf[0] = v
	bw.write(bw.buf[:1])
}

// Bool writes a boolean as one byte.
func (bw *Writer) Bool(v bool) {
	if v {
		bw.Uint8(1)
		return
	}
	bw.Uint8(0)
}

// Uint16 writes a uint16.
func (bw *Writer) Uint16(v uint16) {
	binary.LittleEndian.PutUint16(bw.buf[:2], v)
	bw.write(bw.buf[:2])
}

// Uint32 writes a uint32.
func (bw *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	bw.write(bw.buf[:4])
}

// Uint64 writes a uint64.
func (bw *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(bw.buf[:8], v)
	bw.write(bw.buf[:8])
}

// Int64 writes an int64.
func (bw *Writer) Int64(v int64) { bw.Uint64(uint64(v)) }

// Float64 writes the IEEE 754 bits of v.
func (bw *Writer) Float64(v float64) { bw.Uint64(math.Float64bits(v)) }

// Float32s writes the raw components of v without a length prefix.
func (bw *Writer) Float32s(v []float32) {
	if bw.err != nil || len(v) == 0 {
		return
	}
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	bw.write(b)
}

// Uint32s writes a length-prefixed uint32 slice.
func (bw *Writer) Uint32s(v []uint32) {
	bw.Uint32(uint32(len(v)))
	if bw.err != nil || len(v) == 0 {
		return
	}
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], x)
	}
	bw.write(b)
}

// Bytes writes a length-prefixed byte slice.
func (bw *Writer) Bytes(p []byte) {
	bw.Uint32(uint32(len(p)))
	bw.write(p)
}

// String writes a length-prefixed string.
func (bw *Writer) String(s string) {
	bw.Bytes([]byte(s))
}

// Reader reads little-endian values from an io.Reader.
type Reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

// NewReader creates a new Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first error encountered. A short read is reported as
// io.ErrUnexpectedEOF.
func (br *Reader) Err() error { return br.err }

// Fail records err unless an earlier error is already recorded.
func (br *Reader) Fail(err error) {
	if br.err == nil {
		br.err = err
	}
}

func (br *Reader) read(p []byte) bool {
	if br.err != nil {
		return false
	}
	if _, err := io.ReadFull(br.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		br.err = err
		return false
	}
	return true
}

// Uint8 reads a single byte.
func (br *Reader) Uint8() uint8 {
	if !br.read(br.buf[:1]) {
		return 0
	}
	return br.buf[0]
}

// Bool reads a boolean.
func (br *Reader) Bool() bool { return br.Uint8() != 0 }

// Uint16 reads a uint16.
func (br *Reader) Uint16() uint16 {
	if !br.read(br.buf[:2]) {
		return 0
	}
	return binary.LittleEndian.Uint16(br.buf[:2])
}

// Uint32 reads a uint32.
func (br *Reader) Uint32() uint32 {
	if !br.read(br.buf[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(br.buf[:4])
}

// Uint64 reads a uint64.
func (br *Reader) Uint64() uint64 {
	if !br.read(br.buf[:8]) {
		return 0
	}
	return binary.LittleEndian.Uint64(br.buf[:8])
}

// Int64 reads an int64.
func (br *Reader) Int64() int64 { return int64(br.Uint64()) }

// Float64 reads a value written by Writer.Float64.
func (br *Reader) Float64() float64 { return math.Float64frombits(br.Uint64()) }

// Len reads a uint32 length prefix and validates it against limit.
func (br *Reader) Len(limit int) int {
	n := br.Uint32()
	if br.err != nil {
		return 0
	}
	if int64(n) > int64(limit) {
		br.err = fmt.Errorf("%w: %d > %d", ErrInvalidLength, n, limit)
		return 0
	}
	return int(n)
}

// Float32s reads n raw float32 values.
func (br *Reader) Float32s(n int) []float32 {
	if br.err != nil {
		return nil
	}
	if n < 0 || n > MaxSliceLen/4 {
		br.err = fmt.Errorf("%w: %d floats", ErrInvalidLength, n)
		return nil
	}
	b := make([]byte, 4*n)
	if !br.read(b) {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// Uint32s reads a length-prefixed uint32 slice.
func (br *Reader) Uint32s() []uint32 {
	n := br.Len(MaxSliceLen / 4)
	if br.err != nil {
		return nil
	}
	b := make([]byte, 4*n)
	if !br.read(b) {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out
}

// Bytes reads a length-prefixed byte slice.
func (br *Reader) Bytes() []byte {
	n := br.Len(MaxSliceLen)
	if br.err != nil {
		return nil
	}
	b := make([]byte, n)
	if !br.read(b) {
		return nil
	}
	return b
}

// String reads a length-prefixed string.
func (br *Reader) String() string {
	return string(br.Bytes())
}
