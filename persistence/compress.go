package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how snapshot sections are stored.
type Compression uint8

const (
	// CompressionNone stores sections as is.
	CompressionNone Compression = iota
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD
)

// String returns the manifest name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression is the inverse of Compression.String. The empty string
// means none.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("persistence: unknown compression %q", name)
	}
}

// Sections are split into blocks of at most blockSize uncompressed bytes.
// Each block is [uncompressed u32][compressed u32][payload]; a compressed
// size of 0 marks a block stored raw.
const (
	blockSize       = 1 << 20
	blockHeaderSize = 8
)

var errBlockTruncated = errors.New("compressed block truncated")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

// compress encodes data as a sequence of blocks. CompressionNone returns
// data unchanged.
func compress(data []byte, c Compression) ([]byte, error) {
	if c == CompressionNone {
		return data, nil
	}

	out := make([]byte, 0, len(data)/2+blockHeaderSize)
	for off := 0; off < len(data); off += blockSize {
		end := min(off+blockSize, len(data))

		var err error
		if out, err = appendBlock(out, data[off:end], c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendBlock(dst, block []byte, c Compression) ([]byte, error) {
	var packed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(block)))
		n, err := lz4.CompressBlock(block, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(block, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("persistence: unknown compression %d", c)
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(block)))

	// Incompressible blocks are kept raw.
	if len(packed) == 0 || len(packed) >= len(block) {
		dst = append(dst, hdr[:]...)
		return append(dst, block...), nil
	}

	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(packed)))
	dst = append(dst, hdr[:]...)
	return append(dst, packed...), nil
}

// decompress reverses compress.
func decompress(data []byte, c Compression) ([]byte, error) {
	if c == CompressionNone {
		return data, nil
	}

	var out []byte
	for len(data) > 0 {
		if len(data) < blockHeaderSize {
			return nil, errBlockTruncated
		}
		rawSize := binary.LittleEndian.Uint32(data[0:])
		packedSize := binary.LittleEndian.Uint32(data[4:])
		data = data[blockHeaderSize:]

		if rawSize > blockSize {
			return nil, fmt.Errorf("block size %d exceeds %d", rawSize, blockSize)
		}

		if packedSize == 0 {
			if uint32(len(data)) < rawSize {
				return nil, errBlockTruncated
			}
			out = append(out, data[:rawSize]...)
			data = data[rawSize:]
			continue
		}

		if uint32(len(data)) < packedSize {
			return nil, errBlockTruncated
		}
		block, err := decodeBlock(data[:packedSize], int(rawSize), c)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		data = data[packedSize:]
	}

	if out == nil {
		out = []byte{}
	}
	return out, nil
}

func decodeBlock(packed []byte, rawSize int, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		buf := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(packed, buf)
		if err != nil {
			return nil, err
		}
		if n != rawSize {
			return nil, io.ErrUnexpectedEOF
		}
		return buf, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		buf, err := dec.DecodeAll(packed, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if len(buf) != rawSize {
			return nil, io.ErrUnexpectedEOF
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("persistence: unknown compression %d", c)
	}
}
