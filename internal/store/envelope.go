package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4 envelope: 8-byte magic + 4-byte LE uint32 uncompressed size + lz4
// block data. The same framing Mozilla uses for session stores, with our
// own magic so plain values can never be mistaken for compressed ones.
var envelopeMagic = []byte("twLz4b0\x00")

const (
	envelopeHeaderSize = 12 // 8 magic + 4 size

	// Values below this size are stored as-is; compressing tiny JSON
	// blobs costs more than it saves.
	compressThreshold = 4096
)

// encodeValue wraps value in an lz4 envelope when it is large enough and
// compression actually shrinks it. Otherwise the value passes through.
func encodeValue(value []byte) []byte {
	if len(value) < compressThreshold {
		return value
	}
	buf := make([]byte, lz4.CompressBlockBound(len(value)))
	var c lz4.Compressor
	n, err := c.CompressBlock(value, buf)
	if err != nil || n == 0 || envelopeHeaderSize+n >= len(value) {
		return value
	}
	out := make([]byte, 0, envelopeHeaderSize+n)
	out = append(out, envelopeMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(value)))
	out = append(out, buf[:n]...)
	return out
}

// decodeValue unwraps an lz4 envelope. Values without the magic header
// pass through untouched.
func decodeValue(value []byte) ([]byte, error) {
	if len(value) < envelopeHeaderSize || !bytes.Equal(value[:8], envelopeMagic) {
		return value, nil
	}
	uncompressedSize := binary.LittleEndian.Uint32(value[8:12])
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(value[envelopeHeaderSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("decompress value: %w", err)
	}
	return dst[:n], nil
}
