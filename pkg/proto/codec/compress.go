package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// maxUncompressedSize bounds the claimed uncompressed length of an
// incoming compressed frame, preventing a zip-bomb style frame from
// allocating unbounded memory before decompression even starts.
const maxUncompressedSize = 16 * 1024 * 1024

var (
	ErrBadUncompressedSize = errors.New("codec: claimed uncompressed size exceeds sanity cap")
	ErrSizeMismatch        = errors.New("codec: decompressed size does not match declared length")
)

// Compressor applies the threshold-gated zlib framing of spec §4.1: a
// frame is VarInt(uncompressedLen) | body, where uncompressedLen == 0
// means body is raw, otherwise body is zlib-deflated.
//
// compress/zlib is the standard library's only DEFLATE implementation
// and is what every JVM Minecraft implementation's wire format is
// defined against; no third-party compressor in the example pack
// targets this exact zlib framing, so stdlib is correct here (see
// DESIGN.md).
type Compressor struct {
	Threshold int // -1 disables compression
	Level     int
}

// Compress returns the on-wire body (uncompressedLen prefix + payload)
// for a decoded packet payload of threshold-gated length.
func (c *Compressor) Compress(payload []byte) ([]byte, error) {
	var out bytes.Buffer
	if c.Threshold < 0 || len(payload) < c.Threshold {
		if err := WriteVarInt(&out, 0); err != nil {
			return nil, err
		}
		out.Write(payload)
		return out.Bytes(), nil
	}
	if err := WriteVarInt(&out, int32(len(payload))); err != nil {
		return nil, err
	}
	level := c.Level
	if level < -2 || level > 9 {
		level = zlib.DefaultCompression
	}
	zw, err := zlib.NewWriterLevel(&out, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decompress parses a threshold-framed body back into the original
// packet payload, validating the declared uncompressed length both
// before and after inflating.
func (c *Compressor) Decompress(body []byte) ([]byte, error) {
	r := bytes.NewReader(body)
	uncompressedLen, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if uncompressedLen == 0 {
		rest := make([]byte, r.Len())
		_, _ = io.ReadFull(r, rest)
		return rest, nil
	}
	if uncompressedLen < 0 || uncompressedLen > maxUncompressedSize {
		return nil, ErrBadUncompressedSize
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out := make([]byte, uncompressedLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	// Confirm there is no trailing data beyond the declared length.
	var extra [1]byte
	if n, _ := zr.Read(extra[:]); n != 0 {
		return nil, ErrSizeMismatch
	}
	return out, nil
}
