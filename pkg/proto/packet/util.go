// Package packet implements the typed packets enumerated in spec §2
// and §4.2: the small set of semantically-typed packets the core must
// inspect. Every other packet id is forwarded as opaque bytes and never
// needs a type here.
package packet

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/fleetgate/fleetgate/pkg/proto/codec"
)

// ErrMalformedPacket is returned by Unmarshal functions on structurally
// invalid input (wrong length, negative string length, etc).
var ErrMalformedPacket = errors.New("packet: malformed payload")

// MaxServerBoundMessageLength is the historical vanilla serverbound
// chat message length cap, referenced directly by spec §4.3's chat
// handling.
const MaxServerBoundMessageLength = 256

func readString(r io.Reader, maxLen int) (string, error) {
	n, err := codec.ReadVarInt(byteReaderOf(r))
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > maxLen*4 {
		return "", ErrMalformedPacket
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := codec.WriteVarInt(byteWriterOf(w), int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarInt(r io.Reader) (int32, error) { return codec.ReadVarInt(byteReaderOf(r)) }
func writeVarInt(w io.Writer, n int32) error { return codec.WriteVarInt(byteWriterOf(w), n) }

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func readLong(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeLong(w io.Writer, v int64) error {
	return binary.Write(w, binary.BigEndian, v)
}

func readUnsignedShort(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeUnsignedShort(w io.Writer, v uint16) error {
	return binary.Write(w, binary.BigEndian, v)
}

func readByteArray(r io.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrMalformedPacket
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeByteArray(w io.Writer, b []byte) error {
	if err := writeVarInt(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// byteReaderOf adapts an io.Reader to io.ByteReader when it isn't
// already one, as codec.ReadVarInt requires ReadByte.
func byteReaderOf(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &singleByteReader{r: r}
}

type singleByteReader struct{ r io.Reader }

func (s *singleByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(s.r, b[:])
	return b[0], err
}

func byteWriterOf(w io.Writer) io.ByteWriter {
	if bw, ok := w.(io.ByteWriter); ok {
		return bw
	}
	return &singleByteWriter{w: w}
}

type singleByteWriter struct{ w io.Writer }

func (s *singleByteWriter) WriteByte(b byte) error {
	_, err := s.w.Write([]byte{b})
	return err
}
