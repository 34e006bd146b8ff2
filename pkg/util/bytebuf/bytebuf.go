// Package bytebuf implements the subset of Java's DataOutputStream wire
// format that BungeeCord plugin-message bodies use: a UTF-8 string
// prefixed with an unsigned 16-bit length, plus big-endian fixed-width
// integers. The BungeeCord channel is bit-exact at this layer so that
// third-party plugins expecting Bungee's ByteBufDataOutput keep working
// unmodified (spec §4.9).
package bytebuf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/fleetgate/fleetgate/pkg/proto/codec"
)

// Writer accumulates a BungeeCord-compatible plugin message body.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// UTF writes a Java "modified UTF-8" string. ASCII/Latin payloads (all
// that this proxy's sub-channels carry) are identical to plain UTF-8.
func (w *Writer) UTF(s string) *Writer {
	b := []byte(s)
	_ = binary.Write(&w.buf, binary.BigEndian, uint16(len(b)))
	w.buf.Write(b)
	return w
}

func (w *Writer) Byte(v byte) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) Boolean(v bool) *Writer {
	if v {
		return w.Byte(1)
	}
	return w.Byte(0)
}

func (w *Writer) Short(v int16) *Writer {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

func (w *Writer) Int(v int32) *Writer {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

func (w *Writer) Long(v int64) *Writer {
	_ = binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

func (w *Writer) Bytes_(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

// Raw appends b verbatim, for composing an already-built sub-payload
// (used by modern player-info forwarding to append the signed body
// after its HMAC).
func (w *Writer) Raw(b []byte) *Writer { return w.Bytes_(b) }

// VarInt writes a Minecraft-protocol VarInt, for the modern
// player-info forwarding payload which borrows the wire protocol's
// integer encoding rather than Bungee's fixed-width one (spec §4.4.5).
func (w *Writer) VarInt(v int32) *Writer {
	_ = codec.WriteVarInt(&w.buf, v)
	return w
}

// Reader reads a BungeeCord-compatible plugin message body.
type Reader struct {
	r *bytes.Reader
}

func NewReader(data []byte) *Reader { return &Reader{r: bytes.NewReader(data)} }

var ErrShortBuffer = errors.New("bytebuf: short buffer")

func (r *Reader) UTF() (string, error) {
	var n uint16
	if err := binary.Read(r.r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", ErrShortBuffer
	}
	return string(buf), nil
}

func (r *Reader) Byte() (byte, error)    { return r.r.ReadByte() }
func (r *Reader) Boolean() (bool, error) { b, err := r.Byte(); return b != 0, err }

func (r *Reader) Short() (int16, error) {
	var v int16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) Int() (int32, error) {
	var v int32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

// VarInt reads a Minecraft-protocol VarInt (see Writer.VarInt).
func (r *Reader) VarInt() (int32, error) {
	return codec.ReadVarInt(r.r)
}

// Bytes_ reads exactly n raw bytes.
func (r *Reader) Bytes_(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, ErrShortBuffer
	}
	return buf, nil
}

// Remaining returns the number of unread bytes left in the buffer.
func (r *Reader) Remaining() int { return r.r.Len() }

// RemainingBytes drains and returns every unread byte.
func (r *Reader) RemainingBytes() []byte {
	rest := make([]byte, r.r.Len())
	_, _ = r.r.Read(rest)
	return rest
}
