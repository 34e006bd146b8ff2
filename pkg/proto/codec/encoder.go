package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
)

// Encoder is the write-side of the C1 stack: it takes a typed Packet or
// raw payload bytes, resolves the wire packet id via the active state
// registry, optionally compresses, optionally encrypts, and frames the
// result.
type Encoder struct {
	mu sync.Mutex

	dir        proto.Direction
	w          io.Writer
	protocol   proto.Protocol
	state      *state.Registry
	compressor *Compressor // nil until SetCompression is called
}

func NewEncoder(w io.Writer, dir proto.Direction) *Encoder {
	return &Encoder{w: w, dir: dir, state: &state.Handshake, protocol: proto.Minecraft_1_7_2}
}

func (e *Encoder) SetProtocol(p proto.Protocol) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.protocol = p
}

func (e *Encoder) SetState(s *state.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// SetWriter swaps the underlying writer, used once to install the AES
// cipher after EncryptionResponse (spec: "Init occurs exactly once").
func (e *Encoder) SetWriter(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.w = w
}

// SetCompression enables threshold-gated zlib framing.
func (e *Encoder) SetCompression(threshold, level int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compressor = &Compressor{Threshold: threshold, Level: level}
	return nil
}

// WritePacket encodes a typed packet: it resolves the packet's wire id
// for the current state/direction/protocol, marshals its payload via
// the function table in pkg/proto, prefixes the id, and hands the
// result to Write.
func (e *Encoder) WritePacket(p proto.Packet) (int, error) {
	e.mu.Lock()
	s, dir, v := e.state, e.dir, e.protocol
	e.mu.Unlock()

	id, ok := s.EncodeID(p.ID(), dir, v)
	if !ok {
		return 0, proto.ErrUnknownPacketForState
	}
	var body bytes.Buffer
	if err := WriteVarInt(&body, int32(id)); err != nil {
		return 0, err
	}
	if err := proto.Marshal(&body, p, v); err != nil {
		return 0, err
	}
	return e.Write(body.Bytes())
}

// Write frames a raw payload (leading VarInt packet id + data) through
// the compression and cipher layers.
func (e *Encoder) Write(payload []byte) (int, error) {
	e.mu.Lock()
	compressor := e.compressor
	w := e.w
	e.mu.Unlock()

	body := payload
	if compressor != nil {
		compressed, err := compressor.Compress(payload)
		if err != nil {
			return 0, err
		}
		body = compressed
	}
	if err := WriteFrame(w, body); err != nil {
		return 0, err
	}
	return len(payload), nil
}

// Sync flushes the underlying buffered writer while holding the
// encoder's lock, so a concurrent WritePacket cannot interleave bytes
// with an in-progress flush.
func (e *Encoder) Sync(flush func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return flush()
}
