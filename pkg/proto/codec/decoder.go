package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
)

// ErrDecoderLeftBytes is returned (non-fatally) when a frame decodes
// successfully but leaves trailing bytes unconsumed by the typed
// packet's unmarshal - typically a version skew the catalog doesn't
// yet know about. The connection's read loop treats it as
// recoverable, matching the teacher's handling of the same condition.
var ErrDecoderLeftBytes = errors.New("codec: decoder left unread bytes in frame")

// Decoder is the read-side of the C1 stack.
type Decoder struct {
	mu sync.Mutex

	dir        proto.Direction
	r          *bufio.Reader
	protocol   proto.Protocol
	state      *state.Registry
	compressor *Compressor
	maxFrame   int
	logFields  func() []interface{}
}

func NewDecoder(r *bufio.Reader, dir proto.Direction, logFields func() []interface{}) *Decoder {
	return &Decoder{
		r: r, dir: dir, state: &state.Handshake, protocol: proto.Minecraft_1_7_2,
		maxFrame: DefaultMaxFrameLen, logFields: logFields,
	}
}

func (d *Decoder) SetProtocol(p proto.Protocol) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protocol = p
}

func (d *Decoder) SetState(s *state.Registry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Decoder) SetReader(r io.Reader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.r = bufio.NewReader(r)
}

func (d *Decoder) SetCompressionThreshold(threshold int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compressor = &Compressor{Threshold: threshold}
}

// ReadPacket reads exactly one frame, decompresses it if applicable,
// resolves its wire id to a logical kind via the active state
// registry, and - for recognized kinds - decodes the typed Packet.
// Unrecognized kinds are returned with KnownPacket=false so the caller
// forwards them verbatim.
func (d *Decoder) ReadPacket() (*proto.PacketContext, error) {
	d.mu.Lock()
	maxFrame := d.maxFrame
	compressor := d.compressor
	s, dir, v := d.state, d.dir, d.protocol
	r := d.r
	d.mu.Unlock()

	frame, err := ReadFrame(r, maxFrame)
	if err != nil {
		return nil, err
	}
	body := frame
	if compressor != nil {
		body, err = compressor.Decompress(frame)
		if err != nil {
			return nil, err
		}
	}

	br := bytes.NewReader(body)
	wireID, err := ReadVarInt(br)
	if err != nil {
		return nil, err
	}

	kind, known := s.DecodeKind(int(wireID), dir, v)
	ctx := &proto.PacketContext{
		WireID:      int(wireID),
		KnownPacket: known,
		Kind:        kind,
		Payload:     body,
	}
	if !known {
		return ctx, nil
	}

	p, err := proto.Unmarshal(kind, br, v)
	if err != nil {
		return nil, err
	}
	ctx.Packet = p
	if br.Len() > 0 {
		// Recoverable: log and continue using the decoded packet as-is.
		return ctx, ErrDecoderLeftBytes
	}
	return ctx, nil
}
