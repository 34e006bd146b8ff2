package packet

import (
	"io"

	"github.com/fleetgate/fleetgate/pkg/proto"
)

// NextState mirrors the client's requested next state in HandshakeC2S.
type NextState int

const (
	NextStatus   NextState = 1
	NextLogin    NextState = 2
	NextTransfer NextState = 3
)

// Handshake is HandshakeC2S from spec §4.2.
type Handshake struct {
	ProtocolVersion proto.Protocol
	ServerAddress   string
	Port            uint16
	NextState       NextState
}

func (*Handshake) ID() proto.PacketID { return proto.IDHandshake }

func init() {
	proto.RegisterCodec(proto.IDHandshake, marshalHandshake, unmarshalHandshake)
}

func marshalHandshake(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	h := p.(*Handshake)
	if err := writeVarInt(w, int32(h.ProtocolVersion)); err != nil {
		return err
	}
	if err := writeString(w, h.ServerAddress); err != nil {
		return err
	}
	if err := writeUnsignedShort(w, h.Port); err != nil {
		return err
	}
	return writeVarInt(w, int32(h.NextState))
}

func unmarshalHandshake(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	v, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	addr, err := readString(r, 255)
	if err != nil {
		return nil, err
	}
	port, err := readUnsignedShort(r)
	if err != nil {
		return nil, err
	}
	next, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	return &Handshake{
		ProtocolVersion: proto.Protocol(v),
		ServerAddress:   addr,
		Port:            port,
		NextState:       NextState(next),
	}, nil
}
