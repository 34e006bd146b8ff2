package proto

import (
	"errors"
	"io"
)

// ErrUnknownPacketForState is returned when a typed packet's kind has
// no wire id registered for the connection's current state/direction.
var ErrUnknownPacketForState = errors.New("proto: packet has no id for this state/direction/version")

// MarshalFunc encodes a typed packet's payload (everything after the
// packet-id VarInt) for wire version v.
type MarshalFunc func(w io.Writer, p Packet, v Protocol) error

// UnmarshalFunc decodes a typed packet's payload for wire version v.
type UnmarshalFunc func(r io.Reader, v Protocol) (Packet, error)

var (
	marshalFuncs   = map[PacketID]MarshalFunc{}
	unmarshalFuncs = map[PacketID]UnmarshalFunc{}
)

// RegisterCodec is called from pkg/proto/packet's init() to register a
// typed packet's marshal/unmarshal functions against its logical kind,
// keeping proto free of a direct dependency on the packet package while
// still letting Encoder/Decoder dispatch generically.
func RegisterCodec(kind PacketID, m MarshalFunc, u UnmarshalFunc) {
	marshalFuncs[kind] = m
	unmarshalFuncs[kind] = u
}

func Marshal(w io.Writer, p Packet, v Protocol) error {
	fn, ok := marshalFuncs[p.ID()]
	if !ok {
		return ErrUnknownPacketForState
	}
	return fn(w, p, v)
}

func Unmarshal(kind PacketID, r io.Reader, v Protocol) (Packet, error) {
	fn, ok := unmarshalFuncs[kind]
	if !ok {
		return nil, ErrUnknownPacketForState
	}
	return fn(r, v)
}
