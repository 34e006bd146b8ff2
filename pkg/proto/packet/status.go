package packet

import (
	"io"

	"github.com/fleetgate/fleetgate/pkg/proto"
)

// StatusRequest is StatusRequestC2S; it carries no fields.
type StatusRequest struct{}

func (*StatusRequest) ID() proto.PacketID { return proto.IDStatusRequest }

// StatusResponse is StatusResponseS2C: the raw server-list-ping JSON
// document (spec §4.3 STATUS). The core only composes this string; it
// never needs to parse it structurally.
type StatusResponse struct {
	JSON string
}

func (*StatusResponse) ID() proto.PacketID { return proto.IDStatusResponse }

// PingRequest/PingResponse are the ping/pong pair used to measure
// round-trip time in the server list.
type PingRequest struct {
	Payload int64
}

func (*PingRequest) ID() proto.PacketID { return proto.IDPingRequest }

type PingResponse struct {
	Payload int64
}

func (*PingResponse) ID() proto.PacketID { return proto.IDPingResponse }

func init() {
	proto.RegisterCodec(proto.IDStatusRequest, marshalStatusRequest, unmarshalStatusRequest)
	proto.RegisterCodec(proto.IDStatusResponse, marshalStatusResponse, unmarshalStatusResponse)
	proto.RegisterCodec(proto.IDPingRequest, marshalPing, unmarshalPing)
	proto.RegisterCodec(proto.IDPingResponse, marshalPong, unmarshalPong)
}

func marshalStatusRequest(io.Writer, proto.Packet, proto.Protocol) error { return nil }

func unmarshalStatusRequest(io.Reader, proto.Protocol) (proto.Packet, error) {
	return &StatusRequest{}, nil
}

func marshalStatusResponse(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	return writeString(w, p.(*StatusResponse).JSON)
}

func unmarshalStatusResponse(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	s, err := readString(r, 1<<18)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{JSON: s}, nil
}

func marshalPing(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	return writeLong(w, p.(*PingRequest).Payload)
}

func unmarshalPing(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	v, err := readLong(r)
	if err != nil {
		return nil, err
	}
	return &PingRequest{Payload: v}, nil
}

func marshalPong(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	return writeLong(w, p.(*PingResponse).Payload)
}

func unmarshalPong(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	v, err := readLong(r)
	if err != nil {
		return nil, err
	}
	return &PingResponse{Payload: v}, nil
}
