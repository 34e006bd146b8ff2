package packet

import (
	"io"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proto"
)

// LoginDisconnect is DisconnectS2C as sent during LOGIN; it shares
// Disconnect's JSON-text wire format but needs its own ID() since the
// LOGIN state registry maps a distinct packet id for it.
type LoginDisconnect struct {
	Reason *component.Holder
}

func (*LoginDisconnect) ID() proto.PacketID { return proto.IDLoginDisconnect }

// LoginDisconnectWithProtocol builds a LoginDisconnect packet, mirroring
// DisconnectWithProtocol's deferred component encoding choice.
func LoginDisconnectWithProtocol(reason component.Component, _ proto.Protocol) *LoginDisconnect {
	return &LoginDisconnect{Reason: component.FromComponent(reason)}
}

// LoginStart is LoginStartC2S: {username, uuid?} (uuid present from a
// version onward per spec §4.2).
type LoginStart struct {
	Username string
	UUID     uuid.UUID
	HasUUID  bool
}

func (*LoginStart) ID() proto.PacketID { return proto.IDLoginStart }

// EncryptionRequest is EncryptionRequestS2C: ephemeral RSA-1024 public
// key (DER-encoded), 4-byte verify token and an opaque server id
// (always empty string for online-mode Minecraft since 1.7).
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (*EncryptionRequest) ID() proto.PacketID { return proto.IDEncryptionRequest }

// EncryptionResponse is EncryptionResponseC2S: the RSA-encrypted shared
// secret and verify-token ciphertexts.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (*EncryptionResponse) ID() proto.PacketID { return proto.IDEncryptionResponse }

// SetCompression is SetCompressionS2C: {threshold}.
type SetCompression struct {
	Threshold int32
}

func (*SetCompression) ID() proto.PacketID { return proto.IDSetCompression }

// LoginSuccess is LoginSuccessS2C.
type LoginSuccess struct {
	UUID     uuid.UUID
	Username string
}

func (*LoginSuccess) ID() proto.PacketID { return proto.IDLoginSuccess }

// LoginAcknowledged is LoginAcknowledgedC2S, the client's ack that
// drives LOGIN -> CONFIG (spec §4.3).
type LoginAcknowledged struct{}

func (*LoginAcknowledged) ID() proto.PacketID { return proto.IDLoginAcknowledged }

// LoginPluginRequest is LoginPluginRequestS2C: a backend's request for
// a custom LOGIN-phase response, the mechanism MODERN forwarding (spec
// §4.4.5) rides on to ask the proxy for its HMAC-signed player info.
type LoginPluginRequest struct {
	MessageID int32
	Channel   string
	Data      []byte
}

func (*LoginPluginRequest) ID() proto.PacketID { return proto.IDLoginPluginRequest }

// LoginPluginResponse is LoginPluginResponseC2S: the proxy's reply to a
// LoginPluginRequest, Success=false meaning "channel not understood".
type LoginPluginResponse struct {
	MessageID int32
	Success   bool
	Data      []byte
}

func (*LoginPluginResponse) ID() proto.PacketID { return proto.IDLoginPluginResponse }

func init() {
	proto.RegisterCodec(proto.IDLoginStart, marshalLoginStart, unmarshalLoginStart)
	proto.RegisterCodec(proto.IDEncryptionRequest, marshalEncryptionRequest, unmarshalEncryptionRequest)
	proto.RegisterCodec(proto.IDEncryptionResponse, marshalEncryptionResponse, unmarshalEncryptionResponse)
	proto.RegisterCodec(proto.IDSetCompression, marshalSetCompression, unmarshalSetCompression)
	proto.RegisterCodec(proto.IDLoginSuccess, marshalLoginSuccess, unmarshalLoginSuccess)
	proto.RegisterCodec(proto.IDLoginAcknowledged, marshalLoginAcknowledged, unmarshalLoginAcknowledged)
	proto.RegisterCodec(proto.IDLoginDisconnect, marshalLoginDisconnect, unmarshalLoginDisconnect)
	proto.RegisterCodec(proto.IDLoginPluginRequest, marshalLoginPluginRequest, unmarshalLoginPluginRequest)
	proto.RegisterCodec(proto.IDLoginPluginResponse, marshalLoginPluginResponse, unmarshalLoginPluginResponse)
}

func marshalLoginDisconnect(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	d := p.(*LoginDisconnect)
	b, err := d.Reason.MarshalJSON()
	if err != nil {
		return err
	}
	return writeString(w, string(b))
}

func unmarshalLoginDisconnect(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	s, err := readString(r, 1<<16)
	if err != nil {
		return nil, err
	}
	return &LoginDisconnect{Reason: component.FromJSON([]byte(s))}, nil
}

func marshalLoginStart(w io.Writer, p proto.Packet, v proto.Protocol) error {
	l := p.(*LoginStart)
	if err := writeString(w, l.Username); err != nil {
		return err
	}
	if v.GreaterEqual(proto.Minecraft_1_19) {
		b, err := l.UUID.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	return nil
}

func unmarshalLoginStart(r io.Reader, v proto.Protocol) (proto.Packet, error) {
	name, err := readString(r, 16)
	if err != nil {
		return nil, err
	}
	l := &LoginStart{Username: name}
	if v.GreaterEqual(proto.Minecraft_1_19) {
		buf := make([]byte, 16)
		if _, err := io.ReadFull(r, buf); err == nil {
			var id uuid.UUID
			if err := id.UnmarshalBinary(buf); err == nil {
				l.UUID, l.HasUUID = id, true
			}
		}
	}
	return l, nil
}

func marshalEncryptionRequest(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	e := p.(*EncryptionRequest)
	if err := writeString(w, e.ServerID); err != nil {
		return err
	}
	if err := writeByteArray(w, e.PublicKey); err != nil {
		return err
	}
	return writeByteArray(w, e.VerifyToken)
}

func unmarshalEncryptionRequest(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	sid, err := readString(r, 20)
	if err != nil {
		return nil, err
	}
	pub, err := readByteArray(r)
	if err != nil {
		return nil, err
	}
	tok, err := readByteArray(r)
	if err != nil {
		return nil, err
	}
	return &EncryptionRequest{ServerID: sid, PublicKey: pub, VerifyToken: tok}, nil
}

func marshalEncryptionResponse(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	e := p.(*EncryptionResponse)
	if err := writeByteArray(w, e.SharedSecret); err != nil {
		return err
	}
	return writeByteArray(w, e.VerifyToken)
}

func unmarshalEncryptionResponse(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	secret, err := readByteArray(r)
	if err != nil {
		return nil, err
	}
	token, err := readByteArray(r)
	if err != nil {
		return nil, err
	}
	return &EncryptionResponse{SharedSecret: secret, VerifyToken: token}, nil
}

func marshalSetCompression(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	return writeVarInt(w, p.(*SetCompression).Threshold)
}

func unmarshalSetCompression(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	return &SetCompression{Threshold: n}, nil
}

func marshalLoginSuccess(w io.Writer, p proto.Packet, v proto.Protocol) error {
	l := p.(*LoginSuccess)
	b, err := l.UUID.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := writeString(w, l.Username); err != nil {
		return err
	}
	if v.GreaterEqual(proto.Minecraft_1_19) {
		return writeVarInt(w, 0) // empty properties array
	}
	return nil
}

func unmarshalLoginSuccess(r io.Reader, v proto.Protocol) (proto.Packet, error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var id uuid.UUID
	if err := id.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	name, err := readString(r, 16)
	if err != nil {
		return nil, err
	}
	return &LoginSuccess{UUID: id, Username: name}, nil
}

func marshalLoginAcknowledged(io.Writer, proto.Packet, proto.Protocol) error { return nil }

func unmarshalLoginAcknowledged(io.Reader, proto.Protocol) (proto.Packet, error) {
	return &LoginAcknowledged{}, nil
}

func marshalLoginPluginRequest(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	r := p.(*LoginPluginRequest)
	if err := writeVarInt(w, r.MessageID); err != nil {
		return err
	}
	if err := writeString(w, r.Channel); err != nil {
		return err
	}
	_, err := w.Write(r.Data)
	return err
}

func unmarshalLoginPluginRequest(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	id, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	channel, err := readString(r, 32767)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &LoginPluginRequest{MessageID: id, Channel: channel, Data: data}, nil
}

func marshalLoginPluginResponse(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	resp := p.(*LoginPluginResponse)
	if err := writeVarInt(w, resp.MessageID); err != nil {
		return err
	}
	success := byte(0)
	if resp.Success {
		success = 1
	}
	if _, err := w.Write([]byte{success}); err != nil {
		return err
	}
	if !resp.Success {
		return nil
	}
	_, err := w.Write(resp.Data)
	return err
}

func unmarshalLoginPluginResponse(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	id, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	successByte := make([]byte, 1)
	if _, err := io.ReadFull(r, successByte); err != nil {
		return nil, err
	}
	resp := &LoginPluginResponse{MessageID: id, Success: successByte[0] != 0}
	if resp.Success {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		resp.Data = data
	}
	return resp, nil
}
