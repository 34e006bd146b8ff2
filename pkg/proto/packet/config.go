package packet

import (
	"io"

	"github.com/fleetgate/fleetgate/pkg/proto"
)

// StartConfiguration is StartConfigurationS2C, sent by the proxy to
// move a PLAY-state client back into CONFIG during a backend switch
// (spec §4.5 step 5e).
type StartConfiguration struct{}

func (*StartConfiguration) ID() proto.PacketID { return proto.IDStartConfiguration }

// FinishConfiguration is FinishConfigurationC2S/S2C (symmetric,
// direction-gated by the registry).
type FinishConfiguration struct{}

func (*FinishConfiguration) ID() proto.PacketID { return proto.IDFinishConfiguration }

// ConfigAcknowledged is ConfigAcknowledgedC2S, completing CONFIG ->
// PLAY.
type ConfigAcknowledged struct{}

func (*ConfigAcknowledged) ID() proto.PacketID { return proto.IDConfigAcknowledged }

// ClientSettings carries the client's locale/view-distance/chat
// settings; pre-1.20.2 it lives in PLAY, from 1.20.2 it lives in
// CONFIG (spec §4.5 step 5f).
type ClientSettings struct {
	Locale   string
	ViewDist int8
	Raw      []byte // remaining fields are opaque to the core
}

func (*ClientSettings) ID() proto.PacketID { return proto.IDClientSettings }

// CookieRequest / CookieResponse carry an opaque key + optional payload
// used by 1.20.5+ server-assigned session cookies.
type CookieRequest struct{ Key string }

func (*CookieRequest) ID() proto.PacketID { return proto.IDCookieRequest }

type CookieResponse struct {
	Key     string
	Payload []byte
	Present bool
}

func (*CookieResponse) ID() proto.PacketID { return proto.IDCookieResponse }

// AddResourcePack / RemoveResourcePack / ResourcePackResponse model the
// resource-pack family named in spec §4.2; byte-exact UX is out of
// scope (spec §1), only the framing the core must route.
type AddResourcePack struct {
	ID, URL, Hash string
	Required      bool
}

func (*AddResourcePack) ID() proto.PacketID { return proto.IDAddResourcePack }

type RemoveResourcePack struct {
	ID      string
	HasID   bool
}

func (*RemoveResourcePack) ID() proto.PacketID { return proto.IDRemoveResourcePack }

type ResourcePackResponse struct {
	ID     string
	Status int32
}

func (*ResourcePackResponse) ID() proto.PacketID { return proto.IDResourcePackResponse }

// ServerLinks is ClientboundServerLinks (1.21+): a list of
// label/URL pairs shown in the client's server-info menu.
type ServerLinks struct {
	Links []ServerLink
}

func (*ServerLinks) ID() proto.PacketID { return proto.IDServerLinks }

type ServerLink struct {
	Label string
	URL   string
}

func init() {
	proto.RegisterCodec(proto.IDStartConfiguration, noopMarshal, fixed(&StartConfiguration{}))
	proto.RegisterCodec(proto.IDFinishConfiguration, noopMarshal, fixed(&FinishConfiguration{}))
	proto.RegisterCodec(proto.IDConfigAcknowledged, noopMarshal, fixed(&ConfigAcknowledged{}))
	proto.RegisterCodec(proto.IDResourcePackResponse, marshalResourcePackResponse, unmarshalResourcePackResponse)
	proto.RegisterCodec(proto.IDAddResourcePack, marshalAddResourcePack, unmarshalAddResourcePack)
	proto.RegisterCodec(proto.IDRemoveResourcePack, marshalRemoveResourcePack, unmarshalRemoveResourcePack)
}

func marshalAddResourcePack(w io.Writer, p proto.Packet, v proto.Protocol) error {
	a := p.(*AddResourcePack)
	if v.GreaterEqual(proto.Minecraft_1_20_3) {
		if err := writeString(w, a.ID); err != nil {
			return err
		}
	}
	if err := writeString(w, a.URL); err != nil {
		return err
	}
	if err := writeString(w, a.Hash); err != nil {
		return err
	}
	return writeBool(w, a.Required)
}

func unmarshalAddResourcePack(r io.Reader, v proto.Protocol) (proto.Packet, error) {
	a := &AddResourcePack{}
	if v.GreaterEqual(proto.Minecraft_1_20_3) {
		id, err := readString(r, 36)
		if err != nil {
			return nil, err
		}
		a.ID = id
	}
	url, err := readString(r, 32767)
	if err != nil {
		return nil, err
	}
	hash, err := readString(r, 40)
	if err != nil {
		return nil, err
	}
	required, err := readBool(r)
	if err != nil {
		return nil, err
	}
	a.URL, a.Hash, a.Required = url, hash, required
	return a, nil
}

func marshalRemoveResourcePack(w io.Writer, p proto.Packet, v proto.Protocol) error {
	rp := p.(*RemoveResourcePack)
	if err := writeBool(w, rp.HasID); err != nil {
		return err
	}
	if rp.HasID {
		return writeString(w, rp.ID)
	}
	return nil
}

func unmarshalRemoveResourcePack(r io.Reader, v proto.Protocol) (proto.Packet, error) {
	hasID, err := readBool(r)
	if err != nil {
		return nil, err
	}
	rp := &RemoveResourcePack{HasID: hasID}
	if hasID {
		id, err := readString(r, 36)
		if err != nil {
			return nil, err
		}
		rp.ID = id
	}
	return rp, nil
}

func noopMarshal(io.Writer, proto.Packet, proto.Protocol) error { return nil }

func fixed(p proto.Packet) proto.UnmarshalFunc {
	return func(io.Reader, proto.Protocol) (proto.Packet, error) { return p, nil }
}

func marshalResourcePackResponse(w io.Writer, p proto.Packet, v proto.Protocol) error {
	rp := p.(*ResourcePackResponse)
	if v.GreaterEqual(proto.Minecraft_1_20_3) {
		if err := writeString(w, rp.ID); err != nil {
			return err
		}
	}
	return writeVarInt(w, rp.Status)
}

func unmarshalResourcePackResponse(r io.Reader, v proto.Protocol) (proto.Packet, error) {
	rp := &ResourcePackResponse{}
	if v.GreaterEqual(proto.Minecraft_1_20_3) {
		id, err := readString(r, 64)
		if err != nil {
			return nil, err
		}
		rp.ID = id
	}
	status, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	rp.Status = status
	return rp, nil
}
