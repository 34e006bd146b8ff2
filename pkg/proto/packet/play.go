package packet

import (
	"io"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proto"
)

// JoinGame is JoinGameS2C. The core only needs the handful of fields
// that drive the client-side respawn dance during a backend switch
// (spec §4.5 step 5); everything else travels in Raw for verbatim
// forwarding.
type JoinGame struct {
	EntityID          int32
	Gamemode          int8
	PreviousGamemode  int8
	Dimension         int32
	PartialHashedSeed int64
	Difficulty        int8
	LevelType         *string
	Raw               []byte // remaining version-specific fields
}

func (*JoinGame) ID() proto.PacketID { return proto.IDJoinGame }

// Respawn is RespawnS2C, observed and passed through per spec §4.2, but
// also synthesized by the core during a same-world-type switch.
type Respawn struct {
	Dimension            int32
	PartialHashedSeed    int64
	Difficulty           int8
	Gamemode             int8
	PreviousGamemode     int8
	LevelType            string
	ShouldKeepPlayerData bool
	Raw                  []byte
}

func (*Respawn) ID() proto.PacketID { return proto.IDRespawn }

// KeepAlive is KeepAliveS2C/C2S: {id: 64-bit}.
type KeepAlive struct {
	RandomID int64
}

func (*KeepAlive) ID() proto.PacketID { return proto.IDKeepAlive }

// Disconnect is DisconnectS2C: {reason: text component}.
type Disconnect struct {
	Reason *component.Holder
}

func (*Disconnect) ID() proto.PacketID { return proto.IDDisconnect }

// DisconnectWithProtocol builds a Disconnect packet. The protocol
// version is not consulted: marshalDisconnect always writes the reason
// as a JSON text string, and no binary-NBT encoding is produced for
// any version.
func DisconnectWithProtocol(reason component.Component, v proto.Protocol) *Disconnect {
	return &Disconnect{Reason: component.FromComponent(reason)}
}

// Chat is the legacy pre-session Chat packet carrying a JSON text
// component message and position (chat/system/action bar).
type MessagePosition int8

const (
	ChatMessage MessagePosition = iota
	SystemMessage
	ActionBarMessage
)

type Chat struct {
	Message string
	Type    MessagePosition
	Sender  [16]byte
}

func (*Chat) ID() proto.PacketID { return proto.IDChat }

// Title models the pre-1.20.3 action-bar/title packet. It has no
// codec or catalog entry of its own (its ID reports IDChat), and no
// code path in the proxy sends it.
type TitleAction int32

const (
	SetTitle TitleAction = iota
	SetSubtitle
	SetActionBar
)

type Title struct {
	Action    TitleAction
	Component *string
}

func (*Title) ID() proto.PacketID { return proto.IDChat } // shares the chat pipeline's typed slot conceptually

// BundleDelimiter toggles the 1.20.5+ atomic-packet-group framing
// (spec §4.3 "Bundle delimiter"). It carries no payload. The proxy
// forwards it like any other packet; passing one through does not
// flip the connection's bundleOpen flag.
type BundleDelimiter struct{}

func (*BundleDelimiter) ID() proto.PacketID { return proto.IDBundleDelimiter }

// Transfer is TransferS2C: {host, port} (spec §4.7 "Shutdown
// semantics" and protocol-level player transfer more generally).
type Transfer struct {
	Host string
	Port int32
}

func (*Transfer) ID() proto.PacketID { return proto.IDTransfer }

func init() {
	proto.RegisterCodec(proto.IDKeepAlive, marshalKeepAlive, unmarshalKeepAlive)
	proto.RegisterCodec(proto.IDDisconnect, marshalDisconnect, unmarshalDisconnect)
	proto.RegisterCodec(proto.IDChat, marshalChat, unmarshalChat)
	proto.RegisterCodec(proto.IDBundleDelimiter, noopMarshal, fixed(&BundleDelimiter{}))
	proto.RegisterCodec(proto.IDTransfer, marshalTransfer, unmarshalTransfer)
}

func marshalKeepAlive(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	return writeLong(w, p.(*KeepAlive).RandomID)
}

func unmarshalKeepAlive(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	id, err := readLong(r)
	if err != nil {
		return nil, err
	}
	return &KeepAlive{RandomID: id}, nil
}

func marshalDisconnect(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	d := p.(*Disconnect)
	b, err := d.Reason.MarshalJSON()
	if err != nil {
		return err
	}
	return writeString(w, string(b))
}

func unmarshalDisconnect(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	s, err := readString(r, 1<<16)
	if err != nil {
		return nil, err
	}
	return &Disconnect{Reason: component.FromJSON([]byte(s))}, nil
}

func marshalChat(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	c := p.(*Chat)
	if err := writeString(w, c.Message); err != nil {
		return err
	}
	var b [1]byte
	b[0] = byte(c.Type)
	_, err := w.Write(b[:])
	return err
}

func unmarshalChat(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	msg, err := readString(r, 1<<16)
	if err != nil {
		return nil, err
	}
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return &Chat{Message: msg, Type: MessagePosition(b[0])}, nil
}

func marshalTransfer(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	t := p.(*Transfer)
	if err := writeString(w, t.Host); err != nil {
		return err
	}
	return writeVarInt(w, t.Port)
}

func unmarshalTransfer(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	host, err := readString(r, 255)
	if err != nil {
		return nil, err
	}
	port, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	return &Transfer{Host: host, Port: port}, nil
}

// NewResetTitle constructs a "reset title" Title packet. The protocol
// version is not consulted, and the switch path does not send the
// result.
func NewResetTitle(v proto.Protocol) proto.Packet {
	return &Title{Action: SetTitle, Component: nil}
}
