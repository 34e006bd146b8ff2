// Package plugin implements PluginMessageBoth ({channel, bytes}) and
// the small set of channel-name helpers the core's session handlers
// need: register/unregister detection, the Minecraft brand channel,
// and legacy (pre-1.13) Forge/"MC|" channel recognition (spec §4.2,
// §4.3 PLAY).
package plugin

import (
	"bytes"
	"io"
	"strings"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/codec"
)

// Message is PluginMessageBoth: {channel, bytes}.
type Message struct {
	Channel string
	Data    []byte
}

func (*Message) ID() proto.PacketID { return proto.IDPluginMessage }

const (
	RegisterChannelLegacy   = "REGISTER"
	UnregisterChannelLegacy = "UNREGISTER"
	RegisterChannelModern   = "minecraft:register"
	UnregisterChannelModern = "minecraft:unregister"
	BrandChannelLegacy      = "MC|Brand"
	BrandChannelModern      = "minecraft:brand"
	BungeeCordChannelLegacy = "BungeeCord"
	BungeeCordChannelModern = "bungeecord:main"
)

func Register(m *Message) bool {
	return m.Channel == RegisterChannelLegacy || m.Channel == RegisterChannelModern
}

func Unregister(m *Message) bool {
	return m.Channel == UnregisterChannelLegacy || m.Channel == UnregisterChannelModern
}

func McBrand(m *Message) bool {
	return m.Channel == BrandChannelLegacy || m.Channel == BrandChannelModern
}

// LegacyRegister/LegacyUnregister additionally recognize the FML
// (Forge) handshake's reuse of the register/unregister channels,
// matching spec §4.4.5 forwarding and the teacher's
// canForwardPluginMessage special-casing of "MC|" channels.
func LegacyRegister(m *Message) bool   { return strings.EqualFold(m.Channel, RegisterChannelLegacy) }
func LegacyUnregister(m *Message) bool { return strings.EqualFold(m.Channel, UnregisterChannelLegacy) }

// Channels splits a REGISTER/UNREGISTER message's null-separated
// channel list out of its payload.
func Channels(m *Message) []string {
	return strings.Split(string(m.Data), "\x00")
}

// ConstructChannelsPacket builds the register packet a proxy sends to
// announce the plugin channels it knows for the given protocol
// version, choosing the legacy vs modern channel name as appropriate.
func ConstructChannelsPacket(v proto.Protocol, channels ...string) *Message {
	channel := RegisterChannelLegacy
	if v.GreaterEqual(proto.Minecraft_1_13) {
		channel = RegisterChannelModern
	}
	return &Message{Channel: channel, Data: []byte(strings.Join(channels, "\x00"))}
}

// RewriteMinecraftBrand prefixes the client-reported brand with
// "fleetgate" so server operators can see a player went through the
// proxy, matching the teacher's RewriteMinecraftBrand hook.
func RewriteMinecraftBrand(m *Message, v proto.Protocol) *Message {
	brand := readBrandString(m.Data)
	rewritten := "fleetgate (" + brand + ")"
	return &Message{Channel: m.Channel, Data: encodeBrandString(rewritten)}
}

func readBrandString(data []byte) string {
	// Brand is a single VarInt-length-prefixed UTF-8 string.
	if len(data) == 0 {
		return ""
	}
	r := bytes.NewReader(data)
	n, err := codec.ReadVarInt(r)
	start := len(data) - r.Len()
	if err != nil || n < 0 || start+int(n) > len(data) {
		return string(data)
	}
	return string(data[start : start+int(n)])
}

func encodeBrandString(s string) []byte {
	b := []byte(s)
	out := codec.AppendVarInt(make([]byte, 0, len(b)+codec.MaxVarIntBytes), int32(len(b)))
	return append(out, b...)
}

func init() {
	proto.RegisterCodec(proto.IDPluginMessage, marshalMessage, unmarshalMessage)
}

func marshalMessage(w io.Writer, p proto.Packet, _ proto.Protocol) error {
	m := p.(*Message)
	chanBytes := []byte(m.Channel)
	if err := codec.WriteVarInt(byteWriter{w}, int32(len(chanBytes))); err != nil {
		return err
	}
	if _, err := w.Write(chanBytes); err != nil {
		return err
	}
	_, err := w.Write(m.Data)
	return err
}

func unmarshalMessage(r io.Reader, _ proto.Protocol) (proto.Packet, error) {
	br := byteReader{r}
	n, err := codec.ReadVarInt(br)
	if err != nil {
		return nil, err
	}
	chanBuf := make([]byte, n)
	if _, err := io.ReadFull(r, chanBuf); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Message{Channel: string(chanBuf), Data: data}, nil
}

// byteReader/byteWriter adapt a generic io.Reader/io.Writer to the
// io.ByteReader/io.ByteWriter interfaces codec.ReadVarInt/WriteVarInt
// require, for the one VarInt field (channel length) this package
// needs without pulling in the full packet package's helpers.
type byteReader struct{ r io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.r, buf[:])
	return buf[0], err
}

type byteWriter struct{ w io.Writer }

func (b byteWriter) WriteByte(c byte) error {
	_, err := b.w.Write([]byte{c})
	return err
}
