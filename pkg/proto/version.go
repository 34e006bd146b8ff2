// Package proto defines the protocol-version enumeration, the
// Direction/Packet types and the PacketContext carrier that the rest of
// the codec and packet catalog build on (spec §3 ProtocolVersion, §4.2).
package proto

// Direction distinguishes clientbound (proxy -> client/backend-as-client)
// from serverbound (client -> proxy, proxy -> backend-as-server) traffic.
type Direction uint8

const (
	ServerBound Direction = iota
	ClientBound
)

func (d Direction) String() string {
	if d == ServerBound {
		return "serverbound"
	}
	return "clientbound"
}

// Protocol is a Minecraft Java Edition wire-protocol version. Versions
// are comparable by their numeric identifier, which is monotonically
// increasing with release order - exactly as vanilla and Velocity
// define them.
type Protocol int

const (
	Minecraft_1_7_2   Protocol = 4
	Minecraft_1_8     Protocol = 47
	Minecraft_1_11    Protocol = 315
	Minecraft_1_12_2  Protocol = 340
	Minecraft_1_13    Protocol = 393
	Minecraft_1_16    Protocol = 735
	Minecraft_1_19    Protocol = 759
	Minecraft_1_19_4  Protocol = 762
	Minecraft_1_20    Protocol = 763
	Minecraft_1_20_2  Protocol = 764
	Minecraft_1_20_3  Protocol = 765
	Minecraft_1_20_5  Protocol = 766
	Minecraft_1_21    Protocol = 767
)

func (p Protocol) Lower(other Protocol) bool        { return p < other }
func (p Protocol) GreaterEqual(other Protocol) bool { return p >= other }

// HasBundleDelimiter reports whether this version treats a
// BundleDelimiter pair as a single-tick atomic group of packets
// (introduced 1.20.5, used heavily during a backend switch's client
// hand-off per spec §4.3 "Bundle delimiter").
func (p Protocol) HasBundleDelimiter() bool { return p.GreaterEqual(Minecraft_1_20_5) }

// SupportsTransfer reports whether TransferS2C is a valid packet for
// this version (1.20.5+), used both for protocol-level player transfer
// and the queue-subsystem's shutdown redirect (spec §4.7 "Shutdown
// semantics").
func (p Protocol) SupportsTransfer() bool { return p.GreaterEqual(Minecraft_1_20_5) }

// UsesBinaryNbtChat reports whether chat components are encoded as
// binary NBT rather than JSON text (1.20.3+).
func (p Protocol) UsesBinaryNbtChat() bool { return p.GreaterEqual(Minecraft_1_20_3) }

// UsesSessionChat reports whether chat uses the signed-session chat
// packet family (1.19+) rather than the plain legacy Chat packet.
func (p Protocol) UsesSessionChat() bool { return p.GreaterEqual(Minecraft_1_19) }

// SupportsServerLinks reports whether ClientboundServerLinks is valid
// (1.21+).
func (p Protocol) SupportsServerLinks() bool { return p.GreaterEqual(Minecraft_1_21) }

// HasConfigState reports whether the connection passes through a
// dedicated CONFIG state (1.20.2+) rather than carrying ClientSettings
// in PLAY.
func (p Protocol) HasConfigState() bool { return p.GreaterEqual(Minecraft_1_20_2) }

// SupportedVersions is the ordered range of versions this proxy
// negotiates against, used to compose the STATUS ping version range.
var SupportedVersions = []Protocol{
	Minecraft_1_7_2, Minecraft_1_8, Minecraft_1_11, Minecraft_1_12_2,
	Minecraft_1_13, Minecraft_1_16, Minecraft_1_19, Minecraft_1_19_4,
	Minecraft_1_20, Minecraft_1_20_2, Minecraft_1_20_3, Minecraft_1_20_5,
	Minecraft_1_21,
}

// Supported reports whether the given protocol number is one of the
// versions the proxy negotiates.
func Supported(p Protocol) bool {
	for _, v := range SupportedVersions {
		if v == p {
			return true
		}
	}
	return false
}
