package proto

// Packet is implemented by every typed packet the proxy core inspects
// (spec §2's "handful of semantically-typed packets"). Packets the
// proxy merely forwards never implement this interface; they travel as
// PacketContext.Payload instead.
type Packet interface {
	// ID returns the packet's logical kind, used to look it up in the
	// versioned catalog rather than to serialize it directly.
	ID() PacketID
}

// PacketID is a logical, version-independent packet kind. The catalog
// (pkg/proto/state) maps (state, direction, Protocol, PacketID) to the
// wire id actually used on a given connection.
type PacketID int

const (
	IDHandshake PacketID = iota
	IDStatusRequest
	IDStatusResponse
	IDPingRequest
	IDPingResponse
	IDLoginStart
	IDEncryptionRequest
	IDEncryptionResponse
	IDSetCompression
	IDLoginSuccess
	IDLoginAcknowledged
	IDLoginPluginRequest
	IDLoginPluginResponse
	IDLoginDisconnect
	IDStartConfiguration
	IDFinishConfiguration
	IDConfigAcknowledged
	IDClientSettings
	IDPluginMessage
	IDResourcePackStoreCookie
	IDCookieRequest
	IDCookieResponse
	IDRemoveResourcePack
	IDAddResourcePack
	IDResourcePackResponse
	IDServerLinks
	IDJoinGame
	IDRespawn
	IDKeepAlive
	IDDisconnect
	IDChat
	IDTransfer
	IDBundleDelimiter
	IDUnknown
)

// PacketContext carries one decoded frame: its logical kind (if
// recognized), the raw packet id as seen on the wire, the typed Packet
// if the catalog decoded one, and the decompressed packet bytes (frame
// length prefix removed) for verbatim forwarding.
type PacketContext struct {
	WireID     int
	KnownPacket bool
	Kind       PacketID
	Packet     Packet
	Payload    []byte // includes the leading VarInt packet id
}
