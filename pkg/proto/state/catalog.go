package state

import "github.com/fleetgate/fleetgate/pkg/proto"

// The five connection states of spec §4.3. Packet ids below follow
// vanilla Minecraft's actual id assignments for the versions named;
// ids are only ever consulted through EncodeID/DecodeKind so a new
// version's renumbering is a one-line Map call, never a call-site
// branch.
var (
	Handshake Registry
	Status    Registry
	Login     Registry
	Config    Registry
	Play      Registry
)

func init() {
	Handshake = *newRegistry("HANDSHAKE")
	Handshake.Dir(proto.ServerBound).Map(proto.IDHandshake, proto.Minecraft_1_7_2, 0x00)

	Status = *newRegistry("STATUS")
	Status.Dir(proto.ServerBound).Map(proto.IDStatusRequest, proto.Minecraft_1_7_2, 0x00)
	Status.Dir(proto.ServerBound).Map(proto.IDPingRequest, proto.Minecraft_1_7_2, 0x01)
	Status.Dir(proto.ClientBound).Map(proto.IDStatusResponse, proto.Minecraft_1_7_2, 0x00)
	Status.Dir(proto.ClientBound).Map(proto.IDPingResponse, proto.Minecraft_1_7_2, 0x01)

	Login = *newRegistry("LOGIN")
	sb := Login.Dir(proto.ServerBound)
	sb.Map(proto.IDLoginStart, proto.Minecraft_1_7_2, 0x00)
	sb.Map(proto.IDEncryptionResponse, proto.Minecraft_1_7_2, 0x01)
	sb.Map(proto.IDLoginPluginResponse, proto.Minecraft_1_13, 0x02)
	sb.Map(proto.IDLoginAcknowledged, proto.Minecraft_1_20_2, 0x03)
	cb := Login.Dir(proto.ClientBound)
	cb.Map(proto.IDLoginDisconnect, proto.Minecraft_1_7_2, 0x00)
	cb.Map(proto.IDEncryptionRequest, proto.Minecraft_1_7_2, 0x01)
	cb.Map(proto.IDLoginSuccess, proto.Minecraft_1_7_2, 0x02)
	cb.Map(proto.IDSetCompression, proto.Minecraft_1_8, 0x03)
	cb.Map(proto.IDLoginPluginRequest, proto.Minecraft_1_13, 0x04)

	Config = *newRegistry("CONFIG")
	csb := Config.Dir(proto.ServerBound)
	csb.Map(proto.IDClientSettings, proto.Minecraft_1_20_2, 0x00)
	csb.Map(proto.IDPluginMessage, proto.Minecraft_1_20_2, 0x01)
	csb.Map(proto.IDFinishConfiguration, proto.Minecraft_1_20_2, 0x02)
	csb.Map(proto.IDCookieResponse, proto.Minecraft_1_20_5, 0x03)
	ccb := Config.Dir(proto.ClientBound)
	ccb.Map(proto.IDPluginMessage, proto.Minecraft_1_20_2, 0x00)
	ccb.Map(proto.IDDisconnect, proto.Minecraft_1_20_2, 0x01)
	ccb.Map(proto.IDFinishConfiguration, proto.Minecraft_1_20_2, 0x02)
	ccb.Map(proto.IDAddResourcePack, proto.Minecraft_1_20_3, 0x06)
	ccb.Map(proto.IDRemoveResourcePack, proto.Minecraft_1_20_3, 0x07)
	ccb.Map(proto.IDCookieRequest, proto.Minecraft_1_20_5, 0x0A)
	ccb.Map(proto.IDServerLinks, proto.Minecraft_1_21, 0x0F)
	ccb.Map(proto.IDStartConfiguration, proto.Minecraft_1_20_2, 0x0F)

	Play = *newRegistry("PLAY")
	psb := Play.Dir(proto.ServerBound)
	psb.Map(proto.IDChat, proto.Minecraft_1_7_2, 0x01)
	psb.Map(proto.IDClientSettings, proto.Minecraft_1_7_2, 0x04)
	psb.Map(proto.IDPluginMessage, proto.Minecraft_1_7_2, 0x17)
	psb.Map(proto.IDKeepAlive, proto.Minecraft_1_7_2, 0x00)
	psb.Map(proto.IDResourcePackResponse, proto.Minecraft_1_8, 0x18)
	psb.Map(proto.IDConfigAcknowledged, proto.Minecraft_1_20_2, 0x0B)
	pcb := Play.Dir(proto.ClientBound)
	pcb.Map(proto.IDKeepAlive, proto.Minecraft_1_7_2, 0x00)
	pcb.Map(proto.IDJoinGame, proto.Minecraft_1_7_2, 0x01)
	pcb.Map(proto.IDChat, proto.Minecraft_1_7_2, 0x02)
	pcb.Map(proto.IDRespawn, proto.Minecraft_1_7_2, 0x07)
	pcb.Map(proto.IDPluginMessage, proto.Minecraft_1_7_2, 0x3F)
	pcb.Map(proto.IDDisconnect, proto.Minecraft_1_7_2, 0x40)
	pcb.Map(proto.IDBundleDelimiter, proto.Minecraft_1_19_4, 0x00)
	pcb.Map(proto.IDTransfer, proto.Minecraft_1_20_5, 0x72)
	pcb.Map(proto.IDAddResourcePack, proto.Minecraft_1_20_3, 0x47)
	pcb.Map(proto.IDRemoveResourcePack, proto.Minecraft_1_20_3, 0x46)
	pcb.Map(proto.IDStartConfiguration, proto.Minecraft_1_20_2, 0x65)
	pcb.Map(proto.IDStartConfiguration, proto.Minecraft_1_20_3, 0x67)
	pcb.Map(proto.IDStartConfiguration, proto.Minecraft_1_20_5, 0x69)

	Handshake.finalize()
	Status.finalize()
	Login.finalize()
	Config.finalize()
	Play.finalize()
}

// ByName returns the Registry for one of the five connection-state
// names, or nil.
func ByName(name string) *Registry {
	switch name {
	case "HANDSHAKE":
		return &Handshake
	case "STATUS":
		return &Status
	case "LOGIN":
		return &Login
	case "CONFIG":
		return &Config
	case "PLAY":
		return &Play
	default:
		return nil
	}
}
