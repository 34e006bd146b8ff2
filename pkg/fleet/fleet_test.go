package fleet

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBus builds a Bus with no live redis connection; these tests
// only exercise dispatch and the in-memory registries, never Publish,
// Run, or sweep (which alone touch the network).
func newTestBus(proxyID string) *Bus {
	return New("127.0.0.1:0", "", "", false, proxyID)
}

func envelopeFor(t *testing.T, id string, obj interface{}) string {
	t.Helper()
	body, err := json.Marshal(obj)
	require.NoError(t, err)
	env, err := json.Marshal(envelope{ID: id, Obj: body})
	require.NoError(t, err)
	return string(env)
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	b := newTestBus("proxy-a")
	var got ServerAlert
	b.Handle(PacketServerAlert, func(raw json.RawMessage) {
		_ = json.Unmarshal(raw, &got)
	})

	b.dispatch(envelopeFor(t, PacketServerAlert, &ServerAlert{ProxyID: "proxy-b", Message: "hello"}))

	assert.Equal(t, "proxy-b", got.ProxyID)
	assert.Equal(t, "hello", got.Message)
}

func TestDispatchIgnoresUnknownPacketID(t *testing.T) {
	b := newTestBus("proxy-a")
	called := false
	b.Handle(PacketServerAlert, func(raw json.RawMessage) { called = true })

	b.dispatch(envelopeFor(t, "some-unregistered-id", &ServerAlert{}))

	assert.False(t, called)
}

func TestDispatchIgnoresMalformedEnvelope(t *testing.T) {
	b := newTestBus("proxy-a")
	called := false
	b.Handle(PacketServerAlert, func(raw json.RawMessage) { called = true })

	b.dispatch("not json")

	assert.False(t, called)
}

func TestRegisterCorePacketsPlayerJoinUpsertsOwnPlayer(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()
	id := uuid.New()

	b.dispatch(envelopeFor(t, PacketPlayerJoin, &PlayerJoin{Info: RemotePlayerInfo{ProxyID: "proxy-a", UUID: id, Username: "steve"}}))

	info, ok := b.Player(id)
	require.True(t, ok)
	assert.Equal(t, "steve", info.Username)
	assert.Equal(t, 1, b.PlayerCount())
}

// TestRegisterCorePacketsPlayerJoinTriggersDuplicateLogin covers spec
// §4.8 "Duplicate-login across fleet" (scenario 5): a player-join for a
// uuid this proxy already has registered locally, arriving from a
// different proxy, must call the registered DuplicateLoginFunc before
// the fleet-wide record is updated to point at the new proxy.
func TestRegisterCorePacketsPlayerJoinTriggersDuplicateLogin(t *testing.T) {
	b := newTestBus("proxy-a")
	id := uuid.New()
	var kicked uuid.UUID
	b.OnDuplicateLogin(func(pid uuid.UUID) bool {
		kicked = pid
		return true
	})
	b.RegisterCorePackets()
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-a", UUID: id, Username: "steve"})

	b.dispatch(envelopeFor(t, PacketPlayerJoin, &PlayerJoin{Info: RemotePlayerInfo{ProxyID: "proxy-b", UUID: id, Username: "steve"}}))

	assert.Equal(t, id, kicked)
	info, ok := b.Player(id)
	require.True(t, ok)
	assert.Equal(t, "proxy-b", info.ProxyID)
}

func TestRegisterCorePacketsPlayerLeaveOnlyRemovesIfOwningProxyMatches(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()
	id := uuid.New()
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-b", UUID: id})

	b.dispatch(envelopeFor(t, PacketPlayerLeave, &PlayerLeave{ProxyID: "proxy-c", UUID: id}))
	_, ok := b.Player(id)
	assert.True(t, ok, "leave from a non-owning proxy must not remove the player")

	b.dispatch(envelopeFor(t, PacketPlayerLeave, &PlayerLeave{ProxyID: "proxy-b", UUID: id}))
	_, ok = b.Player(id)
	assert.False(t, ok)
}

func TestRegisterCorePacketsServerChangeUpdatesCurrentServer(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()
	id := uuid.New()
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-b", UUID: id, CurrentServer: "hub"})

	b.dispatch(envelopeFor(t, PacketServerChange, &ServerChange{ProxyID: "proxy-b", UUID: id, Server: "survival"}))

	info, ok := b.Player(id)
	require.True(t, ok)
	assert.Equal(t, "survival", info.CurrentServer)
}

// TestRegisterCorePacketsSetTransferRequestWindow covers spec §4.7
// "Shutdown semantics": the receiving proxy marks BeingTransferred for
// a window, and clearing it removes the flag immediately.
func TestRegisterCorePacketsSetTransferRequestWindow(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()
	id := uuid.New()
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-b", UUID: id})

	b.dispatch(envelopeFor(t, PacketSetTransferReq, &SetTransferRequest{UUID: id, Transferring: true}))
	assert.True(t, b.BeingTransferred(id))
	info, ok := b.Player(id)
	require.True(t, ok)
	assert.True(t, info.BeingTransferred)

	b.dispatch(envelopeFor(t, PacketSetTransferReq, &SetTransferRequest{UUID: id, Transferring: false}))
	assert.False(t, b.BeingTransferred(id))
	info, ok = b.Player(id)
	require.True(t, ok)
	assert.False(t, info.BeingTransferred)
}

func TestRegisterCorePacketsShuttingDownMarksProxyStatus(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()

	b.dispatch(envelopeFor(t, PacketIDAnnouncement, &IDAnnouncement{ProxyID: "proxy-b"}))
	b.dispatch(envelopeFor(t, PacketShuttingDown, &ShuttingDown{ProxyID: "proxy-b"}))

	var found *OtherProxy
	for _, op := range b.Proxies() {
		op := op
		if op.ID == "proxy-b" {
			found = &op
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, ProxyShutdown, found.Status)
}

func TestIDAnnouncementIgnoresSelf(t *testing.T) {
	b := newTestBus("proxy-a")
	b.RegisterCorePackets()

	b.dispatch(envelopeFor(t, PacketIDAnnouncement, &IDAnnouncement{ProxyID: "proxy-a"}))

	assert.Empty(t, b.Proxies())
}

func TestPlayerCountForCountsOnlyMatchingProxy(t *testing.T) {
	b := newTestBus("proxy-a")
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-b", UUID: uuid.New()})
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-b", UUID: uuid.New()})
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-c", UUID: uuid.New()})

	assert.Equal(t, 2, b.PlayerCountFor("proxy-b"))
	assert.Equal(t, 1, b.PlayerCountFor("proxy-c"))
	assert.Equal(t, 0, b.PlayerCountFor("proxy-d"))
	assert.Equal(t, 3, b.PlayerCount())
}

func TestRemovePlayer(t *testing.T) {
	b := newTestBus("proxy-a")
	id := uuid.New()
	b.UpsertPlayer(&RemotePlayerInfo{ProxyID: "proxy-a", UUID: id})
	require.Equal(t, 1, b.PlayerCount())

	b.RemovePlayer(id)

	assert.Equal(t, 0, b.PlayerCount())
	_, ok := b.Player(id)
	assert.False(t, ok)
}
