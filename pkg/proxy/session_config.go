package proxy

import (
	"context"
	"sync"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
)

// configSessionHandler drives a client through CONFIG state (spec
// §4.3, §4.5 step 5): once after LoginAcknowledged, and again every
// time a backend switch sends an already-spawned client back through
// it via StartConfiguration. The real client starts sending
// ClientSettings and plugin messages the moment it enters CONFIG,
// independent of whether the proxy's own backend dial has finished.
// Plugin messages are queued and only forwarded once a backend
// connection exists; ClientSettings is recorded on the player and is
// not forwarded to the backend. Per the vanilla handshake, the client never sends its own
// (serverbound) FinishConfiguration until it has received ours
// (clientbound) first, so backendReady arriving after the client's ack
// cannot happen in practice; completeSwitch guards it anyway.
type configSessionHandler struct {
	conn   *minecraftConn
	player *connectedPlayer

	mu       sync.Mutex
	joinGame proto.Packet
	sc       *serverConnection
	queued   []*plugin.Message
}

func newConfigSessionHandler(conn *minecraftConn, player *connectedPlayer) *configSessionHandler {
	return &configSessionHandler{conn: conn, player: player}
}

// newConfigSessionHandlerReady is used for a backend switch, where the
// new backend's handshake has already completed by the time the
// already-spawned client is sent back into CONFIG.
func newConfigSessionHandlerReady(conn *minecraftConn, player *connectedPlayer, joinGame proto.Packet, sc *serverConnection) *configSessionHandler {
	h := newConfigSessionHandler(conn, player)
	h.backendReady(joinGame, sc)
	return h
}

// backendReady is called by the router once the backend handshake
// completes, releasing the proxy's own clientbound FinishConfiguration
// so the client can ack and the switch can complete.
func (h *configSessionHandler) backendReady(joinGame proto.Packet, sc *serverConnection) {
	h.mu.Lock()
	h.joinGame = joinGame
	h.sc = sc
	h.mu.Unlock()
	_ = h.conn.WritePacket(&packet.FinishConfiguration{})
}

func (h *configSessionHandler) handlePacket(ctx context.Context, p proto.Packet) {
	switch pk := p.(type) {
	case *packet.ClientSettings:
		h.player.setSettings(pk)
	case *plugin.Message:
		h.mu.Lock()
		h.queued = append(h.queued, pk)
		h.mu.Unlock()
	case *packet.FinishConfiguration:
		h.completeSwitch()
	case *packet.CookieResponse:
		// no session state keyed on a cookie; nothing to resolve.
	}
}

func (h *configSessionHandler) completeSwitch() {
	h.mu.Lock()
	joinGame, sc, queued := h.joinGame, h.sc, h.queued
	h.queued = nil
	h.mu.Unlock()
	if joinGame == nil {
		// Client raced its ack ahead of our own FinishConfiguration;
		// shouldn't happen per the vanilla handshake, but there is
		// nothing to complete yet.
		return
	}
	if err := h.conn.WritePacket(joinGame); err != nil {
		return
	}
	h.conn.setState(&state.Play)
	cp := newClientPlaySessionHandler(h.player)
	h.conn.setSessionHandler(cp)

	if sc == nil {
		return
	}
	backendMc := sc.conn()
	if backendMc == nil {
		return
	}
	for _, m := range queued {
		_ = backendMc.WritePacket(m)
	}
}

func (h *configSessionHandler) handleUnknownPacket(*proto.PacketContext) {}
func (h *configSessionHandler) disconnected()                           {}
func (h *configSessionHandler) activated()                              {}
func (h *configSessionHandler) deactivated()                            {}

func (h *configSessionHandler) player_() *connectedPlayer { return h.player }

var _ sessionHandler = (*configSessionHandler)(nil)
