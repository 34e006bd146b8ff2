package proxy

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
	"github.com/fleetgate/fleetgate/pkg/proxy/fallback"
)

// backendPlaySessionHandler is the clientbound half of the PLAY
// bridge: packets arriving from a backend server are forwarded to the
// player, except for the handful spec C5/C6 name as meaningful
// (KeepAlive for ping tracking, Disconnect for the fallback/kick
// decision).
type backendPlaySessionHandler struct {
	player *connectedPlayer
	sc     *serverConnection
}

func newBackendPlaySessionHandler(player *connectedPlayer, sc *serverConnection) *backendPlaySessionHandler {
	return &backendPlaySessionHandler{player: player, sc: sc}
}

var _ sessionHandler = (*backendPlaySessionHandler)(nil)

func (h *backendPlaySessionHandler) handlePacket(ctx context.Context, p proto.Packet) {
	// Disconnect is always safe to act on (the CONFIG-state packet table
	// maps it too), but any other PLAY-only packet arriving in the brief
	// window before the client's own switch to PLAY completes would be
	// framed under the wrong state table if written straight through.
	if _, ok := p.(*packet.Disconnect); !ok && h.player.State() != &state.Play {
		return
	}
	switch pk := p.(type) {
	case *packet.KeepAlive:
		h.sc.recordPing(pk.RandomID)
		_ = h.player.WritePacket(pk)
	case *packet.Disconnect:
		h.handleDisconnect(pk.Reason)
	case *plugin.Message:
		if isBungeeCordChannel(pk.Channel) {
			h.sc.handleBungeeCordMessage(pk)
			return
		}
		if h.player.canForwardPluginMessage(h.player.Protocol(), pk) {
			_ = h.player.WritePacket(pk)
		}
	default:
		if h.isCurrentBackend() {
			_ = h.player.WritePacket(p)
		}
	}
}

func (h *backendPlaySessionHandler) handleUnknownPacket(pc *proto.PacketContext) {
	if h.isCurrentBackend() && h.player.State() == &state.Play {
		_ = h.player.Write(pc.Payload)
	}
}

// isCurrentBackend guards stray packets from a backend connection the
// player has already moved on from (e.g. still draining in-flight
// bytes after a switch started).
func (h *backendPlaySessionHandler) isCurrentBackend() bool {
	cur := h.player.connectedServer()
	return cur == h.sc
}

func (h *backendPlaySessionHandler) activated()   {}
func (h *backendPlaySessionHandler) deactivated() {}

// disconnected covers the backend connection dropping without ever
// sending an explicit Disconnect packet (timeout, reset); treated the
// same as a Disconnect with a generic reason, unless the player has
// already moved to a different backend.
func (h *backendPlaySessionHandler) disconnected() {
	if !h.isCurrentBackend() || !h.player.Active() {
		return
	}
	h.handleDisconnect(component.FromComponent(&component.Translatable{Key: "multiplayer.disconnect.generic"}))
}

// handleDisconnect implements spec §5.2/§4.6's kick handling: fire
// KickedFromServerEvent, then either disconnect the player outright
// (no fallback candidate, or kicked mid legacy-Forge handshake) or
// redirect them to the next fallback candidate, notifying them first
// since this kick happened after they were already playing.
func (h *backendPlaySessionHandler) handleDisconnect(reason *component.Holder) {
	player := h.player
	target := h.sc.Server()

	ev := &event.KickedFromServerEvent{Player: player, Server: target.ServerInfo().Name(), Reason: reason}
	fireBlocking(player.proxy.event, ev)

	if ev.DisconnectInstead {
		player.Disconnect(mustParseHolderComponent(reason))
		return
	}

	next := player.nextServerToTry(target)
	if ev.RedirectTo != "" {
		if s := player.proxy.Server(ev.RedirectTo); s != nil {
			next = s
		}
	}

	decision := fallback.Decide(player.phase().unsafeToSwitch(), false, next != nil)
	switch decision {
	case fallback.Disconnect:
		player.Disconnect(mustParseHolderComponent(reason))
	case fallback.NotifyAndRedirect:
		_ = player.SendMessage(&component.Text{Content: "Kicked from " + target.ServerInfo().Name() + ": " + component.Flatten(reason)})
		go tryServers(context.Background(), player, next)
	default:
		zap.S().Debugf("%s kicked from %s, silently redirecting: %s", player.Username(), target.ServerInfo().Name(), component.Flatten(reason))
		go tryServers(context.Background(), player, next)
	}
}
