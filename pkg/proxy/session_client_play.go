package proxy

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/util/sets"
)

// clientPlaySessionHandler is the steady-state nerve center joining a
// spawned client to its current backend (spec C1/C3): most packets are
// opaque id+payload forwards, with a small set of semantically
// meaningful packets (KeepAlive, Chat, plugin channel
// register/unregister, ClientSettings) handled by name.
type clientPlaySessionHandler struct {
	player *connectedPlayer
}

func newClientPlaySessionHandler(player *connectedPlayer) *clientPlaySessionHandler {
	return &clientPlaySessionHandler{player: player}
}

var _ sessionHandler = (*clientPlaySessionHandler)(nil)

func (c *clientPlaySessionHandler) handlePacket(ctx context.Context, p proto.Packet) {
	switch pk := p.(type) {
	case *packet.KeepAlive:
		c.handleKeepAlive(pk)
	case *packet.Chat:
		c.handleChat(ctx, pk)
	case *packet.ClientSettings:
		c.player.setSettings(pk)
		c.forwardToServer(pk)
	case *plugin.Message:
		c.handlePluginMessage(pk)
	default:
		c.forwardToServer(p)
	}
}

func (c *clientPlaySessionHandler) handleUnknownPacket(pc *proto.PacketContext) {
	if mc := c.backendConn(); mc != nil {
		_ = mc.Write(pc.Payload)
	}
}

// activated announces the proxy's own known plugin channels (the
// BungeeCord responder, spec C9) to the freshly (re)spawned client.
func (c *clientPlaySessionHandler) activated() {
	v := c.player.Protocol()
	channels := c.player.proxy.ChannelRegistrar().ChannelsForProtocol(v)
	if channels.Len() == 0 {
		return
	}
	register := plugin.ConstructChannelsPacket(v, channels.UnsortedList()...)
	_ = c.player.WritePacket(register)
	c.player.lockedKnownChannels(func(known sets.String) { known.InsertSet(channels) })
}

func (c *clientPlaySessionHandler) deactivated() {}

func (c *clientPlaySessionHandler) disconnected() {
	c.player.teardown()
}

func (c *clientPlaySessionHandler) backendConn() *minecraftConn {
	sc := c.player.connectedServer()
	if sc == nil {
		return nil
	}
	return sc.conn()
}

func (c *clientPlaySessionHandler) forwardToServer(p proto.Packet) {
	if mc := c.backendConn(); mc != nil {
		_ = mc.WritePacket(p)
	}
}

// handleKeepAlive completes the client's half of a backend-initiated
// ping (spec §3 Player.Ping()): the backend's original KeepAlive was
// relayed to the client by newBackendPlaySessionHandler, which
// recorded its send time on the serverConnection; matching that here
// both times the round trip and lets the reply continue on to the
// backend so its own connection doesn't time out.
func (c *clientPlaySessionHandler) handleKeepAlive(p *packet.KeepAlive) {
	sc := c.player.connectedServer()
	if sc == nil {
		return
	}
	if sent, ok := sc.takePing(p.RandomID); ok {
		c.player.ping.Store(time.Since(sent))
	}
	if mc := sc.conn(); mc != nil {
		_ = mc.WritePacket(p)
	}
}

func (c *clientPlaySessionHandler) handlePluginMessage(m *plugin.Message) {
	sc := c.player.connectedServer()
	var backendConn *minecraftConn
	if sc != nil {
		backendConn = sc.conn()
	}
	if backendConn == nil {
		return
	}

	switch {
	case plugin.Register(m):
		c.player.lockedKnownChannels(func(known sets.String) { known.Insert(plugin.Channels(m)...) })
		_ = backendConn.WritePacket(m)
		return
	case plugin.Unregister(m):
		c.player.lockedKnownChannels(func(known sets.String) { known.Delete(plugin.Channels(m)...) })
		_ = backendConn.WritePacket(m)
		return
	case plugin.McBrand(m):
		_ = backendConn.WritePacket(plugin.RewriteMinecraftBrand(m, c.player.Protocol()))
		return
	}

	if id, ok := c.proxy().ChannelRegistrar().FromId(m.Channel); ok {
		clone := append([]byte(nil), m.Data...)
		ev := &event.PluginMessageEvent{Source: c.player, Channel: id.ID(), Data: clone}
		c.proxy().Event().Fire(ev)
		if ev.Consumed {
			return
		}
	}
	_ = backendConn.WritePacket(m)
}

func (c *clientPlaySessionHandler) proxy() *Proxy { return c.player.proxy }

// handleChat routes a serverbound chat line to the proxy's own command
// graph if it matches a registered command, otherwise fires
// PlayerChatEvent and forwards verbatim to the backend (spec's admin
// command surface, C10).
func (c *clientPlaySessionHandler) handleChat(ctx context.Context, p *packet.Chat) {
	sc := c.player.connectedServer()
	if sc == nil {
		return
	}
	backendConn := sc.conn()
	if backendConn == nil {
		return
	}

	if strings.HasPrefix(p.Message, "/") {
		line := strings.TrimPrefix(p.Message, "/")
		exec := &event.CommandExecuteEvent{Source: c.player, Command: line}
		c.proxy().Event().Fire(exec)
		if exec.Denied || !c.player.Active() {
			return
		}
		if handled, err := c.proxy().command.Invoke(ctx, c.player, line); handled {
			if err != nil {
				zap.S().Errorf("error invoking /%s: %v", line, err)
			}
			return
		}
		// Not a proxy command; fall through to verbatim forwarding.
	} else {
		chat := &event.PlayerChatEvent{Player: c.player, Message: p.Message}
		c.proxy().Event().Fire(chat)
		if chat.Denied || !c.player.Active() {
			return
		}
	}

	_ = backendConn.WritePacket(p)
}
