package proxy

import (
	"context"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proxy/bungee"
	"github.com/fleetgate/fleetgate/pkg/proxy/message"
	"github.com/fleetgate/fleetgate/pkg/util/bytebuf"
)

// isBungeeCordChannel reports whether channel matches either naming
// era of the BungeeCord sub-channel protocol (spec C9).
func isBungeeCordChannel(channel string) bool {
	return channel == plugin.BungeeCordChannelLegacy || channel == plugin.BungeeCordChannelModern
}

// handleBungeeCordMessage implements spec [MODULE] C9: a backend
// server queries or commands the proxy over the reserved BungeeCord
// sub-channel, encoded with a BungeeCord-compatible ByteBufDataOutput
// body (pkg/util/bytebuf, pkg/proxy/bungee). Real BungeeCord never
// forwards this channel on to the client; it is intercepted here the
// same way canForwardPluginMessage already gates other reserved
// channels, so backendPlaySessionHandler routes it here instead of
// relaying it.
func (sc *serverConnection) handleBungeeCordMessage(m *plugin.Message) {
	req, err := bungee.Parse(m.Data)
	if err != nil {
		zap.S().Debugf("malformed BungeeCord sub-message on %s: %v", sc.server.ServerInfo().Name(), err)
		return
	}
	player := sc.player
	proxy := player.proxy
	r := req.Reader()

	reply := func(sub string, build func(w *bytebuf.Writer)) {
		_ = player.SendPluginMessage(message.NewChannelIdentifier(m.Channel), bungee.Reply(sub, build))
	}

	switch req.Sub {
	case bungee.Connect:
		if name, err := r.UTF(); err == nil {
			if target := proxy.Server(name); target != nil {
				_, _, _ = player.CreateConnectionRequest(target).Connect(context.Background())
			}
		}

	case bungee.ConnectOther:
		playerName, err1 := r.UTF()
		serverName, err2 := r.UTF()
		if err1 != nil || err2 != nil {
			return
		}
		target := proxy.Server(serverName)
		pl, ok := proxy.connect.findByName(playerName)
		if target != nil && ok {
			_, _, _ = pl.CreateConnectionRequest(target).Connect(context.Background())
		}

	case bungee.IP:
		host, port := splitRemote(player.RemoteAddr())
		reply(bungee.IP, func(w *bytebuf.Writer) { w.UTF(host).Int(int32(port)) })

	case bungee.IPOther:
		name, err := r.UTF()
		if err != nil {
			return
		}
		pl, ok := proxy.connect.findByName(name)
		if !ok {
			return
		}
		host, port := splitRemote(pl.RemoteAddr())
		reply(bungee.IPOther, func(w *bytebuf.Writer) { w.UTF(name).UTF(host).Int(int32(port)) })

	case bungee.PlayerCount:
		name, err := r.UTF()
		if err != nil {
			return
		}
		if name == "ALL" {
			reply(bungee.PlayerCount, func(w *bytebuf.Writer) { w.UTF("ALL").Int(int32(proxy.PlayerCount())) })
			return
		}
		target := proxy.Server(name)
		if target == nil {
			return
		}
		reply(bungee.PlayerCount, func(w *bytebuf.Writer) { w.UTF(name).Int(int32(len(target.Players()))) })

	case bungee.GetServers:
		var names []string
		for _, s := range proxy.Servers() {
			names = append(names, s.ServerInfo().Name())
		}
		reply(bungee.GetServers, func(w *bytebuf.Writer) { w.UTF(joinTab(names)) })

	case bungee.GetServer:
		reply(bungee.GetServer, func(w *bytebuf.Writer) { w.UTF(sc.server.ServerInfo().Name()) })

	case bungee.UUID:
		reply(bungee.UUID, func(w *bytebuf.Writer) { w.UTF(player.Id().String()) })

	case bungee.UUIDOther:
		name, err := r.UTF()
		if err != nil {
			return
		}
		pl, ok := proxy.connect.findByName(name)
		if !ok {
			return
		}
		reply(bungee.UUIDOther, func(w *bytebuf.Writer) { w.UTF(name).UTF(pl.Id().String()) })

	case bungee.ServerIP:
		name, err := r.UTF()
		if err != nil {
			return
		}
		target := proxy.Server(name)
		if target == nil {
			return
		}
		host, port := splitHostPort(target.ServerInfo().Addr())
		reply(bungee.ServerIP, func(w *bytebuf.Writer) { w.UTF(name).UTF(host).Short(int16(port)) })

	case bungee.KickPlayer:
		name, err1 := r.UTF()
		reason, err2 := r.UTF()
		if err1 != nil || err2 != nil {
			return
		}
		if pl, ok := proxy.connect.findByName(name); ok {
			pl.Disconnect(&component.Text{Content: reason})
		}

	case bungee.Message, bungee.MessageRaw:
		name, err1 := r.UTF()
		text, err2 := r.UTF()
		if err1 != nil || err2 != nil {
			return
		}
		msg := &component.Text{Content: text}
		if name == "ALL" {
			for _, pl := range proxy.connect.players() {
				_ = pl.SendMessage(msg)
			}
			return
		}
		if pl, ok := proxy.connect.findByName(name); ok {
			_ = pl.SendMessage(msg)
		}

	case bungee.Forward, bungee.ForwardToPlayer:
		// Arbitrary forwarded plugin data addressed to another server or
		// player; out of scope without a fleet-wide transport (spec C8
		// carries cross-proxy state, not arbitrary plugin payloads).
		zap.S().Debugf("%s sub-channel not supported across the fleet yet", req.Sub)

	default:
		zap.S().Debugf("unhandled BungeeCord sub-channel %q from %s", req.Sub, sc.server.ServerInfo().Name())
	}
}

func splitRemote(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 25565
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 25565
	}
	return host, port
}

func joinTab(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "\t"
		}
		out += n
	}
	return out
}
