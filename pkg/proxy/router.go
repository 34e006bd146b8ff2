package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/auth"
	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
)

// modernForwardingChannel is the LOGIN-phase plugin channel a MODERN
// backend requests (spec §4.4.5): the proxy answers with the
// HMAC-signed player-info payload as a LoginPluginResponse, not a
// freestanding plugin message.
const modernForwardingChannel = "fleetgate:player_info"

// errMissingModernForwardingRequest is the fatal error spec §4.4.5
// requires when a MODERN-mode backend completes LOGIN without ever
// requesting the forwarding payload.
var errMissingModernForwardingRequest = fmt.Errorf("modern forwarding: backend never sent a LoginPluginRequest on %q", modernForwardingChannel)

// connectionRequestImpl is the ConnectionRequest returned by
// CreateConnectionRequest (spec §4.5 router entry point).
type connectionRequestImpl struct {
	player *connectedPlayer
	target RegisteredServer
}

func (p *connectedPlayer) CreateConnectionRequest(target RegisteredServer) ConnectionRequest {
	return &connectionRequestImpl{player: p, target: target}
}

func (r *connectionRequestImpl) Server() RegisteredServer { return r.target }

func (r *connectionRequestImpl) Connect(ctx context.Context) (ConnectionRequestResult, *component.Holder, error) {
	return connectToServer(ctx, r.player, r.target)
}

// beginInitialConnect drives the very first backend connection after
// LOGIN completes (spec §4.5), trying each fallback candidate in turn
// until one succeeds or none remain.
func beginInitialConnect(ctx context.Context, player *connectedPlayer) {
	tryServers(ctx, player, player.nextServerToTry(nil))
}

// tryServers drives connectToServer against target and, on any
// non-terminal outcome, the next fallback candidate in turn, until one
// succeeds, a plugin cancels it, or none remain (spec §4.5/§4.6). It is
// shared by the initial connect and by a post-join kick's redirect.
func tryServers(ctx context.Context, player *connectedPlayer, target RegisteredServer) {
	for target != nil {
		result, reason, err := connectToServer(ctx, player, target)
		if err != nil {
			zap.S().Debugf("error connecting %s to %s: %v", player.Username(), target.ServerInfo().Name(), err)
		}
		switch result {
		case Successful, ConnectionCancelled:
			return
		default:
			_ = reason
			target = player.nextServerToTry(target)
		}
	}
	player.Disconnect(&component.Text{Content: "No available servers to join; please try again later."})
}

// connectToServer implements the switch engine core of spec §4.5: the
// guard clauses, ServerPreConnectEvent, the backend dial and
// LOGIN/CONFIG handshake, and the PLAY hand-off.
func connectToServer(ctx context.Context, player *connectedPlayer, target RegisteredServer) (ConnectionRequestResult, *component.Holder, error) {
	if cur := player.connectedServer(); cur != nil && cur.Server() == target {
		return AlreadyConnected, nil, nil
	}
	if player.connectionInFlight() != nil {
		return ConnectionInProgress, nil, nil
	}

	pre := &event.ServerPreConnectEvent{
		Player:       player,
		OriginalDest: target.ServerInfo().Name(),
		Dest:         target.ServerInfo().Name(),
	}
	fireBlocking(player.proxy.event, pre)
	if pre.Denied {
		return ConnectionCancelled, nil, nil
	}
	if pre.Dest != pre.OriginalDest {
		if s := player.proxy.Server(pre.Dest); s != nil {
			target = s
		}
	}

	sc := newServerConnection(target, player)
	player.setConnectionInFlight(sc)

	backendMc, err := dialBackend(ctx, player.proxy, target)
	if err != nil {
		player.setConnectionInFlight(nil)
		return ServerDisconnected, nil, err
	}

	joinGame, reason, err := loginToBackend(backendMc, player, target)
	if err != nil || reason != nil {
		_ = backendMc.close()
		player.setConnectionInFlight(nil)
		return ServerDisconnected, reason, err
	}
	sc.setConn(backendMc)

	wasSwitch := player.connectedServer() != nil
	previous := ""
	if wasSwitch {
		// Client is already in PLAY: send it back through CONFIG for the
		// respawn dance (spec §4.5 step 5), pre-seeding the handler with
		// the JoinGame it completes the handoff with.
		previous = player.connectedServer().Server().ServerInfo().Name()
		if err := player.WritePacket(&packet.StartConfiguration{}); err != nil {
			_ = backendMc.close()
			player.setConnectionInFlight(nil)
			return ServerDisconnected, nil, err
		}
		player.setState(&state.Config)
		player.setSessionHandler(newConfigSessionHandlerReady(player.minecraftConn, player, joinGame, sc))
	} else if cfg, ok := player.SessionHandler().(*configSessionHandler); ok {
		// Initial connect: the client's own CONFIG handler was installed
		// back in LOGIN and may still be finishing its side; hand it the
		// JoinGame so it sends its own FinishConfiguration once ready and
		// completes the switch when the client's ack arrives.
		cfg.backendReady(joinGame, sc)
	} else {
		if err := player.WritePacket(joinGame); err != nil {
			_ = backendMc.close()
			player.setConnectionInFlight(nil)
			return ServerDisconnected, nil, err
		}
		player.setState(&state.Play)
		player.setSessionHandler(newClientPlaySessionHandler(player))
	}

	backendMc.setSessionHandler(newBackendPlaySessionHandler(player, sc))
	go backendMc.readLoop(ctx)

	player.setConnectedServer(sc)
	player.clearAttempted()
	if player.proxy.config.Queue.RemovePlayerOnServerSwitch {
		player.proxy.queue.LeaveAll(player.Id())
	}

	player.proxy.event.FireParallel(&event.ServerConnectedEvent{
		Player: player, Server: target.ServerInfo().Name(), PreviousServer: previous,
	})
	return Successful, nil, nil
}

// dialBackend opens the TCP connection to target, bounded by the
// configured connect timeout.
func dialBackend(ctx context.Context, proxy *Proxy, target RegisteredServer) (*minecraftConn, error) {
	d := net.Dialer{Timeout: proxy.config.ConnectTimeout()}
	c, err := d.DialContext(ctx, "tcp", target.ServerInfo().Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.ServerInfo().Name(), err)
	}
	name := target.ServerInfo().Name()
	return newMinecraftConn(c, proxy, false, func() []interface{} {
		return []interface{}{"server", name}
	}), nil
}

// loginToBackend synchronously drives the proxy's half of the backend
// LOGIN handshake (spec §4.4.5 forwarding, §4.3 state transitions),
// returning the backend's JoinGame packet once PLAY is reached, or a
// kick reason if the backend disconnected first.
func loginToBackend(mc *minecraftConn, player *connectedPlayer, target RegisteredServer) (proto.Packet, *component.Holder, error) {
	cfg := player.proxy.config
	mode, _ := auth.ParseForwardingMode(cfg.PlayerInfoForwardingMode)

	serverAddress := hostOf(player.VirtualHost().String())
	if mode == auth.ForwardingLegacy || mode == auth.ForwardingBungeeGuard {
		propsJSON, _ := json.Marshal(player.GameProfile().Properties)
		serverAddress = auth.LegacyForwardingIP(clientIPOf(player), player.GameProfile(), propsJSON)
	}

	mc.setProtocol(player.Protocol())
	if err := mc.WritePacket(&packet.Handshake{
		ProtocolVersion: player.Protocol(),
		ServerAddress:   serverAddress,
		Port:            portOf(target.ServerInfo().Addr()),
		NextState:       packet.NextLogin,
	}); err != nil {
		return nil, nil, err
	}
	mc.setState(&state.Login)
	if err := mc.WritePacket(&packet.LoginStart{Username: player.Username(), UUID: player.Id(), HasUUID: true}); err != nil {
		return nil, nil, err
	}

	deadline := time.Now().Add(cfg.ConnectTimeout())
	respondedModern := false
	for {
		_ = mc.c.SetReadDeadline(deadline)
		pc, err := mc.nextPacket()
		if err != nil {
			return nil, nil, err
		}
		if !pc.KnownPacket {
			continue
		}
		switch p := pc.Packet.(type) {
		case *packet.SetCompression:
			if err := mc.SetCompressionThreshold(int(p.Threshold)); err != nil {
				return nil, nil, err
			}
		case *packet.LoginPluginRequest:
			handled, err := respondToLoginPluginRequest(mc, player, mode, p)
			if err != nil {
				return nil, nil, err
			}
			respondedModern = respondedModern || handled
		case *packet.LoginSuccess:
			if mode == auth.ForwardingModern && !respondedModern {
				return nil, nil, errMissingModernForwardingRequest
			}
			return finishBackendLogin(mc, player, deadline)
		case *packet.LoginDisconnect:
			return nil, p.Reason, nil
		}
	}
}

// respondToLoginPluginRequest answers a backend's LoginPluginRequest
// (spec §4.4.5): a MODERN backend requesting modernForwardingChannel
// gets the HMAC-signed player-info payload back as a
// LoginPluginResponse with Success=true; any other channel is answered
// Success=false, the wire's "channel not understood" signal. Returns
// whether this was the modern-forwarding request/response.
func respondToLoginPluginRequest(mc *minecraftConn, player *connectedPlayer, mode auth.ForwardingMode, req *packet.LoginPluginRequest) (bool, error) {
	if mode == auth.ForwardingModern && req.Channel == modernForwardingChannel {
		secret := []byte(player.proxy.config.ForwardingSecret)
		payload, err := auth.WriteModernForwarding(secret, clientIPOf(player), player.GameProfile())
		if err != nil {
			return false, fmt.Errorf("build modern forwarding payload: %w", err)
		}
		if err := mc.WritePacket(&packet.LoginPluginResponse{MessageID: req.MessageID, Success: true, Data: payload}); err != nil {
			return false, err
		}
		return true, nil
	}
	err := mc.WritePacket(&packet.LoginPluginResponse{MessageID: req.MessageID, Success: false})
	return false, err
}

// finishBackendLogin acknowledges LOGIN and drives CONFIG to completion.
func finishBackendLogin(mc *minecraftConn, player *connectedPlayer, deadline time.Time) (proto.Packet, *component.Holder, error) {
	if err := mc.WritePacket(&packet.LoginAcknowledged{}); err != nil {
		return nil, nil, err
	}
	mc.setState(&state.Config)

	if err := mc.WritePacket(&packet.FinishConfiguration{}); err != nil {
		return nil, nil, err
	}

	for {
		_ = mc.c.SetReadDeadline(deadline)
		pc, err := mc.nextPacket()
		if err != nil {
			return nil, nil, err
		}
		if !pc.KnownPacket {
			continue
		}
		switch p := pc.Packet.(type) {
		case *packet.FinishConfiguration:
			mc.setState(&state.Play)
			if err := mc.WritePacket(&packet.ConfigAcknowledged{}); err != nil {
				return nil, nil, err
			}
		case *packet.JoinGame:
			return p, nil, nil
		case *packet.Disconnect:
			return nil, p.Reason, nil
		}
	}
}

func clientIPOf(player *connectedPlayer) string {
	host, _, err := net.SplitHostPort(player.RemoteAddr().String())
	if err != nil {
		return player.RemoteAddr().String()
	}
	return host
}

// portOf extracts the numeric port from a "host:port" server address,
// defaulting to 25565 (vanilla's default) if it cannot be parsed.
func portOf(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 25565
	}
	n, err := strconv.Atoi(portStr)
	if err != nil {
		return 25565
	}
	return uint16(n)
}
