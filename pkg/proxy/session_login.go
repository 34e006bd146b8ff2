package proxy

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/auth"
	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
	"github.com/fleetgate/fleetgate/pkg/util/gameprofile"
	"github.com/fleetgate/fleetgate/pkg/util/randutil"
)

// loginSessionHandler drives spec §4.4's LOGIN sequence: the
// online/offline authentication branch, the duplicate-login policy,
// and the LoginSuccess/LoginAcknowledged handoff into CONFIG. The
// per-address login rate limit is applied earlier, in Proxy.handleConn.
type loginSessionHandler struct {
	conn    *minecraftConn
	inbound *inboundIdentity

	login       *packet.LoginStart
	verifyToken []byte
	player      *connectedPlayer
}

func newLoginSessionHandler(conn *minecraftConn, inbound *inboundIdentity) *loginSessionHandler {
	return &loginSessionHandler{conn: conn, inbound: inbound}
}

func (h *loginSessionHandler) handlePacket(ctx context.Context, p proto.Packet) {
	switch pk := p.(type) {
	case *packet.LoginStart:
		h.handleLoginStart(ctx, pk)
	case *packet.EncryptionResponse:
		h.handleEncryptionResponse(ctx, pk)
	case *packet.LoginAcknowledged:
		h.handleLoginAcknowledged(ctx)
	}
}

func (h *loginSessionHandler) handleUnknownPacket(*proto.PacketContext) {}
func (h *loginSessionHandler) disconnected()                           {}
func (h *loginSessionHandler) activated()                              {}
func (h *loginSessionHandler) deactivated()                            {}

func (h *loginSessionHandler) handleLoginStart(ctx context.Context, ls *packet.LoginStart) {
	h.login = ls
	proxy := h.conn.proxy

	fireBlocking(proxy.event, &event.ConnectionHandshakeEvent{
		Inbound:         inboundEventView{h.inbound},
		OriginalAddress: h.inbound.VirtualHost().String(),
	})

	pre := &event.PreLoginEvent{Username: ls.Username}
	fireBlocking(proxy.event, pre)
	if pre.Denied {
		reason := pre.Reason
		if reason == nil {
			reason = component.FromComponent(&component.Text{Content: "You are not permitted to connect."})
		}
		_ = h.conn.closeWith(loginDisconnectHolder(reason))
		return
	}

	if !proxy.authenticator.OnlineMode() {
		profile, err := proxy.authenticator.Authenticate(ctx, ls.Username, "", h.clientIP())
		if err != nil {
			zap.S().Errorf("offline authentication failed: %v", err)
			_ = h.conn.close()
			return
		}
		h.finishAuthentication(ctx, profile)
		return
	}

	h.verifyToken = randutil.Bytes(4)
	err := h.conn.WritePacket(&packet.EncryptionRequest{
		ServerID:    "",
		PublicKey:   proxy.keyPair.Public,
		VerifyToken: h.verifyToken,
	})
	if err != nil {
		zap.L().Debug("error sending encryption request", zap.Error(err))
	}
}

func (h *loginSessionHandler) handleEncryptionResponse(ctx context.Context, er *packet.EncryptionResponse) {
	proxy := h.conn.proxy
	verify, err := proxy.keyPair.Decrypt(er.VerifyToken)
	if err != nil || string(verify) != string(h.verifyToken) {
		_ = h.conn.closeWith(loginDisconnectHolder(component.FromComponent(
			&component.Text{Content: "Unable to authenticate."})))
		return
	}
	secret, err := proxy.keyPair.Decrypt(er.SharedSecret)
	if err != nil {
		_ = h.conn.close()
		return
	}
	if err := h.conn.enableEncryption(secret); err != nil {
		zap.S().Errorf("error enabling encryption: %v", err)
		_ = h.conn.close()
		return
	}

	hash := auth.ServerIDHash("", secret, proxy.keyPair.Public)
	profile, err := proxy.authenticator.Authenticate(ctx, h.login.Username, hash, h.clientIP())
	if err != nil {
		zap.S().Infof("session service rejected %s: %v", h.login.Username, err)
		_ = h.conn.closeWith(loginDisconnectHolder(component.FromComponent(
			&component.Translatable{Key: "multiplayer.disconnect.unverified_username"})))
		return
	}
	h.finishAuthentication(ctx, profile)
}

// finishAuthentication applies the duplicate-login policy (spec §4.4
// step 3), registers the player, and sends SetCompression/LoginSuccess.
func (h *loginSessionHandler) finishAuthentication(ctx context.Context, profile *gameprofile.GameProfile) {
	proxy := h.conn.proxy

	fireBlocking(proxy.event, &event.GameProfileRequestEvent{
		Username:   profile.Name,
		OnlineMode: proxy.authenticator.OnlineMode(),
	})

	if existing, ok := proxy.connect.find(profile.ID); ok {
		if !proxy.config.KickExistingPlayers {
			_ = h.conn.closeWith(loginDisconnectHolder(component.FromComponent(
				&component.Translatable{Key: "multiplayer.disconnect.duplicate_login"})))
			return
		}
		existing.disconnectDueToDuplicateConnection.Store(true)
		_ = existing.closeWith(packet.DisconnectWithProtocol(
			&component.Translatable{Key: "multiplayer.disconnect.duplicate_login"}, existing.Protocol()))
	}

	player := newConnectedPlayer(h.conn, profile, h.inbound.VirtualHost(), proxy.authenticator.OnlineMode())
	fireBlocking(proxy.event, &event.PermissionsSetupEvent{Subject: player})

	if !proxy.connect.registerConnection(player) {
		_ = h.conn.closeWith(loginDisconnectHolder(component.FromComponent(
			&component.Translatable{Key: "multiplayer.disconnect.duplicate_login"})))
		return
	}
	h.player = player

	cfg := proxy.config
	if cfg.CompressionThreshold >= 0 {
		if err := h.conn.WritePacket(&packet.SetCompression{Threshold: int32(cfg.CompressionThreshold)}); err != nil {
			zap.L().Debug("error sending set compression", zap.Error(err))
		}
		if err := h.conn.SetCompressionThreshold(cfg.CompressionThreshold); err != nil {
			zap.L().Debug("error enabling compression", zap.Error(err))
		}
	}

	if err := h.conn.WritePacket(&packet.LoginSuccess{UUID: profile.ID, Username: profile.Name}); err != nil {
		zap.L().Debug("error sending login success", zap.Error(err))
	}
}

func (h *loginSessionHandler) handleLoginAcknowledged(ctx context.Context) {
	if h.player == nil {
		_ = h.conn.close()
		return
	}
	h.conn.setState(&state.Config)
	h.conn.setSessionHandler(newConfigSessionHandler(h.conn, h.player))

	login := &event.ProxyPlayerLoginEvent{Player: h.player}
	fireBlocking(h.conn.proxy.event, login)
	if login.Denied {
		reason := login.Reason
		if reason == nil {
			reason = component.FromComponent(&component.Text{Content: "You are not permitted to join this proxy."})
		}
		h.player.Disconnect(mustParseHolderComponent(reason))
		return
	}

	zap.S().Infof("%s (%s) has connected", h.player.Username(), h.player.RemoteAddr())
	// Dial and drive the backend handshake off this goroutine: it is the
	// client's own read loop, and connectToServer blocks on backend I/O
	// for potentially hundreds of milliseconds. Blocking here would stall
	// draining of the client's already-buffered CONFIG packets, which
	// configSessionHandler must see before the switch to PLAY completes.
	go beginInitialConnect(ctx, h.player)
}

func (h *loginSessionHandler) clientIP() string {
	host, _, err := net.SplitHostPort(h.conn.RemoteAddr().String())
	if err != nil {
		return h.conn.RemoteAddr().String()
	}
	return host
}

// loginDisconnectHolder wraps a component.Holder as the LOGIN-state
// Disconnect packet (spec §4.3's LOGIN uses a distinct packet id from
// PLAY's Disconnect for the same semantic kick).
func loginDisconnectHolder(reason *component.Holder) *packet.LoginDisconnect {
	return &packet.LoginDisconnect{Reason: reason}
}

// mustParseHolderComponent recovers a component.Component from a Holder
// built via component.FromComponent, for call sites (like
// connectedPlayer.Disconnect) that want the original typed value back.
func mustParseHolderComponent(h *component.Holder) component.Component {
	if c := h.Parsed(); c != nil {
		return c
	}
	return &component.Text{}
}
