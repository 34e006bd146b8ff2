package proxy

import (
	"context"
	"net"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
	"github.com/fleetgate/fleetgate/pkg/util/netutil"
)

// handshakeSessionHandler is the only handler attached to a brand-new
// inbound connection; it inspects the single Handshake packet and
// dispatches to STATUS or LOGIN (spec §4.3).
type handshakeSessionHandler struct {
	conn *minecraftConn
	log  logr.Logger
}

func newHandshakeSessionHandler(conn *minecraftConn) *handshakeSessionHandler {
	return &handshakeSessionHandler{
		conn: conn,
		log:  zapr.NewLogger(zap.L()).WithName("handshakeSession").WithValues("remoteAddr", conn.RemoteAddr()),
	}
}

func (h *handshakeSessionHandler) handlePacket(ctx context.Context, p proto.Packet) {
	hs, ok := p.(*packet.Handshake)
	if !ok {
		return
	}
	h.handleHandshake(ctx, hs)
}

func (h *handshakeSessionHandler) handleHandshake(_ context.Context, hs *packet.Handshake) {
	inbound := &inboundIdentity{
		conn:        h.conn,
		virtualHost: netutil.NewAddr(hs.ServerAddress, int(hs.Port)),
	}
	h.conn.setProtocol(hs.ProtocolVersion)

	switch hs.NextState {
	case packet.NextStatus:
		h.conn.setState(&state.Status)
		h.conn.setSessionHandler(newStatusSessionHandler(h.conn, inbound))
	case packet.NextLogin, packet.NextTransfer:
		if !proto.Supported(hs.ProtocolVersion) {
			reason := &component.Translatable{Key: "multiplayer.disconnect.outdated_client"}
			_ = h.conn.closeWith(packet.LoginDisconnectWithProtocol(reason, hs.ProtocolVersion))
			return
		}
		h.conn.setState(&state.Login)
		h.conn.setSessionHandler(newLoginSessionHandler(h.conn, inbound))
	default:
		h.log.V(1).Info("handshake with unknown next state, closing", "nextState", int(hs.NextState))
		_ = h.conn.close()
	}
}

func (h *handshakeSessionHandler) handleUnknownPacket(*proto.PacketContext) { _ = h.conn.close() }
func (h *handshakeSessionHandler) disconnected()                           {}
func (h *handshakeSessionHandler) activated()                              {}
func (h *handshakeSessionHandler) deactivated()                            {}

// inboundIdentity is the pre-login Inbound implementation shared by
// the status and login handlers; it lives for the duration of a
// single connection's handshake->login handoff.
type inboundIdentity struct {
	conn        *minecraftConn
	virtualHost net.Addr
}

func (i *inboundIdentity) Protocol() proto.Protocol { return i.conn.Protocol() }
func (i *inboundIdentity) VirtualHost() net.Addr    { return i.virtualHost }
func (i *inboundIdentity) RemoteAddr() net.Addr     { return i.conn.RemoteAddr() }
func (i *inboundIdentity) Active() bool             { return !i.conn.Closed() }
func (i *inboundIdentity) Closed() bool             { return i.conn.Closed() }
