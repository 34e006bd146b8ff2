// Package bungee implements the wire-level sub-channel protocol carried
// on the "BungeeCord"/"bungeecord:main" plugin-messaging channel (spec
// [MODULE] C9), grounded on the teacher's plugin.Message/Register
// helpers and pkg/util/bytebuf's DataOutputStream-compatible reader and
// writer. This package only knows how to parse a request's sub-channel
// name and body and how a caller frames a reply; the registry lookups
// a request triggers (finding a server, finding a player, connecting,
// kicking) stay in pkg/proxy to avoid an import cycle.
package bungee

import "github.com/fleetgate/fleetgate/pkg/util/bytebuf"

// Sub-channel names BungeeCord and Velocity-compatible plugins send.
const (
	Connect         = "Connect"
	ConnectOther    = "ConnectOther"
	IP              = "IP"
	IPOther         = "IPOther"
	PlayerCount     = "PlayerCount"
	GetServers      = "GetServers"
	GetServer       = "GetServer"
	UUID            = "UUID"
	UUIDOther       = "UUIDOther"
	ServerIP        = "ServerIP"
	KickPlayer      = "KickPlayer"
	Message         = "Message"
	MessageRaw      = "MessageRaw"
	Forward         = "Forward"
	ForwardToPlayer = "ForwardToPlayer"
)

// Request is one parsed incoming sub-message.
type Request struct {
	Sub  string
	Body []byte
}

// Parse reads the leading UTF sub-channel name off a BungeeCord plugin
// message payload, leaving the rest as Body for sub-specific decoding.
func Parse(data []byte) (*Request, error) {
	r := bytebuf.NewReader(data)
	sub, err := r.UTF()
	if err != nil {
		return nil, err
	}
	return &Request{Sub: sub, Body: r.RemainingBytes()}, nil
}

// Reader opens a bytebuf.Reader over the request's remaining body.
func (r *Request) Reader() *bytebuf.Reader { return bytebuf.NewReader(r.Body) }

// Reply frames a response body under sub, the shape every BungeeCord
// sub-channel reply uses: its own sub-channel name followed by
// sub-specific fields.
func Reply(sub string, build func(w *bytebuf.Writer)) []byte {
	w := bytebuf.NewWriter().UTF(sub)
	build(w)
	return w.Bytes()
}
