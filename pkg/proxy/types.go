package proxy

import (
	"context"

	"github.com/fleetgate/fleetgate/pkg/component"
)

// RegisteredServer is a known backend target (spec §3 "RegisteredServer").
type RegisteredServer interface {
	ServerInfo() ServerInfo
	Players() []Player
}

// ServerInfo is the immutable {name, address} pair of a backend.
type ServerInfo interface {
	Name() string
	Addr() string
}

type serverInfo struct {
	name, addr string
}

func (s *serverInfo) Name() string { return s.name }
func (s *serverInfo) Addr() string { return s.addr }

// ServerConnection is a player's live link (in-flight or connected) to
// a backend (spec §3 "BackendConnection").
type ServerConnection interface {
	Server() RegisteredServer
	Player() Player
}

// ConnectionRequestResult is the outcome §4.5 step 3-4 resolves to.
type ConnectionRequestResult int

const (
	Successful ConnectionRequestResult = iota
	ConnectionInProgress
	ConnectionCancelled
	ServerDisconnected
	AlreadyConnected
)

// ConnectionRequest drives a single attempt to move a player to
// target, started by CreateConnectionRequest (spec §4.5 router).
type ConnectionRequest interface {
	Server() RegisteredServer
	Connect(ctx context.Context) (ConnectionRequestResult, *component.Holder, error)
}

// LoginStatus classifies how a player's session ended, for
// DisconnectEvent (spec §4.4 duplicate-login policy, §7 propagation).
type LoginStatus string

const (
	SuccessfulLoginStatus       LoginStatus = "successful"
	ConflictingLoginStatus      LoginStatus = "conflicting"
	CanceledByProxyLoginStatus  LoginStatus = "canceled_by_proxy"
	CanceledByUserLoginStatus   LoginStatus = "canceled_by_user"
)
