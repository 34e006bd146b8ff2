package event

import (
	"github.com/fleetgate/fleetgate/pkg/component"
)

// The events below that a plugin can veto carry a plain Denied bool
// field, mirroring the teacher's style of plain bool fields on event
// structs rather than a generic Result type.

// ConnectionHandshakeEvent fires once a handshake packet is parsed,
// before the proxy decides STATUS vs LOGIN routing (spec §4.2).
type ConnectionHandshakeEvent struct {
	Inbound         InboundConnection
	OriginalAddress string
}

// PreLoginEvent fires before the authenticator is consulted, letting
// plugins force offline-mode or deny the connection outright.
type PreLoginEvent struct {
	Username string
	Denied   bool
	Reason   *component.Holder
}

// GameProfileRequestEvent fires after authentication succeeds (or is
// skipped in offline mode), letting plugins rewrite the resolved
// profile before LoginSuccess is sent.
type GameProfileRequestEvent struct {
	Username   string
	OnlineMode bool
}

// PermissionsSetupEvent fires once a player or the console object is
// constructed, letting plugins attach a permission function (spec's
// permission subsystem, carried from the teacher's PermissionsSetupEvent).
type PermissionsSetupEvent struct {
	Subject interface{}
}

// ProxyPlayerLoginEvent fires after a player fully completes LOGIN,
// before ServerPreConnect picks the first backend.
type ProxyPlayerLoginEvent struct {
	Player   interface{}
	Denied   bool
	Reason   *component.Holder
}

// ServerPreConnectEvent fires before the proxy attempts to connect a
// player to a backend server (initial join or /server, spec §5.1),
// letting plugins redirect the target.
type ServerPreConnectEvent struct {
	Player       interface{}
	OriginalDest string
	Dest         string
	Denied       bool
}

// ServerConnectedEvent fires once JoinGame/Respawn handoff completes
// for a new backend (spec §4.5 step 5).
type ServerConnectedEvent struct {
	Player       interface{}
	Server       string
	PreviousServer string
}

// KickedFromServerEvent fires when a backend disconnects a connected
// or in-flight player, carrying the fallback decision the core will
// act on unless a plugin overrides it (spec §5.2).
type KickedFromServerEvent struct {
	Player      interface{}
	Server      string
	Reason      *component.Holder
	DuringLogin bool

	// Result fields a plugin can set to override the core's default.
	AllowRedirect bool
	RedirectTo    string
	DisconnectInstead bool
}

// DisconnectEvent fires once a player's connection is fully torn
// down, after deregistration (spec §6's lifecycle edge). LoginStatus
// distinguishes a clean disconnect from one superseded by a duplicate
// login or cancelled before it ever registered.
type DisconnectEvent struct {
	Player      interface{}
	LoginStatus string
}

const (
	LoginStatusSuccessful       = "successful"
	LoginStatusConflicting      = "conflicting"
	LoginStatusCanceledByProxy  = "canceled_by_proxy"
	LoginStatusCanceledByUser   = "canceled_by_user"
	LoginStatusPreLoginDenied   = "pre_login_denied"
)

// PlayerChatEvent fires for a serverbound chat packet before it is
// forwarded to the backend.
type PlayerChatEvent struct {
	Player  interface{}
	Message string
	Denied  bool
}

// CommandExecuteEvent fires for a command typed by a player or sent
// over the admin surface before the proxy's own command graph runs.
type CommandExecuteEvent struct {
	Source     interface{}
	Command    string
	Denied     bool
	Forwarded  bool // true if no proxy command matched and it was sent to the backend verbatim
}

// PluginMessageEvent fires for every plugin-channel message crossing
// the proxy so the BungeeCord responder and forwarding logic can both
// observe and (for the proxy's own channels) consume it.
type PluginMessageEvent struct {
	Source   interface{}
	Channel  string
	Data     []byte
	Consumed bool
}

// PlayerSettingsChangedEvent fires when ClientSettings changes.
type PlayerSettingsChangedEvent struct {
	Player   interface{}
	Locale   string
	ViewDist int8
}

// ProxyQueueEvent family covers queue subsystem transitions (spec
// [MODULE] Queue Engine): enqueue, dequeue (dispatch attempt), and
// position-change notifications a plugin might use to update a
// scoreboard or actionbar.
type ProxyQueueEvent struct {
	Player interface{}
	Target string
}

type QueuedEvent struct{ ProxyQueueEvent }
type DequeuedEvent struct {
	ProxyQueueEvent
	Success bool
}
type QueuePositionChangeEvent struct {
	ProxyQueueEvent
	Position int
}

// InboundConnection is the minimal surface event.go needs from a raw
// inbound connection, to avoid importing pkg/proxy (which imports
// pkg/event) and creating a cycle.
type InboundConnection interface {
	RemoteAddr() string
	ProtocolVersion() int
}
