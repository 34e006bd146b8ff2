// Package fleet implements the cross-proxy coordination plane (spec
// [MODULE] C8): a Redis pub/sub bus carrying small JSON-enveloped
// packets between every proxy sharing a `velocityredis` channel, a TTL
// heartbeat key per proxy, and the RemotePlayerInfo/OtherProxy
// registries that give each proxy a fleet-wide view of who is online
// and where. It mirrors the teacher's sessionHandler
// activation/deactivation/dispatch-by-type pattern, but for named wire
// packets (Bus.Handle(id, handler)) instead of connections.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the single pub/sub channel every proxy in the fleet
// subscribes to (spec §6 "Key/value store").
const Channel = "velocityredis"

const heartbeatPrefix = "PROXY_HEARTBEAT:"

// envelope is the `{id, obj}` wire shape every fleet packet is wrapped
// in, so a single pub/sub channel can carry a dispatch table of
// distinct packet kinds (spec §4.1's "Fleet pub/sub packets").
type envelope struct {
	ID  string          `json:"id"`
	Obj json.RawMessage `json:"obj"`
}

// RemotePlayerInfo is the fleet-wide player record spec §3 names,
// replicated by pub/sub and reconciled against each proxy's heartbeat.
type RemotePlayerInfo struct {
	ProxyID          string    `json:"proxy_id"`
	UUID             uuid.UUID `json:"uuid"`
	Username         string    `json:"username"`
	CurrentServer    string    `json:"current_server,omitempty"`
	Priorities       []int     `json:"priorities,omitempty"`
	FullBypass       bool      `json:"full_bypass,omitempty"`
	QueueBypass      bool      `json:"queue_bypass,omitempty"`
	BeingTransferred bool      `json:"being_transferred,omitempty"`
}

// ProxyStatus is a peer proxy's liveness classification (spec §3
// OtherProxy / §4.8 "Heartbeat and liveness").
type ProxyStatus int

const (
	ProxyHealthy ProxyStatus = iota
	ProxyTimedOut
	ProxyShutdown
)

// OtherProxy is a peer proxy's liveness record, classified by its own
// heartbeat TTL key: once that key expires without a renewal the
// record stays in the registry but is marked ProxyTimedOut, and the
// peer's players are dropped (spec §6 "PROXY_HEARTBEAT:<id> (TTL 30s)").
type OtherProxy struct {
	ID       string
	LastSeen time.Time
	Status   ProxyStatus
}

// Handler processes one decoded packet payload for a registered id.
type Handler func(raw json.RawMessage)

// Packet ids of the fleet pub/sub envelope (spec §4.8 "Packets"). Not
// every id the spec lists earns a constant here — queue coordination
// (redis-queue-*, switch-server) lives in pkg/queue/fleetqueue; of the
// admin broadcasts, only ServerAlert is wired end-to-end (by
// pkg/proxy's `/alert` command) as the representative instance. The
// remaining admin ids (send-message, kick-player, sudo,
// transfer-command-request, get-player-ping, generic-command-request)
// are valid envelope ids any caller can Publish/Handle directly; no
// command publishes them and nothing handles them.
const (
	PacketIDAnnouncement  = "id-announcement"
	PacketPlayerJoin      = "player-join"
	PacketPlayerLeave     = "player-leave"
	PacketServerChange    = "player-server-change"
	PacketSetQueuedServer = "set-queued-server"
	PacketSetTransferReq  = "set-transfer-request"
	PacketShuttingDown    = "shutting-down"
	PacketServerAlert     = "server-alert"
)

// ServerAlert is the fleet-wide `/alert` broadcast (spec §4.8 Admin
// packets); every proxy that receives one shows Message to its local
// players.
type ServerAlert struct {
	ProxyID string `json:"proxyId"`
	Message string `json:"message"`
}

// IDAnnouncement is the boot-time discovery packet (spec §4.8).
type IDAnnouncement struct {
	ProxyID    string `json:"proxyId"`
	WantsReply bool   `json:"wantsReply"`
}

// PlayerJoin announces a player newly registered on ProxyID.
type PlayerJoin struct {
	Info RemotePlayerInfo `json:"info"`
}

// PlayerLeave announces a player's departure from ProxyID.
type PlayerLeave struct {
	ProxyID string    `json:"proxyId"`
	UUID    uuid.UUID `json:"uuid"`
}

// ServerChange announces that a player already known fleet-wide moved
// to a new current server (or left every server, Server == "").
type ServerChange struct {
	ProxyID string    `json:"proxyId"`
	UUID    uuid.UUID `json:"uuid"`
	Server  string    `json:"server,omitempty"`
}

// SetTransferRequest marks/clears a player's being-transferred flag
// for the 30s window spec §4.7 "Shutdown semantics" describes, so the
// receiving proxy can tell a transfer arrival from a fresh connect.
type SetTransferRequest struct {
	UUID                     uuid.UUID `json:"uuid"`
	Transferring             bool      `json:"transferring"`
	CurrentlyConnectedServer string    `json:"currentlyConnectedServer,omitempty"`
}

// ShuttingDown announces a proxy's clean shutdown, so peers classify
// it ProxyShutdown instead of waiting out the heartbeat TTL as a
// ProxyTimedOut.
type ShuttingDown struct {
	ProxyID string `json:"proxyId"`
}

// DuplicateLoginFunc is invoked when a player-join names a uuid this
// proxy already has registered locally; it must disconnect the local
// copy with the fleet duplicate-login reason (spec §4.8 "Duplicate-
// login across fleet", scenario 5) and report whether it did so.
type DuplicateLoginFunc func(id uuid.UUID) bool

// Bus is one proxy's connection to the fleet plane.
type Bus struct {
	rdb     *redis.Client
	proxyID string

	onDuplicateLogin DuplicateLoginFunc

	mu          sync.RWMutex
	handlers    map[string]Handler
	players     map[uuid.UUID]*RemotePlayerInfo
	proxies     map[string]*OtherProxy
	transferred map[uuid.UUID]time.Time // uuid -> expiry, spec's 30s being_transferred window
}

// New constructs a Bus bound to addr (host:port); callers still need
// to call Run to start the subscribe loop and heartbeat.
func New(addr, username, password string, useSSL bool, proxyID string) *Bus {
	opts := &redis.Options{Addr: addr, Username: username, Password: password}
	if useSSL {
		opts.TLSConfig = nil // left to the default *tls.Config the driver builds for rediss://; spec carries no custom CA config.
	}
	return &Bus{
		rdb:         redis.NewClient(opts),
		proxyID:     proxyID,
		handlers:    make(map[string]Handler),
		players:     make(map[uuid.UUID]*RemotePlayerInfo),
		proxies:     make(map[string]*OtherProxy),
		transferred: make(map[uuid.UUID]time.Time),
	}
}

// OnDuplicateLogin registers the callback invoked when a peer's
// player-join names a uuid this proxy already hosts locally (spec
// §4.8 "Duplicate-login across fleet"). RegisterCorePackets installs
// the handler that calls it.
func (b *Bus) OnDuplicateLogin(fn DuplicateLoginFunc) {
	b.onDuplicateLogin = fn
}

// RegisterCorePackets wires the fleet packet catalog of spec §4.8
// (player presence, transfer marking, shutdown liveness) onto Handle,
// so callers only need to supply the side effects (duplicate-login
// disconnect, local player-registry updates) via the functional
// arguments. Queue coordination and admin broadcasts are registered
// separately by their owning packages.
func (b *Bus) RegisterCorePackets() {
	b.Handle(PacketIDAnnouncement, func(raw json.RawMessage) {
		var ann IDAnnouncement
		if json.Unmarshal(raw, &ann) != nil || ann.ProxyID == b.proxyID {
			return
		}
		b.mu.Lock()
		if _, ok := b.proxies[ann.ProxyID]; !ok {
			b.proxies[ann.ProxyID] = &OtherProxy{ID: ann.ProxyID, LastSeen: time.Now()}
		}
		b.mu.Unlock()
		if ann.WantsReply {
			_ = b.Publish(context.Background(), PacketIDAnnouncement, &IDAnnouncement{ProxyID: b.proxyID})
		}
	})
	b.Handle(PacketPlayerJoin, func(raw json.RawMessage) {
		var pkt PlayerJoin
		if json.Unmarshal(raw, &pkt) != nil {
			return
		}
		if pkt.Info.ProxyID == b.proxyID {
			b.UpsertPlayer(&pkt.Info)
			return
		}
		if b.onDuplicateLogin != nil && b.onDuplicateLogin(pkt.Info.UUID) {
			zap.S().Infof("fleet: kicked local copy of %s, duplicate-joined on proxy %s", pkt.Info.UUID, pkt.Info.ProxyID)
		}
		b.UpsertPlayer(&pkt.Info)
	})
	b.Handle(PacketPlayerLeave, func(raw json.RawMessage) {
		var pkt PlayerLeave
		if json.Unmarshal(raw, &pkt) != nil {
			return
		}
		b.mu.Lock()
		if info, ok := b.players[pkt.UUID]; ok && info.ProxyID == pkt.ProxyID {
			delete(b.players, pkt.UUID)
		}
		b.mu.Unlock()
	})
	b.Handle(PacketServerChange, func(raw json.RawMessage) {
		var pkt ServerChange
		if json.Unmarshal(raw, &pkt) != nil {
			return
		}
		b.mu.Lock()
		if info, ok := b.players[pkt.UUID]; ok {
			info.CurrentServer = pkt.Server
		}
		b.mu.Unlock()
	})
	b.Handle(PacketSetTransferReq, func(raw json.RawMessage) {
		var pkt SetTransferRequest
		if json.Unmarshal(raw, &pkt) != nil {
			return
		}
		b.mu.Lock()
		if pkt.Transferring {
			b.transferred[pkt.UUID] = time.Now().Add(30 * time.Second)
		} else {
			delete(b.transferred, pkt.UUID)
		}
		if info, ok := b.players[pkt.UUID]; ok {
			info.BeingTransferred = pkt.Transferring
		}
		b.mu.Unlock()
	})
	b.Handle(PacketShuttingDown, func(raw json.RawMessage) {
		var pkt ShuttingDown
		if json.Unmarshal(raw, &pkt) != nil {
			return
		}
		b.mu.Lock()
		if op, ok := b.proxies[pkt.ProxyID]; ok {
			op.Status = ProxyShutdown
		} else {
			b.proxies[pkt.ProxyID] = &OtherProxy{ID: pkt.ProxyID, LastSeen: time.Now(), Status: ProxyShutdown}
		}
		b.mu.Unlock()
	})
}

// BeingTransferred reports whether id is within its 30s
// just-transferred window (spec §4.7 "marked being_transferred ... for
// 30s so the receiving proxy can distinguish the arrival from a fresh
// connect").
func (b *Bus) BeingTransferred(id uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	exp, ok := b.transferred[id]
	return ok && time.Now().Before(exp)
}

// AnnounceShutdown publishes this proxy's shutting-down packet so
// peers can classify it ProxyShutdown instead of waiting for its
// heartbeat TTL to lapse.
func (b *Bus) AnnounceShutdown(ctx context.Context) error {
	return b.Publish(ctx, PacketShuttingDown, &ShuttingDown{ProxyID: b.proxyID})
}

// Handle registers a dispatch handler for packets carrying id in their
// envelope, mirroring the teacher's per-packet-type sessionHandler
// methods but keyed by a string id instead of a Go type switch.
func (b *Bus) Handle(id string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
}

// Publish wraps obj in the {id, obj} envelope and publishes it on
// Channel for every subscribed proxy (including this one) to receive.
func (b *Bus) Publish(ctx context.Context, id string, obj interface{}) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("fleet: marshal %s: %w", id, err)
	}
	env, err := json.Marshal(envelope{ID: id, Obj: body})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, env).Err()
}

// Run subscribes to Channel, starts the heartbeat loop and runs a
// reconciliation sweep every 30s (spec §6) until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, pingInterval, otherProxyTimeout time.Duration) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	go b.heartbeatLoop(ctx, pingInterval)
	go b.reconcileLoop(ctx, otherProxyTimeout)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch(msg.Payload)
		}
	}
}

func (b *Bus) dispatch(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		zap.S().Debugf("fleet: malformed envelope: %v", err)
		return
	}
	b.mu.RLock()
	h, ok := b.handlers[env.ID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	h(env.Obj)
}

// heartbeatLoop renews this proxy's PROXY_HEARTBEAT:<id> TTL key every
// interval, so peers' reconcileLoop can tell a silent crash from a
// momentary pub/sub gap.
func (b *Bus) heartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ttl := 30 * time.Second
	t := time.NewTicker(interval)
	defer t.Stop()
	key := heartbeatPrefix + b.proxyID
	for {
		_ = b.rdb.Set(ctx, key, time.Now().Unix(), ttl).Err()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// reconcileLoop prunes RemotePlayerInfo entries belonging to a proxy
// whose heartbeat key has expired and marks that proxy's OtherProxy
// record ProxyTimedOut (spec's fleet invariant (a): a player UUID must
// not survive its owning proxy going dark).
func (b *Bus) reconcileLoop(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 65 * time.Second
	}
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.sweep(ctx, timeout)
		}
	}
}

func (b *Bus) sweep(ctx context.Context, timeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, op := range b.proxies {
		if id == b.proxyID || op.Status == ProxyShutdown {
			continue
		}
		exists, err := b.rdb.Exists(ctx, heartbeatPrefix+id).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			op.Status = ProxyTimedOut
			for uid, info := range b.players {
				if info.ProxyID == id {
					delete(b.players, uid)
				}
			}
		} else {
			op.Status = ProxyHealthy
		}
	}
	for uid, exp := range b.transferred {
		if time.Now().After(exp) {
			delete(b.transferred, uid)
		}
	}
}

// Proxies returns a snapshot of every known peer's liveness record
// (spec §3 OtherProxy), for the admin `glist`/`velocity dump` surface.
func (b *Bus) Proxies() []OtherProxy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]OtherProxy, 0, len(b.proxies))
	for _, op := range b.proxies {
		out = append(out, *op)
	}
	return out
}

// UpsertPlayer records or updates info's entry, called both by this
// proxy's own presence publishes and by a player-join packet received
// from a peer.
func (b *Bus) UpsertPlayer(info *RemotePlayerInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.players[info.UUID] = info
	if _, ok := b.proxies[info.ProxyID]; !ok {
		b.proxies[info.ProxyID] = &OtherProxy{ID: info.ProxyID, LastSeen: time.Now()}
	}
}

func (b *Bus) RemovePlayer(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.players, id)
}

// Player looks up the fleet-wide record for id across every proxy.
func (b *Bus) Player(id uuid.UUID) (*RemotePlayerInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.players[id]
	return p, ok
}

// PlayerCount returns the total number of players known fleet-wide.
func (b *Bus) PlayerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.players)
}

// PlayerCountFor returns the number of players fleet-wide currently
// hosted by proxyID, used to rank `proxy-addresses[]` candidates under
// the MOST_EMPTY/LEAST_EMPTY shutdown-transfer filter (spec §4.7
// "Shutdown semantics").
func (b *Bus) PlayerCountFor(proxyID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, info := range b.players {
		if info.ProxyID == proxyID {
			n++
		}
	}
	return n
}

func (b *Bus) Close() error { return b.rdb.Close() }
