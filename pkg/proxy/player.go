package proxy

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proxy/fallback"
	"github.com/fleetgate/fleetgate/pkg/proxy/forge"
	"github.com/fleetgate/fleetgate/pkg/proxy/message"
	"github.com/fleetgate/fleetgate/pkg/proxy/permission"
	"github.com/fleetgate/fleetgate/pkg/proxy/player"
	"github.com/fleetgate/fleetgate/pkg/util/gameprofile"
	"github.com/fleetgate/fleetgate/pkg/util/modinfo"
	"github.com/fleetgate/fleetgate/pkg/util/sets"
)

// Player is a connected Minecraft player (spec §3 "Player").
type Player interface {
	Inbound
	CommandSource
	message.ChannelMessageSource
	message.ChannelMessageSink

	Username() string
	Id() uuid.UUID
	CurrentServer() ServerConnection // may be nil
	Ping() time.Duration
	OnlineMode() bool
	CreateConnectionRequest(target RegisteredServer) ConnectionRequest
	GameProfile() *gameprofile.GameProfile
	Disconnect(reason component.Component)
	SpoofChatInput(input string) error
	SendResourcePack(url string) error
	SendResourcePackWithHash(url string, sha1Hash []byte) error
}

// CommandSource is the source that ran a command.
type CommandSource interface {
	permission.Subject
	SendMessage(msg component.Component) error
}

type connectedPlayer struct {
	*minecraftConn
	virtualHost net.Addr
	onlineMode  bool
	profile     *gameprofile.GameProfile
	ping        atomic.Duration
	permFunc    permission.Func

	// disconnectDueToDuplicateConnection is set before closing a
	// connection superseded by a fresher login with the same profile
	// (spec §4.4 duplicate-login policy), so teardown classifies the
	// DisconnectEvent correctly.
	disconnectDueToDuplicateConnection atomic.Bool

	pluginChannelsMu sync.RWMutex
	pluginChannels   sets.String

	mu               sync.RWMutex
	connectedServer_ *serverConnection
	connInFlight     *serverConnection
	settings         player.Settings
	modInfo          *modinfo.ModInfo
	connPhase        clientConnectionPhase

	attempted sets.String
}

var _ Player = (*connectedPlayer)(nil)

func newConnectedPlayer(conn *minecraftConn, profile *gameprofile.GameProfile, virtualHost net.Addr, onlineMode bool) *connectedPlayer {
	ping := atomic.Duration{}
	ping.Store(-1)
	return &connectedPlayer{
		minecraftConn:  conn,
		profile:        profile,
		virtualHost:    virtualHost,
		onlineMode:     onlineMode,
		pluginChannels: sets.NewString(),
		connPhase:      conn.Type().initialClientPhase(),
		ping:           ping,
		permFunc:       func(string) permission.TriState { return permission.Undefined },
	}
}

func (p *connectedPlayer) connectionInFlight() *serverConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connInFlight
}

func (p *connectedPlayer) phase() clientConnectionPhase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connPhase
}

func (p *connectedPlayer) HasPermission(perm string) bool { return p.PermissionValue(perm).Bool() }

func (p *connectedPlayer) PermissionValue(perm string) permission.TriState { return p.permFunc(perm) }

func (p *connectedPlayer) setPermissionFunc(f permission.Func) {
	p.mu.Lock()
	p.permFunc = f
	p.mu.Unlock()
}

func (p *connectedPlayer) Ping() time.Duration { return p.ping.Load() }

func (p *connectedPlayer) OnlineMode() bool { return p.onlineMode }

func (p *connectedPlayer) GameProfile() *gameprofile.GameProfile { return p.profile }

var (
	ErrNoBackendConnection = errors.New("player has no backend server connection yet")
	ErrTooLongChatMessage  = errors.New("server bound chat message can not exceed 256 characters")
)

func (p *connectedPlayer) SpoofChatInput(input string) error {
	if len(input) > packet.MaxServerBoundMessageLength {
		return ErrTooLongChatMessage
	}
	serverMc, ok := p.ensureBackendConnection()
	if !ok {
		return ErrNoBackendConnection
	}
	return serverMc.WritePacket(&packet.Chat{Message: input, Type: packet.ChatMessage})
}

func (p *connectedPlayer) ensureBackendConnection() (*minecraftConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.connectedServer_ == nil {
		return nil, false
	}
	serverMc := p.connectedServer_.conn()
	if serverMc == nil {
		return nil, false
	}
	return serverMc, true
}

func (p *connectedPlayer) SendResourcePack(url string) error {
	return p.WritePacket(&packet.AddResourcePack{URL: url})
}

func (p *connectedPlayer) SendResourcePackWithHash(url string, sha1Hash []byte) error {
	if len(sha1Hash) != 20 {
		return errors.New("hash length must be 20")
	}
	return p.WritePacket(&packet.AddResourcePack{URL: url, Hash: hex.EncodeToString(sha1Hash)})
}

func (p *connectedPlayer) VirtualHost() net.Addr { return p.virtualHost }

func (p *connectedPlayer) Active() bool { return !p.minecraftConn.Closed() }

func (p *connectedPlayer) SendMessage(msg component.Component) error {
	return p.WritePacket(&packet.Chat{Type: packet.ChatMessage, Message: component.PlainText(msg)})
}

func (p *connectedPlayer) SendPluginMessage(identifier message.ChannelIdentifier, data []byte) error {
	return p.WritePacket(&plugin.Message{Channel: identifier.ID(), Data: data})
}

func (p *connectedPlayer) HandlePluginMessage(message.ChannelIdentifier, []byte) bool { return false }

// nextServerToTry implements spec §4.6's selection rules: build
// try_order from forced-hosts (falling back to the global
// attempt-connection-order), remove already-attempted servers and the
// server the player is leaving or already mid-switch to, then apply
// the configured dynamic-fallbacks-filter policy over what remains.
func (p *connectedPlayer) nextServerToTry(current RegisteredServer) RegisteredServer {
	p.mu.Lock()
	defer p.mu.Unlock()

	tryOrder := p.proxy.Config().ForcedHosts[strings.ToLower(hostOf(p.virtualHost.String()))]
	tryOrder = append(append([]string{}, tryOrder...), p.proxy.Config().AttemptConnectionOrder()...)

	sameName := func(rs RegisteredServer, name string) bool {
		return rs != nil && rs.ServerInfo().Name() == name
	}
	if p.attempted == nil {
		p.attempted = sets.NewString()
	}

	var candidates []fallback.Candidate
	byName := make(map[string]RegisteredServer)
	for _, name := range tryOrder {
		if p.attempted.Has(name) {
			continue
		}
		if (p.connectedServer_ != nil && sameName(p.connectedServer_.Server(), name)) ||
			(p.connInFlight != nil && sameName(p.connInFlight.Server(), name)) ||
			(current != nil && sameName(current, name)) {
			continue
		}
		s := p.proxy.Server(name)
		if s == nil {
			continue
		}
		if _, dup := byName[name]; dup {
			continue
		}
		byName[name] = s
		candidates = append(candidates, fallback.Candidate{Name: name, PlayerCount: len(s.Players())})
	}
	if len(candidates) == 0 {
		return nil
	}
	policy := fallback.ParsePolicy(p.proxy.Config().Servers.DynamicFallbacksFilter)
	ordered := fallback.Order(policy, candidates)
	chosen := ordered[0].Name
	p.attempted.Insert(chosen)
	return byName[chosen]
}

// clearAttempted resets the attempted-server set, called once a switch
// fully completes (spec §4.6 "a successful switch clears attempted_servers").
func (p *connectedPlayer) clearAttempted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempted = sets.NewString()
}

// teardown runs once the client's connection is closed: it
// disconnects any backend link, removes the player from both
// registry indexes, and fires DisconnectEvent with the status that
// classifies how the session ended (spec §4.4, §6 lifecycle).
func (p *connectedPlayer) teardown() {
	p.mu.RLock()
	connInFlight := p.connInFlight
	connectedServer := p.connectedServer_
	p.mu.RUnlock()
	if connInFlight != nil {
		connInFlight.disconnect()
	}
	if connectedServer != nil {
		connectedServer.disconnect()
	}
	p.proxy.queue.LeaveAll(p.Id())

	var status string
	if p.proxy.connect.unregisterConnection(p) {
		if p.disconnectDueToDuplicateConnection.Load() {
			status = event.LoginStatusConflicting
		} else {
			status = event.LoginStatusSuccessful
		}
	} else if p.knownDisconnect.Load() {
		status = event.LoginStatusCanceledByProxy
	} else {
		status = event.LoginStatusCanceledByUser
	}
	p.proxy.event.Fire(&event.DisconnectEvent{Player: p, LoginStatus: status})
}

func (p *connectedPlayer) CurrentServer() ServerConnection {
	sc := p.connectedServer()
	if sc == nil {
		return nil
	}
	return sc
}

func (p *connectedPlayer) connectedServer() *serverConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectedServer_
}

func (p *connectedPlayer) Username() string { return p.profile.Name }

func (p *connectedPlayer) Id() uuid.UUID { return p.profile.ID }

func (p *connectedPlayer) Disconnect(reason component.Component) {
	if !p.Active() {
		return
	}
	if p.closeWith(packet.DisconnectWithProtocol(reason, p.Protocol())) == nil {
		zap.S().Infof("%s has disconnected: %s", p, component.PlainText(reason))
	}
}

func (p *connectedPlayer) String() string { return p.profile.Name }

func (p *connectedPlayer) sendLegacyForgeHandshakeResetPacket() { p.phase().resetConnectionPhase(p) }

func (p *connectedPlayer) setPhase(phase *legacyForgeHandshakeClientPhase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connPhase = phase
}

func (p *connectedPlayer) ModInfo() *modinfo.ModInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modInfo
}

func (p *connectedPlayer) SetModInfo(mi *modinfo.ModInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modInfo = mi
}

// knownChannels returns the registered plugin-channel set; the result
// must not be mutated, it is for reading only.
func (p *connectedPlayer) knownChannels() sets.String {
	p.pluginChannelsMu.RLock()
	defer p.pluginChannelsMu.RUnlock()
	return p.pluginChannels
}

func (p *connectedPlayer) lockedKnownChannels(fn func(knownChannels sets.String)) {
	p.pluginChannelsMu.Lock()
	defer p.pluginChannelsMu.Unlock()
	fn(p.pluginChannels)
}

// canForwardPluginMessage reports whether a clientbound plugin message
// should reach this player: Minecraft/Forge internal channels always
// pass, everything else only if the client registered the channel.
func (p *connectedPlayer) canForwardPluginMessage(v proto.Protocol, m *plugin.Message) bool {
	var minecraftOrFmlMessage bool
	if v.Lower(proto.Minecraft_1_13) {
		channel := m.Channel
		minecraftOrFmlMessage = strings.HasPrefix(channel, "MC|") ||
			strings.HasPrefix(channel, forge.LegacyHandshakeChannel) ||
			plugin.LegacyRegister(m) || plugin.LegacyUnregister(m)
	} else {
		minecraftOrFmlMessage = strings.HasPrefix(m.Channel, "minecraft:")
	}
	return minecraftOrFmlMessage || p.knownChannels().Has(m.Channel)
}

func (p *connectedPlayer) setConnectedServer(conn *serverConnection) {
	p.mu.Lock()
	p.connectedServer_ = conn
	p.connInFlight = nil
	p.mu.Unlock()
}

func (p *connectedPlayer) setConnectionInFlight(conn *serverConnection) {
	p.mu.Lock()
	p.connInFlight = conn
	p.mu.Unlock()
}

func (p *connectedPlayer) setSettings(settings *packet.ClientSettings) {
	wrapped := player.NewSettings(settings)
	p.mu.Lock()
	p.settings = wrapped
	p.mu.Unlock()

	p.proxy.Event().FireParallel(&event.PlayerSettingsChangedEvent{
		Player:   p,
		Locale:   wrapped.Locale,
		ViewDist: wrapped.ViewDist,
	})
}

// Settings returns the player's client settings, or player.DefaultSettings
// if ClientSettings hasn't arrived yet.
func (p *connectedPlayer) Settings() player.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if (p.settings != player.Settings{}) {
		return p.settings
	}
	return player.DefaultSettings
}

func RandomUint64() uint64 {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return binary.LittleEndian.Uint64(buf)
}
