// Package proxy implements the per-player connection core (spec
// components C3-C6): the session state machine, login/forwarding,
// backend router and switch/failover engine, built around the
// minecraftConn/sessionHandler pair the teacher's Gate proxy uses.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"

	"github.com/fleetgate/fleetgate/pkg/auth"
	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/config"
	"github.com/fleetgate/fleetgate/pkg/event"
	"github.com/fleetgate/fleetgate/pkg/fleet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proxy/command"
	"github.com/fleetgate/fleetgate/pkg/proxy/message"
	"github.com/fleetgate/fleetgate/pkg/queue"
	"github.com/fleetgate/fleetgate/pkg/queue/fleetqueue"
	"github.com/fleetgate/fleetgate/pkg/util/addrquota"
)

// Proxy is the root object of a running instance: one listener, one
// player registry, one server table, and the login/forwarding
// machinery every connection is handed off to.
type Proxy struct {
	config *config.Config
	event  *event.Manager

	authenticator auth.Authenticator
	keyPair       *auth.KeyPair

	connect  *playerRegistry
	servers  *serverRegistry
	channels *ChannelRegistrar
	command  *command.Registry
	queue    *queue.Manager
	fleet    *fleet.Bus

	fleetQueueMaster *fleetqueue.Master
	fleetQueueRemote *fleetqueue.Remote

	loginQuota *addrquota.Quota

	ln net.Listener

	mu              sync.Mutex
	shutdown        bool
	dispatchersOnce sync.Map // target name -> struct{}, guards one Dispatcher per target (spec §5)
}

// New constructs a Proxy from a validated config. Call Run to start
// accepting connections.
func New(cfg *config.Config) *Proxy {
	noQueue := make(map[string]bool, len(cfg.Queue.NoQueueServers))
	for _, s := range cfg.Queue.NoQueueServers {
		noQueue[s] = true
	}
	p := &Proxy{
		config:     cfg,
		event:      event.NewManager(),
		connect:    newPlayerRegistry(),
		channels:   newChannelRegistrar(),
		command:    command.NewRegistry(),
		loginQuota: addrquota.New(cfg.LoginRatelimit()),
		queue: queue.NewManager(queue.Config{
			SendDelay:          time.Duration(cfg.Queue.SendDelayMs) * time.Millisecond,
			MessageDelay:       time.Duration(cfg.Queue.MessageDelayMs) * time.Millisecond,
			MaxSendRetries:     cfg.Queue.MaxSendRetries,
			AllowMultiQueue:    cfg.Queue.AllowMultiQueue,
			NoQueueServers:     noQueue,
			AllowPausedJoining: cfg.Queue.AllowPausedQueueJoining,
		}),
	}
	p.servers = newServerRegistry(p)
	for name, addr := range cfg.Servers.Entries {
		p.servers.register(name, addr)
	}
	p.channels.Register(message.NewChannelIdentifier(plugin.BungeeCordChannelModern))
	registerAdminCommands(p)
	if cfg.Redis.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		p.fleet = fleet.New(addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.UseSSL, cfg.Redis.ProxyID)
		p.fleet.OnDuplicateLogin(func(id uuid.UUID) bool {
			pl, ok := p.connect.find(id)
			if !ok {
				return false
			}
			pl.Disconnect(&component.Translatable{Key: "velocity.error.already-connected-proxy.remote"})
			return true
		})
		p.fleet.RegisterCorePackets()
		p.fleet.Handle(fleet.PacketServerAlert, func(raw json.RawMessage) {
			var alert fleet.ServerAlert
			if json.Unmarshal(raw, &alert) != nil || alert.ProxyID == cfg.Redis.ProxyID {
				return
			}
			msg := &component.Text{Content: alert.Message}
			for _, pl := range p.connect.players() {
				_ = pl.SendMessage(msg)
			}
		})
		event.Subscribe(p.event, &event.ServerConnectedEvent{}, 0, func(ev event.Event) {
			sce, ok := ev.(*event.ServerConnectedEvent)
			if !ok {
				return
			}
			pl, ok := sce.Player.(*connectedPlayer)
			if !ok {
				return
			}
			_ = p.fleet.Publish(context.Background(), fleet.PacketServerChange, &fleet.ServerChange{
				ProxyID: cfg.Redis.ProxyID, UUID: pl.Id(), Server: sce.Server,
			})
		})
		event.Subscribe(p.event, &event.ProxyPlayerLoginEvent{}, 0, func(ev event.Event) {
			le, ok := ev.(*event.ProxyPlayerLoginEvent)
			if !ok || le.Denied {
				return
			}
			pl, ok := le.Player.(*connectedPlayer)
			if !ok {
				return
			}
			_ = p.fleet.Publish(context.Background(), fleet.PacketPlayerJoin, &fleet.PlayerJoin{
				Info: fleet.RemotePlayerInfo{ProxyID: cfg.Redis.ProxyID, UUID: pl.Id(), Username: pl.Username()},
			})
		})
		event.Subscribe(p.event, &event.DisconnectEvent{}, 0, func(ev event.Event) {
			de, ok := ev.(*event.DisconnectEvent)
			if !ok {
				return
			}
			pl, ok := de.Player.(*connectedPlayer)
			if !ok {
				return
			}
			_ = p.fleet.Publish(context.Background(), fleet.PacketPlayerLeave, &fleet.PlayerLeave{
				ProxyID: cfg.Redis.ProxyID, UUID: pl.Id(),
			})
		})
		if cfg.Queue.Enabled {
			p.fleetQueueRemote = fleetqueue.NewRemote(p.fleet, cfg.Redis.ProxyID, p.localConnect)
			if p.isQueueMaster() {
				p.fleetQueueMaster = fleetqueue.NewMaster(p.fleet, p.queue, cfg.Redis.ProxyID)
			}
		}
	}
	if cfg.OnlineMode {
		p.authenticator = auth.NewSessionServiceAuthenticator()
	} else {
		p.authenticator = auth.NewOfflineAuthenticator()
	}
	return p
}

func (p *Proxy) Config() *config.Config            { return p.config }
func (p *Proxy) Event() *event.Manager             { return p.event }
func (p *Proxy) ChannelRegistrar() *ChannelRegistrar { return p.channels }
func (p *Proxy) Command() *command.Registry        { return p.command }
func (p *Proxy) Queue() *queue.Manager              { return p.queue }

// localConnect performs the real backend switch for a dispatched queue
// entry hosted on this proxy; it is both the local-only Dispatcher's
// AdmitFunc and, in fleet mode, the ConnectFunc a non-master proxy
// runs when the master tells it (via SwitchServer) to admit one of its
// own players (spec §4.7 "That proxy performs a local switch").
func (p *Proxy) localConnect(ctx context.Context, playerID uuid.UUID, targetName string) error {
	pl, ok := p.connect.find(playerID)
	if !ok {
		return fmt.Errorf("player %s is no longer connected", playerID)
	}
	server := p.Server(targetName)
	if server == nil {
		return fmt.Errorf("server %s no longer registered", targetName)
	}
	_, reason, err := pl.CreateConnectionRequest(server).Connect(ctx)
	if err != nil {
		return err
	}
	if reason != nil {
		if component.ContainsBannedReason(reason, p.config.Queue.BannedReasons) {
			return queue.ErrBanned
		}
		return fmt.Errorf("rejected: %s", component.Flatten(reason))
	}
	return nil
}

func (p *Proxy) queueMessage(playerID uuid.UUID, text string) {
	if pl, ok := p.connect.find(playerID); ok {
		_ = pl.SendMessage(&component.Text{Content: text})
	}
}

// isQueueMaster reports whether this proxy is one of the configured
// `queue.master-proxy-ids` (spec §4.7 "Fleet mode", and §9's note that
// multiple masters may be listed and all of them process queue ops
// idempotently).
func (p *Proxy) isQueueMaster() bool {
	for _, id := range p.config.Queue.MasterProxyIDs {
		if id == p.config.Redis.ProxyID {
			return true
		}
	}
	return false
}

// ensureDispatcher lazily starts the one Dispatcher goroutine for
// target, the first time any player is queued for it. In fleet mode
// this only actually dispatches on a master proxy (spec §4.7 "queue
// state for a given target is authoritative on the configured master
// proxy"); non-master proxies never start one, since cmdQueue/leave
// routes straight to fleetQueueRemote instead of p.queue.
func (p *Proxy) ensureDispatcher(ctx context.Context, target string) {
	if p.fleet != nil && p.config.Queue.Enabled && !p.isQueueMaster() {
		return
	}
	if _, started := p.dispatchersOnce.LoadOrStore(target, struct{}{}); started {
		return
	}
	admit := p.localConnect
	if p.fleetQueueMaster != nil {
		admit = p.fleetQueueMaster.Admit
	}
	d := queue.NewDispatcher(p.queue, target, admit, p.queueMessage)
	go d.Run(ctx)
}

func (p *Proxy) Server(name string) RegisteredServer { return p.servers.get(name) }
func (p *Proxy) Servers() []RegisteredServer          { return p.servers.all() }

// PlayerCount returns players connected to this proxy, or the
// fleet-wide total across every proxy sharing the Redis plane when
// clustering is enabled (spec §6 "glist" fleet totals).
func (p *Proxy) PlayerCount() int {
	if p.fleet != nil {
		return p.fleet.PlayerCount()
	}
	return p.connect.size()
}

// Run generates the proxy's ephemeral RSA keypair, binds the listener
// and accepts connections until ctx is cancelled or Shutdown is
// called.
func (p *Proxy) Run(ctx context.Context) error {
	kp, err := auth.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate rsa keypair: %w", err)
	}
	p.keyPair = kp

	ln, err := net.Listen("tcp", p.config.Bind)
	if err != nil {
		return fmt.Errorf("bind %s: %w", p.config.Bind, err)
	}
	if p.config.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	p.ln = ln
	zap.S().Infof("listening on %s", p.config.Bind)

	if p.fleet != nil {
		ping := time.Duration(p.config.Redis.PingIntervalMs) * time.Millisecond
		timeout := time.Duration(p.config.Redis.OtherProxyTimeoutMs) * time.Millisecond
		go func() {
			if err := p.fleet.Run(ctx, ping, timeout); err != nil {
				zap.L().Error("fleet bus stopped", zap.Error(err))
			}
		}()
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			p.mu.Lock()
			shuttingDown := p.shutdown
			p.mu.Unlock()
			if shuttingDown {
				return nil
			}
			zap.L().Error("error accepting connection", zap.Error(err))
			continue
		}
		go p.handleConn(ctx, c)
	}
}

func (p *Proxy) handleConn(ctx context.Context, c net.Conn) {
	if !p.loginQuota.Allow(c.RemoteAddr()) {
		_ = c.Close()
		return
	}
	mc := newMinecraftConn(c, p, true, func() []interface{} { return nil })
	mc.setSessionHandler(newHandshakeSessionHandler(mc))
	mc.readLoop(ctx)
}

// Shutdown disconnects every player with reason and stops accepting
// new connections; it waits up to 10s for teardown futures per spec
// §5 "Cancellation & timeouts". When queue-on-shutdown and
// accepts-transfers are both configured, the fleet is enabled and the
// proxy-addresses table is non-empty, 1.20.5+ clients are transferred
// to the chosen entry instead of kicked (spec §4.7 "Shutdown
// semantics", scenario 6); the entry is not probed for reachability.
func (p *Proxy) Shutdown(reason component.Component) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.mu.Unlock()

	if p.ln != nil {
		_ = p.ln.Close()
	}

	if p.fleet != nil {
		_ = p.fleet.AnnounceShutdown(context.Background())
	}

	target := p.shutdownTransferTarget()

	var wg sync.WaitGroup
	for _, pl := range p.connect.players() {
		wg.Add(1)
		go func(pl *connectedPlayer) {
			defer wg.Done()
			if target != nil && pl.Protocol().SupportsTransfer() {
				if p.fleet != nil {
					_ = p.fleet.Publish(context.Background(), fleet.PacketSetTransferReq, &fleet.SetTransferRequest{
						UUID: pl.Id(), Transferring: true,
					})
				}
				_ = pl.closeWith(&packet.Transfer{Host: target.Host, Port: int32(target.Port)})
				return
			}
			_ = pl.closeWith(packet.DisconnectWithProtocol(reason, pl.Protocol()))
		}(pl)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		zap.S().Warn("shutdown teardown grace period expired, exiting anyway")
	}

	if p.fleet != nil {
		_ = p.fleet.Close()
	}
}

// shutdownTransferTarget picks the destination proxy for the shutdown
// transfer from the configured proxy-addresses table, without checking
// that any candidate is reachable, ranking multiple candidates by their
// dynamic-proxy-filter (spec §4.7 "the proxy-addresses table with
// filter MOST_EMPTY | LEAST_EMPTY | NONE").
func (p *Proxy) shutdownTransferTarget() *config.ProxyAddress {
	if !p.config.Queue.QueueOnShutdown || !p.config.AcceptsTransfers || p.fleet == nil {
		return nil
	}
	candidates := p.config.ProxyAddresses
	if len(candidates) == 0 {
		return nil
	}
	best := &candidates[0]
	bestCount := p.fleet.PlayerCountFor(best.ProxyID)
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		count := p.fleet.PlayerCountFor(c.ProxyID)
		switch strings.ToUpper(c.DynamicProxyFilter) {
		case "MOST_EMPTY":
			if count < bestCount {
				best, bestCount = c, count
			}
		case "LEAST_EMPTY":
			if count > bestCount {
				best, bestCount = c, count
			}
		}
	}
	return best
}
