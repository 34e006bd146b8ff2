package proxy

import (
	"sync"
	"time"
)

// registeredServer is the concrete RegisteredServer: a named backend
// address plus the players currently connected to it, derived from
// the player registry rather than stored redundantly (spec §3
// "players_connected derivable from the player index").
type registeredServer struct {
	info *serverInfo
	reg  *serverRegistry
}

func (s *registeredServer) ServerInfo() ServerInfo { return s.info }

func (s *registeredServer) Players() []Player {
	var out []Player
	for _, p := range s.reg.proxy.connect.players() {
		if sc := p.connectedServer(); sc != nil && sc.Server().ServerInfo().Name() == s.info.name {
			out = append(out, p)
		}
	}
	return out
}

// serverConnection is a live link (in-flight or steady-state) from a
// player to a backend.
type serverConnection struct {
	mu       sync.RWMutex
	server   RegisteredServer
	player   *connectedPlayer
	mc       *minecraftConn
	pendingPings map[int64]int64 // keepalive id -> send time (monotonic ns)
}

func newServerConnection(server RegisteredServer, player *connectedPlayer) *serverConnection {
	return &serverConnection{server: server, player: player, pendingPings: make(map[int64]int64)}
}

func (s *serverConnection) Server() RegisteredServer { return s.server }
func (s *serverConnection) Player() Player           { return s.player }

func (s *serverConnection) conn() *minecraftConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mc
}

func (s *serverConnection) setConn(mc *minecraftConn) {
	s.mu.Lock()
	s.mc = mc
	s.mu.Unlock()
}

func (s *serverConnection) disconnect() {
	mc := s.conn()
	if mc != nil {
		_ = mc.close()
	}
}

// recordPing notes that a clientbound KeepAlive with id was just
// forwarded to the client, so the matching serverbound reply can be
// timed once it comes back (spec §3 Player.Ping()).
func (s *serverConnection) recordPing(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPings[id] = time.Now().UnixNano()
}

// takePing consumes and returns the send time recorded by recordPing
// for id, if any.
func (s *serverConnection) takePing(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent, ok := s.pendingPings[id]
	if !ok {
		return time.Time{}, false
	}
	delete(s.pendingPings, id)
	return time.Unix(0, sent), true
}

// serverRegistry is the proxy's named-backend table (`servers.<name>`,
// spec §6 Configuration).
type serverRegistry struct {
	proxy *Proxy

	mu      sync.RWMutex
	servers map[string]*registeredServer
}

func newServerRegistry(proxy *Proxy) *serverRegistry {
	return &serverRegistry{proxy: proxy, servers: make(map[string]*registeredServer)}
}

func (r *serverRegistry) register(name, addr string) *registeredServer {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &registeredServer{info: &serverInfo{name: name, addr: addr}, reg: r}
	r.servers[name] = s
	return s
}

func (r *serverRegistry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, name)
}

func (r *serverRegistry) get(name string) RegisteredServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[name]
	if !ok {
		return nil
	}
	return s
}

func (r *serverRegistry) all() []RegisteredServer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredServer, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	return out
}
