package proxy

import (
	"sync"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/packet/plugin"
	"github.com/fleetgate/fleetgate/pkg/proxy/message"
	"github.com/fleetgate/fleetgate/pkg/util/sets"
)

// ChannelRegistrar tracks the plugin channels the proxy itself knows
// about (BungeeCord's sub-channel responder, spec C9), so the PLAY
// session handler can announce them to a client via the REGISTER
// plugin message and resolve a client-sent REGISTER/UNREGISTER channel
// name back to a message.ChannelIdentifier (spec §4.2 PluginMessageBoth).
type ChannelRegistrar struct {
	mu       sync.RWMutex
	idByName map[string]message.ChannelIdentifier
}

func newChannelRegistrar() *ChannelRegistrar {
	return &ChannelRegistrar{idByName: make(map[string]message.ChannelIdentifier)}
}

// Register adds id (and, for convenience, any additional legacy/modern
// aliases a caller already resolved) to the known-channel table.
func (r *ChannelRegistrar) Register(ids ...message.ChannelIdentifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.idByName[id.ID()] = id
	}
}

func (r *ChannelRegistrar) Unregister(id message.ChannelIdentifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.idByName, id.ID())
}

// FromId resolves a wire channel name back to its ChannelIdentifier.
func (r *ChannelRegistrar) FromId(id string) (message.ChannelIdentifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.idByName[id]
	return c, ok
}

// ChannelsForProtocol returns every known channel's wire name for v,
// splitting legacy ("BungeeCord") vs modern ("bungeecord:main") naming
// at the 1.13 channel-namespacing cutover (spec §4.2).
func (r *ChannelRegistrar) ChannelsForProtocol(v proto.Protocol) sets.String {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := sets.NewString()
	for name := range r.idByName {
		out.Insert(name)
	}
	if v.Lower(proto.Minecraft_1_13) {
		if out.Has(plugin.BungeeCordChannelModern) {
			out.Delete(plugin.BungeeCordChannelModern)
			out.Insert(plugin.BungeeCordChannelLegacy)
		}
	} else {
		if out.Has(plugin.BungeeCordChannelLegacy) {
			out.Delete(plugin.BungeeCordChannelLegacy)
			out.Insert(plugin.BungeeCordChannelModern)
		}
	}
	return out
}
