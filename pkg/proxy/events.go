package proxy

import (
	"context"
	"time"

	"github.com/fleetgate/fleetgate/pkg/event"
)

// pluginEventTimeout bounds every login/switch-path event fire so a
// stuck plugin handler never wedges a connection (spec §5 "Plugin-event
// futures are bounded by a 5-second timeout").
const pluginEventTimeout = 5 * time.Second

// fireBlocking fires ev and waits for completion or the plugin-event
// timeout, whichever comes first.
func fireBlocking(m *event.Manager, ev event.Event) {
	m.FireWithTimeout(context.Background(), ev, pluginEventTimeout)
}

// inboundEventView adapts *inboundIdentity to event.InboundConnection,
// kept separate from Inbound's net.Addr-returning methods so the two
// interfaces can coexist on the same underlying connection.
type inboundEventView struct{ i *inboundIdentity }

func (v inboundEventView) RemoteAddr() string   { return v.i.RemoteAddr().String() }
func (v inboundEventView) ProtocolVersion() int { return int(v.i.Protocol()) }
