package proxy

import "github.com/fleetgate/fleetgate/pkg/proxy/forge"

// connectionType distinguishes a vanilla client/backend connection
// from one that is mid-legacy-Forge-handshake, since only the latter
// makes a backend Disconnect "unsafe" (spec §4.5.1).
type connectionType int

const (
	undeterminedConnectionType connectionType = iota
	vanillaConnectionType
	legacyForgeConnectionType
)

func (t connectionType) initialClientPhase() clientConnectionPhase {
	if t == legacyForgeConnectionType {
		return &legacyForgeHandshakeClientPhase{phase: forge.HelloSent}
	}
	return vanillaClientPhase{}
}

// clientConnectionPhase is the small state machine layered over a
// connectionType for legacy Forge clients.
type clientConnectionPhase interface {
	// unsafeToSwitch reports whether a backend Disconnect encountered
	// while in this phase must be treated as an unsafe failure.
	unsafeToSwitch() bool
	resetConnectionPhase(p *connectedPlayer)
}

type vanillaClientPhase struct{}

func (vanillaClientPhase) unsafeToSwitch() bool                { return false }
func (vanillaClientPhase) resetConnectionPhase(*connectedPlayer) {}

type legacyForgeHandshakeClientPhase struct {
	phase forge.Phase
}

func (l *legacyForgeHandshakeClientPhase) unsafeToSwitch() bool { return l.phase.InHandshake() }

func (l *legacyForgeHandshakeClientPhase) resetConnectionPhase(p *connectedPlayer) {
	p.setPhase(&legacyForgeHandshakeClientPhase{phase: forge.HelloSent})
}
