// Package forge tracks the legacy (pre-1.13) Forge "FML|HS" handshake
// phase a client or backend connection is in, so a Disconnect received
// mid-handshake can be classified unsafe per spec §4.5.1 and §7
// BackendUnsafe.
package forge

// LegacyHandshakeChannel is the legacy FML handshake plugin channel
// prefix recognized alongside "MC|" (spec §4.4's mod-handshake carve
// out, teacher's canForwardPluginMessage).
const LegacyHandshakeChannel = "FML|HS"

// Phase enumerates the legacy Forge client handshake's coarse state.
type Phase int

const (
	NotStarted Phase = iota
	HelloSent
	Complete
)

// InHandshake reports whether phase sits strictly between
// NotStarted and Complete — the window in which a backend Disconnect
// must be treated as unsafe (spec §4.5.1).
func (p Phase) InHandshake() bool {
	return p == HelloSent
}
