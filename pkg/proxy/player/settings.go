// Package player models the small set of client-reported state the
// core tracks about a player beyond their GameProfile: locale, view
// distance and chat settings (ClientSettings, spec §4.3 CONFIG rules).
package player

import "github.com/fleetgate/fleetgate/pkg/proto/packet"

// Settings wraps a client's last-reported ClientSettings packet.
type Settings struct {
	Locale   string
	ViewDist int8
}

// DefaultSettings is used for a player who has not yet sent
// ClientSettings.
var DefaultSettings = Settings{Locale: "en_us", ViewDist: 2}

func NewSettings(p *packet.ClientSettings) Settings {
	return Settings{Locale: p.Locale, ViewDist: p.ViewDist}
}
