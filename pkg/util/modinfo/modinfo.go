// Package modinfo models the legacy Forge mod list exchanged during the
// FML handshake, opaque to everything except the forge phase state
// machine in pkg/proxy/forge.
package modinfo

// Mod is a single entry in a Forge mod list.
type Mod struct {
	ID      string `json:"modid"`
	Version string `json:"version"`
}

// ModInfo is the list of mods a legacy-Forge client or server reports.
type ModInfo struct {
	Type string `json:"type"`
	Mods []Mod  `json:"modList"`
}
