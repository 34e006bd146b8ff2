// Package gameprofile models the authoritative profile obtained either
// from the Mojang-style session service (online mode) or synthesized
// locally (offline mode).
package gameprofile

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// Property is a single signed or unsigned game-profile property, most
// notably "textures".
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// GameProfile is the immutable-after-login identity of a player,
// carrying the property list used for player-info forwarding.
type GameProfile struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// OfflineUUID computes the offline-mode uuid as
// md5("OfflinePlayer:"+username) with the version/variant bits forced
// to mark it a version-3 (name-based) uuid, matching vanilla's and
// Velocity's offline id derivation.
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	id, _ := uuid.FromBytes(sum[:])
	return id
}

func (p *GameProfile) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.ID)
}
