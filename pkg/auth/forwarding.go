package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/pkg/util/bytebuf"
	"github.com/fleetgate/fleetgate/pkg/util/gameprofile"
)

// ForwardingMode selects how the proxy passes the authenticated player
// identity to a backend server (spec §4.4.5).
type ForwardingMode int

const (
	ForwardingNone ForwardingMode = iota
	ForwardingLegacy
	ForwardingBungeeGuard
	ForwardingModern
)

func ParseForwardingMode(s string) (ForwardingMode, error) {
	switch s {
	case "", "none":
		return ForwardingNone, nil
	case "legacy":
		return ForwardingLegacy, nil
	case "bungeeguard":
		return ForwardingBungeeGuard, nil
	case "modern":
		return ForwardingModern, nil
	default:
		return 0, fmt.Errorf("auth: unknown player-info-forwarding mode %q", s)
	}
}

// LegacyForwardingIP builds the "ip\x00uuid\x00properties-json" BungeeCord
// handshake-address payload (spec §4.4.5 legacy mode), appended to the
// handshake's server-address field ahead of the real next-state hop.
func LegacyForwardingIP(clientIP string, profile *gameprofile.GameProfile, properties []byte) string {
	return clientIP + "\x00" + profile.ID.String() + "\x00" + string(properties)
}

// BungeeGuardToken reports whether one of the configured tokens is
// present among the forwarded profile's "bungeeguard-token" property,
// the convention BungeeGuard-compatible proxies use to let a backend
// verify the forwarding actually came from a proxy and not a spoofed
// client (spec §4.4.5 bungeeguard mode).
func BungeeGuardToken(profile *gameprofile.GameProfile, validTokens []string) bool {
	for _, p := range profile.Properties {
		if p.Name != "bungeeguard-token" {
			continue
		}
		for _, t := range validTokens {
			if hmac.Equal([]byte(p.Value), []byte(t)) {
				return true
			}
		}
	}
	return false
}

// ModernForwardingVersion is the single supported modern-forwarding
// payload version this proxy emits and accepts (spec §4.4.5 modern mode).
const ModernForwardingVersion int32 = 1

// WriteModernForwarding builds the HMAC-SHA256-signed modern-forwarding
// plugin-message payload: signature over {version, address, uuid,
// username, properties}, matching the teacher-family's player-info
// forwarding convention built on a shared proxy secret.
func WriteModernForwarding(secret []byte, clientAddr string, profile *gameprofile.GameProfile) ([]byte, error) {
	idBytes, err := profile.ID.MarshalBinary()
	if err != nil {
		return nil, err
	}

	body := bytebuf.NewWriter()
	body.VarInt(ModernForwardingVersion).UTF(clientAddr).Bytes_(idBytes).UTF(profile.Name)
	body.VarInt(int32(len(profile.Properties)))
	for _, p := range profile.Properties {
		body.UTF(p.Name).UTF(p.Value)
		has := p.Signature != ""
		body.Boolean(has)
		if has {
			body.UTF(p.Signature)
		}
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body.Bytes())
	sig := mac.Sum(nil)

	out := bytebuf.NewWriter()
	out.Bytes_(sig).Raw(body.Bytes())
	return out.Bytes(), nil
}

// ReadModernForwarding validates and decodes a modern-forwarding
// payload, returning the embedded profile.
func ReadModernForwarding(secret []byte, payload []byte) (*gameprofile.GameProfile, string, error) {
	r := bytebuf.NewReader(payload)
	sig, err := r.Bytes_(32)
	if err != nil {
		return nil, "", fmt.Errorf("read forwarding signature: %w", err)
	}
	rest := payload[len(payload)-r.Remaining():]

	mac := hmac.New(sha256.New, secret)
	mac.Write(rest)
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return nil, "", fmt.Errorf("modern forwarding: signature mismatch")
	}

	version, err := r.VarInt()
	if err != nil {
		return nil, "", err
	}
	if version != ModernForwardingVersion {
		return nil, "", fmt.Errorf("modern forwarding: unsupported version %d", version)
	}
	addr, err := r.UTF()
	if err != nil {
		return nil, "", err
	}
	idBytes, err := r.Bytes_(16)
	if err != nil {
		return nil, "", err
	}
	var id uuid.UUID
	if err := id.UnmarshalBinary(idBytes); err != nil {
		return nil, "", err
	}
	name, err := r.UTF()
	if err != nil {
		return nil, "", err
	}
	propCount, err := r.VarInt()
	if err != nil {
		return nil, "", err
	}
	profile := &gameprofile.GameProfile{ID: id, Name: name}
	for i := int32(0); i < propCount; i++ {
		pName, err := r.UTF()
		if err != nil {
			return nil, "", err
		}
		pValue, err := r.UTF()
		if err != nil {
			return nil, "", err
		}
		hasSig, err := r.Boolean()
		if err != nil {
			return nil, "", err
		}
		var pSig string
		if hasSig {
			pSig, err = r.UTF()
			if err != nil {
				return nil, "", err
			}
		}
		profile.Properties = append(profile.Properties, gameprofile.Property{Name: pName, Value: pValue, Signature: pSig})
	}
	return profile, addr, nil
}
