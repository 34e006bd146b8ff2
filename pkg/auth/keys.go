package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
)

// ErrNotAuthenticated is returned when the session service reports the
// client never completed a join with Mojang (no such session, or the
// serverId hash mismatched).
var ErrNotAuthenticated = errors.New("auth: session service rejected join (no matching session)")

// marshalPKIXPublicKey DER-encodes the proxy's RSA public key for the
// EncryptionRequest packet. x509 is stdlib: no pack dependency
// performs ASN.1/PKIX key encoding, and this is a one-line call
// wrapping a format Minecraft itself mandates, so reimplementing it
// would add risk without adding idiom.
func marshalPKIXPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}
