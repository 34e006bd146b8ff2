// Package randutil centralizes the small amount of randomness the
// proxy needs outside of cryptography: keep-alive ids and verify
// tokens use crypto/rand so they remain unpredictable to a client
// trying to forge a response.
package randutil

import (
	"crypto/rand"
	"encoding/binary"
)

// Uint64 returns a cryptographically random 64-bit value, used for
// keep-alive packet ids.
func Uint64() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// Bytes returns n cryptographically random bytes, used for the 4-byte
// encryption verify token.
func Bytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
