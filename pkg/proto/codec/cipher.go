package codec

import (
	"crypto/aes"
)

// cfb8 implements AES-128 in 8-bit cipher-feedback mode, the stream
// cipher Minecraft's protocol specifies (spec §4.1 "Cipher"). Go's
// standard crypto/cipher package only ships whole-block CFB (CFB128),
// so this shift register is hand-rolled directly against crypto/aes's
// block cipher - the same approach every from-scratch Minecraft
// implementation takes, since no importable Go library in the example
// pack implements CFB8 (see DESIGN.md).
//
// Per spec's documented protocol oddity, the same 16-byte shared secret
// is used as both the AES key and the initial feedback register (IV).
type cfb8 struct {
	block     [16]byte // AES block cipher output of prev register value
	register  [16]byte
	cipher    interface{ Encrypt(dst, src []byte) }
	encrypt   bool
}

type aesEncrypter interface {
	Encrypt(dst, src []byte)
}

// newCFB8 returns a stateful CFB8 stream transform. encrypt selects
// encryption (true) or decryption (false); both share the same
// algorithm shape, differing only in which byte feeds the next
// register state.
func newCFB8(key []byte, encrypt bool) (*cfb8, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	c := &cfb8{cipher: block, encrypt: encrypt}
	copy(c.register[:], key) // key doubles as IV, per Minecraft's protocol
	return c, nil
}

// XORKeyStream transforms src into dst in place, byte by byte, which is
// why CFB8 is comparatively slow but is what the protocol mandates.
func (c *cfb8) XORKeyStream(dst, src []byte) {
	for i, in := range src {
		c.cipher.Encrypt(c.block[:], c.register[:])
		out := c.block[0] ^ in
		dst[i] = out

		// Shift register left by one byte, append the byte that feeds
		// back in: ciphertext when encrypting, ciphertext when
		// decrypting too (CFB always feeds back ciphertext).
		var feedback byte
		if c.encrypt {
			feedback = out
		} else {
			feedback = in
		}
		copy(c.register[:15], c.register[1:])
		c.register[15] = feedback
	}
}
