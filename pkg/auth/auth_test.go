package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/pkg/util/gameprofile"
)

func encryptForTest(t *testing.T, kp *KeyPair, secret []byte) ([]byte, error) {
	t.Helper()
	return rsa.EncryptPKCS1v15(rand.Reader, &kp.Private.PublicKey, secret)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return id
}

func TestOfflineAuthenticatorIsDeterministic(t *testing.T) {
	a := NewOfflineAuthenticator()
	require.False(t, a.OnlineMode())

	p1, err := a.Authenticate(context.Background(), "Notch", "", "127.0.0.1")
	require.NoError(t, err)
	p2, err := a.Authenticate(context.Background(), "Notch", "", "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "Notch", p1.Name)
}

func TestGenerateKeyPairAndDecryptRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, kp.Public)

	secret := []byte("0123456789abcdef")
	ciphertext, err := encryptForTest(t, kp, secret)
	require.NoError(t, err)

	plain, err := kp.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, secret, plain)
}

func TestServerIDHashMatchesKnownVector(t *testing.T) {
	// Notchian test vector: sha1 hex digest of "Notch" with no secret or
	// key is a known constant used across Minecraft server implementations.
	hash := ServerIDHash("Notch", nil, nil)
	assert.Equal(t, "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48", hash)
}

func TestBungeeGuardTokenMatch(t *testing.T) {
	profile := &gameprofile.GameProfile{
		Properties: []gameprofile.Property{{Name: "bungeeguard-token", Value: "secret-token"}},
	}
	assert.True(t, BungeeGuardToken(profile, []string{"other", "secret-token"}))
	assert.False(t, BungeeGuardToken(profile, []string{"other"}))
}

func TestModernForwardingRoundTrip(t *testing.T) {
	secret := []byte("fleet-shared-secret")
	profile := &gameprofile.GameProfile{
		ID:   mustUUID(t),
		Name: "Alex",
		Properties: []gameprofile.Property{
			{Name: "textures", Value: "abc123", Signature: "sig"},
		},
	}

	payload, err := WriteModernForwarding(secret, "1.2.3.4", profile)
	require.NoError(t, err)

	got, addr, err := ReadModernForwarding(secret, payload)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", addr)
	assert.Equal(t, profile.ID, got.ID)
	assert.Equal(t, profile.Name, got.Name)
	require.Len(t, got.Properties, 1)
	assert.Equal(t, "textures", got.Properties[0].Name)
	assert.Equal(t, "sig", got.Properties[0].Signature)
}

func TestModernForwardingRejectsTamperedPayload(t *testing.T) {
	secret := []byte("fleet-shared-secret")
	profile := &gameprofile.GameProfile{ID: mustUUID(t), Name: "Alex"}
	payload, err := WriteModernForwarding(secret, "1.2.3.4", profile)
	require.NoError(t, err)

	payload[len(payload)-1] ^= 0xFF

	_, _, err = ReadModernForwarding(secret, payload)
	assert.Error(t, err)
}
