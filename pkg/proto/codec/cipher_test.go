package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCFB8RoundTrip(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 16)
	plain := []byte("the quick brown fox jumps over the lazy dog, twice, for good measure")

	var encrypted bytes.Buffer
	ew, err := NewEncryptWriter(&encrypted, secret)
	require.NoError(t, err)
	_, err = ew.Write(plain)
	require.NoError(t, err)

	dr, err := NewDecryptReader(bytes.NewReader(encrypted.Bytes()), secret)
	require.NoError(t, err)
	got := make([]byte, len(plain))
	_, err = dr.Read(got)
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestCFB8IndependentDirectionsPreserveSessionIdentity(t *testing.T) {
	secret := bytes.Repeat([]byte{0x07}, 16)
	clientToServer := []byte("handshake login start chat keepalive")
	serverToClient := []byte("join game chunk data keepalive response")

	var c2sBuf, s2cBuf bytes.Buffer
	c2sEnc, err := NewEncryptWriter(&c2sBuf, secret)
	require.NoError(t, err)
	_, _ = c2sEnc.Write(clientToServer)
	s2cEnc, err := NewEncryptWriter(&s2cBuf, secret)
	require.NoError(t, err)
	_, _ = s2cEnc.Write(serverToClient)

	c2sDec, err := NewDecryptReader(bytes.NewReader(c2sBuf.Bytes()), secret)
	require.NoError(t, err)
	out1 := make([]byte, len(clientToServer))
	_, _ = c2sDec.Read(out1)
	require.Equal(t, clientToServer, out1)

	s2cDec, err := NewDecryptReader(bytes.NewReader(s2cBuf.Bytes()), secret)
	require.NoError(t, err)
	out2 := make([]byte, len(serverToClient))
	_, _ = s2cDec.Read(out2)
	require.Equal(t, serverToClient, out2)
}
