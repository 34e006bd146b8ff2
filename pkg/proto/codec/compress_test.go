package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressorRoundTrip(t *testing.T) {
	c := &Compressor{Threshold: 8, Level: -1}
	cases := [][]byte{
		{},
		[]byte("short"), // below threshold: stored raw
		bytes.Repeat([]byte("x"), 1024),
	}
	for _, payload := range cases {
		body, err := c.Compress(payload)
		require.NoError(t, err)
		got, err := c.Decompress(body)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestCompressorNoOpBelowThreshold(t *testing.T) {
	c := &Compressor{Threshold: 256}
	payload := []byte("tiny")
	body, err := c.Compress(payload)
	require.NoError(t, err)
	// uncompressedLen VarInt of 0 followed by raw payload.
	require.Equal(t, byte(0), body[0])
	require.Equal(t, payload, body[1:])
}

func TestDecompressRejectsOversizedClaim(t *testing.T) {
	c := &Compressor{Threshold: 0}
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, maxUncompressedSize+1))
	_, err := c.Decompress(buf.Bytes())
	require.ErrorIs(t, err, ErrBadUncompressedSize)
}
