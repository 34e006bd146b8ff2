package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 2, 127, 128, 255, 25565, 2097151, 1 << 20, 1<<31 - 1}
	for _, n := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteVarInt(&buf, n))
		require.LessOrEqual(t, buf.Len(), MaxVarIntBytes)
		require.Equal(t, VarIntSize(n), buf.Len())

		got, err := ReadVarInt(bufio.NewReader(&buf))
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}

func TestReadVarIntLimitedRejectsOversizedFrameLength(t *testing.T) {
	// 4-byte-encoded VarInt exceeds the 3-byte frame-length cap.
	var buf bytes.Buffer
	require.NoError(t, WriteVarInt(&buf, 1<<25))
	_, err := ReadVarIntLimited(bufio.NewReader(&buf), MaxFrameLenBytes)
	require.ErrorIs(t, err, ErrVarIntTooBig)
}
