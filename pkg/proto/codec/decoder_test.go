package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetgate/fleetgate/pkg/proto"
	"github.com/fleetgate/fleetgate/pkg/proto/state"
)

// TestReadPacketDecompressesPayloadForUnknownPacket covers the
// forwarding path an opaque PLAY packet takes when compression is
// enabled: ctx.Payload must be the decompressed bytes, never the raw
// wire frame, or re-forwarding it double-compresses the packet.
func TestReadPacketDecompressesPayloadForUnknownPacket(t *testing.T) {
	const wireID = 0x7F // unmapped in state.Play clientbound at this version

	var payload bytes.Buffer
	require.NoError(t, WriteVarInt(&payload, int32(wireID)))
	payload.WriteString("opaque chunk data that must survive untouched")

	c := &Compressor{Threshold: 8, Level: -1}
	body, err := c.Compress(payload.Bytes())
	require.NoError(t, err)

	var frame bytes.Buffer
	require.NoError(t, WriteFrame(&frame, body))

	d := NewDecoder(bufio.NewReader(&frame), proto.ClientBound, nil)
	d.SetState(&state.Play)
	d.SetProtocol(proto.Minecraft_1_7_2)
	d.SetCompressionThreshold(8)

	ctx, err := d.ReadPacket()
	require.NoError(t, err)
	require.False(t, ctx.KnownPacket)
	require.Equal(t, wireID, ctx.WireID)
	require.Equal(t, payload.Bytes(), ctx.Payload)
}

// TestReadPacketNoCompressionStillYieldsFrameAsPayload covers the
// compression-disabled case, where body and frame are the same bytes
// and Payload should simply equal the frame.
func TestReadPacketNoCompressionStillYieldsFrameAsPayload(t *testing.T) {
	const wireID = 0x7F

	var payload bytes.Buffer
	require.NoError(t, WriteVarInt(&payload, int32(wireID)))
	payload.WriteString("uncompressed opaque packet")

	var frame bytes.Buffer
	require.NoError(t, WriteFrame(&frame, payload.Bytes()))

	d := NewDecoder(bufio.NewReader(&frame), proto.ClientBound, nil)
	d.SetState(&state.Play)
	d.SetProtocol(proto.Minecraft_1_7_2)

	ctx, err := d.ReadPacket()
	require.NoError(t, err)
	require.False(t, ctx.KnownPacket)
	require.Equal(t, payload.Bytes(), ctx.Payload)
}
