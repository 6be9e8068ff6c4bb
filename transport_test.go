package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amqpio/amqp10/internal/buffer"
	"github.com/amqpio/amqp10/internal/frames"
)

// TestReadFrameSkipsHeaderExtension builds a frame whose DataOffset claims
// one extra 4-byte word of header extension (legal per the frame layout)
// and checks ReadFrame parses the body starting after it rather than
// misreading the extension bytes as the body's first descriptor byte.
func TestReadFrameSkipsHeaderExtension(t *testing.T) {
	fc := &fakeConn{}
	tr := newTransport(fc, 0)

	body := buffer.New(nil)
	require.NoError(t, (&frames.PerformOpen{ContainerID: "c1"}).Marshal(body))

	const extWords = 1
	size := uint32(frames.HeaderSize + extWords*4 + body.Len())
	hdr := frames.Header{Size: size, DataOffset: 2 + extWords, FrameType: uint8(frames.TypeAMQP), Channel: 0}
	raw := buffer.New(nil)
	require.NoError(t, hdr.Marshal(raw))
	raw.Append(make([]byte, extWords*4))
	raw.Append(body.Bytes())

	tr.rxBuf.Append(raw.Bytes())

	fr, ok, err := tr.ReadFrame()
	require.NoError(t, err)
	require.True(t, ok)
	open, ok := fr.Body.(*frames.PerformOpen)
	require.True(t, ok)
	require.Equal(t, "c1", open.ContainerID)
}

// TestWriteFrameOpenUsesCompactListForm exercises the literal example from
// the wire-format rules: a standalone Open{container_id:"c1"} marshals its
// field list using the compact list8 form, not list32.
func TestWriteFrameOpenUsesCompactListForm(t *testing.T) {
	fc := &fakeConn{}
	tr := newTransport(fc, 0)

	require.NoError(t, tr.WriteFrame(Frame{Type: frames.TypeAMQP, Body: &frames.PerformOpen{ContainerID: "c1"}}))
	require.NoError(t, tr.Flush())

	raw := fc.written
	require.GreaterOrEqual(t, len(raw), frames.HeaderSize+4)
	// descriptor: 0x00 0x53 0x10 (described, smallulong(Open=0x10)), then list8.
	require.Equal(t, []byte{0x00, 0x53, 0x10}, raw[frames.HeaderSize:frames.HeaderSize+3])
	require.Equal(t, byte(0xc0), raw[frames.HeaderSize+3]) // TypeCodeList8
}
