package frames

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/amqpio/amqp10/internal/buffer"
	"github.com/amqpio/amqp10/internal/encoding"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{Size: 42, DataOffset: 2, FrameType: uint8(TypeAMQP), Channel: 7}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))
	require.Len(t, wr.Bytes(), HeaderSize)

	out, err := ParseHeader(buffer.New(wr.Bytes()))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestParseHeaderRejectsShortSize(t *testing.T) {
	wr := buffer.New(nil)
	require.NoError(t, Header{Size: 3, DataOffset: 2}.Marshal(wr))
	_, err := ParseHeader(buffer.New(wr.Bytes()))
	require.Error(t, err)
}

func TestParseHeaderRejectsShortDataOffset(t *testing.T) {
	wr := buffer.New(nil)
	require.NoError(t, Header{Size: HeaderSize, DataOffset: 1}.Marshal(wr))
	_, err := ParseHeader(buffer.New(wr.Bytes()))
	require.Error(t, err)
}

func TestParseHeaderNotEnoughBytes(t *testing.T) {
	_, err := ParseHeader(buffer.New([]byte{0, 0, 0}))
	require.Error(t, err)
}

func bodyRoundTrip(t *testing.T, in FrameBody) FrameBody {
	t.Helper()
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))
	out, err := ParseBody(buffer.New(wr.Bytes()))
	require.NoError(t, err)
	return out
}

func TestPerformOpenRoundTrip(t *testing.T) {
	idle := uint32(5000)
	in := &PerformOpen{
		ContainerID:  "container-1",
		Hostname:     "localhost",
		MaxFrameSize: 4096,
		ChannelMax:   10,
		IdleTimeout:  &idle,
	}
	out := bodyRoundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("PerformOpen round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPerformOpenChannelMaxDefault(t *testing.T) {
	// An Open omitting ChannelMax must decode to the 65535 default, not zero.
	in := &PerformOpen{ContainerID: "c"}
	out := bodyRoundTrip(t, in)
	open, ok := out.(*PerformOpen)
	require.True(t, ok)
	require.EqualValues(t, 65535, open.ChannelMax)
}

func TestPerformBeginRoundTrip(t *testing.T) {
	remote := uint16(3)
	in := &PerformBegin{
		RemoteChannel:  &remote,
		NextOutgoingID: 0,
		IncomingWindow: 10,
		OutgoingWindow: 10,
		HandleMax:      100,
	}
	out := bodyRoundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("PerformBegin round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPerformBeginHandleMaxDefault(t *testing.T) {
	in := &PerformBegin{NextOutgoingID: 0, IncomingWindow: 1, OutgoingWindow: 1}
	out := bodyRoundTrip(t, in)
	begin, ok := out.(*PerformBegin)
	require.True(t, ok)
	require.EqualValues(t, 4294967295, begin.HandleMax)
}

func TestPerformTransferPayloadRoundTrip(t *testing.T) {
	in := &PerformTransfer{
		Handle:      1,
		DeliveryTag: []byte("tag-1"),
		Settled:     true,
	}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))
	// Payload is the caller's responsibility to append after the composite,
	// matching how Transport.WriteFrame appends it to the frame body.
	wr.Append([]byte("hello payload"))

	out, err := ParseBody(buffer.New(wr.Bytes()))
	require.NoError(t, err)
	transfer, ok := out.(*PerformTransfer)
	require.True(t, ok)
	require.Equal(t, uint32(1), transfer.Handle)
	require.Equal(t, []byte("tag-1"), transfer.DeliveryTag)
	require.True(t, transfer.Settled)
	require.Equal(t, []byte("hello payload"), transfer.Payload)
}

func TestPerformCloseWithError(t *testing.T) {
	in := &PerformClose{Error: &encoding.Error{Condition: "amqp:connection:forced", Description: "bye"}}
	out := bodyRoundTrip(t, in)
	closeBody, ok := out.(*PerformClose)
	require.True(t, ok)
	require.NotNil(t, closeBody.Error)
	require.Equal(t, in.Error.Condition, closeBody.Error.Condition)
	require.Equal(t, in.Error.Description, closeBody.Error.Description)
}

func TestPerformEndWithoutError(t *testing.T) {
	in := &PerformEnd{}
	out := bodyRoundTrip(t, in)
	end, ok := out.(*PerformEnd)
	require.True(t, ok)
	require.Nil(t, end.Error)
}

func TestParseBodyUnknownDescriptor(t *testing.T) {
	wr := buffer.New(nil)
	encoding.WriteDescriptor(wr, encoding.TypeCodeSource) // not a frame body descriptor
	wr.AppendByte(byte(encoding.TypeCodeList0))
	_, err := ParseBody(buffer.New(wr.Bytes()))
	require.Error(t, err)
}

func TestSaslMechanismsRoundTrip(t *testing.T) {
	in := &SaslMechanisms{Mechanisms: encoding.MultiSymbol{"PLAIN", "ANONYMOUS"}}
	out := bodyRoundTrip(t, in)
	mechs, ok := out.(*SaslMechanisms)
	require.True(t, ok)
	require.Equal(t, in.Mechanisms, mechs.Mechanisms)
}

func TestSaslInitRoundTrip(t *testing.T) {
	in := &SaslInit{Mechanism: "PLAIN", InitialResponse: []byte{0, 'u', 0, 'p'}, Hostname: "localhost"}
	out := bodyRoundTrip(t, in)
	init, ok := out.(*SaslInit)
	require.True(t, ok)
	require.Equal(t, in.Mechanism, init.Mechanism)
	require.Equal(t, in.InitialResponse, init.InitialResponse)
	require.Equal(t, in.Hostname, init.Hostname)
}

func TestSaslOutcomeRoundTrip(t *testing.T) {
	in := &SaslOutcome{Code: SaslCodeOK}
	out := bodyRoundTrip(t, in)
	outcome, ok := out.(*SaslOutcome)
	require.True(t, ok)
	require.Equal(t, SaslCodeOK, outcome.Code)
}
