package amqp

import (
	"net"
	"time"

	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amqpio/amqp10/internal/buffer"
	"github.com/amqpio/amqp10/internal/frames"
)

// fakeConn is a minimal net.Conn whose Read always reports an immediate
// timeout (nothing new arrived) and whose Write always succeeds in full,
// so tests can drive Transport deterministically by pre-populating its
// rxBuf directly and inspecting its txBuf after a call, without any
// goroutine or real socket involved.
type fakeConn struct {
	written []byte
	closed  bool
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "fakeConn: i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func (c *fakeConn) Read([]byte) (int, error)         { return 0, fakeTimeoutError{} }
func (c *fakeConn) Write(p []byte) (int, error)       { c.written = append(c.written, p...); return len(p), nil }
func (c *fakeConn) Close() error                      { c.closed = true; return nil }
func (c *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error        { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error   { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

func newTestConn(t *testing.T) (*Conn, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	tr := newTransport(fc, 0)
	c := newConn("test-container", "localhost", tr)
	return c, fc
}

func encodeTestFrame(t *testing.T, frameType frames.FrameType, channel uint16, body frames.FrameBody) []byte {
	t.Helper()
	bodyBuf := buffer.New(nil)
	if body != nil {
		require.NoError(t, body.Marshal(bodyBuf))
	}
	size := uint32(frames.HeaderSize + bodyBuf.Len())
	hdr := frames.Header{Size: size, DataOffset: 2, FrameType: uint8(frameType), Channel: channel}
	hdrBuf := buffer.New(nil)
	require.NoError(t, hdr.Marshal(hdrBuf))
	return append(hdrBuf.Bytes(), bodyBuf.Bytes()...)
}

func TestCheckHeaderMismatchClosesConnection(t *testing.T) {
	c, fc := newTestConn(t)
	bad := ProtocolHeader{id: protoID(9), Major: 1}
	require.NoError(t, c.checkHeader(bad, true))
	require.Equal(t, csEnd, c.state)
	require.True(t, fc.closed)
	require.Equal(t, amqpHeader.bytes(), [8]byte(fc.written[:8]))
}

func TestCheckHeaderMatchMovesToHdrExch(t *testing.T) {
	c, _ := newTestConn(t)
	require.NoError(t, c.checkHeader(amqpHeader, false))
	require.Equal(t, csHdrExch, c.state)
}

func TestCheckHeaderMatchWithSaslMovesToSasl(t *testing.T) {
	c, _ := newTestConn(t)
	c.sasl = &saslClient{mechanism: SaslMechanismPlain, username: "u", password: "p"}
	require.NoError(t, c.checkHeader(saslHeader, false))
	require.Equal(t, csSasl, c.state)
}

func TestDoWorkHdrExchSendsOpenWhenOpened(t *testing.T) {
	c, fc := newTestConn(t)
	c.state = csHdrExch
	c.opened = true

	events := NewEventBuffer()
	require.NoError(t, c.doWork(events))

	require.Equal(t, csOpenSent, c.state)
	require.NotEmpty(t, fc.written)
	ev, ok := events.Next()
	require.True(t, ok)
	require.Equal(t, EventLocalOpen, ev.Kind)
	require.Equal(t, "test-container", ev.Open.ContainerID)
}

func TestDoWorkHdrExchReceivesRemoteOpen(t *testing.T) {
	c, _ := newTestConn(t)
	c.state = csHdrExch
	raw := encodeTestFrame(t, frames.TypeAMQP, 0, &frames.PerformOpen{ContainerID: "remote-1", ChannelMax: 100})
	c.transport.rxBuf.Append(raw)

	events := NewEventBuffer()
	require.NoError(t, c.doWork(events))

	require.Equal(t, csOpenRcvd, c.state)
	require.Equal(t, "remote-1", c.RemoteContainerID)
	require.EqualValues(t, 100, c.RemoteChannelMax)
	ev, ok := events.Next()
	require.True(t, ok)
	require.Equal(t, EventRemoteOpen, ev.Kind)
}

func TestAllocateChannelAndCreateSession(t *testing.T) {
	c, _ := newTestConn(t)
	c.ChannelMax = 2

	s1 := c.CreateSession()
	require.NotNil(t, s1)
	require.EqualValues(t, 0, s1.Channel())

	s2 := c.CreateSession()
	require.NotNil(t, s2)
	require.EqualValues(t, 1, s2.Channel())

	require.Nil(t, c.CreateSession(), "channel space is exhausted")

	got, ok := c.GetSession(1)
	require.True(t, ok)
	require.Same(t, s2, got)
}

func TestProcessFrameRemoteBeginMapsSession(t *testing.T) {
	c, _ := newTestConn(t)
	events := NewEventBuffer()

	begin := &frames.PerformBegin{NextOutgoingID: 0, IncomingWindow: 10, OutgoingWindow: 10}
	consumed, err := c.processFrame(7, begin, events)
	require.NoError(t, err)
	require.True(t, consumed)

	localChannel, ok := c.remoteChannelMap[7]
	require.True(t, ok)
	s, ok := c.GetSession(localChannel)
	require.True(t, ok)
	require.Equal(t, ssBeginRcvd, s.state)

	ev, ok := events.Next()
	require.True(t, ok)
	require.Equal(t, EventRemoteBegin, ev.Kind)
}

func TestDispatchFrameBeginConsumedOnceNotTwice(t *testing.T) {
	// A remote Begin is consumed by connection-level processFrame (which
	// creates and maps the session as a side effect) and then re-offered to
	// that same freshly mapped session; the session's state is already
	// ssBeginRcvd by then, so it does not re-handle the frame and only one
	// EventRemoteBegin is ever pushed.
	c, _ := newTestConn(t)
	events := NewEventBuffer()

	begin := &frames.PerformBegin{NextOutgoingID: 0, IncomingWindow: 10, OutgoingWindow: 10}
	require.NoError(t, c.dispatchFrame(Frame{Type: frames.TypeAMQP, Channel: 3, Body: begin}, events))

	require.Equal(t, 1, events.Len())
	ev, ok := events.Next()
	require.True(t, ok)
	require.Equal(t, EventRemoteBegin, ev.Kind)
}

func TestDispatchFrameUnconsumedIsFramingError(t *testing.T) {
	c, _ := newTestConn(t)
	events := NewEventBuffer()
	// A Close on a channel with no mapped session and that isn't channel 0
	// is not handled by either layer.
	err := c.dispatchFrame(Frame{Type: frames.TypeAMQP, Channel: 5, Body: &frames.PerformClose{}}, events)
	require.Error(t, err)
}

func TestDispatchFrameHeartbeatIsNoop(t *testing.T) {
	c, _ := newTestConn(t)
	events := NewEventBuffer()
	require.NoError(t, c.dispatchFrame(Frame{Type: frames.TypeAMQP, Channel: 0}, events))
	require.Zero(t, events.Len())
}

func TestKeepaliveSendsHeartbeatOnRemoteIdle(t *testing.T) {
	c, fc := newTestConn(t)
	c.RemoteIdleTimeout = time.Millisecond
	c.transport.lastSent = time.Now().Add(-time.Hour)

	events := NewEventBuffer()
	require.NoError(t, c.keepalive(events))
	require.Len(t, fc.written, frames.HeaderSize, "heartbeat is a bare 8-byte frame header")
}

func TestKeepaliveClosesOnLocalIdleTimeout(t *testing.T) {
	c, _ := newTestConn(t)
	c.IdleTimeout = time.Millisecond
	c.transport.lastReceived = time.Now().Add(-time.Hour)

	events := NewEventBuffer()
	require.NoError(t, c.keepalive(events))
	require.NotNil(t, c.closeCondition)
	require.Equal(t, ErrCondResourceLimitExceeded, c.closeCondition.Condition)

	ev, ok := events.Next()
	require.True(t, ok)
	require.Equal(t, EventLocalClose, ev.Kind)
}

func TestOpenAndCloseSetIntent(t *testing.T) {
	c, _ := newTestConn(t)
	require.False(t, c.opened)
	c.Open()
	require.True(t, c.opened)

	require.False(t, c.closed)
	cond := &Error{Condition: ErrCondInternalError}
	c.Close(cond)
	require.True(t, c.closed)
	require.Same(t, cond, c.closeCondition)
}
