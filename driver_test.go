package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amqpio/amqp10/internal/frames"
)

func endedTestConn() *Conn {
	c, _ := newTestConnNoT()
	c.state = csEnd
	return c
}

// newTestConnNoT builds a Conn with a fakeConn-backed transport without
// requiring a *testing.T, for use in table-style driver tests.
func newTestConnNoT() (*Conn, *fakeConn) {
	fc := &fakeConn{}
	tr := newTransport(fc, 0)
	c := newConn("driver-test", "localhost", tr)
	return c, fc
}

func TestDriverRegisterAndConnection(t *testing.T) {
	d := NewDriver()
	c := endedTestConn()
	h := d.Register(c)
	require.Same(t, c, d.Connection(h))
}

func TestDriverConnectionUnknownHandle(t *testing.T) {
	d := NewDriver()
	require.Nil(t, d.Connection(Handle(42)))
}

func TestDriverPollNoProgressOnAllEndedConnections(t *testing.T) {
	d := NewDriver()
	for i := 0; i < 3; i++ {
		d.Register(endedTestConn())
	}
	events := NewEventBuffer()
	_, progressed, err := d.Poll(events)
	require.NoError(t, err)
	require.False(t, progressed)
}

func TestDriverPollEmptyDriver(t *testing.T) {
	d := NewDriver()
	events := NewEventBuffer()
	h, progressed, err := d.Poll(events)
	require.NoError(t, err)
	require.False(t, progressed)
	require.Equal(t, Handle(0), h)
}

func TestDriverPollFindsProgressingConnection(t *testing.T) {
	d := NewDriver()
	d.Register(endedTestConn())

	// Second connection is in HdrExch with an Open already buffered, so
	// its poll tick appends an event.
	progressing, fc := newTestConnNoT()
	_ = fc
	progressing.state = csHdrExch
	raw := encodeTestFrame(t, frames.TypeAMQP, 0, &frames.PerformOpen{ContainerID: "remote"})
	progressing.transport.rxBuf.Append(raw)
	want := d.Register(progressing)

	d.Register(endedTestConn())

	events := NewEventBuffer()
	got, progressed, err := d.Poll(events)
	require.NoError(t, err)
	require.True(t, progressed)
	require.Equal(t, want, got)
	require.Equal(t, 1, events.Len())
}

func TestDriverPollRoundRobinsAcrossCalls(t *testing.T) {
	d := NewDriver()
	var handles []Handle
	for i := 0; i < 3; i++ {
		handles = append(handles, d.Register(endedTestConn()))
	}

	events := NewEventBuffer()
	// Every connection is csEnd (never progresses), so repeated polls must
	// still terminate (no infinite loop) and report no progress each time.
	for i := 0; i < len(handles); i++ {
		_, progressed, err := d.Poll(events)
		require.NoError(t, err)
		require.False(t, progressed)
	}
}
