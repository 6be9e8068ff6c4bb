package amqp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/amqpio/amqp10/internal/buffer"
	"github.com/amqpio/amqp10/internal/debug"
	"github.com/amqpio/amqp10/internal/frames"
	"github.com/pkg/errors"
)

// protoID distinguishes the protocol carried by a header exchange: plain
// AMQP or the SASL security layer negotiated ahead of it.
type protoID uint8

const (
	protoAMQP protoID = 0
	protoSASL protoID = 3
)

// ProtocolHeader is the 8-byte preamble exchanged before any frames flow:
// "AMQP" followed by a protocol id and a three-part version.
type ProtocolHeader struct {
	id                     protoID
	Major, Minor, Revision uint8
}

var (
	amqpHeader = ProtocolHeader{id: protoAMQP, Major: 1}
	saslHeader = ProtocolHeader{id: protoSASL, Major: 1}
)

func (h ProtocolHeader) bytes() [8]byte {
	return [8]byte{'A', 'M', 'Q', 'P', byte(h.id), h.Major, h.Minor, h.Revision}
}

func parseProtocolHeader(b [8]byte) (ProtocolHeader, error) {
	if b[0] != 'A' || b[1] != 'M' || b[2] != 'Q' || b[3] != 'P' {
		return ProtocolHeader{}, fmt.Errorf("transport: invalid protocol header %q", b[:4])
	}
	return ProtocolHeader{id: protoID(b[4]), Major: b[5], Minor: b[6], Revision: b[7]}, nil
}

// errWouldBlock signals that a Transport operation has no data or buffer
// space available yet. The engine's poll loop treats it as "no progress on
// this connection this tick" rather than an error.
var errWouldBlock = errors.New("transport: would block")

// Frame is one decoded AMQP or SASL frame. A nil Body is a heartbeat (an
// empty AMQP frame, used to satisfy idle-timeout keepalive).
type Frame struct {
	Type    frames.FrameType
	Channel uint16
	Body    frames.FrameBody
}

// Transport is a non-blocking wire-level reader/writer for one TCP
// connection. No method waits on the socket for more than about a
// millisecond: a read with no complete header or frame buffered yet
// reports ok=false with a nil error, and a Flush the kernel isn't ready to
// accept reports errWouldBlock, since the engine above is single-threaded
// and cooperative and must never stall on one peer.
type Transport struct {
	conn         net.Conn
	maxFrameSize uint32

	rxBuf *buffer.Buffer
	txBuf *buffer.Buffer

	lastSent     time.Time
	lastReceived time.Time
}

func newTransport(conn net.Conn, maxFrameSize uint32) *Transport {
	now := time.Now()
	return &Transport{
		conn:         conn,
		maxFrameSize: maxFrameSize,
		rxBuf:        buffer.New(nil),
		txBuf:        buffer.New(nil),
		lastSent:     now,
		lastReceived: now,
	}
}

// tryRead performs a single non-blocking read, appending whatever arrived
// to rxBuf. It reports errWouldBlock if nothing was available.
func (t *Transport) tryRead() error {
	// a deadline already in the past fails the read before any bytes are
	// taken, so allow the socket a brief moment to hand over what it has.
	if err := t.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return errors.Wrap(err, "transport: set read deadline")
	}
	var tmp [4096]byte
	n, err := t.conn.Read(tmp[:])
	if n > 0 {
		t.rxBuf.Append(tmp[:n])
		t.lastReceived = time.Now()
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if n > 0 {
				return nil
			}
			return errWouldBlock
		}
		return errors.Wrap(err, "transport: read")
	}
	return nil
}

// ReadProtocolHeader reports the next protocol header once all 8 bytes
// have arrived. ok is false with a nil error if more data is still needed.
func (t *Transport) ReadProtocolHeader() (hdr ProtocolHeader, ok bool, err error) {
	if t.rxBuf.Len() < 8 {
		if err := t.tryRead(); err != nil {
			if err == errWouldBlock {
				return ProtocolHeader{}, false, nil
			}
			return ProtocolHeader{}, false, err
		}
	}
	if t.rxBuf.Len() < 8 {
		return ProtocolHeader{}, false, nil
	}
	raw, _ := t.rxBuf.Next(8)
	var b [8]byte
	copy(b[:], raw)
	hdr, err = parseProtocolHeader(b)
	if err != nil {
		return ProtocolHeader{}, false, err
	}
	debug.Log(3, "RX header %+v\n", hdr)
	return hdr, true, nil
}

// WriteProtocolHeader queues hdr for the next Flush.
func (t *Transport) WriteProtocolHeader(hdr ProtocolHeader) error {
	b := hdr.bytes()
	t.txBuf.Append(b[:])
	debug.Log(3, "TX header %+v\n", hdr)
	return nil
}

// ReadFrame decodes the next complete frame once it has fully arrived. ok
// is false with a nil error if more data is still needed. Partial frames
// are never consumed from rxBuf: the header-plus-body bytes are peeked,
// and only removed once the whole frame is available.
func (t *Transport) ReadFrame() (fr Frame, ok bool, err error) {
	if rerr := t.tryRead(); rerr != nil && rerr != errWouldBlock {
		return Frame{}, false, rerr
	}

	b := t.rxBuf.Bytes()
	if len(b) < frames.HeaderSize {
		return Frame{}, false, nil
	}
	size := binary.BigEndian.Uint32(b[0:4])
	if size < frames.HeaderSize {
		return Frame{}, false, fmt.Errorf("transport: malformed frame size %d", size)
	}
	if uint32(len(b)) < size {
		return Frame{}, false, nil
	}

	raw, _ := t.rxBuf.Next(int64(size))
	fb := buffer.New(raw)
	hdr, err := frames.ParseHeader(fb)
	if err != nil {
		return Frame{}, false, err
	}

	if ext := int(hdr.DataOffset-2) * 4; ext > 0 {
		if ext > fb.Len() {
			return Frame{}, false, fmt.Errorf("transport: frame header extension (%d bytes) exceeds frame size", ext)
		}
		fb.Skip(ext)
	}

	fr = Frame{Type: frames.FrameType(hdr.FrameType), Channel: hdr.Channel}
	if fb.Len() > 0 {
		fr.Body, err = frames.ParseBody(fb)
		if err != nil {
			return Frame{}, false, err
		}
	}
	debug.Log(1, "RX frame channel=%d body=%T\n", fr.Channel, fr.Body)
	return fr, true, nil
}

// WriteFrame marshals fr and queues its bytes for the next Flush.
func (t *Transport) WriteFrame(fr Frame) error {
	body := buffer.New(nil)
	if fr.Body != nil {
		if err := fr.Body.Marshal(body); err != nil {
			return errors.Wrap(err, "transport: marshal frame body")
		}
		if transfer, ok := fr.Body.(*frames.PerformTransfer); ok {
			body.Append(transfer.Payload)
		}
	}

	size := uint32(frames.HeaderSize + body.Len())
	if t.maxFrameSize != 0 && size > t.maxFrameSize {
		return fmt.Errorf("transport: frame size %d exceeds max-frame-size %d", size, t.maxFrameSize)
	}

	hdr := frames.Header{Size: size, DataOffset: 2, FrameType: uint8(fr.Type), Channel: fr.Channel}
	if err := hdr.Marshal(t.txBuf); err != nil {
		return err
	}
	t.txBuf.Append(body.Bytes())
	debug.Log(1, "TX frame channel=%d body=%T\n", fr.Channel, fr.Body)
	return nil
}

// Flush writes as much of the pending send buffer as the socket currently
// accepts without blocking. It returns errWouldBlock, with the unwritten
// remainder retained, if the kernel send buffer is full; callers should
// retry on a later tick.
func (t *Transport) Flush() error {
	for t.txBuf.Len() > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return errors.Wrap(err, "transport: set write deadline")
		}
		n, err := t.conn.Write(t.txBuf.Bytes())
		if n > 0 {
			t.txBuf.Skip(n)
			t.lastSent = time.Now()
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return errWouldBlock
			}
			return errors.Wrap(err, "transport: write")
		}
	}
	return nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// LastSent returns the time of the last successful write to the socket.
func (t *Transport) LastSent() time.Time { return t.lastSent }

// LastReceived returns the time of the last successful read from the socket.
func (t *Transport) LastReceived() time.Time { return t.lastReceived }
