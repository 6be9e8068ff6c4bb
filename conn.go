package amqp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/amqpio/amqp10/internal/debug"
	"github.com/amqpio/amqp10/internal/frames"
	"github.com/pkg/errors"
)

// connState is one state of the connection state machine in §4.4: a
// strict initiator/acceptor handshake followed by the steady Opened state.
type connState int

const (
	csStart connState = iota
	csStartWait
	csHdrSent
	csSasl
	csHdrExch
	csOpenRcvd
	csOpenSent
	csClosePipe
	csOpened
	csCloseRcvd
	csCloseSent
	csEnd
)

// ChannelID identifies an AMQP channel (and, 1:1, the session mapped onto
// it).
type ChannelID = uint16

// ConnOptions configures Connect.
type ConnOptions struct {
	// ContainerID identifies this peer to the remote container. A random
	// one is generated if left empty.
	ContainerID string
	// Hostname is the Open.hostname sent to the peer; it defaults to the
	// dialed host.
	Hostname string
	// SASLUsername/SASLPassword, if either is set, select PLAIN SASL and
	// are used to build its initial response.
	SASLUsername string
	SASLPassword string
	// IdleTimeout is the local idle-timeout advertised in Open and
	// enforced against the peer's keepalives. Defaults to 5s.
	IdleTimeout time.Duration
	// ChannelMax bounds the number of concurrently mapped sessions.
	// Defaults to 65535.
	ChannelMax uint16
	// MaxFrameSize caps outgoing frame size; 0 means unbounded.
	MaxFrameSize uint32
}

// ListenOptions configures Listen.
type ListenOptions struct {
	// ContainerID identifies this peer to every accepted connection. A
	// random one is generated if left empty.
	ContainerID string
}

// Conn is one AMQP 1.0 connection, driven entirely by repeated calls to
// poll (via a Driver) rather than by its own goroutine.
type Conn struct {
	ContainerID       string
	Hostname          string
	ChannelMax        uint16
	IdleTimeout       time.Duration
	RemoteIdleTimeout time.Duration
	RemoteContainerID string
	RemoteChannelMax  uint16

	sasl *saslClient

	state          connState
	transport      *Transport
	opened         bool
	closed         bool
	closeCondition *Error

	sessions         map[ChannelID]*Session
	remoteChannelMap map[ChannelID]ChannelID
}

func newConn(containerID, hostname string, t *Transport) *Conn {
	return &Conn{
		ContainerID:      containerID,
		Hostname:         hostname,
		ChannelMax:       65535,
		IdleTimeout:      5 * time.Second,
		state:            csStart,
		transport:        t,
		sessions:         make(map[ChannelID]*Session),
		remoteChannelMap: make(map[ChannelID]ChannelID),
	}
}

// Connect dials host:port and returns a connection in its initial Start
// state; no bytes are written until a Driver starts polling it.
func Connect(ctx context.Context, host string, port uint16, opts ConnOptions) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errors.Wrap(err, "amqp: dial")
	}

	containerID := opts.ContainerID
	if containerID == "" {
		containerID = generateContainerID()
	}
	hostname := opts.Hostname
	if hostname == "" {
		hostname = host
	}

	c := newConn(containerID, hostname, newTransport(nc, opts.MaxFrameSize))
	if opts.ChannelMax != 0 {
		c.ChannelMax = opts.ChannelMax
	}
	if opts.IdleTimeout != 0 {
		c.IdleTimeout = opts.IdleTimeout
	}
	if opts.SASLUsername != "" || opts.SASLPassword != "" {
		c.sasl = &saslClient{
			mechanism: SaslMechanismPlain,
			username:  opts.SASLUsername,
			password:  opts.SASLPassword,
		}
	}
	return c, nil
}

// Listener accepts inbound AMQP connections.
type Listener struct {
	ln          net.Listener
	containerID string
}

// Listen binds host:port and returns a Listener ready to Accept.
func Listen(host string, port uint16, opts ListenOptions) (*Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errors.Wrap(err, "amqp: listen")
	}
	containerID := opts.ContainerID
	if containerID == "" {
		containerID = generateContainerID()
	}
	return &Listener{ln: ln, containerID: containerID}, nil
}

// Accept waits for one inbound connection, or for ctx to be done. The
// returned Conn starts in StartWait, waiting for the peer's protocol
// header before it sends its own.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := l.ln.Accept()
		ch <- result{nc, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "amqp: accept")
		}
		host, _, _ := net.SplitHostPort(r.conn.RemoteAddr().String())
		c := newConn(l.containerID, host, newTransport(r.conn, 0))
		c.state = csStartWait
		return c, nil
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Open marks the connection for opening; the next poll sends Open as soon
// as the handshake state allows it.
func (c *Conn) Open() {
	c.opened = true
}

// Close marks the connection for a graceful close, optionally carrying an
// error condition; the next poll flushes Close.
func (c *Conn) Close(cond *Error) {
	c.closed = true
	c.closeCondition = cond
}

func (c *Conn) allocateChannel() (ChannelID, bool) {
	for i := 0; i < int(c.ChannelMax); i++ {
		ch := ChannelID(i)
		if _, used := c.sessions[ch]; !used {
			return ch, true
		}
	}
	return 0, false
}

// CreateSession allocates a new local session on the lowest free channel.
// It returns nil if every channel up to ChannelMax is already mapped.
func (c *Conn) CreateSession() *Session {
	return c.sessionInternal(nil)
}

// GetSession looks up a session by its local channel number.
func (c *Conn) GetSession(channel ChannelID) (*Session, bool) {
	s, ok := c.sessions[channel]
	return s, ok
}

func (c *Conn) sessionInternal(remoteChannel *ChannelID) *Session {
	ch, ok := c.allocateChannel()
	if !ok {
		return nil
	}
	s := &Session{
		localChannel:  ch,
		remoteChannel: remoteChannel,
		state:         ssUnmapped,
	}
	c.sessions[ch] = s
	if remoteChannel != nil {
		c.remoteChannelMap[*remoteChannel] = ch
	}
	return s
}

// poll runs one tick of the state machine, returning whether it appended
// any events to events.
func (c *Conn) poll(events *EventBuffer) (bool, error) {
	before := events.Len()
	err := c.doWork(events)
	return events.Len() != before, err
}

func framingError() error {
	return &Error{Condition: ErrCondFramingError, Description: "unexpected or unconsumed performative"}
}

func (c *Conn) checkHeader(hdr ProtocolHeader, respond bool) error {
	want := amqpHeader
	if c.sasl != nil {
		want = saslHeader
	}
	if hdr != want {
		if err := c.transport.WriteProtocolHeader(want); err != nil {
			return err
		}
		if err := c.transport.Flush(); err != nil && err != errWouldBlock {
			return err
		}
		c.transport.Close()
		c.state = csEnd
		return nil
	}
	if respond {
		if err := c.transport.WriteProtocolHeader(want); err != nil {
			return err
		}
		if err := c.transport.Flush(); err != nil && err != errWouldBlock {
			return err
		}
	}
	if c.sasl != nil {
		c.state = csSasl
	} else {
		c.state = csHdrExch
	}
	return nil
}

func (c *Conn) doWork(events *EventBuffer) error {
	switch c.state {
	case csStartWait:
		hdr, ok, err := c.transport.ReadProtocolHeader()
		if err != nil {
			return err
		}
		if ok {
			if err := c.checkHeader(hdr, true); err != nil {
				return err
			}
			events.push(Event{Kind: EventConnectionInit})
		}

	case csStart:
		hdr := amqpHeader
		if c.sasl != nil {
			hdr = saslHeader
		}
		if err := c.transport.WriteProtocolHeader(hdr); err != nil {
			return err
		}
		if err := c.transport.Flush(); err != nil && err != errWouldBlock {
			return err
		}
		c.state = csHdrSent

	case csHdrSent:
		hdr, ok, err := c.transport.ReadProtocolHeader()
		if err != nil {
			return err
		}
		if ok {
			if err := c.checkHeader(hdr, false); err != nil {
				return err
			}
			events.push(Event{Kind: EventConnectionInit})
		}

	case csSasl:
		return c.doSasl(events)

	case csHdrExch:
		if c.opened {
			if err := c.localOpen(events); err != nil {
				return err
			}
			c.state = csOpenSent
			return nil
		}
		fr, ok, err := c.transport.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		open, isOpen := fr.Body.(*frames.PerformOpen)
		if !isOpen {
			return framingError()
		}
		c.updateConnectionInfo(open)
		events.push(Event{Kind: EventRemoteOpen, Open: open})
		c.state = csOpenRcvd

	case csOpenRcvd:
		if c.opened {
			if err := c.localOpen(events); err != nil {
				return err
			}
			c.state = csOpened
		}

	case csOpenSent:
		if c.closed {
			if err := c.localClose(events); err != nil {
				return err
			}
			c.state = csClosePipe
			return nil
		}
		fr, ok, err := c.transport.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch body := fr.Body.(type) {
		case *frames.PerformOpen:
			c.updateConnectionInfo(body)
			events.push(Event{Kind: EventRemoteOpen, Open: body})
			c.state = csOpened
		case *frames.PerformClose:
			events.push(Event{Kind: EventRemoteClose, Close: body.Error})
			c.state = csClosePipe
		default:
			return framingError()
		}

	case csOpened:
		if c.closed {
			if err := c.localClose(events); err != nil {
				return err
			}
			c.state = csCloseSent
			return nil
		}
		if err := c.dispatchWork(events); err != nil {
			return err
		}
		if err := c.keepalive(events); err != nil {
			return err
		}
		fr, ok, err := c.transport.ReadFrame()
		if err != nil {
			return err
		}
		if ok {
			if err := c.dispatchFrame(fr, events); err != nil {
				return err
			}
		}

	case csClosePipe:
		fr, ok, err := c.transport.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		open, isOpen := fr.Body.(*frames.PerformOpen)
		if !isOpen {
			return framingError()
		}
		events.push(Event{Kind: EventRemoteOpen, Open: open})
		c.state = csCloseSent

	case csCloseRcvd:
		if c.closed {
			if err := c.localClose(events); err != nil {
				return err
			}
			c.state = csEnd
		}

	case csCloseSent:
		fr, ok, err := c.transport.ReadFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		closeBody, isClose := fr.Body.(*frames.PerformClose)
		if !isClose {
			return framingError()
		}
		events.push(Event{Kind: EventRemoteClose, Close: closeBody.Error})
		c.state = csEnd

	case csEnd:
		// terminal: nothing left to do.
	}
	return nil
}

func (c *Conn) updateConnectionInfo(open *frames.PerformOpen) {
	c.RemoteContainerID = open.ContainerID
	c.RemoteChannelMax = open.ChannelMax
	if open.IdleTimeout != nil {
		c.RemoteIdleTimeout = time.Duration(*open.IdleTimeout) * time.Millisecond
	}
}

// dispatchWork lets every mapped session emit its own outgoing Begin (or,
// once Mapped, any session-level traffic).
func (c *Conn) dispatchWork(events *EventBuffer) error {
	for _, s := range c.sessions {
		switch s.state {
		case ssUnmapped:
			if s.begun {
				if err := s.localBegin(c.transport, events); err != nil {
					return err
				}
				s.state = ssBeginSent
			}
		case ssBeginRcvd:
			if s.begun {
				if err := s.localBegin(c.transport, events); err != nil {
					return err
				}
				s.state = ssMapped
			}
		case ssBeginSent, ssMapped:
			if err := s.dispatchWork(c.transport, events); err != nil {
				return err
			}
		default:
			return &Error{
				Condition:   ErrCondNotImplemented,
				Description: fmt.Sprintf("session dispatch not implemented for state %d", s.state),
			}
		}
	}
	return nil
}

func (c *Conn) keepalive(events *EventBuffer) error {
	now := time.Now()
	if c.RemoteIdleTimeout > 0 && now.Sub(c.transport.LastSent()) >= c.RemoteIdleTimeout {
		if err := c.transport.WriteFrame(Frame{Type: frames.TypeAMQP, Channel: 0}); err != nil {
			return err
		}
		if err := c.transport.Flush(); err != nil && err != errWouldBlock {
			return err
		}
	}
	if c.IdleTimeout > 0 && now.Sub(c.transport.LastReceived()) > 2*c.IdleTimeout {
		c.closeCondition = &Error{
			Condition:   ErrCondResourceLimitExceeded,
			Description: "local-idle-timeout expired",
		}
		if err := c.localClose(events); err != nil {
			return err
		}
	}
	return nil
}

// dispatchFrame routes one decoded frame to connection-level handling and,
// if its channel maps to a session, to that session as well. A frame
// neither layer consumes is a framing error.
func (c *Conn) dispatchFrame(fr Frame, events *EventBuffer) error {
	if fr.Body == nil {
		return nil // heartbeat
	}
	consumed, err := c.processFrame(fr.Channel, fr.Body, events)
	if err != nil {
		return err
	}
	if localChannel, ok := c.remoteChannelMap[fr.Channel]; ok {
		s := c.sessions[localChannel]
		sc, err := s.processFrame(fr.Body, events)
		if err != nil {
			return err
		}
		consumed = consumed || sc
	}
	if !consumed {
		return framingError()
	}
	return nil
}

func (c *Conn) processFrame(channel ChannelID, body frames.FrameBody, events *EventBuffer) (bool, error) {
	switch b := body.(type) {
	case *frames.PerformBegin:
		s := c.sessionInternal(&channel)
		if s == nil {
			return false, fmt.Errorf("amqp: no free channel to map incoming begin")
		}
		s.state = ssBeginRcvd
		events.push(Event{Kind: EventRemoteBegin, Channel: s.localChannel, Begin: b})
		return true, nil
	case *frames.PerformClose:
		if channel == 0 {
			events.push(Event{Kind: EventRemoteClose, Close: b.Error})
			c.state = csCloseRcvd
			return true, nil
		}
		return false, nil
	default:
		return false, nil
	}
}

func (c *Conn) localOpen(events *EventBuffer) error {
	idle := uint32(c.IdleTimeout / time.Millisecond)
	open := &frames.PerformOpen{
		ContainerID: c.ContainerID,
		Hostname:    c.Hostname,
		ChannelMax:  c.ChannelMax,
		IdleTimeout: &idle,
	}
	if err := c.transport.WriteFrame(Frame{Type: frames.TypeAMQP, Channel: 0, Body: open}); err != nil {
		return err
	}
	if err := c.transport.Flush(); err != nil && err != errWouldBlock {
		return err
	}
	debug.Log(1, "local open: container-id=%s\n", open.ContainerID)
	events.push(Event{Kind: EventLocalOpen, Open: open})
	return nil
}

func (c *Conn) localClose(events *EventBuffer) error {
	closeBody := &frames.PerformClose{Error: c.closeCondition}
	if err := c.transport.WriteFrame(Frame{Type: frames.TypeAMQP, Channel: 0, Body: closeBody}); err != nil {
		return err
	}
	if err := c.transport.Flush(); err != nil && err != errWouldBlock {
		return err
	}
	debug.Log(1, "local close: condition=%v\n", c.closeCondition)
	events.push(Event{Kind: EventLocalClose, Close: c.closeCondition})
	return nil
}
