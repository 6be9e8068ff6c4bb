package amqp

import "github.com/amqpio/amqp10/internal/frames"

// sessionState is one state of the session state machine in §4.5.
type sessionState int

const (
	ssUnmapped sessionState = iota
	ssBeginSent
	ssBeginRcvd
	ssMapped
	ssEndSent
	ssEndRcvd
	ssDiscarding
)

// Session is one session mapped onto a connection channel. It is created
// via Conn.CreateSession (outgoing) or implicitly when a Begin arrives on
// an unmapped channel (incoming), and is driven by the owning Conn's poll.
type Session struct {
	localChannel  ChannelID
	remoteChannel *ChannelID
	state         sessionState
	begun         bool
	ended         bool
}

// Channel returns the local channel number this session is mapped to.
func (s *Session) Channel() ChannelID {
	return s.localChannel
}

// Begin marks the session for mapping; the owning connection's next poll
// sends Begin as soon as the session's state allows it.
func (s *Session) Begin() {
	s.begun = true
}

// processFrame handles one frame addressed to this session's channel.
// Reports whether the frame was consumed.
func (s *Session) processFrame(body frames.FrameBody, events *EventBuffer) (bool, error) {
	switch s.state {
	case ssUnmapped:
		begin, ok := body.(*frames.PerformBegin)
		if !ok {
			return false, nil
		}
		s.remoteChannel = begin.RemoteChannel
		events.push(Event{Kind: EventRemoteBegin, Channel: s.localChannel, Begin: begin})
		s.state = ssBeginRcvd
		return true, nil

	case ssBeginSent:
		begin, ok := body.(*frames.PerformBegin)
		if !ok {
			return false, nil
		}
		events.push(Event{Kind: EventRemoteBegin, Channel: s.localChannel, Begin: begin})
		s.state = ssMapped
		return true, nil

	default:
		return false, nil
	}
}

func (s *Session) localBegin(t *Transport, events *EventBuffer) error {
	begin := &frames.PerformBegin{
		RemoteChannel:  s.remoteChannel,
		NextOutgoingID: 0,
		IncomingWindow: 10,
		OutgoingWindow: 10,
	}
	if err := t.WriteFrame(Frame{Type: frames.TypeAMQP, Channel: s.localChannel, Body: begin}); err != nil {
		return err
	}
	if err := t.Flush(); err != nil && err != errWouldBlock {
		return err
	}
	events.push(Event{Kind: EventLocalBegin, Channel: s.localChannel, Begin: begin})
	return nil
}

// dispatchWork is the hook for session-level outgoing traffic once Mapped.
// Link traffic (Attach/Transfer/Flow/Disposition/Detach) is out of scope
// for this engine, so there is nothing to send here yet.
func (s *Session) dispatchWork(t *Transport, events *EventBuffer) error {
	return nil
}
