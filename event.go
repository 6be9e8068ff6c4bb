package amqp

import (
	"github.com/amqpio/amqp10/internal/frames"
	"github.com/amqpio/amqp10/internal/queue"
)

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	EventConnectionInit EventKind = iota
	EventRemoteOpen
	EventLocalOpen
	EventRemoteClose
	EventLocalClose
	EventSessionInit
	EventLocalBegin
	EventRemoteBegin
)

// Event is one state-machine transition the application can observe by
// draining an EventBuffer after Driver.Poll reports progress. Only the
// field matching Kind is populated.
type Event struct {
	Kind    EventKind
	Channel uint16

	Open  *frames.PerformOpen
	Close *Error
	Begin *frames.PerformBegin
}

// EventBuffer is an output parameter owned by the caller: Conn.poll and
// Session.dispatchWork only ever append to it, in the exact order their
// state-machine steps produce events.
type EventBuffer struct {
	q *queue.Queue[Event]
}

// NewEventBuffer returns an empty EventBuffer.
func NewEventBuffer() *EventBuffer {
	return &EventBuffer{q: queue.New[Event](16)}
}

func (b *EventBuffer) push(e Event) {
	b.q.Enqueue(e)
}

// Len reports the number of events waiting to be drained.
func (b *EventBuffer) Len() int {
	return b.q.Len()
}

// Next removes and returns the oldest undrained event. ok is false once
// the buffer is empty.
func (b *EventBuffer) Next() (Event, bool) {
	e := b.q.Dequeue()
	if e == nil {
		return Event{}, false
	}
	return *e, true
}
