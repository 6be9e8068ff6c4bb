package encoding

import (
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// StateReceived indicates the first unreceived/unresendable section of a
// partially-transferred message.
type StateReceived struct {
	SectionNumber uint32
	SectionOffset uint64
}

func (s *StateReceived) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateReceived, []MarshalField{
		{Value: &s.SectionNumber, Omit: false},
		{Value: &s.SectionOffset, Omit: false},
	})
}

func (s *StateReceived) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateReceived,
		UnmarshalField{Field: &s.SectionNumber, HandleNull: func() error { return fmt.Errorf("StateReceived.SectionNumber is required") }},
		UnmarshalField{Field: &s.SectionOffset, HandleNull: func() error { return fmt.Errorf("StateReceived.SectionOffset is required") }},
	)
}

// StateAccepted is the terminal outcome for a successfully processed
// delivery.
type StateAccepted struct{}

func (s *StateAccepted) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateAccepted, nil)
}

func (s *StateAccepted) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateAccepted)
}

// StateRejected is the terminal outcome for a delivery the receiver could
// not process.
type StateRejected struct {
	Error *Error
}

func (s *StateRejected) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateRejected, []MarshalField{
		{Value: s.Error, Omit: s.Error == nil},
	})
}

func (s *StateRejected) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateRejected,
		UnmarshalField{Field: &s.Error},
	)
}

// StateReleased indicates the delivery was returned to the sender
// unprocessed.
type StateReleased struct{}

func (s *StateReleased) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateReleased, nil)
}

func (s *StateReleased) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateReleased)
}

// StateModified indicates the delivery should be modified before
// redelivery.
type StateModified struct {
	DeliveryFailed    bool
	UndeliverableHere bool
	MessageAnnotations map[interface{}]interface{}
}

func (s *StateModified) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateModified, []MarshalField{
		{Value: &s.DeliveryFailed, Omit: !s.DeliveryFailed},
		{Value: &s.UndeliverableHere, Omit: !s.UndeliverableHere},
		{Value: s.MessageAnnotations, Omit: len(s.MessageAnnotations) == 0},
	})
}

func (s *StateModified) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateModified,
		UnmarshalField{Field: &s.DeliveryFailed},
		UnmarshalField{Field: &s.UndeliverableHere},
		UnmarshalField{Field: &s.MessageAnnotations},
	)
}

// readDeliveryState dispatches on the next composite's descriptor to
// decode it into the matching delivery-state type.
func readDeliveryState(r *buffer.Buffer) (DeliveryState, error) {
	code, err := PeekDescriptor(r)
	if err != nil {
		return nil, err
	}
	var state DeliveryState
	switch code {
	case TypeCodeStateReceived:
		state = new(StateReceived)
	case TypeCodeStateAccepted:
		state = new(StateAccepted)
	case TypeCodeStateRejected:
		state = new(StateRejected)
	case TypeCodeStateReleased:
		state = new(StateReleased)
	case TypeCodeStateModified:
		state = new(StateModified)
	default:
		return nil, fmt.Errorf("encoding: unknown delivery state descriptor %#02x", code)
	}
	if err := state.Unmarshal(r); err != nil {
		return nil, err
	}
	return state, nil
}
