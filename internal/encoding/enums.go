package encoding

import (
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// Role indicates whether a link endpoint is a sender or a receiver, as
// carried on Attach and Disposition.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (r Role) String() string {
	if r {
		return "receiver"
	}
	return "sender"
}

func (r Role) Marshal(wr *buffer.Buffer) error {
	return writeBool(wr, bool(r))
}

func (r *Role) Unmarshal(buf *buffer.Buffer) error {
	b := new(bool)
	if err := readBool(buf, b); err != nil {
		return err
	}
	*r = Role(*b)
	return nil
}

// SenderSettleMode controls whether a sending link settles transfers
// itself or waits for the receiver.
type SenderSettleMode uint8

const (
	SenderSettleModeUnsettled SenderSettleMode = 0
	SenderSettleModeSettled   SenderSettleMode = 1
	SenderSettleModeMixed     SenderSettleMode = 2
)

func (m SenderSettleMode) Marshal(wr *buffer.Buffer) error {
	return writeUbyte(wr, uint8(m))
}

func (m *SenderSettleMode) Unmarshal(r *buffer.Buffer) error {
	n, err := readUint(r)
	*m = SenderSettleMode(n)
	return err
}

// ReceiverSettleMode controls whether a receiving link settles a transfer
// immediately on receipt or only after explicit disposition.
type ReceiverSettleMode uint8

const (
	ReceiverSettleModeFirst  ReceiverSettleMode = 0
	ReceiverSettleModeSecond ReceiverSettleMode = 1
)

func (m ReceiverSettleMode) Marshal(wr *buffer.Buffer) error {
	return writeUbyte(wr, uint8(m))
}

func (m *ReceiverSettleMode) Unmarshal(r *buffer.Buffer) error {
	n, err := readUint(r)
	*m = ReceiverSettleMode(n)
	return err
}

// Durability indicates what terminus state a peer retains across link
// detach / session end / connection close.
type Durability uint32

const (
	DurabilityNone         Durability = 0
	DurabilityConfig       Durability = 1
	DurabilityUnsettledOnly Durability = 2
)

func (d Durability) Marshal(wr *buffer.Buffer) error {
	return writeUint32(wr, uint32(d))
}

func (d *Durability) Unmarshal(r *buffer.Buffer) error {
	n, err := readUint(r)
	*d = Durability(n)
	return err
}

// ExpiryPolicy determines when a terminus's expiry timer starts.
type ExpiryPolicy Symbol

const (
	ExpiryLinkDetach     ExpiryPolicy = "link-detach"
	ExpirySessionEnd     ExpiryPolicy = "session-end"
	ExpiryConnectionClose ExpiryPolicy = "connection-close"
	ExpiryNever          ExpiryPolicy = "never"
)

func (e ExpiryPolicy) Marshal(wr *buffer.Buffer) error {
	return Symbol(e).Marshal(wr)
}

func (e *ExpiryPolicy) Unmarshal(r *buffer.Buffer) error {
	var s Symbol
	if err := s.Unmarshal(r); err != nil {
		return err
	}
	switch ExpiryPolicy(s) {
	case ExpiryLinkDetach, ExpirySessionEnd, ExpiryConnectionClose, ExpiryNever:
		*e = ExpiryPolicy(s)
		return nil
	default:
		return fmt.Errorf("encoding: invalid expiry-policy %q", s)
	}
}

// DeliveryState is one of the outcome/state composites carried on
// Disposition: Received, Accepted, Rejected, Released, Modified.
type DeliveryState interface {
	Marshaler
	Unmarshaler
}
