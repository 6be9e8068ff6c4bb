// Package frames implements the AMQP 1.0 frame codec and performative
// (frame body) types: the 8-byte frame header plus the descriptor-driven
// dispatch that decodes a frame body into the right performative struct.
package frames

import (
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// FrameType identifies the channel a frame belongs to: the AMQP channel
// itself, or the SASL negotiation channel used before the protocol header
// exchange completes.
type FrameType uint8

const (
	TypeAMQP FrameType = 0x0
	TypeSASL FrameType = 0x1
)

// HeaderSize is the fixed 8-byte size of a frame header.
const HeaderSize = 8

// Header is the 8-byte frame header common to every AMQP and SASL frame.
// Frames written by this implementation never carry an extended header
// (DataOffset 2); ParseHeader accepts any DataOffset of 2 or more, and the
// reader skips the extension words before the body.
type Header struct {
	// Size is the total size of the frame (header + body) in bytes.
	Size uint32
	// DataOffset is the body's start offset in 4-byte words.
	DataOffset uint8
	FrameType  uint8
	// Channel is the AMQP channel number (unused/zero for SASL frames).
	Channel uint16
}

// Marshal writes h's 8-byte wire encoding to wr.
func (h Header) Marshal(wr *buffer.Buffer) error {
	wr.AppendUint32(h.Size)
	wr.AppendByte(h.DataOffset)
	wr.AppendByte(h.FrameType)
	wr.AppendUint16(h.Channel)
	return nil
}

// ParseHeader reads and validates a frame header from r.
func ParseHeader(r *buffer.Buffer) (Header, error) {
	buf, ok := r.Next(HeaderSize)
	if !ok {
		return Header{}, fmt.Errorf("frames: not enough bytes for frame header")
	}
	h := Header{
		Size:       uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
		DataOffset: buf[4],
		FrameType:  buf[5],
		Channel:    uint16(buf[6])<<8 | uint16(buf[7]),
	}
	if h.Size < HeaderSize {
		return Header{}, fmt.Errorf("frames: malformed header, size %d is less than header size", h.Size)
	}
	if h.DataOffset < 2 {
		return Header{}, fmt.Errorf("frames: malformed header, data offset %d is less than 2", h.DataOffset)
	}
	return h, nil
}
