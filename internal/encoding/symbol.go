package encoding

import (
	"fmt"
	"math"

	"github.com/amqpio/amqp10/internal/buffer"
)

// Symbol is a UTF-8/ASCII string constrained to the symbol constructors.
// AMQP uses symbols for names that come from a known, small vocabulary
// (error conditions, capabilities, SASL mechanism names, and so on).
type Symbol string

func (s Symbol) Marshal(wr *buffer.Buffer) error {
	l := len(s)
	switch {
	case l < 256:
		wr.AppendByte(byte(TypeCodeSym8))
		wr.AppendByte(byte(l))
		wr.AppendString(string(s))
	case uint(l) < math.MaxUint32:
		wr.AppendByte(byte(TypeCodeSym32))
		wr.AppendUint32(uint32(l))
		wr.AppendString(string(s))
	default:
		return fmt.Errorf("encoding: symbol %q too long", s)
	}
	return nil
}

func (s *Symbol) Unmarshal(r *buffer.Buffer) error {
	type_, err := readType(r)
	if err != nil {
		return err
	}
	var length int64
	switch TypeCode(type_) {
	case TypeCodeSym8:
		n, err := r.ReadByte()
		if err != nil {
			return err
		}
		length = int64(n)
	case TypeCodeSym32:
		n, err := r.ReadUint32()
		if err != nil {
			return err
		}
		length = int64(n)
	default:
		return fmt.Errorf("encoding: invalid type %#02x for symbol", type_)
	}
	buf, ok := r.Next(length)
	if !ok {
		return fmt.Errorf("encoding: invalid length %d for symbol", length)
	}
	*s = Symbol(buf)
	return nil
}

// ErrCond is the symbolic condition carried on an AMQP error performative,
// e.g. "amqp:not-found".
type ErrCond string

func (e ErrCond) Marshal(wr *buffer.Buffer) error {
	return Symbol(e).Marshal(wr)
}

func (e *ErrCond) Unmarshal(r *buffer.Buffer) error {
	var s Symbol
	if err := s.Unmarshal(r); err != nil {
		return err
	}
	*e = ErrCond(s)
	return nil
}
