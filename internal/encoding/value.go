package encoding

import (
	"encoding/hex"
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// List is an ordered, heterogeneously typed AMQP list.
type List []interface{}

func (l List) Marshal(wr *buffer.Buffer) error {
	return writeList(wr, l)
}

func (l *List) Unmarshal(r *buffer.Buffer) error {
	length, err := readListHeader(r)
	if err != nil {
		return err
	}
	if length > int64(r.Len()) {
		return fmt.Errorf("encoding: invalid list length %d", length)
	}
	out := make(List, length)
	for i := range out {
		out[i], err = readAny(r)
		if err != nil {
			return err
		}
	}
	*l = out
	return nil
}

// Map is an untyped AMQP map. Keys may be any comparable AMQP value and
// values any AMQP value; on decode, a non-comparable dynamic key (a slice,
// a map, or a described value wrapping one) is rejected before insertion
// rather than panicking Go's map machinery.
type Map map[interface{}]interface{}

func (m Map) Marshal(wr *buffer.Buffer) error {
	return writeMap(wr, m)
}

func (m *Map) Unmarshal(r *buffer.Buffer) error {
	count, err := readMapHeader(r)
	if err != nil {
		return err
	}
	out := make(Map, count/2)
	for i := uint32(0); i < count; i += 2 {
		key, err := readAny(r)
		if err != nil {
			return err
		}
		value, err := readAny(r)
		if err != nil {
			return err
		}
		if !isComparable(key) {
			return fmt.Errorf("encoding: map key of type %T is not comparable", key)
		}
		out[key] = value
	}
	*m = out
	return nil
}

// Fields is the "fields" AMQP type: a map whose keys are symbols.
type Fields map[Symbol]interface{}

func (f Fields) Marshal(wr *buffer.Buffer) error {
	m := make(map[interface{}]interface{}, len(f))
	for k, v := range f {
		m[k] = v
	}
	return writeMap(wr, m)
}

func (f *Fields) Unmarshal(r *buffer.Buffer) error {
	var m Map
	if err := m.Unmarshal(r); err != nil {
		return err
	}
	out := make(Fields, len(m))
	for k, v := range m {
		sym, ok := k.(Symbol)
		if !ok {
			return fmt.Errorf("encoding: fields key %v (%T) is not a symbol", k, k)
		}
		out[sym] = v
	}
	*f = out
	return nil
}

// MultiSymbol marshals/unmarshals as an AMQP array of symbols; on decode it
// also accepts a bare single symbol, which some peers send in place of a
// one-element array.
type MultiSymbol []Symbol

func (ms MultiSymbol) Marshal(wr *buffer.Buffer) error {
	if len(ms) == 0 {
		wr.AppendByte(byte(TypeCodeNull))
		return nil
	}
	body := buffer.New(nil)
	for _, s := range ms {
		// array elements share one constructor; write only the body.
		body.AppendUint32(uint32(len(s)))
		body.AppendString(string(s))
	}
	writeArray(wr, len(ms), TypeCodeSym32, body.Bytes())
	return nil
}

func (ms *MultiSymbol) Unmarshal(r *buffer.Buffer) error {
	type_, err := peekType(r)
	if err != nil {
		return err
	}
	switch TypeCode(type_) {
	case TypeCodeNull:
		r.Skip(1)
		*ms = nil
		return nil
	case TypeCodeSym8, TypeCodeSym32:
		var s Symbol
		if err := s.Unmarshal(r); err != nil {
			return err
		}
		*ms = MultiSymbol{s}
		return nil
	default:
		length, err := readArrayHeader(r)
		if err != nil {
			return err
		}
		elemType, err := readType(r)
		if err != nil {
			return err
		}
		out := make(MultiSymbol, length)
		for i := range out {
			var l int64
			switch TypeCode(elemType) {
			case TypeCodeSym8:
				n, err := r.ReadByte()
				if err != nil {
					return err
				}
				l = int64(n)
			case TypeCodeSym32:
				n, err := r.ReadUint32()
				if err != nil {
					return err
				}
				l = int64(n)
			default:
				return fmt.Errorf("encoding: invalid array element type %#02x for MultiSymbol", elemType)
			}
			buf, ok := r.Next(l)
			if !ok {
				return fmt.Errorf("encoding: invalid symbol length %d", l)
			}
			out[i] = Symbol(buf)
		}
		*ms = out
		return nil
	}
}

// UUID is a 16-byte RFC 4122 identifier.
type UUID [16]byte

func (u UUID) String() string {
	var s [36]byte
	hex.Encode(s[:8], u[:4])
	s[8] = '-'
	hex.Encode(s[9:13], u[4:6])
	s[13] = '-'
	hex.Encode(s[14:18], u[6:8])
	s[18] = '-'
	hex.Encode(s[19:23], u[8:10])
	s[23] = '-'
	hex.Encode(s[24:], u[10:])
	return string(s[:])
}

func (u UUID) Marshal(wr *buffer.Buffer) error {
	wr.AppendByte(byte(TypeCodeUUID))
	wr.Append(u[:])
	return nil
}

func (u *UUID) Unmarshal(r *buffer.Buffer) error {
	type_, err := readType(r)
	if err != nil {
		return err
	}
	if TypeCode(type_) != TypeCodeUUID {
		return fmt.Errorf("encoding: invalid type %#02x for UUID", type_)
	}
	buf, ok := r.Next(16)
	if !ok {
		return fmt.Errorf("encoding: not enough bytes for UUID")
	}
	copy(u[:], buf)
	return nil
}

// DescribedValue pairs a descriptor (typically a Symbol or small ulong)
// with the value it describes, the generic form underlying every
// composite type.
type DescribedValue struct {
	Descriptor interface{}
	Value      interface{}
}

func (d DescribedValue) Marshal(wr *buffer.Buffer) error {
	wr.AppendByte(0x00)
	if err := Marshal(wr, d.Descriptor); err != nil {
		return err
	}
	return Marshal(wr, d.Value)
}

func (d *DescribedValue) Unmarshal(r *buffer.Buffer) error {
	type_, err := readType(r)
	if err != nil {
		return err
	}
	if type_ != 0x00 {
		return fmt.Errorf("encoding: invalid described-type constructor %#02x", type_)
	}
	d.Descriptor, err = readAny(r)
	if err != nil {
		return err
	}
	d.Value, err = readAny(r)
	return err
}

func isComparable(v interface{}) bool {
	switch t := v.(type) {
	case []interface{}, List, map[interface{}]interface{}, Map, Fields, MultiSymbol, []byte:
		return false
	case DescribedValue:
		return isComparable(t.Descriptor) && isComparable(t.Value)
	default:
		return true
	}
}
