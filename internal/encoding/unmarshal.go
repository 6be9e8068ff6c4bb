package encoding

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/amqpio/amqp10/internal/buffer"
)

// Unmarshaler is implemented by any AMQP value that knows how to decode
// itself from wire bytes (the read-side counterpart of Marshaler).
type Unmarshaler interface {
	Unmarshal(r *buffer.Buffer) error
}

// readType consumes and returns the next type constructor byte.
func readType(r *buffer.Buffer) (uint8, error) {
	return r.ReadByte()
}

// peekType returns the next type constructor byte without consuming it.
func peekType(r *buffer.Buffer) (uint8, error) {
	b, ok := r.PeekByte()
	if !ok {
		return 0, fmt.Errorf("encoding: buffer exhausted reading type constructor")
	}
	return b, nil
}

// tryReadNull consumes a null constructor if present, returning true if one
// was found and consumed.
func tryReadNull(r *buffer.Buffer) bool {
	b, ok := r.PeekByte()
	if ok && TypeCode(b) == TypeCodeNull {
		r.Skip(1)
		return true
	}
	return false
}

// Unmarshal decodes the next AMQP value from r into v, which must be a
// non-nil pointer. It accepts an Unmarshaler, a pointer to one of the
// supported Go primitives, or a pointer to a pointer of either (the inner
// pointer is allocated when the wire value is not null, and left untouched
// when it is).
func Unmarshal(r *buffer.Buffer, v interface{}) error {
	if tryReadNull(r) {
		return nil
	}

	switch t := v.(type) {
	case *DeliveryState:
		state, err := readDeliveryState(r)
		if err != nil {
			return err
		}
		*t = state
		return nil
	case Unmarshaler:
		return t.Unmarshal(r)
	case *bool:
		return readBool(r, t)
	case *uint8:
		n, err := readUint(r)
		*t = uint8(n)
		return err
	case *uint16:
		n, err := readUint(r)
		*t = uint16(n)
		return err
	case *uint32:
		n, err := readUint(r)
		*t = n
		return err
	case *uint64:
		n, err := readUlong(r)
		*t = n
		return err
	case *int8:
		n, err := readLong(r)
		*t = int8(n)
		return err
	case *int16:
		n, err := readLong(r)
		*t = int16(n)
		return err
	case *int32:
		n, err := readLong(r)
		*t = int32(n)
		return err
	case *int64:
		n, err := readLong(r)
		*t = n
		return err
	case *float32:
		n, err := readFloat(r)
		*t = n
		return err
	case *float64:
		n, err := readDouble(r)
		*t = n
		return err
	case *string:
		s, err := readString(r)
		*t = s
		return err
	case *[]byte:
		b, err := readBinary(r)
		*t = b
		return err
	case *time.Time:
		ts, err := readTimestamp(r)
		*t = ts
		return err
	case *map[interface{}]interface{}:
		var m Map
		if err := m.Unmarshal(r); err != nil {
			return err
		}
		*t = m
		return nil
	case *interface{}:
		val, err := readAny(r)
		*t = val
		return err
	default:
		// handle **T: allocate the inner pointer if nil and decode into it
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Ptr {
			return fmt.Errorf("encoding: unmarshal: unsupported type %T", v)
		}
		inner := rv.Elem()
		if inner.IsNil() {
			inner.Set(reflect.New(inner.Type().Elem()))
		}
		return Unmarshal(r, inner.Interface())
	}
}

func readBool(r *buffer.Buffer, out *bool) error {
	type_, err := readType(r)
	if err != nil {
		return err
	}
	switch TypeCode(type_) {
	case TypeCodeBoolTrue:
		*out = true
	case TypeCodeBoolFalse:
		*out = false
	case TypeCodeBool:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		*out = b != 0
	default:
		return fmt.Errorf("encoding: invalid type %#02x for bool", type_)
	}
	return nil
}

// readUint decodes any unsigned-integer constructor (ulong excepted) and
// widens it to uint32, per the numeric-widening rule: a peer may send a
// uint in its smallest valid form and the reader must accept any of them.
func readUint(r *buffer.Buffer) (uint32, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeUint0:
		return 0, nil
	case TypeCodeSmallUint, TypeCodeUbyte:
		b, err := r.ReadByte()
		return uint32(b), err
	case TypeCodeUshort:
		n, err := r.ReadUint16()
		return uint32(n), err
	case TypeCodeUint:
		return r.ReadUint32()
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for uint", type_)
	}
}

// readUlong decodes any unsigned-integer constructor and widens it to
// uint64.
func readUlong(r *buffer.Buffer) (uint64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeUlong0:
		return 0, nil
	case TypeCodeSmallUlong, TypeCodeUbyte:
		b, err := r.ReadByte()
		return uint64(b), err
	case TypeCodeUshort:
		n, err := r.ReadUint16()
		return uint64(n), err
	case TypeCodeUint, TypeCodeSmallUint, TypeCodeUint0:
		n, err := readUintBody(r, type_)
		return uint64(n), err
	case TypeCodeUlong:
		return r.ReadUint64()
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for ulong", type_)
	}
}

func readUintBody(r *buffer.Buffer, type_ uint8) (uint32, error) {
	switch TypeCode(type_) {
	case TypeCodeUint0:
		return 0, nil
	case TypeCodeSmallUint:
		b, err := r.ReadByte()
		return uint32(b), err
	case TypeCodeUint:
		return r.ReadUint32()
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for uint body", type_)
	}
}

// readLong decodes any signed-integer constructor and widens it to int64.
func readLong(r *buffer.Buffer) (int64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeByte, TypeCodeSmallint, TypeCodeSmalllong:
		b, err := r.ReadByte()
		return int64(int8(b)), err
	case TypeCodeShort:
		n, err := r.ReadUint16()
		return int64(int16(n)), err
	case TypeCodeInt:
		n, err := r.ReadUint32()
		return int64(int32(n)), err
	case TypeCodeLong:
		n, err := r.ReadUint64()
		return int64(n), err
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for int", type_)
	}
}

func readFloat(r *buffer.Buffer) (float32, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	if TypeCode(type_) != TypeCodeFloat {
		return 0, fmt.Errorf("encoding: invalid type %#02x for float32", type_)
	}
	n, err := r.ReadUint32()
	return math.Float32frombits(n), err
}

func readDouble(r *buffer.Buffer) (float64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	if TypeCode(type_) != TypeCodeDouble {
		return 0, fmt.Errorf("encoding: invalid type %#02x for float64", type_)
	}
	n, err := r.ReadUint64()
	return math.Float64frombits(n), err
}

func readTimestamp(r *buffer.Buffer) (time.Time, error) {
	type_, err := readType(r)
	if err != nil {
		return time.Time{}, err
	}
	if TypeCode(type_) != TypeCodeTimestamp {
		return time.Time{}, fmt.Errorf("encoding: invalid type %#02x for timestamp", type_)
	}
	n, err := r.ReadUint64()
	if err != nil {
		return time.Time{}, err
	}
	ms := int64(n)
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC(), nil
}

func readString(r *buffer.Buffer) (string, error) {
	type_, err := readType(r)
	if err != nil {
		return "", err
	}
	var length int64
	switch TypeCode(type_) {
	case TypeCodeStr8:
		n, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		length = int64(n)
	case TypeCodeStr32:
		n, err := r.ReadUint32()
		if err != nil {
			return "", err
		}
		length = int64(n)
	default:
		return "", fmt.Errorf("encoding: invalid type %#02x for string", type_)
	}
	buf, ok := r.Next(length)
	if !ok {
		return "", fmt.Errorf("encoding: invalid string length %d", length)
	}
	return string(buf), nil
}

func readBinary(r *buffer.Buffer) ([]byte, error) {
	type_, err := readType(r)
	if err != nil {
		return nil, err
	}
	var length int64
	switch TypeCode(type_) {
	case TypeCodeVbin8:
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		length = int64(n)
	case TypeCodeVbin32:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		length = int64(n)
	default:
		return nil, fmt.Errorf("encoding: invalid type %#02x for binary", type_)
	}
	buf, ok := r.Next(length)
	if !ok {
		return nil, fmt.Errorf("encoding: invalid binary length %d", length)
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// readListHeader consumes a list0/list8/list32 constructor and returns the
// element count.
func readListHeader(r *buffer.Buffer) (int64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeList0:
		return 0, nil
	case TypeCodeList8:
		if _, err := r.ReadByte(); err != nil { // size
			return 0, err
		}
		n, err := r.ReadByte()
		return int64(n), err
	case TypeCodeList32:
		if _, err := r.ReadUint32(); err != nil { // size
			return 0, err
		}
		n, err := r.ReadUint32()
		return int64(n), err
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for list", type_)
	}
}

// readMapHeader consumes a map8/map32 constructor and returns the number
// of encoded map items (2x the number of key/value pairs).
func readMapHeader(r *buffer.Buffer) (uint32, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeMap8:
		if _, err := r.ReadByte(); err != nil { // size
			return 0, err
		}
		n, err := r.ReadByte()
		return uint32(n), err
	case TypeCodeMap32:
		if _, err := r.ReadUint32(); err != nil { // size
			return 0, err
		}
		return r.ReadUint32()
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for map", type_)
	}
}

// readArrayHeader consumes an array8/array32 constructor and returns the
// element count. The caller is responsible for reading the shared element
// type constructor that immediately follows.
func readArrayHeader(r *buffer.Buffer) (int64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	switch TypeCode(type_) {
	case TypeCodeArray8:
		if _, err := r.ReadByte(); err != nil { // size
			return 0, err
		}
		n, err := r.ReadByte()
		return int64(n), err
	case TypeCodeArray32:
		if _, err := r.ReadUint32(); err != nil { // size
			return 0, err
		}
		n, err := r.ReadUint32()
		return int64(n), err
	default:
		return 0, fmt.Errorf("encoding: invalid type %#02x for array", type_)
	}
}

// readAny decodes the next value using whatever Go type best represents
// its wire constructor, the dynamic counterpart of the typed Unmarshal
// cases above. It's used for describeless composite fields (Error.Info,
// Map/List elements, filter sets) whose static Go type isn't known ahead
// of time.
func readAny(r *buffer.Buffer) (interface{}, error) {
	type_, err := peekType(r)
	if err != nil {
		return nil, err
	}

	switch TypeCode(type_) {
	case TypeCodeNull:
		r.Skip(1)
		return nil, nil
	case TypeCodeBoolTrue, TypeCodeBoolFalse, TypeCodeBool:
		var b bool
		err := readBool(r, &b)
		return b, err
	case TypeCodeUbyte:
		r.Skip(1)
		b, err := r.ReadByte()
		return b, err
	case TypeCodeUshort:
		r.Skip(1)
		n, err := r.ReadUint16()
		return n, err
	case TypeCodeUint, TypeCodeSmallUint, TypeCodeUint0:
		n, err := readUint(r)
		return n, err
	case TypeCodeUlong, TypeCodeSmallUlong, TypeCodeUlong0:
		n, err := readUlong(r)
		return n, err
	case TypeCodeByte:
		r.Skip(1)
		b, err := r.ReadByte()
		return int8(b), err
	case TypeCodeShort:
		r.Skip(1)
		n, err := r.ReadUint16()
		return int16(n), err
	case TypeCodeInt, TypeCodeSmallint:
		n, err := readLong(r)
		return int32(n), err
	case TypeCodeLong, TypeCodeSmalllong:
		n, err := readLong(r)
		return n, err
	case TypeCodeFloat:
		n, err := readFloat(r)
		return n, err
	case TypeCodeDouble:
		n, err := readDouble(r)
		return n, err
	case TypeCodeTimestamp:
		t, err := readTimestamp(r)
		return t, err
	case TypeCodeUUID:
		var u UUID
		err := u.Unmarshal(r)
		return u, err
	case TypeCodeVbin8, TypeCodeVbin32:
		return readBinary(r)
	case TypeCodeStr8, TypeCodeStr32:
		return readString(r)
	case TypeCodeSym8, TypeCodeSym32:
		var s Symbol
		err := s.Unmarshal(r)
		return s, err
	case TypeCodeList0, TypeCodeList8, TypeCodeList32:
		var l List
		err := l.Unmarshal(r)
		return l, err
	case TypeCodeMap8, TypeCodeMap32:
		var m Map
		err := m.Unmarshal(r)
		return m, err
	case TypeCodeArray8, TypeCodeArray32:
		return readAnyArray(r)
	case 0x00:
		var d DescribedValue
		err := d.Unmarshal(r)
		return d, err
	default:
		return nil, fmt.Errorf("encoding: readAny: unsupported type %#02x", type_)
	}
}

// readAnyArray decodes an array whose element type isn't known statically
// into a []interface{}, each element holding the Go value readArrayElement
// produces for the shared constructor.
func readAnyArray(r *buffer.Buffer) (interface{}, error) {
	length, err := readArrayHeader(r)
	if err != nil {
		return nil, err
	}
	elemType, err := readType(r)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, length)
	for i := range out {
		// each element is a bare body decoded against the shared
		// constructor read once above.
		v, err := readArrayElement(r, elemType)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readArrayElement decodes one array element whose shared wire constructor
// (already consumed once by the caller) is elemType.
func readArrayElement(r *buffer.Buffer, elemType uint8) (interface{}, error) {
	switch TypeCode(elemType) {
	case TypeCodeBoolTrue:
		return true, nil
	case TypeCodeBoolFalse:
		return false, nil
	case TypeCodeBool:
		b, err := r.ReadByte()
		return b != 0, err
	case TypeCodeUbyte:
		b, err := r.ReadByte()
		return b, err
	case TypeCodeUshort:
		n, err := r.ReadUint16()
		return n, err
	case TypeCodeUint, TypeCodeUint0, TypeCodeSmallUint:
		n, err := readUintBody(r, elemType)
		return n, err
	case TypeCodeByte:
		b, err := r.ReadByte()
		return int8(b), err
	case TypeCodeShort:
		n, err := r.ReadUint16()
		return int16(n), err
	case TypeCodeInt:
		n, err := r.ReadUint32()
		return int32(n), err
	case TypeCodeLong:
		n, err := r.ReadUint64()
		return int64(n), err
	case TypeCodeUlong:
		return r.ReadUint64()
	case TypeCodeFloat:
		n, err := r.ReadUint32()
		return math.Float32frombits(n), err
	case TypeCodeDouble:
		n, err := r.ReadUint64()
		return math.Float64frombits(n), err
	case TypeCodeSym8:
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf, ok := r.Next(int64(n))
		if !ok {
			return nil, fmt.Errorf("encoding: invalid symbol length")
		}
		return Symbol(buf), nil
	case TypeCodeSym32:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		buf, ok := r.Next(int64(n))
		if !ok {
			return nil, fmt.Errorf("encoding: invalid symbol length")
		}
		return Symbol(buf), nil
	case TypeCodeStr8:
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf, ok := r.Next(int64(n))
		if !ok {
			return nil, fmt.Errorf("encoding: invalid string length")
		}
		return string(buf), nil
	case TypeCodeStr32:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		buf, ok := r.Next(int64(n))
		if !ok {
			return nil, fmt.Errorf("encoding: invalid string length")
		}
		return string(buf), nil
	default:
		return nil, fmt.Errorf("encoding: unsupported array element type %#02x", elemType)
	}
}
