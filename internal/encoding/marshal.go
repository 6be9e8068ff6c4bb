package encoding

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/amqpio/amqp10/internal/buffer"
)

// Marshaler is implemented by any AMQP value that knows how to encode
// itself. Composite types (performatives, Source/Target, Error, ...) and
// the handful of constrained scalar types (Symbol, UUID, ...) implement it
// directly; everything else is handled by Marshal's type switch.
type Marshaler interface {
	Marshal(wr *buffer.Buffer) error
}

// Marshal writes v's AMQP encoding to wr. v may be a Marshaler, a pointer
// to one, a supported Go primitive, or a pointer to one (nil pointers
// encode as the AMQP null constructor).
func Marshal(wr *buffer.Buffer, v interface{}) error {
	if v == nil {
		wr.AppendByte(byte(TypeCodeNull))
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		wr.AppendByte(byte(TypeCodeNull))
		return nil
	}

	if m, ok := v.(Marshaler); ok {
		return m.Marshal(wr)
	}

	if rv.Kind() == reflect.Ptr {
		return Marshal(wr, rv.Elem().Interface())
	}

	switch t := v.(type) {
	case bool:
		return writeBool(wr, t)
	case uint64:
		return writeUlong(wr, t)
	case uint32:
		return writeUint32(wr, t)
	case uint16:
		return writeUshort(wr, t)
	case uint8:
		return writeUbyte(wr, t)
	case int64:
		return writeLong(wr, t)
	case int32:
		return writeInt(wr, t)
	case int16:
		return writeShort(wr, t)
	case int8:
		return writeSbyte(wr, t)
	case float32:
		return writeFloat(wr, t)
	case float64:
		return writeDouble(wr, t)
	case string:
		return writeString(wr, t)
	case []byte:
		return WriteBinary(wr, t)
	case time.Time:
		return writeTimestamp(wr, t)
	case map[interface{}]interface{}:
		return writeMap(wr, t)
	default:
		return fmt.Errorf("encoding: marshal: unsupported type %T", v)
	}
}

// WriteDescriptor writes the descriptor-constructor prefix (0x00) followed
// by code as a small ulong, the prefix all composite types share.
func WriteDescriptor(wr *buffer.Buffer, code TypeCode) {
	wr.AppendByte(0x00)
	_ = writeUlong(wr, uint64(code))
}

func writeBool(wr *buffer.Buffer, b bool) error {
	if b {
		wr.AppendByte(byte(TypeCodeBoolTrue))
	} else {
		wr.AppendByte(byte(TypeCodeBoolFalse))
	}
	return nil
}

func writeUbyte(wr *buffer.Buffer, n uint8) error {
	wr.AppendByte(byte(TypeCodeUbyte))
	wr.AppendByte(n)
	return nil
}

func writeSbyte(wr *buffer.Buffer, n int8) error {
	wr.AppendByte(byte(TypeCodeByte))
	wr.AppendByte(byte(n))
	return nil
}

func writeUshort(wr *buffer.Buffer, n uint16) error {
	wr.AppendByte(byte(TypeCodeUshort))
	wr.AppendUint16(n)
	return nil
}

func writeShort(wr *buffer.Buffer, n int16) error {
	wr.AppendByte(byte(TypeCodeShort))
	wr.AppendUint16(uint16(n))
	return nil
}

// writeUint32 picks the smallest constructor that can hold n: uint0 (no
// body), smalluint (1 byte) or uint (4 bytes).
func writeUint32(wr *buffer.Buffer, n uint32) error {
	switch {
	case n == 0:
		wr.AppendByte(byte(TypeCodeUint0))
	case n <= math.MaxUint8:
		wr.AppendByte(byte(TypeCodeSmallUint))
		wr.AppendByte(byte(n))
	default:
		wr.AppendByte(byte(TypeCodeUint))
		wr.AppendUint32(n)
	}
	return nil
}

func writeInt(wr *buffer.Buffer, n int32) error {
	if n >= math.MinInt8 && n <= math.MaxInt8 {
		wr.AppendByte(byte(TypeCodeSmallint))
		wr.AppendByte(byte(n))
		return nil
	}
	wr.AppendByte(byte(TypeCodeInt))
	wr.AppendUint32(uint32(n))
	return nil
}

// writeUlong picks the smallest constructor that can hold n: ulong0,
// smallulong (1 byte) or ulong (8 bytes).
func writeUlong(wr *buffer.Buffer, n uint64) error {
	switch {
	case n == 0:
		wr.AppendByte(byte(TypeCodeUlong0))
	case n <= math.MaxUint8:
		wr.AppendByte(byte(TypeCodeSmallUlong))
		wr.AppendByte(byte(n))
	default:
		wr.AppendByte(byte(TypeCodeUlong))
		wr.AppendUint64(n)
	}
	return nil
}

func writeLong(wr *buffer.Buffer, n int64) error {
	if n >= math.MinInt8 && n <= math.MaxInt8 {
		wr.AppendByte(byte(TypeCodeSmalllong))
		wr.AppendByte(byte(n))
		return nil
	}
	wr.AppendByte(byte(TypeCodeLong))
	wr.AppendUint64(uint64(n))
	return nil
}

func writeFloat(wr *buffer.Buffer, f float32) error {
	wr.AppendByte(byte(TypeCodeFloat))
	wr.AppendUint32(math.Float32bits(f))
	return nil
}

func writeDouble(wr *buffer.Buffer, f float64) error {
	wr.AppendByte(byte(TypeCodeDouble))
	wr.AppendUint64(math.Float64bits(f))
	return nil
}

func writeTimestamp(wr *buffer.Buffer, t time.Time) error {
	wr.AppendByte(byte(TypeCodeTimestamp))
	ms := t.UnixNano() / int64(time.Millisecond)
	wr.AppendUint64(uint64(ms))
	return nil
}

func writeString(wr *buffer.Buffer, s string) error {
	l := len(s)
	switch {
	case l < 256:
		wr.AppendByte(byte(TypeCodeStr8))
		wr.AppendByte(byte(l))
		wr.AppendString(s)
	case uint(l) <= math.MaxUint32:
		wr.AppendByte(byte(TypeCodeStr32))
		wr.AppendUint32(uint32(l))
		wr.AppendString(s)
	default:
		return fmt.Errorf("encoding: string too long (%d bytes)", l)
	}
	return nil
}

// WriteBinary writes b using the vbin8/vbin32 constructors.
func WriteBinary(wr *buffer.Buffer, b []byte) error {
	l := len(b)
	switch {
	case l < 256:
		wr.AppendByte(byte(TypeCodeVbin8))
		wr.AppendByte(byte(l))
		wr.Append(b)
	case uint(l) <= math.MaxUint32:
		wr.AppendByte(byte(TypeCodeVbin32))
		wr.AppendUint32(uint32(l))
		wr.Append(b)
	default:
		return fmt.Errorf("encoding: binary too long (%d bytes)", l)
	}
	return nil
}

// compactMax is the largest encoded body size that still fits the 8-bit
// size field of the list8/map8 constructors: the size byte itself encodes
// 1+len(body), which must fit in a uint8, hence 254 rather than 255. The
// element count is checked separately against math.MaxUint8.
const compactMax = 254

// writeList marshals a List, choosing list8 over list32 whenever the
// encoded body is small enough for the 8-bit size and count fields.
func writeList(wr *buffer.Buffer, l List) error {
	if len(l) == 0 {
		wr.AppendByte(byte(TypeCodeList0))
		return nil
	}

	body := buffer.New(nil)
	for _, v := range l {
		if err := Marshal(body, v); err != nil {
			return err
		}
	}

	if body.Size() <= compactMax && len(l) <= math.MaxUint8 {
		wr.AppendByte(byte(TypeCodeList8))
		wr.AppendByte(byte(1 + body.Size()))
		wr.AppendByte(byte(len(l)))
		wr.Append(body.Bytes())
		return nil
	}

	wr.AppendByte(byte(TypeCodeList32))
	wr.AppendUint32(uint32(4 + body.Size()))
	wr.AppendUint32(uint32(len(l)))
	wr.Append(body.Bytes())
	return nil
}

// writeMap marshals an untyped AMQP map, choosing map8 over map32 whenever
// the encoded body and element count both fit the 8-bit forms. Go map
// iteration order is unspecified, so wire order of a re-encoded map is not
// stable across encodes; the AMQP map constructor does not require sorted
// order.
func writeMap(wr *buffer.Buffer, m map[interface{}]interface{}) error {
	count := len(m) * 2

	body := buffer.New(nil)
	for k, v := range m {
		if err := Marshal(body, k); err != nil {
			return err
		}
		if err := Marshal(body, v); err != nil {
			return err
		}
	}

	if body.Size() <= compactMax && count <= math.MaxUint8 {
		wr.AppendByte(byte(TypeCodeMap8))
		wr.AppendByte(byte(1 + body.Size()))
		wr.AppendByte(byte(count))
		wr.Append(body.Bytes())
		return nil
	}

	wr.AppendByte(byte(TypeCodeMap32))
	wr.AppendUint32(uint32(4 + body.Size()))
	wr.AppendUint32(uint32(count))
	wr.Append(body.Bytes())
	return nil
}

// writeArray writes an array's constructor, size, element count and shared
// element constructor, followed by body (the concatenated element bodies
// with each element's own constructor byte already stripped). Chooses
// array8 over array32 when body and count both fit the 8-bit forms; an
// empty body encodes as Null, per the AMQP array encoding rules.
func writeArray(wr *buffer.Buffer, count int, elemCode TypeCode, body []byte) {
	if len(body) == 0 {
		wr.AppendByte(byte(TypeCodeNull))
		return
	}

	// the array8 size byte covers the count byte, the shared constructor
	// byte and the body, so the body may be at most 253 bytes.
	if 2+len(body) <= math.MaxUint8 && count <= math.MaxUint8 {
		wr.AppendByte(byte(TypeCodeArray8))
		wr.AppendByte(byte(2 + len(body)))
		wr.AppendByte(byte(count))
		wr.AppendByte(byte(elemCode))
		wr.Append(body)
		return
	}

	wr.AppendByte(byte(TypeCodeArray32))
	wr.AppendUint32(uint32(5 + len(body)))
	wr.AppendUint32(uint32(count))
	wr.AppendByte(byte(elemCode))
	wr.Append(body)
}
