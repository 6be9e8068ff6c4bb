package encoding

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amqpio/amqp10/internal/buffer"
)

func roundTrip(t *testing.T, v interface{}, out interface{}) {
	t.Helper()
	wr := buffer.New(nil)
	require.NoError(t, Marshal(wr, v))
	r := buffer.New(wr.Bytes())
	require.NoError(t, Unmarshal(r, out))
	require.Zero(t, r.Len(), "unmarshal must consume exactly what was written")
}

func TestPrimitiveRoundTrip(t *testing.T) {
	var b bool
	roundTrip(t, true, &b)
	require.True(t, b)

	var u8 uint8
	roundTrip(t, uint8(200), &u8)
	require.EqualValues(t, 200, u8)

	var u32 uint32
	roundTrip(t, uint32(1<<20), &u32)
	require.EqualValues(t, 1<<20, u32)

	var u64 uint64
	roundTrip(t, uint64(1<<40), &u64)
	require.EqualValues(t, 1<<40, u64)

	var i64 int64
	roundTrip(t, int64(-12345), &i64)
	require.EqualValues(t, -12345, i64)

	var s string
	roundTrip(t, "hello amqp", &s)
	require.Equal(t, "hello amqp", s)

	var bin []byte
	roundTrip(t, []byte{1, 2, 3, 4}, &bin)
	require.Equal(t, []byte{1, 2, 3, 4}, bin)
}

func TestUintWideningOnDecode(t *testing.T) {
	// A uint0-encoded zero must widen correctly into every unsigned
	// constructor's target Go type on read.
	wr := buffer.New(nil)
	require.NoError(t, writeUint32(wr, 0))

	var viaUint32 uint32
	require.NoError(t, Unmarshal(buffer.New(wr.Bytes()), &viaUint32))
	require.Zero(t, viaUint32)

	var viaUlong uint64
	require.NoError(t, Unmarshal(buffer.New(wr.Bytes()), &viaUlong))
	require.Zero(t, viaUlong)
}

func TestStringShortFormCutoff(t *testing.T) {
	// A string under 256 bytes must marshal via the short (str8) form, and a
	// longer one via str32.
	short := make([]byte, 10)
	for i := range short {
		short[i] = 'a'
	}
	wr := buffer.New(nil)
	require.NoError(t, Marshal(wr, string(short)))
	require.Equal(t, byte(TypeCodeStr8), wr.Bytes()[0])

	long := make([]byte, 300)
	wr2 := buffer.New(nil)
	require.NoError(t, Marshal(wr2, string(long)))
	require.Equal(t, byte(TypeCodeStr32), wr2.Bytes()[0])
}

func TestListRoundTrip(t *testing.T) {
	in := List{uint32(1), "two", true, nil}
	var out List
	roundTrip(t, in, &out)
	require.Equal(t, List{uint32(1), "two", true, nil}, out)
}

func TestListShortFormCutoff(t *testing.T) {
	small := List{uint32(1), "two"}
	wr := buffer.New(nil)
	require.NoError(t, Marshal(wr, small))
	require.Equal(t, byte(TypeCodeList8), wr.Bytes()[0])

	var big List
	for i := 0; i < 100; i++ {
		big = append(big, "a wordy element padding the body past 254 bytes")
	}
	wr2 := buffer.New(nil)
	require.NoError(t, Marshal(wr2, big))
	require.Equal(t, byte(TypeCodeList32), wr2.Bytes()[0])
}

func TestMapRoundTrip(t *testing.T) {
	in := Map{"k1": uint32(7), "k2": "v2"}
	var out Map
	roundTrip(t, in, &out)
	require.Equal(t, in, out)
}

func TestMapShortFormCutoff(t *testing.T) {
	small := Map{"k1": uint32(7)}
	wr := buffer.New(nil)
	require.NoError(t, Marshal(wr, map[interface{}]interface{}(small)))
	require.Equal(t, byte(TypeCodeMap8), wr.Bytes()[0])

	big := make(Map, 100)
	for i := 0; i < 100; i++ {
		big[fmt.Sprintf("key-%03d", i)] = "a wordy value padding the body past 254 bytes"
	}
	wr2 := buffer.New(nil)
	require.NoError(t, Marshal(wr2, map[interface{}]interface{}(big)))
	require.Equal(t, byte(TypeCodeMap32), wr2.Bytes()[0])
}

func TestMapRejectsNonComparableKey(t *testing.T) {
	// Hand-build a map with a list (non-comparable) key on the wire; no
	// Go-side constructor can produce this, since map[interface{}]... key
	// types are constrained to comparable values at the language level.
	wr := buffer.New(nil)
	wr.AppendByte(byte(TypeCodeMap32))
	sizeIdx := wr.Len()
	wr.Append([]byte{0, 0, 0, 0})
	wr.AppendUint32(2) // count: one key/value pair
	require.NoError(t, writeList(wr, List{uint32(1)})) // non-comparable key
	require.NoError(t, Marshal(wr, "value"))
	raw := wr.Bytes()
	size := uint32(len(raw) - (sizeIdx + 4))
	raw[sizeIdx] = byte(size >> 24)
	raw[sizeIdx+1] = byte(size >> 16)
	raw[sizeIdx+2] = byte(size >> 8)
	raw[sizeIdx+3] = byte(size)

	var m Map
	err := m.Unmarshal(buffer.New(raw))
	require.Error(t, err)
}

func TestSymbolRoundTrip(t *testing.T) {
	var s Symbol
	roundTrip(t, Symbol("amqp:decode-error"), &s)
	require.Equal(t, Symbol("amqp:decode-error"), s)
}

func TestMultiSymbolAcceptsBareSymbol(t *testing.T) {
	wr := buffer.New(nil)
	require.NoError(t, Symbol("PLAIN").Marshal(wr))

	var ms MultiSymbol
	require.NoError(t, ms.Unmarshal(buffer.New(wr.Bytes())))
	require.Equal(t, MultiSymbol{"PLAIN"}, ms)
}

func TestMultiSymbolArrayRoundTrip(t *testing.T) {
	in := MultiSymbol{"PLAIN", "ANONYMOUS"}
	var out MultiSymbol
	roundTrip(t, in, &out)
	require.Equal(t, in, out)
}

func TestMultiSymbolEmptyEncodesAsNull(t *testing.T) {
	wr := buffer.New(nil)
	require.NoError(t, MultiSymbol{}.Marshal(wr))
	require.Equal(t, []byte{byte(TypeCodeNull)}, wr.Bytes())

	var out MultiSymbol
	require.NoError(t, Unmarshal(buffer.New(wr.Bytes()), &out))
	require.Nil(t, out)
}

func TestUUIDRoundTrip(t *testing.T) {
	in := UUID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	var out UUID
	roundTrip(t, in, &out)
	require.Equal(t, in, out)
	require.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", out.String())
}

func TestTimestampRoundTrip(t *testing.T) {
	in := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	wr := buffer.New(nil)
	wr.AppendByte(byte(TypeCodeTimestamp))
	wr.AppendUint64(uint64(in.UnixMilli()))
	out, err := readTimestamp(buffer.New(wr.Bytes()))
	require.NoError(t, err)
	require.True(t, in.Equal(out))
}

type testComposite struct {
	A uint32
	B string
	C *uint32
}

func (c *testComposite) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeOpen, []MarshalField{
		{Value: &c.A, Omit: false},
		{Value: &c.B, Omit: c.B == ""},
		{Value: c.C, Omit: c.C == nil},
	})
}

func (c *testComposite) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeOpen,
		UnmarshalField{Field: &c.A},
		UnmarshalField{Field: &c.B},
		UnmarshalField{Field: &c.C},
	)
}

func TestCompositeRoundTrip(t *testing.T) {
	in := &testComposite{A: 42, B: "hi"}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))

	out := &testComposite{}
	require.NoError(t, out.Unmarshal(buffer.New(wr.Bytes())))
	require.Equal(t, in.A, out.A)
	require.Equal(t, in.B, out.B)
	require.Nil(t, out.C)
}

func TestCompositeTrailingFieldsOmittedOnWire(t *testing.T) {
	in := &testComposite{A: 1}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))

	out := &testComposite{}
	require.NoError(t, out.Unmarshal(buffer.New(wr.Bytes())))
	require.Equal(t, uint32(1), out.A)
	require.Equal(t, "", out.B)
}

func TestCompositeTolerantOfUnknownTrailingWireFields(t *testing.T) {
	// Simulate a newer peer sending one more field than this type knows
	// about: the decoder must skip it instead of erroring.
	wr := buffer.New(nil)
	extra := uint32(99)
	require.NoError(t, MarshalComposite(wr, TypeCodeOpen, []MarshalField{
		{Value: &extra, Omit: false},
		{Value: &extra, Omit: false},
		{Value: &extra, Omit: false},
		{Value: &extra, Omit: false}, // one field beyond what testComposite declares
	}))

	out := &testComposite{}
	require.NoError(t, out.Unmarshal(buffer.New(wr.Bytes())))
}

func TestErrorRoundTrip(t *testing.T) {
	in := &Error{Condition: "amqp:decode-error", Description: "bad frame"}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))

	out := &Error{}
	require.NoError(t, out.Unmarshal(buffer.New(wr.Bytes())))
	require.Equal(t, in.Condition, out.Condition)
	require.Equal(t, in.Description, out.Description)
}

func TestDeliveryStateRoundTrip(t *testing.T) {
	in := &StateAccepted{}
	wr := buffer.New(nil)
	require.NoError(t, in.Marshal(wr))

	var out DeliveryState
	require.NoError(t, Unmarshal(buffer.New(wr.Bytes()), &out))
	_, ok := out.(*StateAccepted)
	require.True(t, ok)
}
