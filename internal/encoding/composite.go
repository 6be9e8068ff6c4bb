package encoding

import (
	"fmt"
	"math"

	"github.com/amqpio/amqp10/internal/buffer"
)

// MarshalField pairs a pointer to a composite's field with whether the
// field should be omitted from the wire list (its AMQP value is absent /
// default, so sending an explicit null for it would waste bytes).
type MarshalField struct {
	Value interface{}
	Omit  bool
}

// UnmarshalField pairs a pointer to a composite's field with an optional
// callback invoked when the field is absent from the wire list (either
// because the peer encoded an explicit null or because the list was
// shorter than expected) and the field is mandatory or has a non-zero
// default.
type UnmarshalField struct {
	Field      interface{}
	HandleNull func() error
}

// MarshalComposite writes a composite type's descriptor followed by its
// fields encoded as a list, trimming any run of omitted fields at the end
// of the field list (the common case: optional trailing fields the caller
// left unset).
func MarshalComposite(wr *buffer.Buffer, code TypeCode, fields []MarshalField) error {
	last := -1
	for i, f := range fields {
		if !f.Omit {
			last = i
		}
	}

	WriteDescriptor(wr, code)

	if last == -1 {
		wr.AppendByte(byte(TypeCodeList0))
		return nil
	}

	body := buffer.New(nil)
	for i := 0; i <= last; i++ {
		f := fields[i]
		if f.Omit {
			body.AppendByte(byte(TypeCodeNull))
			continue
		}
		if err := Marshal(body, f.Value); err != nil {
			return fmt.Errorf("encoding: marshaling field %d of composite %#02x: %w", i, code, err)
		}
	}

	count := last + 1
	if body.Size() <= compactMax && count <= math.MaxUint8 {
		wr.AppendByte(byte(TypeCodeList8))
		wr.AppendByte(byte(1 + body.Size()))
		wr.AppendByte(byte(count))
		wr.Append(body.Bytes())
		return nil
	}

	wr.AppendByte(byte(TypeCodeList32))
	wr.AppendUint32(uint32(4 + body.Size()))
	wr.AppendUint32(uint32(count))
	wr.Append(body.Bytes())
	return nil
}

// readCompositeHeader consumes a composite's descriptor and verifies it
// matches code, returning the number of fields encoded in its list.
func readCompositeHeader(r *buffer.Buffer, code TypeCode) (int64, error) {
	type_, err := readType(r)
	if err != nil {
		return 0, err
	}
	if type_ != 0x00 {
		return 0, fmt.Errorf("encoding: expected composite descriptor, got type %#02x", type_)
	}
	got, err := readUlong(r)
	if err != nil {
		return 0, err
	}
	if TypeCode(got) != code {
		return 0, fmt.Errorf("encoding: expected composite %#02x, got %#02x", code, got)
	}
	return readListHeader(r)
}

// UnmarshalComposite reads a composite type's descriptor and fields,
// verifying the descriptor matches code and invoking each field's
// HandleNull callback (if set) when the field is absent.
func UnmarshalComposite(r *buffer.Buffer, code TypeCode, fields ...UnmarshalField) error {
	count, err := readCompositeHeader(r, code)
	if err != nil {
		return err
	}

	for i := int64(0); i < count; i++ {
		if int(i) >= len(fields) {
			// unknown trailing field sent by a newer peer; skip it.
			if _, err := readAny(r); err != nil {
				return err
			}
			continue
		}
		f := fields[i]
		if tryReadNull(r) {
			if f.HandleNull != nil {
				if err := f.HandleNull(); err != nil {
					return err
				}
			}
			continue
		}
		if err := Unmarshal(r, f.Field); err != nil {
			return fmt.Errorf("encoding: unmarshaling field %d of composite %#02x: %w", i, code, err)
		}
	}

	for i := int(count); i < len(fields); i++ {
		if fields[i].HandleNull != nil {
			if err := fields[i].HandleNull(); err != nil {
				return err
			}
		}
	}

	return nil
}
