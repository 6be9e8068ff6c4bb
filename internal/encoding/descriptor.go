package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// PeekDescriptor returns the TypeCode of the composite at the front of r
// without consuming any bytes, so callers can pick which concrete type to
// allocate before calling its Unmarshal method.
func PeekDescriptor(r *buffer.Buffer) (TypeCode, error) {
	b := r.Bytes()
	if len(b) < 2 {
		return 0, fmt.Errorf("encoding: not enough bytes to peek a descriptor")
	}
	if b[0] != 0x00 {
		return 0, fmt.Errorf("encoding: expected composite descriptor, got type %#02x", b[0])
	}
	switch TypeCode(b[1]) {
	case TypeCodeSmallUlong:
		if len(b) < 3 {
			return 0, fmt.Errorf("encoding: truncated descriptor")
		}
		return TypeCode(b[2]), nil
	case TypeCodeUlong:
		if len(b) < 10 {
			return 0, fmt.Errorf("encoding: truncated descriptor")
		}
		return TypeCode(binary.BigEndian.Uint64(b[2:10])), nil
	default:
		return 0, fmt.Errorf("encoding: unsupported descriptor constructor %#02x", b[1])
	}
}
