// Package buffer implements a growable byte buffer used by the type and
// frame codecs. It plays the same role as bytes.Buffer but additionally
// tracks a read cursor so the same backing array can be marshaled into and
// then unmarshaled back out of without a copy.
package buffer

import "encoding/binary"

// Buffer is a read/write byte buffer with an independent read cursor.
// The zero value is ready to use.
type Buffer struct {
	b   []byte
	off int
}

// New returns a Buffer wrapping b. Appends grow the slice as needed;
// reads start at offset 0.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Size returns the total number of bytes written to the buffer, read or not.
func (b *Buffer) Size() int {
	return len(b.b)
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Detach returns the entire backing slice and resets the buffer to empty.
func (b *Buffer) Detach() []byte {
	out := b.b
	b.b = nil
	b.off = 0
	return out
}

// Reset discards all written and read data.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

// Append appends p to the buffer.
func (b *Buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) {
	b.b = append(b.b, v)
}

// AppendString appends the bytes of s.
func (b *Buffer) AppendString(s string) {
	b.b = append(b.b, s...)
}

// AppendUint16 appends v in network byte order.
func (b *Buffer) AppendUint16(v uint16) {
	b.b = append(b.b, byte(v>>8), byte(v))
}

// AppendUint32 appends v in network byte order.
func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// AppendUint64 appends v in network byte order.
func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// ReadByte consumes and returns the next unread byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() < 1 {
		return 0, errBufferUnderflow
	}
	v := b.b[b.off]
	b.off++
	return v, nil
}

// PeekByte returns the next unread byte without consuming it.
func (b *Buffer) PeekByte() (byte, bool) {
	if b.Len() < 1 {
		return 0, false
	}
	return b.b[b.off], true
}

// ReadUint16 consumes and returns the next two bytes as a big-endian uint16.
func (b *Buffer) ReadUint16() (uint16, error) {
	buf, ok := b.Next(2)
	if !ok {
		return 0, errBufferUnderflow
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint32 consumes and returns the next four bytes as a big-endian uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	buf, ok := b.Next(4)
	if !ok {
		return 0, errBufferUnderflow
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadUint64 consumes and returns the next eight bytes as a big-endian uint64.
func (b *Buffer) ReadUint64() (uint64, error) {
	buf, ok := b.Next(8)
	if !ok {
		return 0, errBufferUnderflow
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Next consumes and returns the next n unread bytes. ok is false if fewer
// than n bytes remain, in which case the cursor is left unchanged.
func (b *Buffer) Next(n int64) (buf []byte, ok bool) {
	if n < 0 || int64(b.Len()) < n {
		return nil, false
	}
	buf = b.b[b.off : b.off+int(n)]
	b.off += int(n)
	return buf, true
}

// Skip advances the read cursor by n bytes without returning them.
func (b *Buffer) Skip(n int) {
	if n < 0 {
		return
	}
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
}
