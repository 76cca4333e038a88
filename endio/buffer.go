package endio

import "io"

// Buffer is a reusable byte buffer. It operates similarly to bytes.Buffer,
// but exposes its storage as a slice so encoders can fill it in place, and it
// slides data down instead of allocating when the unread portion is small.
//
// The zero value is ready to use.
type Buffer struct {
	buff []byte
	off  int
}

// Read implements io.Reader.
func (b *Buffer) Read(buff []byte) (int, error) {
	n := copy(buff, b.buff[b.off:])
	b.off += n
	if n < len(buff) {
		return n, io.EOF
	}
	return n, nil
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() == 0 {
		return 0, io.EOF
	}
	by := b.buff[b.off]
	b.off++
	return by, nil
}

// Write implements io.Writer.
func (b *Buffer) Write(buff []byte) (int, error) {
	return copy(b.buff[b.grow(len(buff)):], buff), nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(by byte) error {
	b.buff[b.grow(1)] = by
	return nil
}

// Extend grows the buffer by n bytes and returns the slice of new bytes for
// the caller to fill in place.
// The slice is only valid until the next method call.
func (b *Buffer) Extend(n int) []byte {
	i := b.grow(n)
	return b.buff[i : i+n]
}

// ReadNFrom reads exactly n bytes from r, appending them to the buffer.
func (b *Buffer) ReadNFrom(r io.Reader, n int) error {
	return Read(b.buff[b.grow(n):], r)
}

// Bytes returns the unread portion of the buffer.
// The slice is only valid until the next method call.
func (b *Buffer) Bytes() []byte {
	return b.buff[b.off:]
}

// Len returns the length of the unread portion of the buffer.
func (b *Buffer) Len() int {
	return len(b.buff) - b.off
}

// Discard drops the next n unread bytes. Discarding more than Len drops
// everything.
func (b *Buffer) Discard(n int) {
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
}

// Reset discards all data, retaining storage.
func (b *Buffer) Reset() {
	b.buff = b.buff[:0]
	b.off = 0
}

// grow extends the buffer by n bytes and returns the index where the new
// bytes begin.
func (b *Buffer) grow(n int) int {
	l := len(b.buff)
	if l+n <= cap(b.buff) {
		b.buff = b.buff[:l+n]
		return l
	}

	l -= b.off
	c := cap(b.buff)
	if (l+n)*8 <= c {
		// Plenty of headroom; slide down instead of allocating.
		copy(b.buff, b.buff[b.off:])
		b.buff = b.buff[:l+n]
		b.off = 0
		return l
	}

	nb := make([]byte, l+n, c*2+n)
	copy(nb, b.buff[b.off:])
	b.buff = nb
	b.off = 0
	return l
}
