package endio

import "io"

// NewLimitReader returns a reader that reads from r but fails once more than
// limit bytes have been requested. Unlike io.LimitReader, hitting the limit
// is an ErrUnexpectedEnd wrapped in an IOError rather than a bare io.EOF, so
// a decode that runs past its budget surfaces as a truncated stream.
func NewLimitReader(r io.Reader, limit int) *LimitReader {
	return &LimitReader{
		r:         r,
		remaining: limit,
	}
}

// LimitReader reads from an inner reader up to a fixed byte budget.
type LimitReader struct {
	r         io.Reader
	remaining int
}

// Remaining returns the number of bytes left in the budget.
func (l *LimitReader) Remaining() int { return l.remaining }

// Read implements io.Reader.
func (l *LimitReader) Read(buff []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, NewIOError(ErrUnexpectedEnd, "read budget exhausted")
	}
	if len(buff) > l.remaining {
		buff = buff[:l.remaining]
	}
	n, err := l.r.Read(buff)
	l.remaining -= n
	return n, err
}

// NewCountingWriter returns a writer that counts the bytes passing through it
// on the way to w. A nil w discards the data, which makes the counter usable
// for pre-sizing: run an encode against it and read off the size.
func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

// CountingWriter counts bytes written through it.
type CountingWriter struct {
	w     io.Writer
	count int
}

// Count returns the number of bytes written so far.
func (c *CountingWriter) Count() int { return c.count }

// Write implements io.Writer.
func (c *CountingWriter) Write(buff []byte) (int, error) {
	if c.w == nil {
		c.count += len(buff)
		return len(buff), nil
	}
	n, err := c.w.Write(buff)
	c.count += n
	return n, err
}
