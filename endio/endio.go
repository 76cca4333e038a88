// Package endio provides io methods for the write-all/read-exact contract the
// encoding engine relies upon, as well as io error types.
//
// The engine operates over plain io.Writer and io.Reader values; Write and Read
// in this package upgrade them to the contract the Encoder and Decoder need:
// a write either transfers every byte or fails, and a read either completely
// fills the buffer or fails with ErrUnexpectedEnd.
package endio

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnexpectedEnd is returned when a source is exhausted before a required
// read completed. It is distinct from other io failures so callers can decide
// whether a truncated stream was expected.
var ErrUnexpectedEnd = errors.New("unexpected end of input")

// Read reads from r, completely filling buff.
// In an ideal read only a single length check is performed; if the reader
// reports the whole buffer was filled, returned errors are ignored.
//
// io.EOF and io.ErrUnexpectedEOF from partial reads are reported as
// ErrUnexpectedEnd wrapped in an IOError.
func Read(buff []byte, r io.Reader) error {
	n, err := r.Read(buff)
	if n == len(buff) {
		return nil
	}

	end := n
	for end < len(buff) && err == nil && n > 0 {
		n, err = r.Read(buff[end:])
		end += n
	}

	if end == len(buff) {
		return nil
	}

	switch {
	case end > len(buff):
		return NewIOError(
			errors.New("bad io.Reader implementation"),
			fmt.Sprintf("reported %v bytes read, but the buffer is only %v bytes", end, len(buff)),
		)
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return NewIOError(
			ErrUnexpectedEnd,
			fmt.Sprintf("want %v bytes but only got %v", len(buff), end),
		)
	case err != nil:
		return NewIOError(err, "")
	default: // err == nil, n == 0
		return NewIOError(
			io.ErrNoProgress,
			fmt.Sprintf("want %v bytes but only got %v", len(buff), end),
		)
	}
}

// Write writes buff to w in its entirety.
// Short writes without an error are retried; a writer that reports short
// writes with a nil error is misbehaving, and a warning is emitted.
func Write(buff []byte, w io.Writer) error {
	n, err := w.Write(buff)
	if n == len(buff) {
		return err
	}

	end := n
	for end < len(buff) && err == nil && n > 0 {
		fmt.Fprintf(Warnings, "ende: %T is a bad io.Writer implementation; it wrote short yet returned no error. Calling it again...\n", w)
		n, err = w.Write(buff[end:])
		end += n
	}

	if end == len(buff) {
		return nil
	}

	switch {
	case end > len(buff):
		return NewIOError(
			errors.New("bad io.Writer implementation"),
			fmt.Sprintf("reported %v bytes written, but was only given %v bytes", end, len(buff)),
		)
	case err == nil:
		return NewIOError(
			io.ErrShortWrite,
			fmt.Sprintf("want %v bytes but only wrote %v", len(buff), end),
		)
	default:
		return NewIOError(err, fmt.Sprintf("want %v bytes but wrote %v", len(buff), end))
	}
}
