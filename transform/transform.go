// Package transform wraps byte streams in reversible transformations:
// compression, authenticated encryption and checksummed integrity. Layers
// implement io.Writer or io.Reader and stack freely, so an encoder can write
// through an Encryptor wrapping a Compressor wrapping a file without knowing
// any of that.
//
// Every layer shares one frame discipline on the wire: a stream of
// [uvarint length][body] frames closed by a zero-length terminator frame.
// Reading layers consume whole frames and stop at the terminator, so a
// decoder never reads past the end of a transformed region into the bytes
// that follow it. Writing layers buffer and emit frames as chunks fill, and
// must be closed with Finish to flush the tail and write the terminator;
// dropping a layer without Finish truncates the stream.
package transform

import "errors"

var (
	// ErrCorruptStream is returned when framing or transformed content is
	// structurally invalid: a frame larger than the permitted maximum, a
	// chunk that decompresses to the wrong length, an encrypted stream that
	// ends before its final chunk.
	ErrCorruptStream = errors.New("corrupt stream")

	// ErrAuthenticationFailed is returned when an encrypted chunk fails AEAD
	// verification. The chunk, its order in the stream, or its final flag has
	// been tampered with.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrChecksumMismatch is returned when a checksummed stream's digest does
	// not match its content.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrUseAfterFinish is returned by writes to a layer after Finish.
	ErrUseAfterFinish = errors.New("use after finish")

	// ErrUnknownCompression is returned by ParseCompression for an
	// unrecognized name.
	ErrUnknownCompression = errors.New("unknown compression")
)

// A Finisher is a writing transform layer. Finish flushes buffered data and
// writes the stream terminator; it does not close the underlying writer.
type Finisher interface {
	Write(buff []byte) (int, error)
	Finish() error
}

// DefaultChunkSize is the amount of data a writing layer buffers before
// emitting a frame.
const DefaultChunkSize = 64 * 1024

// maxFrameSize bounds the frame length a reading layer will accept before
// allocating, guarding against streams that declare absurd frame sizes.
const maxFrameSize = 16 * 1024 * 1024
