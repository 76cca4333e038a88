package transform

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bohdloss/ende/endio"
)

// frameWriter emits [uvarint length][body] frames. The terminator is a
// zero-length frame; nothing may be written after it.
type frameWriter struct {
	w       io.Writer
	scratch [binary.MaxVarintLen64]byte
}

// writeFrame writes one frame. Empty bodies are reserved for the terminator
// and must not be passed here.
func (f *frameWriter) writeFrame(body []byte) error {
	n := binary.PutUvarint(f.scratch[:], uint64(len(body)))
	if err := endio.Write(f.scratch[:n], f.w); err != nil {
		return err
	}
	return endio.Write(body, f.w)
}

// terminate writes the zero-length terminator frame.
func (f *frameWriter) terminate() error {
	f.scratch[0] = 0
	return endio.Write(f.scratch[:1], f.w)
}

// frameReader consumes [uvarint length][body] frames, stopping at the
// terminator so the underlying reader is left positioned exactly after the
// framed region.
type frameReader struct {
	r    io.Reader
	buff endio.Buffer
	done bool
}

// next reads one frame and returns its body, valid until the following call.
// It returns io.EOF at the terminator and never reads beyond it.
func (f *frameReader) next() ([]byte, error) {
	if f.done {
		return nil, io.EOF
	}
	length, err := readUvarint(f.r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		f.done = true
		return nil, io.EOF
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds the %d byte maximum", ErrCorruptStream, length, maxFrameSize)
	}
	f.buff.Reset()
	if err := f.buff.ReadNFrom(f.r, int(length)); err != nil {
		return nil, err
	}
	return f.buff.Bytes(), nil
}

// readUvarint reads an unsigned varint one byte at a time, so no bytes beyond
// the varint are consumed from r.
func readUvarint(r io.Reader) (uint64, error) {
	var one [1]byte
	var v uint64
	for shift := 0; shift < 64; shift += 7 {
		if err := endio.Read(one[:], r); err != nil {
			return 0, err
		}
		b := one[0]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: frame length varint overflows", ErrCorruptStream)
}
