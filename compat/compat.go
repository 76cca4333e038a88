// Package compat bridges the engine to and from the wider Go serialization
// ecosystem: values that speak encoding.BinaryMarshaler, APIs that expect
// one, and arbitrary values carried as embedded CBOR documents.
package compat

import (
	"encoding"

	"github.com/bohdloss/ende"
)

// Binary adapts a codec-implementing value to encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler, so it can flow through APIs built on the
// standard interfaces. A nil Ctx means default settings; note that each
// MarshalBinary call starts a fresh context, so settings overrides do not
// leak between calls.
type Binary struct {
	Value interface {
		ende.Encodable
		ende.Decodable
	}
	Ctx *ende.Context
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b Binary) MarshalBinary() ([]byte, error) {
	return ende.MarshalWith(b.Ctx, b.Value)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b Binary) UnmarshalBinary(data []byte) error {
	return ende.UnmarshalWith(b.Ctx, data, b.Value)
}

// EncodeMarshaler embeds a value that only speaks encoding.BinaryMarshaler as
// a size-prefixed opaque region. The size uses the active size
// representation, so the region honors the surrounding format.
func EncodeMarshaler(e *ende.Encoder, m encoding.BinaryMarshaler) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := e.WriteSize(len(data)); err != nil {
		return err
	}
	return e.WriteBytes(data)
}

// DecodeUnmarshaler reads a size-prefixed opaque region written by
// EncodeMarshaler and hands it to m.
func DecodeUnmarshaler(d *ende.Decoder, m encoding.BinaryUnmarshaler) error {
	n, err := d.ReadSize()
	if err != nil {
		return err
	}
	data, err := readRegion(d, n)
	if err != nil {
		return err
	}
	return m.UnmarshalBinary(data)
}

// allocCap bounds the storage committed to a declared region before its
// bytes actually arrive.
const allocCap = 4096

// readRegion reads an n-byte opaque region in bounded steps, so a hostile
// length prefix can only cost as many bytes as the stream actually carries.
func readRegion(d *ende.Decoder, n int) ([]byte, error) {
	data := make([]byte, 0, min(n, allocCap))
	for remaining := n; remaining > 0; {
		chunk := min(remaining, allocCap)
		start := len(data)
		data = append(data, make([]byte, chunk)...)
		if err := d.ReadBytes(data[start:]); err != nil {
			return nil, err
		}
		remaining -= chunk
	}
	return data, nil
}
