// Package ende is a configurable engine for encoding values into binary
// streams and decoding them back.
//
// The format is not self-describing. Every choice about the wire layout,
// byte order, var-int compression, size widths, string encodings, lives in
// Settings, and the same Settings must be active on both sides of the wire.
// In exchange the output carries zero metadata: a struct of a uint32 and a
// short string costs exactly its payload bytes plus the configured length
// prefix.
//
// Values describe their own layout by implementing Encodable and Decodable:
//
//	type Item struct {
//		ID   uint32
//		Name string
//	}
//
//	func (i *Item) Encode(e *ende.Encoder) error {
//		if err := e.WriteUint32(i.ID); err != nil {
//			return err
//		}
//		return e.WriteString(i.Name)
//	}
//
//	func (i *Item) Decode(d *ende.Decoder) error {
//		var err error
//		if i.ID, err = d.ReadUint32(); err != nil {
//			return err
//		}
//		i.Name, err = d.ReadString()
//		return err
//	}
//
// The derive package builds these implementations from struct tags instead,
// and the transform package wraps the underlying stream in compression,
// encryption and integrity layers without the value code noticing.
package ende

import (
	"io"

	"github.com/bohdloss/ende/endio"
)

// Encodable is a value that can write itself to an Encoder.
//
// Implementations must consult the encoder's context settings through the
// Write* methods rather than writing raw bytes, so that callers can reshape
// the format without touching value code. Implementations that override
// settings for a sub-tree must restore them before returning; see
// Context.WithSettings.
type Encodable interface {
	Encode(e *Encoder) error
}

// Decodable is a value that can read itself from a Decoder.
//
// A Decode that returns an error leaves the value in an unspecified state;
// callers must not use a partially decoded value.
type Decodable interface {
	Decode(d *Decoder) error
}

// EncodeWith encodes v to w under ctx. A nil ctx means default settings.
func EncodeWith(w io.Writer, ctx *Context, v Encodable) error {
	return v.Encode(NewEncoder(w, ctx))
}

// DecodeWith decodes v from r under ctx. A nil ctx means default settings.
func DecodeWith(r io.Reader, ctx *Context, v Decodable) error {
	return v.Decode(NewDecoder(r, ctx))
}

// Marshal encodes v to a byte slice under default settings.
func Marshal(v Encodable) ([]byte, error) {
	return MarshalWith(nil, v)
}

// MarshalWith encodes v to a byte slice under ctx.
func MarshalWith(ctx *Context, v Encodable) ([]byte, error) {
	var buff endio.Buffer
	if err := EncodeWith(&buff, ctx, v); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// Unmarshal decodes v from data under default settings. Trailing bytes are
// not an error; decode consumes exactly what the format requires.
func Unmarshal(data []byte, v Decodable) error {
	return UnmarshalWith(nil, data, v)
}

// UnmarshalWith decodes v from data under ctx.
func UnmarshalWith(ctx *Context, data []byte, v Decodable) error {
	var buff endio.Buffer
	if _, err := buff.Write(data); err != nil {
		return err
	}
	return DecodeWith(&buff, ctx, v)
}

// EncodedSize returns the number of bytes v would occupy when encoded under
// ctx, by running the encode against a counting sink. Useful for
// pre-allocating or for flattened length prefixes known ahead of the payload.
func EncodedSize(ctx *Context, v Encodable) (int, error) {
	var count endio.CountingWriter
	if err := EncodeWith(&count, ctx, v); err != nil {
		return 0, err
	}
	return count.Count(), nil
}
