package compat

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/bohdloss/ende"
)

// CBOR modes used for embedded documents. Encoding is deterministic so the
// same value always produces the same bytes; decoding caps nesting in line
// with the engine's own recursion guard.
var (
	cborEnc = func() cbor.EncMode {
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			panic(err)
		}
		return em
	}()

	cborDec = func() cbor.DecMode {
		dm, err := cbor.DecOptions{MaxNestedLevels: ende.DefaultMaxDepth}.DecMode()
		if err != nil {
			panic(err)
		}
		return dm
	}()
)

// EncodeCBOR embeds any CBOR-encodable value as a size-prefixed CBOR
// document. Useful for carrying loosely structured data, maps of any,
// third-party types, inside a stream whose surrounding layout stays under
// the engine's control.
func EncodeCBOR(e *ende.Encoder, v any) error {
	data, err := cborEnc.Marshal(v)
	if err != nil {
		return err
	}
	if err := e.WriteSize(len(data)); err != nil {
		return err
	}
	return e.WriteBytes(data)
}

// DecodeCBOR reads a size-prefixed CBOR document written by EncodeCBOR into
// v, which must be a non-nil pointer.
func DecodeCBOR(d *ende.Decoder, v any) error {
	n, err := d.ReadSize()
	if err != nil {
		return err
	}
	data, err := readRegion(d, n)
	if err != nil {
		return err
	}
	return cborDec.Unmarshal(data, v)
}
