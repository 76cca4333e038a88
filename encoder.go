package ende

import (
	"io"
	"math"

	"github.com/bohdloss/ende/endio"
)

// Encoder writes values to an underlying byte sink according to the active
// Settings in its Context.
//
// The sink can be anything implementing io.Writer: an in-memory buffer, a
// file, a network connection, or a transform layer wrapping one of those.
// Every write either transfers all of its bytes or fails; short writes are
// never silently accepted. It's recommended to wrap slow media in a
// bufio.Writer, because many small writes are made.
type Encoder struct {
	w       io.Writer
	ctx     *Context
	scratch [16]byte
}

// NewEncoder returns an Encoder writing to w. A nil ctx means a fresh Context
// with default settings.
func NewEncoder(w io.Writer, ctx *Context) *Encoder {
	if ctx == nil {
		ctx = NewContext(DefaultSettings())
	}
	return &Encoder{w: w, ctx: ctx}
}

// Context returns the encoder's context.
func (e *Encoder) Context() *Context { return e.ctx }

// Writer returns the underlying sink.
func (e *Encoder) Writer() io.Writer { return e.w }

// WriteByte writes a single byte to the sink as-is.
func (e *Encoder) WriteByte(b byte) error {
	e.scratch[0] = b
	return endio.Write(e.scratch[:1], e.w)
}

// WriteBytes writes the given bytes to the sink as-is.
func (e *Encoder) WriteBytes(buff []byte) error {
	return endio.Write(buff, e.w)
}

// writeFixed writes the low width.Bytes() bytes of v in the given byte order.
// For Bit128, the upper 8 wire bytes are the extension byte (0x00, or 0xFF
// for sign extension of negative values).
func (e *Encoder) writeFixed(v uint64, width BitWidth, endianness Endianness, extension byte) error {
	n := width.Bytes()
	buff := e.scratch[:n]
	for i := range buff {
		buff[i] = extension
	}

	value := n
	if value > 8 {
		value = 8
	}
	switch endianness {
	case BigEndian:
		for i := 0; i < value; i++ {
			buff[n-1-i] = byte(v >> (8 * i))
		}
	default:
		for i := 0; i < value; i++ {
			buff[i] = byte(v >> (8 * i))
		}
	}
	return endio.Write(buff, e.w)
}

// writeUleb128 writes v in unsigned LEB128 format: 7 payload bits per byte
// plus a continuation flag, least significant group first.
func (e *Encoder) writeUleb128(v uint64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if err := e.WriteByte(b); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

// writeSleb128 writes v in signed LEB128 format.
func (e *Encoder) writeSleb128(v int64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7

		neg := b&0x40 != 0
		done := (v == 0 && !neg) || (v == -1 && neg)
		if !done {
			b |= 0x80
		}
		if err := e.WriteByte(b); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// uintFits reports whether v fits in width bits.
func uintFits(v uint64, width BitWidth) bool {
	if width.Bits() >= 64 {
		return true
	}
	return v>>uint(width.Bits()) == 0
}

// intFits reports whether v fits in width bits as a two's complement value.
func intFits(v int64, width BitWidth) bool {
	if width.Bits() >= 64 {
		return true
	}
	shift := uint(width.Bits() - 1)
	return v>>shift == 0 || v>>shift == -1
}

// truncTo keeps the low width bits of v, the two's complement representation
// of a value at its declared width. int8(-1) at Bit8 is 0xff, not
// 0xffffffffffffffff.
func truncTo(v uint64, width BitWidth) uint64 {
	if bits := width.Bits(); bits < 64 {
		return v & (1<<uint(bits) - 1)
	}
	return v
}

// WriteUintWith encodes an unsigned value of the declared bit-width with an
// explicit numerical encoding and endianness, bypassing the context settings.
// A value that does not fit the declared width is ErrInvalidData; nothing is
// ever silently trimmed.
func (e *Encoder) WriteUintWith(v uint64, width BitWidth, encoding NumEncoding, endianness Endianness) error {
	if !uintFits(v, width) {
		return newError(e.ctx, ErrInvalidData, "value %d does not fit %s", v, width)
	}
	switch encoding {
	case Fixed:
		return e.writeFixed(v, width, endianness, 0)
	default:
		return e.writeUleb128(v)
	}
}

// WriteIntWith encodes a signed value of the declared bit-width with an
// explicit numerical encoding and endianness, bypassing the context settings.
func (e *Encoder) WriteIntWith(v int64, width BitWidth, encoding NumEncoding, endianness Endianness) error {
	if !intFits(v, width) {
		return newError(e.ctx, ErrInvalidData, "value %d does not fit %s", v, width)
	}
	switch encoding {
	case Fixed:
		var extension byte
		if v < 0 {
			extension = 0xff
		}
		return e.writeFixed(uint64(v), width, endianness, extension)
	case Leb128:
		return e.writeSleb128(v)
	case ProtobufWasteful:
		return e.writeUleb128(truncTo(uint64(v), width))
	default: // ProtobufZigzag
		return e.writeUleb128(uint64(v<<1) ^ uint64(v>>63))
	}
}

// WriteUint8 encodes v per the active numerical representation.
func (e *Encoder) WriteUint8(v uint8) error {
	return e.WriteUintWith(uint64(v), Bit8, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteUint16 encodes v per the active numerical representation.
func (e *Encoder) WriteUint16(v uint16) error {
	return e.WriteUintWith(uint64(v), Bit16, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteUint32 encodes v per the active numerical representation.
func (e *Encoder) WriteUint32(v uint32) error {
	return e.WriteUintWith(uint64(v), Bit32, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteUint64 encodes v per the active numerical representation.
func (e *Encoder) WriteUint64(v uint64) error {
	return e.WriteUintWith(v, Bit64, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteInt8 encodes v per the active numerical representation.
func (e *Encoder) WriteInt8(v int8) error {
	return e.WriteIntWith(int64(v), Bit8, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteInt16 encodes v per the active numerical representation.
func (e *Encoder) WriteInt16(v int16) error {
	return e.WriteIntWith(int64(v), Bit16, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteInt32 encodes v per the active numerical representation.
func (e *Encoder) WriteInt32(v int32) error {
	return e.WriteIntWith(int64(v), Bit32, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteInt64 encodes v per the active numerical representation.
func (e *Encoder) WriteInt64(v int64) error {
	return e.WriteIntWith(v, Bit64, e.ctx.Settings.Num.Encoding, e.ctx.Settings.Num.Endianness)
}

// WriteSize encodes a length per the active size representation, after
// checking it against the configured MaxSize.
//
// If a flattened size is pending in the context, nothing is written; the
// flattened value is checked against n and a mismatch is ErrFlatten.
func (e *Encoder) WriteSize(n int) error {
	if flat, ok := e.ctx.takeFlatSize(); ok {
		if flat != n {
			return newError(e.ctx, ErrFlatten, "flattened size %d, actual %d", flat, n)
		}
		return nil
	}
	if n < 0 {
		return newError(e.ctx, ErrInvalidData, "negative size %d", n)
	}
	repr := e.ctx.Settings.Size
	if n > repr.MaxSize {
		return newError(e.ctx, ErrSizeExceeded, "size %d exceeds the configured max of %d", n, repr.MaxSize)
	}
	return e.WriteUintWith(uint64(n), repr.Width, repr.Encoding, repr.Endianness)
}

// WriteUvariant encodes an unsigned discriminant per the active variant
// representation, honoring a pending flattened discriminant.
func (e *Encoder) WriteUvariant(v uint64) error {
	if flat, ok := e.ctx.takeFlatVariant(); ok {
		if flat != v {
			return newError(e.ctx, ErrFlatten, "flattened variant %d, actual %d", flat, v)
		}
		return nil
	}
	repr := e.ctx.Settings.Variant
	return e.WriteUintWith(v, repr.Width, repr.Encoding, repr.Endianness)
}

// WriteIvariant encodes a signed discriminant per the active variant
// representation.
func (e *Encoder) WriteIvariant(v int64) error {
	if flat, ok := e.ctx.takeFlatVariant(); ok {
		if flat != uint64(v) {
			return newError(e.ctx, ErrFlatten, "flattened variant %d, actual %d", flat, v)
		}
		return nil
	}
	repr := e.ctx.Settings.Variant
	return e.WriteIntWith(v, repr.Width, repr.Encoding, repr.Endianness)
}

// WriteBool encodes v as a single byte: 1 for true, 0 for false. A pending
// flattened boolean elides the write.
func (e *Encoder) WriteBool(v bool) error {
	if flat, ok := e.ctx.takeFlatBool(); ok {
		if flat != v {
			return newError(e.ctx, ErrFlatten, "flattened bool %v, actual %v", flat, v)
		}
		return nil
	}
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteFloat32 encodes the IEEE 754 bits of v, respecting the numerical
// endianness but always at fixed width; var-int encodings do not compress
// float bit patterns usefully.
func (e *Encoder) WriteFloat32(v float32) error {
	return e.WriteUintWith(uint64(math.Float32bits(v)), Bit32, Fixed, e.ctx.Settings.Num.Endianness)
}

// WriteFloat64 encodes the IEEE 754 bits of v. See WriteFloat32.
func (e *Encoder) WriteFloat64(v float64) error {
	return e.WriteUintWith(math.Float64bits(v), Bit64, Fixed, e.ctx.Settings.Num.Endianness)
}
