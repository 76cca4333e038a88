package ende

import (
	"io"
	"math"

	"github.com/bohdloss/ende/endio"
)

// Decoder reads values from an underlying byte source according to the
// active Settings in its Context.
//
// Decoding mirrors encoding exactly: whatever configuration produced a byte
// sequence must be the configuration used to decode it. The engine embeds no
// format metadata in the stream; the contract is configuration-symmetric, not
// self-describing.
type Decoder struct {
	r       io.Reader
	ctx     *Context
	scratch [16]byte
}

// NewDecoder returns a Decoder reading from r. A nil ctx means a fresh
// Context with default settings.
func NewDecoder(r io.Reader, ctx *Context) *Decoder {
	if ctx == nil {
		ctx = NewContext(DefaultSettings())
	}
	return &Decoder{r: r, ctx: ctx}
}

// Context returns the decoder's context.
func (d *Decoder) Context() *Context { return d.ctx }

// Reader returns the underlying source.
func (d *Decoder) Reader() io.Reader { return d.r }

// ReadByte reads a single byte from the source.
func (d *Decoder) ReadByte() (byte, error) {
	if err := endio.Read(d.scratch[:1], d.r); err != nil {
		return 0, err
	}
	return d.scratch[0], nil
}

// ReadBytes fills buff from the source, reading exactly len(buff) bytes.
func (d *Decoder) ReadBytes(buff []byte) error {
	return endio.Read(buff, d.r)
}

// readFixed reads width.Bytes() bytes in the given byte order. For Bit128,
// the upper 8 wire bytes must be the extension byte implied by signed; a
// value that does not fit 64 bits is ErrInvalidData.
func (d *Decoder) readFixed(width BitWidth, endianness Endianness, signed bool) (uint64, error) {
	n := width.Bytes()
	buff := d.scratch[:n]
	if err := endio.Read(buff, d.r); err != nil {
		return 0, err
	}

	if endianness == BigEndian {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			buff[i], buff[j] = buff[j], buff[i]
		}
	}
	// buff is now little endian: value bytes first, extension bytes last.

	var v uint64
	value := n
	if value > 8 {
		value = 8
	}
	for i := 0; i < value; i++ {
		v |= uint64(buff[i]) << (8 * i)
	}

	if n > 8 {
		var extension byte
		if signed && buff[7]&0x80 != 0 {
			extension = 0xff
		}
		for i := 8; i < n; i++ {
			if buff[i] != extension {
				return 0, newError(d.ctx, ErrInvalidData, "%s value does not fit in 64 bits", width)
			}
		}
	}
	return v, nil
}

// readUleb128 reads an unsigned LEB128 value of at most maxBits payload bits.
// In strict mode a non-minimal encoding (a redundant trailing zero group) is
// ErrInvalidData.
func (d *Decoder) readUleb128(maxBits int) (uint64, error) {
	if maxBits > 64 {
		maxBits = 64
	}
	var v uint64
	shift := 0
	for {
		if shift >= maxBits {
			return 0, newError(d.ctx, ErrInvalidData, "var-int exceeds %d bits", maxBits)
		}
		b, err := d.ReadByte()
		if err != nil {
			return 0, err
		}

		payload := uint64(b & 0x7f)
		if shift+7 > maxBits && payload>>(uint(maxBits-shift)) != 0 {
			return 0, newError(d.ctx, ErrInvalidData, "var-int exceeds %d bits", maxBits)
		}
		v |= payload << uint(shift)
		shift += 7

		if b&0x80 == 0 {
			if d.ctx.Settings.Strict && payload == 0 && shift > 7 {
				return 0, newError(d.ctx, ErrInvalidData, "non-minimal var-int")
			}
			return v, nil
		}
	}
}

// readSleb128 reads a signed LEB128 value of at most maxBits payload bits.
func (d *Decoder) readSleb128(maxBits int) (int64, error) {
	if maxBits > 64 {
		maxBits = 64
	}
	var v int64
	shift := 0
	var last byte
	for {
		if shift >= maxBits {
			return 0, newError(d.ctx, ErrInvalidData, "var-int exceeds %d bits", maxBits)
		}
		b, err := d.ReadByte()
		if err != nil {
			return 0, err
		}
		last = b

		v |= int64(b&0x7f) << uint(shift)
		shift += 7

		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && last&0x40 != 0 {
		v |= -1 << uint(shift)
	}
	return v, nil
}

// ReadUintWith decodes an unsigned value of the declared bit-width with an
// explicit numerical encoding and endianness, bypassing the context settings.
func (d *Decoder) ReadUintWith(width BitWidth, encoding NumEncoding, endianness Endianness) (uint64, error) {
	switch encoding {
	case Fixed:
		return d.readFixed(width, endianness, false)
	default:
		return d.readUleb128(width.Bits())
	}
}

// ReadIntWith decodes a signed value of the declared bit-width with an
// explicit numerical encoding and endianness, bypassing the context settings.
func (d *Decoder) ReadIntWith(width BitWidth, encoding NumEncoding, endianness Endianness) (int64, error) {
	switch encoding {
	case Fixed:
		v, err := d.readFixed(width, endianness, true)
		if err != nil {
			return 0, err
		}
		// Sign-extend the declared width to 64 bits.
		if bits := width.Bits(); bits < 64 {
			shift := uint(64 - bits)
			return int64(v<<shift) >> shift, nil
		}
		return int64(v), nil
	case Leb128:
		v, err := d.readSleb128(width.Bits())
		if err != nil {
			return 0, err
		}
		if !intFits(v, width) {
			return 0, newError(d.ctx, ErrInvalidData, "value %d does not fit %s", v, width)
		}
		return v, nil
	case ProtobufWasteful:
		v, err := d.readUleb128(width.Bits())
		if err != nil {
			return 0, err
		}
		// The wire carries the two's complement bits of the declared width;
		// recover the sign from them.
		if bits := width.Bits(); bits < 64 {
			shift := uint(64 - bits)
			return int64(v<<shift) >> shift, nil
		}
		return int64(v), nil
	default: // ProtobufZigzag
		v, err := d.readUleb128(width.Bits())
		if err != nil {
			return 0, err
		}
		return int64(v>>1) ^ -int64(v&1), nil
	}
}

// ReadUint8 decodes a value per the active numerical representation.
func (d *Decoder) ReadUint8() (uint8, error) {
	v, err := d.ReadUintWith(Bit8, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return uint8(v), err
}

// ReadUint16 decodes a value per the active numerical representation.
func (d *Decoder) ReadUint16() (uint16, error) {
	v, err := d.ReadUintWith(Bit16, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return uint16(v), err
}

// ReadUint32 decodes a value per the active numerical representation.
func (d *Decoder) ReadUint32() (uint32, error) {
	v, err := d.ReadUintWith(Bit32, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return uint32(v), err
}

// ReadUint64 decodes a value per the active numerical representation.
func (d *Decoder) ReadUint64() (uint64, error) {
	return d.ReadUintWith(Bit64, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
}

// ReadInt8 decodes a value per the active numerical representation.
func (d *Decoder) ReadInt8() (int8, error) {
	v, err := d.ReadIntWith(Bit8, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return int8(v), err
}

// ReadInt16 decodes a value per the active numerical representation.
func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadIntWith(Bit16, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return int16(v), err
}

// ReadInt32 decodes a value per the active numerical representation.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadIntWith(Bit32, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
	return int32(v), err
}

// ReadInt64 decodes a value per the active numerical representation.
func (d *Decoder) ReadInt64() (int64, error) {
	return d.ReadIntWith(Bit64, d.ctx.Settings.Num.Encoding, d.ctx.Settings.Num.Endianness)
}

// ReadSize decodes a length per the active size representation. A declared
// length exceeding the configured MaxSize is ErrSizeExceeded; the check runs
// before any storage for the claimed length is allocated.
//
// A pending flattened size is returned without reading.
func (d *Decoder) ReadSize() (int, error) {
	if flat, ok := d.ctx.takeFlatSize(); ok {
		return flat, nil
	}
	repr := d.ctx.Settings.Size
	v, err := d.ReadUintWith(repr.Width, repr.Encoding, repr.Endianness)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt {
		return 0, newError(d.ctx, ErrSizeExceeded, "size %d overflows int", v)
	}
	n := int(v)
	if n > repr.MaxSize {
		return 0, newError(d.ctx, ErrSizeExceeded, "size %d exceeds the configured max of %d", n, repr.MaxSize)
	}
	return n, nil
}

// ReadUvariant decodes an unsigned discriminant per the active variant
// representation, honoring a pending flattened discriminant.
func (d *Decoder) ReadUvariant() (uint64, error) {
	if flat, ok := d.ctx.takeFlatVariant(); ok {
		return flat, nil
	}
	repr := d.ctx.Settings.Variant
	return d.ReadUintWith(repr.Width, repr.Encoding, repr.Endianness)
}

// ReadIvariant decodes a signed discriminant per the active variant
// representation.
func (d *Decoder) ReadIvariant() (int64, error) {
	if flat, ok := d.ctx.takeFlatVariant(); ok {
		return int64(flat), nil
	}
	repr := d.ctx.Settings.Variant
	return d.ReadIntWith(repr.Width, repr.Encoding, repr.Endianness)
}

// ReadBool decodes a boolean. In strict mode any byte other than 0 or 1 is
// ErrInvalidData; otherwise any nonzero byte is true.
func (d *Decoder) ReadBool() (bool, error) {
	if flat, ok := d.ctx.takeFlatBool(); ok {
		return flat, nil
	}
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		if d.ctx.Settings.Strict {
			return false, newError(d.ctx, ErrInvalidData, "invalid bool value %d", b)
		}
		return true, nil
	}
}

// ReadFloat32 decodes the IEEE 754 bits of a float32. See
// Encoder.WriteFloat32.
func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUintWith(Bit32, Fixed, d.ctx.Settings.Num.Endianness)
	return math.Float32frombits(uint32(v)), err
}

// ReadFloat64 decodes the IEEE 754 bits of a float64.
func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUintWith(Bit64, Fixed, d.ctx.Settings.Num.Endianness)
	return math.Float64frombits(v), err
}
