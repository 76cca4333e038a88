package ende

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Endianness is the order in which a numerical value's bytes are written.
type Endianness uint8

const (
	// LittleEndian writes the least significant byte first.
	LittleEndian Endianness = iota
	// BigEndian writes the most significant byte first.
	BigEndian
)

// NativeEndianness returns the endianness of the host system.
func NativeEndianness() Endianness {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 1 {
		return LittleEndian
	}
	return BigEndian
}

func (e Endianness) String() string {
	switch e {
	case LittleEndian:
		return "little_endian"
	case BigEndian:
		return "big_endian"
	default:
		return fmt.Sprintf("Endianness(%d)", uint8(e))
	}
}

// NumEncoding controls the encoding of a numerical value; whether numbers are
// compressed through a var-int format or written at their full width.
type NumEncoding uint8

const (
	// Fixed writes the value's bytes as-is according to the Endianness.
	Fixed NumEncoding = iota
	// Leb128 writes the value in LEB128 var-int format: each byte carries 7
	// payload bits plus a continuation flag, least significant group first.
	// Signed values use the signed LEB128 variant. The byte order is defined
	// by the format itself; the Endianness is ignored.
	Leb128
	// ProtobufWasteful writes unsigned values like Leb128, and signed values
	// as a reinterpret-cast of the bits to unsigned, possibly spending the
	// whole var-int length on leading ones. Provided for compatibility with
	// existing formats; not recommended for negative-heavy data.
	ProtobufWasteful
	// ProtobufZigzag writes unsigned values like Leb128, and signed values
	// zigzag-transformed so the least significant bit carries the sign.
	ProtobufZigzag
)

func (n NumEncoding) String() string {
	switch n {
	case Fixed:
		return "fixed"
	case Leb128:
		return "leb128"
	case ProtobufWasteful:
		return "protobuf_wasteful"
	case ProtobufZigzag:
		return "protobuf_zigzag"
	default:
		return fmt.Sprintf("NumEncoding(%d)", uint8(n))
	}
}

// BitWidth is the number of bits a size or discriminant occupies in the
// binary format when the encoding is Fixed. Values wider than the declared
// width fail to encode rather than being silently trimmed.
type BitWidth uint8

const (
	Bit8 BitWidth = iota
	Bit16
	Bit32
	Bit64
	// Bit128 is carried in 16 bytes on the wire. In-memory values are still
	// uint64/int64; the upper half is zero/sign extension on encode, and
	// decoding a value that doesn't fit 64 bits is an error.
	Bit128
)

// Bits returns the number of bits represented by this bit-width.
func (w BitWidth) Bits() int { return 8 << uint(w) }

// Bytes returns the number of bytes represented by this bit-width.
func (w BitWidth) Bytes() int { return 1 << uint(w) }

// NativeWidth returns the bit-width of the host's int type.
func NativeWidth() BitWidth {
	if math.MaxInt == math.MaxInt64 {
		return Bit64
	}
	return Bit32
}

func (w BitWidth) String() string {
	switch w {
	case Bit8, Bit16, Bit32, Bit64, Bit128:
		return fmt.Sprintf("bit%d", w.Bits())
	default:
		return fmt.Sprintf("BitWidth(%d)", uint8(w))
	}
}

// StrEncoding is the character encoding used for strings and runes.
type StrEncoding uint8

const (
	// UTF8 writes the string bytes as-is.
	UTF8 StrEncoding = iota
	// UTF16 writes 2-byte code units, surrogate pairs for supplementary
	// planes, ordered per the string Endianness.
	UTF16
	// UTF32 writes one 4-byte code unit per rune, ordered per the string
	// Endianness.
	UTF32
)

// UnitBytes returns the size in bytes of one code unit of this encoding.
func (s StrEncoding) UnitBytes() int {
	switch s {
	case UTF16:
		return 2
	case UTF32:
		return 4
	default:
		return 1
	}
}

func (s StrEncoding) String() string {
	switch s {
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case UTF32:
		return "utf32"
	default:
		return fmt.Sprintf("StrEncoding(%d)", uint8(s))
	}
}

// Termination is how the end of a string is represented.
type Termination uint8

const (
	// LengthPrefixed writes the encoded byte length before the string data,
	// using the active size representation.
	LengthPrefixed Termination = iota
	// NullTerminated writes a zero code unit after the string data. Strings
	// containing the terminator fail to encode; the output would otherwise
	// be silently truncatable.
	NullTerminated
)

func (t Termination) String() string {
	switch t {
	case LengthPrefixed:
		return "length_prefixed"
	case NullTerminated:
		return "null_terminated"
	default:
		return fmt.Sprintf("Termination(%d)", uint8(t))
	}
}

// NumRepr controls the binary representation of numbers (distinct from sizes
// and discriminants).
type NumRepr struct {
	Endianness Endianness
	Encoding   NumEncoding
}

// SizeRepr controls the binary representation of sizes: lengths of strings,
// slices and maps. MaxSize is the greatest length that may be encoded or
// decoded before an error is returned; it is the caller's guard against
// adversarial inputs that declare huge lengths to force allocation.
type SizeRepr struct {
	Endianness Endianness
	Encoding   NumEncoding
	Width      BitWidth
	MaxSize    int
}

// VariantRepr controls the binary representation of discriminants.
type VariantRepr struct {
	Endianness Endianness
	Encoding   NumEncoding
	Width      BitWidth
}

// StringRepr controls the binary representation of strings and runes.
type StringRepr struct {
	Encoding    StrEncoding
	Termination Termination
	Endianness  Endianness
}

// Settings is the full bundle of format choices active during an encode or
// decode. It is a pure value: copied cheaply, never shared mutably, and every
// combination of its fields is valid.
//
// Strict controls content validation. When set, invalid UTF-8/16/32 data,
// booleans other than 0 or 1, and var-ints wider than the target type are
// errors. When clear, invalid text decodes to U+FFFD and sloppy booleans are
// accepted as true.
type Settings struct {
	Num     NumRepr
	Size    SizeRepr
	Variant VariantRepr
	String  StringRepr
	Strict  bool
}

// DefaultSettings returns the default format: little endian fixed-width
// numbers, 64-bit sizes capped at MaxInt, 32-bit discriminants, UTF-8
// length-prefixed strings, strict validation.
func DefaultSettings() Settings {
	return Settings{
		Num: NumRepr{Endianness: LittleEndian, Encoding: Fixed},
		Size: SizeRepr{
			Endianness: LittleEndian,
			Encoding:   Fixed,
			Width:      Bit64,
			MaxSize:    math.MaxInt,
		},
		Variant: VariantRepr{Endianness: LittleEndian, Encoding: Fixed, Width: Bit32},
		String:  StringRepr{Encoding: UTF8, Termination: LengthPrefixed, Endianness: LittleEndian},
		Strict:  true,
	}
}

// WithEndianness returns a copy of s with every representation's byte order
// replaced.
func (s Settings) WithEndianness(e Endianness) Settings {
	s.Num.Endianness = e
	s.Size.Endianness = e
	s.Variant.Endianness = e
	s.String.Endianness = e
	return s
}

// WithNumEncoding returns a copy of s with the numerical encoding of numbers,
// sizes and discriminants replaced.
func (s Settings) WithNumEncoding(n NumEncoding) Settings {
	s.Num.Encoding = n
	s.Size.Encoding = n
	s.Variant.Encoding = n
	return s
}

// WithSizeWidth returns a copy of s with the size bit-width replaced.
func (s Settings) WithSizeWidth(w BitWidth) Settings {
	s.Size.Width = w
	return s
}

// WithMaxSize returns a copy of s with the size ceiling replaced.
func (s Settings) WithMaxSize(max int) Settings {
	s.Size.MaxSize = max
	return s
}

// WithVariantWidth returns a copy of s with the discriminant bit-width
// replaced.
func (s Settings) WithVariantWidth(w BitWidth) Settings {
	s.Variant.Width = w
	return s
}

// WithStringEncoding returns a copy of s with the string character encoding
// replaced.
func (s Settings) WithStringEncoding(e StrEncoding) Settings {
	s.String.Encoding = e
	return s
}

// WithTermination returns a copy of s with the string termination replaced.
func (s Settings) WithTermination(t Termination) Settings {
	s.String.Termination = t
	return s
}

// WithStrict returns a copy of s with strict validation set accordingly.
func (s Settings) WithStrict(strict bool) Settings {
	s.Strict = strict
	return s
}
