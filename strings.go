package ende

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/bohdloss/ende/endio"
)

// String and rune support for the three character encodings and the two
// termination styles. The length prefix of a length-prefixed string counts
// encoded bytes, not runes, so the decoder can read the payload in one
// transfer without inspecting it first.

func utf16Codec(e Endianness) encoding.Encoding {
	if e == BigEndian {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

func utf32Codec(e Endianness) encoding.Encoding {
	if e == BigEndian {
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	}
	return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
}

// encodeUnits transcodes s to the configured character encoding.
func encodeUnits(s string, repr StringRepr) ([]byte, error) {
	switch repr.Encoding {
	case UTF16:
		return utf16Codec(repr.Endianness).NewEncoder().Bytes([]byte(s))
	case UTF32:
		return utf32Codec(repr.Endianness).NewEncoder().Bytes([]byte(s))
	default:
		return []byte(s), nil
	}
}

// decodeUnits transcodes raw encoded bytes back to a Go string.
func decodeUnits(raw []byte, repr StringRepr) (string, error) {
	switch repr.Encoding {
	case UTF16:
		out, err := utf16Codec(repr.Endianness).NewDecoder().Bytes(raw)
		return string(out), err
	case UTF32:
		out, err := utf32Codec(repr.Endianness).NewDecoder().Bytes(raw)
		return string(out), err
	default:
		return string(raw), nil
	}
}

// lossyUTF8 replaces every invalid byte sequence in raw with U+FFFD, one
// replacement per maximal invalid sequence.
func lossyUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var sb strings.Builder
	sb.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		sb.WriteRune(r)
		raw = raw[size:]
	}
	return sb.String()
}

func isHighSurrogate(u uint16) bool { return u >= 0xd800 && u < 0xdc00 }
func isLowSurrogate(u uint16) bool  { return u >= 0xdc00 && u < 0xe000 }

// validUTF16 reports whether raw is a well-formed sequence of UTF-16 code
// units in the given byte order.
func validUTF16(raw []byte, e Endianness) bool {
	if len(raw)%2 != 0 {
		return false
	}
	for i := 0; i < len(raw); i += 2 {
		u := unitAt(raw, i, 2, e)
		if isLowSurrogate(uint16(u)) {
			return false
		}
		if isHighSurrogate(uint16(u)) {
			if i+4 > len(raw) || !isLowSurrogate(uint16(unitAt(raw, i+2, 2, e))) {
				return false
			}
			i += 2
		}
	}
	return true
}

// validUTF32 reports whether raw is a well-formed sequence of UTF-32 code
// units in the given byte order.
func validUTF32(raw []byte, e Endianness) bool {
	if len(raw)%4 != 0 {
		return false
	}
	for i := 0; i < len(raw); i += 4 {
		if !utf8.ValidRune(rune(unitAt(raw, i, 4, e))) {
			return false
		}
	}
	return true
}

// unitAt reads one size-byte code unit of raw at offset i.
func unitAt(raw []byte, i, size int, e Endianness) uint32 {
	var u uint32
	if e == BigEndian {
		for k := 0; k < size; k++ {
			u = u<<8 | uint32(raw[i+k])
		}
		return u
	}
	for k := size - 1; k >= 0; k-- {
		u = u<<8 | uint32(raw[i+k])
	}
	return u
}

// hasZeroUnit reports whether raw contains an all-zero code unit of the given
// size. Only U+0000 encodes to a zero unit in any of the supported encodings.
func hasZeroUnit(raw []byte, size int) bool {
	for i := 0; i+size <= len(raw); i += size {
		zero := true
		for k := 0; k < size; k++ {
			if raw[i+k] != 0 {
				zero = false
				break
			}
		}
		if zero {
			return true
		}
	}
	return false
}

// WriteString encodes s per the active string representation. In strict mode
// s must be valid UTF-8; otherwise invalid bytes are replaced with U+FFFD
// before transcoding. A null-terminated string containing U+0000 is
// ErrInvalidData, since the output could not be read back in full.
func (e *Encoder) WriteString(s string) error {
	repr := e.ctx.Settings.String
	if !utf8.ValidString(s) {
		if e.ctx.Settings.Strict {
			return newError(e.ctx, ErrInvalidData, "string is not valid utf8")
		}
		s = lossyUTF8([]byte(s))
	}

	enc, err := encodeUnits(s, repr)
	if err != nil {
		return newError(e.ctx, ErrInvalidData, "transcoding to %s: %v", repr.Encoding, err)
	}

	switch repr.Termination {
	case NullTerminated:
		unit := repr.Encoding.UnitBytes()
		if hasZeroUnit(enc, unit) {
			return newError(e.ctx, ErrInvalidData, "null terminator embedded in string")
		}
		if err := e.WriteBytes(enc); err != nil {
			return err
		}
		var zero [4]byte
		return e.WriteBytes(zero[:unit])
	default:
		if err := e.WriteSize(len(enc)); err != nil {
			return err
		}
		return e.WriteBytes(enc)
	}
}

// ReadString decodes a string per the active string representation. In strict
// mode malformed code unit sequences are ErrInvalidData; otherwise they
// decode to U+FFFD.
func (d *Decoder) ReadString() (string, error) {
	repr := d.ctx.Settings.String
	unit := repr.Encoding.UnitBytes()

	var raw []byte
	switch repr.Termination {
	case NullTerminated:
		var buff endio.Buffer
		max := d.ctx.Settings.Size.MaxSize
		for {
			if buff.Len() > max {
				return "", newError(d.ctx, ErrSizeExceeded, "string exceeds the configured max of %d bytes", max)
			}
			off := buff.Len()
			if err := d.ReadBytes(buff.Extend(unit)); err != nil {
				return "", err
			}
			b := buff.Bytes()
			zero := true
			for k := 0; k < unit; k++ {
				if b[off+k] != 0 {
					zero = false
					break
				}
			}
			if zero {
				raw = b[:off]
				break
			}
		}
	default:
		n, err := d.ReadSize()
		if err != nil {
			return "", err
		}
		if n%unit != 0 {
			return "", newError(d.ctx, ErrInvalidData, "string length %d is not a multiple of the %d-byte code unit", n, unit)
		}
		raw = make([]byte, n)
		if err := d.ReadBytes(raw); err != nil {
			return "", err
		}
	}

	if d.ctx.Settings.Strict {
		switch repr.Encoding {
		case UTF8:
			if !utf8.Valid(raw) {
				return "", newError(d.ctx, ErrInvalidData, "string is not valid utf8")
			}
		case UTF16:
			if !validUTF16(raw, repr.Endianness) {
				return "", newError(d.ctx, ErrInvalidData, "string is not valid utf16")
			}
		case UTF32:
			if !validUTF32(raw, repr.Endianness) {
				return "", newError(d.ctx, ErrInvalidData, "string is not valid utf32")
			}
		}
	}

	if repr.Encoding == UTF8 && !d.ctx.Settings.Strict {
		return lossyUTF8(raw), nil
	}
	s, err := decodeUnits(raw, repr)
	if err != nil {
		return "", newError(d.ctx, ErrInvalidData, "transcoding from %s: %v", repr.Encoding, err)
	}
	return s, nil
}

// WriteRune encodes a single rune per the active character encoding, with no
// length prefix or terminator.
func (e *Encoder) WriteRune(r rune) error {
	if !utf8.ValidRune(r) {
		if e.ctx.Settings.Strict {
			return newError(e.ctx, ErrInvalidData, "invalid rune %#x", r)
		}
		r = utf8.RuneError
	}
	repr := e.ctx.Settings.String
	switch repr.Encoding {
	case UTF16:
		if r >= 0x10000 {
			r1, r2 := utf16.EncodeRune(r)
			if err := e.writeUnit(uint32(r1), 2, repr.Endianness); err != nil {
				return err
			}
			return e.writeUnit(uint32(r2), 2, repr.Endianness)
		}
		return e.writeUnit(uint32(r), 2, repr.Endianness)
	case UTF32:
		return e.writeUnit(uint32(r), 4, repr.Endianness)
	default:
		return e.WriteBytes(utf8.AppendRune(e.scratch[:0], r))
	}
}

// ReadRune decodes a single rune per the active character encoding.
func (d *Decoder) ReadRune() (rune, error) {
	repr := d.ctx.Settings.String
	switch repr.Encoding {
	case UTF16:
		u1, err := d.readUnit(2, repr.Endianness)
		if err != nil {
			return 0, err
		}
		if isHighSurrogate(uint16(u1)) {
			u2, err := d.readUnit(2, repr.Endianness)
			if err != nil {
				return 0, err
			}
			if !isLowSurrogate(uint16(u2)) {
				return d.badRune("unpaired high surrogate %#x", u1)
			}
			return utf16.DecodeRune(rune(u1), rune(u2)), nil
		}
		if isLowSurrogate(uint16(u1)) {
			return d.badRune("unpaired low surrogate %#x", u1)
		}
		return rune(u1), nil
	case UTF32:
		u, err := d.readUnit(4, repr.Endianness)
		if err != nil {
			return 0, err
		}
		if !utf8.ValidRune(rune(u)) {
			return d.badRune("invalid rune %#x", u)
		}
		return rune(u), nil
	default:
		return d.readRuneUTF8()
	}
}

func (d *Decoder) readRuneUTF8() (rune, error) {
	b0, err := d.ReadByte()
	if err != nil {
		return 0, err
	}
	var n int
	switch {
	case b0 < 0x80:
		return rune(b0), nil
	case b0&0xe0 == 0xc0:
		n = 2
	case b0&0xf0 == 0xe0:
		n = 3
	case b0&0xf8 == 0xf0:
		n = 4
	default:
		return d.badRune("invalid utf8 leading byte %#x", b0)
	}
	buff := d.scratch[:n]
	buff[0] = b0
	if err := d.ReadBytes(buff[1:]); err != nil {
		return 0, err
	}
	r, size := utf8.DecodeRune(buff)
	if r == utf8.RuneError && size <= 1 {
		return d.badRune("invalid utf8 sequence")
	}
	return r, nil
}

// badRune is ErrInvalidData in strict mode, U+FFFD otherwise.
func (d *Decoder) badRune(format string, args ...any) (rune, error) {
	if d.ctx.Settings.Strict {
		return 0, newError(d.ctx, ErrInvalidData, format, args...)
	}
	return utf8.RuneError, nil
}

// writeUnit writes one size-byte code unit in the given byte order.
func (e *Encoder) writeUnit(u uint32, size int, endianness Endianness) error {
	buff := e.scratch[:size]
	if endianness == BigEndian {
		for i := 0; i < size; i++ {
			buff[size-1-i] = byte(u >> (8 * i))
		}
	} else {
		for i := 0; i < size; i++ {
			buff[i] = byte(u >> (8 * i))
		}
	}
	return endio.Write(buff, e.w)
}

// readUnit reads one size-byte code unit in the given byte order.
func (d *Decoder) readUnit(size int, endianness Endianness) (uint32, error) {
	buff := d.scratch[:size]
	if err := endio.Read(buff, d.r); err != nil {
		return 0, err
	}
	return unitAt(buff, 0, size, endianness), nil
}
