package ende_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohdloss/ende"
)

func TestStringLengthPrefixCountsBytes(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)

	// "héllo" is 5 runes but 6 utf8 bytes; the prefix counts bytes.
	data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString("héllo") })
	require.Equal(t, byte(6), data[0])
	assert.Len(t, data, 7)

	got, err := decoder(data, settings).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "héllo", got)
}

func TestStringUTF16(t *testing.T) {
	settings := ende.DefaultSettings().
		WithSizeWidth(ende.Bit8).
		WithStringEncoding(ende.UTF16).
		WithEndianness(ende.BigEndian)

	data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString("A") })
	assert.Equal(t, []byte{2, 0x00, 0x41}, data)

	// Supplementary plane characters cost a surrogate pair.
	pair := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString("𝄞") })
	require.Equal(t, byte(4), pair[0])

	got, err := decoder(pair, settings).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "𝄞", got)
}

func TestStringUTF32(t *testing.T) {
	settings := ende.DefaultSettings().
		WithSizeWidth(ende.Bit8).
		WithStringEncoding(ende.UTF32)

	data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString("ab") })
	require.Equal(t, byte(8), data[0])
	assert.Equal(t, []byte{8, 'a', 0, 0, 0, 'b', 0, 0, 0}, data)

	got, err := decoder(data, settings).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
}

func TestStringRoundTripMatrix(t *testing.T) {
	samples := []string{"", "plain", "héllo wörld", "日本語", "mixed 𝄞 music"}
	for _, strEnc := range []ende.StrEncoding{ende.UTF8, ende.UTF16, ende.UTF32} {
		for _, term := range []ende.Termination{ende.LengthPrefixed, ende.NullTerminated} {
			for _, order := range []ende.Endianness{ende.LittleEndian, ende.BigEndian} {
				settings := ende.DefaultSettings().
					WithStringEncoding(strEnc).
					WithTermination(term).
					WithEndianness(order)
				for _, want := range samples {
					data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString(want) })
					got, err := decoder(data, settings).ReadString()
					require.NoError(t, err, "%v %v %v %q", strEnc, term, order, want)
					assert.Equal(t, want, got)
				}
			}
		}
	}
}

func TestNullTerminated(t *testing.T) {
	settings := ende.DefaultSettings().WithTermination(ende.NullTerminated)

	data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteString("hi") })
	assert.Equal(t, []byte{'h', 'i', 0}, data)

	// The terminator of a utf16 string is a full code unit.
	utf16 := settings.WithStringEncoding(ende.UTF16)
	data = encode(t, utf16, func(e *ende.Encoder) error { return e.WriteString("hi") })
	assert.Equal(t, []byte{'h', 0, 'i', 0, 0, 0}, data)
}

func TestNullTerminatedRejectsEmbeddedNull(t *testing.T) {
	settings := ende.DefaultSettings().WithTermination(ende.NullTerminated)
	ctx := ende.NewContext(settings)

	err := ende.NewEncoder(discard(), ctx).WriteString("ab\x00c")
	assert.ErrorIs(t, err, ende.ErrInvalidData)
}

func TestNullTerminatedHonorsSizeLimit(t *testing.T) {
	settings := ende.DefaultSettings().
		WithTermination(ende.NullTerminated).
		WithMaxSize(4)

	// No terminator in sight; the reader must give up at the ceiling instead
	// of consuming the source forever.
	_, err := decoder([]byte("unterminated"), settings).ReadString()
	assert.ErrorIs(t, err, ende.ErrSizeExceeded)
}

func TestStringStrictness(t *testing.T) {
	strict := ende.DefaultSettings().WithSizeWidth(ende.Bit8)

	err := ende.NewEncoder(discard(), ende.NewContext(strict)).WriteString("bad \xff byte")
	assert.ErrorIs(t, err, ende.ErrInvalidData)

	_, err = decoder([]byte{2, 0xff, 0xfe}, strict).ReadString()
	assert.ErrorIs(t, err, ende.ErrInvalidData)

	sloppy := strict.WithStrict(false)
	got, err := decoder([]byte{2, 0xff, 0xfe}, sloppy).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "��", got)
}

func TestStringStrictUTF16Surrogates(t *testing.T) {
	settings := ende.DefaultSettings().
		WithSizeWidth(ende.Bit8).
		WithStringEncoding(ende.UTF16).
		WithEndianness(ende.BigEndian)

	// A lone high surrogate.
	_, err := decoder([]byte{2, 0xd8, 0x00}, settings).ReadString()
	assert.ErrorIs(t, err, ende.ErrInvalidData)

	// An odd byte count can never be valid utf16.
	_, err = decoder([]byte{3, 0x00, 0x41, 0x00}, settings).ReadString()
	assert.ErrorIs(t, err, ende.ErrInvalidData)
}

func TestRuneRoundTrip(t *testing.T) {
	runes := []rune{'a', 'é', '日', '𝄞'}
	for _, strEnc := range []ende.StrEncoding{ende.UTF8, ende.UTF16, ende.UTF32} {
		for _, order := range []ende.Endianness{ende.LittleEndian, ende.BigEndian} {
			settings := ende.DefaultSettings().WithStringEncoding(strEnc).WithEndianness(order)
			for _, want := range runes {
				data := encode(t, settings, func(e *ende.Encoder) error { return e.WriteRune(want) })
				got, err := decoder(data, settings).ReadRune()
				require.NoError(t, err, "%v %v %q", strEnc, order, want)
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestRuneInvalid(t *testing.T) {
	strict := ende.DefaultSettings()
	err := ende.NewEncoder(discard(), ende.NewContext(strict)).WriteRune(0xd800)
	assert.ErrorIs(t, err, ende.ErrInvalidData)

	// A utf32 unit past the last code point.
	utf32 := strict.WithStringEncoding(ende.UTF32)
	_, err = decoder([]byte{0xff, 0xff, 0xff, 0x7f}, utf32).ReadRune()
	assert.ErrorIs(t, err, ende.ErrInvalidData)

	sloppy := utf32.WithStrict(false)
	got, err := decoder([]byte{0xff, 0xff, 0xff, 0x7f}, sloppy).ReadRune()
	require.NoError(t, err)
	assert.Equal(t, '�', got)
}
