package ende_test

import (
	"testing"

	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohdloss/ende"
	"github.com/bohdloss/ende/endio"
)

func writeString(e *ende.Encoder, s string) error { return e.WriteString(s) }
func readString(d *ende.Decoder) (string, error)  { return d.ReadString() }

func TestSliceRoundTrip(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	want := []string{"red", "green", "blue"}

	data := encode(t, settings, func(e *ende.Encoder) error {
		return ende.EncodeSlice(e, want, writeString)
	})
	got, err := ende.DecodeSlice(decoder(data, settings), readString)
	require.NoError(t, err)
	td.Cmp(t, got, want)
}

func TestSliceDeclaredLengthPastLimit(t *testing.T) {
	// The stream declares a billion elements; the reader must fail on the
	// declared length, not attempt the allocation.
	data := encode(t, ende.DefaultSettings(), func(e *ende.Encoder) error {
		return e.WriteSize(1_000_000_000)
	})

	settings := ende.DefaultSettings().WithMaxSize(1 << 16)
	_, err := ende.DecodeSlice(decoder(data, settings), readString)
	assert.ErrorIs(t, err, ende.ErrSizeExceeded)
}

func TestSliceTruncatedMidElement(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	data := encode(t, settings, func(e *ende.Encoder) error {
		return ende.EncodeSlice(e, []uint8{1, 2, 3}, func(e *ende.Encoder, v uint8) error {
			return e.WriteUint8(v)
		})
	})

	// Truncate inside the second element.
	truncated := data[:2]
	_, err := ende.DecodeSlice(decoder(truncated, settings), func(d *ende.Decoder) (uint8, error) {
		return d.ReadUint8()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, endio.ErrUnexpectedEnd)
}

func TestMapRoundTrip(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	want := map[string]uint32{"a": 1, "b": 2, "c": 3}

	data := encode(t, settings, func(e *ende.Encoder) error {
		return ende.EncodeMap(e, want, writeString, func(e *ende.Encoder, v uint32) error {
			return e.WriteUint32(v)
		})
	})
	got, err := ende.DecodeMap(decoder(data, settings), readString, func(d *ende.Decoder) (uint32, error) {
		return d.ReadUint32()
	})
	require.NoError(t, err)
	td.Cmp(t, got, want)
}

func TestOptionRoundTrip(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	value := "present"

	data := encode(t, settings, func(e *ende.Encoder) error {
		return ende.EncodeOption(e, &value, writeString)
	})
	assert.Equal(t, byte(1), data[0])
	got, err := ende.DecodeOption(decoder(data, settings), readString)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, value, *got)

	data = encode(t, settings, func(e *ende.Encoder) error {
		return ende.EncodeOption[string](e, nil, writeString)
	})
	assert.Equal(t, []byte{0}, data)
	got, err = ende.DecodeOption(decoder(data, settings), readString)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOptionFlattenedPresence(t *testing.T) {
	// The surrounding format already knows the value is present, so no
	// presence byte hits the wire.
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	ctx := ende.NewContext(settings)
	value := "x"

	var buff endio.Buffer
	e := ende.NewEncoder(&buff, ctx)
	ctx.FlattenBool(true)
	require.NoError(t, ende.EncodeOption(e, &value, writeString))
	assert.Equal(t, []byte{1, 'x'}, buff.Bytes())

	dctx := ende.NewContext(settings)
	d := ende.NewDecoder(&buff, dctx)
	dctx.FlattenBool(true)
	got, err := ende.DecodeOption(d, readString)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", *got)
}

func TestIntSliceFastPaths(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8).WithNumEncoding(ende.Leb128)

	wantU := []uint16{0, 1, 500, 65535}
	data := encode(t, settings, func(e *ende.Encoder) error { return ende.EncodeUints(e, wantU) })
	gotU, err := ende.DecodeUints[uint16](decoder(data, settings))
	require.NoError(t, err)
	td.Cmp(t, gotU, wantU)

	wantI := []int32{-70000, -1, 0, 1, 70000}
	data = encode(t, settings, func(e *ende.Encoder) error { return ende.EncodeInts(e, wantI) })
	gotI, err := ende.DecodeInts[int32](decoder(data, settings))
	require.NoError(t, err)
	td.Cmp(t, gotI, wantI)
}

func TestNestedCollectionsHitDepthGuard(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	ctx := ende.NewContext(settings)
	ctx.MaxDepth = 3

	e := ende.NewEncoder(discard(), ctx)
	err := ende.EncodeSlice(e, [][][][]uint8{{{{1}}}}, func(e *ende.Encoder, v [][][]uint8) error {
		return ende.EncodeSlice(e, v, func(e *ende.Encoder, v [][]uint8) error {
			return ende.EncodeSlice(e, v, func(e *ende.Encoder, v []uint8) error {
				return ende.EncodeSlice(e, v, func(e *ende.Encoder, v uint8) error {
					return e.WriteUint8(v)
				})
			})
		})
	})
	assert.ErrorIs(t, err, ende.ErrDepthExceeded)
}
