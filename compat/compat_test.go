package compat_test

import (
	"testing"
	"time"

	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohdloss/ende"
	"github.com/bohdloss/ende/compat"
	"github.com/bohdloss/ende/endio"
)

type point struct {
	X, Y int32
}

func (p *point) Encode(e *ende.Encoder) error {
	if err := e.WriteInt32(p.X); err != nil {
		return err
	}
	return e.WriteInt32(p.Y)
}

func (p *point) Decode(d *ende.Decoder) error {
	var err error
	if p.X, err = d.ReadInt32(); err != nil {
		return err
	}
	p.Y, err = d.ReadInt32()
	return err
}

func TestBinaryAdapter(t *testing.T) {
	src := compat.Binary{Value: &point{X: 1, Y: -2}}
	data, err := src.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 8)

	dst := compat.Binary{Value: &point{}}
	require.NoError(t, dst.UnmarshalBinary(data))
	assert.Equal(t, &point{X: 1, Y: -2}, dst.Value)
}

func TestBinaryAdapterHonorsContext(t *testing.T) {
	ctx := ende.NewContext(ende.DefaultSettings().WithEndianness(ende.BigEndian))
	src := compat.Binary{Value: &point{X: 1}, Ctx: ctx}
	data, err := src.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0, 0}, data)
}

// time.Time implements the standard binary marshaler interfaces, making it a
// handy real-world subject.
func TestMarshalerBridge(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit8)
	stamp := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

	var buff endio.Buffer
	e := ende.NewEncoder(&buff, ende.NewContext(settings))
	require.NoError(t, compat.EncodeMarshaler(e, stamp))
	require.NoError(t, e.WriteUint8(0xee))

	d := ende.NewDecoder(&buff, ende.NewContext(settings))
	var got time.Time
	require.NoError(t, compat.DecodeUnmarshaler(d, &got))
	assert.True(t, stamp.Equal(got))

	// The opaque region is exactly delimited; the stream continues cleanly.
	tail, err := d.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xee), tail)
}

func TestHostileRegionLength(t *testing.T) {
	// Eight bytes declaring a region of math.MaxInt bytes. The decode must
	// fail on the missing payload, not commit that much memory up front.
	var buff endio.Buffer
	buff.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f})

	var got time.Time
	err := compat.DecodeUnmarshaler(ende.NewDecoder(&buff, nil), &got)
	assert.ErrorIs(t, err, endio.ErrUnexpectedEnd)
}

func TestCBORBridge(t *testing.T) {
	settings := ende.DefaultSettings().WithSizeWidth(ende.Bit16)
	type meta struct {
		Name  string         `cbor:"name"`
		Attrs map[string]int `cbor:"attrs"`
	}
	want := meta{Name: "doc", Attrs: map[string]int{"a": 1, "b": 2}}

	var buff endio.Buffer
	e := ende.NewEncoder(&buff, ende.NewContext(settings))
	require.NoError(t, compat.EncodeCBOR(e, want))
	require.NoError(t, e.WriteUint8(7))

	d := ende.NewDecoder(&buff, ende.NewContext(settings))
	var got meta
	require.NoError(t, compat.DecodeCBOR(d, &got))
	td.Cmp(t, got, want)

	tail, err := d.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), tail)
}

func TestCBORDeterministic(t *testing.T) {
	value := map[string]int{"z": 1, "a": 2, "m": 3}
	first := encodeCBOR(t, value)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, encodeCBOR(t, value))
	}
}

func encodeCBOR(t *testing.T, v any) []byte {
	t.Helper()
	var buff endio.Buffer
	e := ende.NewEncoder(&buff, nil)
	require.NoError(t, compat.EncodeCBOR(e, v))
	return append([]byte(nil), buff.Bytes()...)
}
