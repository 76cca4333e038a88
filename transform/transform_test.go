package transform_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bohdloss/ende/transform"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, transform.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

// payloads worth exercising: empty, tiny, text, incompressible noise, and
// something larger than one chunk.
func testPayloads(t *testing.T) map[string][]byte {
	t.Helper()
	noise := make([]byte, 1000)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 5000)
	return map[string][]byte{
		"empty": nil,
		"tiny":  []byte("x"),
		"text":  []byte("hello, transformed world"),
		"noise": noise,
		"big":   big,
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	codecs := []transform.Compression{
		transform.None, transform.Deflate, transform.Zlib,
		transform.Gzip, transform.Zstd, transform.Lz4,
	}
	for _, codec := range codecs {
		for name, payload := range testPayloads(t) {
			var wire bytes.Buffer
			c := transform.NewCompressor(&wire, codec)
			_, err := c.Write(payload)
			require.NoError(t, err, "%v %s", codec, name)
			require.NoError(t, c.Finish())

			got, err := io.ReadAll(transform.NewDecompressor(&wire, codec))
			require.NoError(t, err, "%v %s", codec, name)
			assert.Equal(t, payload, got, "%v %s", codec, name)
		}
	}
}

func TestCompressionShrinksRedundantData(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 10000)
	var wire bytes.Buffer
	c := transform.NewCompressor(&wire, transform.Zstd)
	c.Write(payload)
	require.NoError(t, c.Finish())
	assert.Less(t, wire.Len(), len(payload)/4)
}

// TestLayerBoundary is the point of the frame discipline: bytes written after
// the transformed region must still be there, untouched, once the reading
// layer reports EOF.
func TestLayerBoundary(t *testing.T) {
	var wire bytes.Buffer
	c := transform.NewCompressor(&wire, transform.Zlib)
	c.Write([]byte("inside the region"))
	require.NoError(t, c.Finish())
	wire.Write([]byte("AFTER"))

	d := transform.NewDecompressor(&wire, transform.Zlib)
	inside, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "inside the region", string(inside))

	after, err := io.ReadAll(&wire)
	require.NoError(t, err)
	assert.Equal(t, "AFTER", string(after))
}

func TestUseAfterFinish(t *testing.T) {
	var wire bytes.Buffer
	c := transform.NewCompressor(&wire, transform.None)
	require.NoError(t, c.Finish())

	_, err := c.Write([]byte("too late"))
	assert.ErrorIs(t, err, transform.ErrUseAfterFinish)
	assert.ErrorIs(t, c.Finish(), transform.ErrUseAfterFinish)
}

func TestParseCompression(t *testing.T) {
	for _, codec := range []transform.Compression{
		transform.None, transform.Deflate, transform.Zlib,
		transform.Gzip, transform.Zstd, transform.Lz4,
	} {
		parsed, err := transform.ParseCompression(codec.String())
		require.NoError(t, err)
		assert.Equal(t, codec, parsed)
	}

	_, err := transform.ParseCompression("snappy")
	assert.ErrorIs(t, err, transform.ErrUnknownCompression)
}

func TestCorruptCompressedChunk(t *testing.T) {
	var wire bytes.Buffer
	c := transform.NewCompressor(&wire, transform.Zlib)
	c.Write([]byte("some compressible data some compressible data"))
	require.NoError(t, c.Finish())

	// Flip a byte in the middle of the chunk payload.
	raw := wire.Bytes()
	raw[len(raw)/2] ^= 0xff

	_, err := io.ReadAll(transform.NewDecompressor(bytes.NewReader(raw), transform.Zlib))
	assert.ErrorIs(t, err, transform.ErrCorruptStream)
}

func TestEncryptionRoundTrip(t *testing.T) {
	key := testKey(t)
	for name, payload := range testPayloads(t) {
		var wire bytes.Buffer
		enc, err := transform.NewEncryptor(&wire, key)
		require.NoError(t, err)
		_, err = enc.Write(payload)
		require.NoError(t, err)
		require.NoError(t, enc.Finish())

		dec, err := transform.NewDecryptor(&wire, key)
		require.NoError(t, err)
		got, err := io.ReadAll(dec)
		require.NoError(t, err, name)
		assert.Equal(t, payload, got, name)
	}
}

func TestEncryptionHidesPlaintext(t *testing.T) {
	key := testKey(t)
	var wire bytes.Buffer
	enc, err := transform.NewEncryptor(&wire, key)
	require.NoError(t, err)
	enc.Write([]byte("very secret words"))
	require.NoError(t, enc.Finish())

	assert.NotContains(t, wire.String(), "secret")
}

func TestEncryptionWrongKey(t *testing.T) {
	var wire bytes.Buffer
	enc, err := transform.NewEncryptor(&wire, testKey(t))
	require.NoError(t, err)
	enc.Write([]byte("payload"))
	require.NoError(t, enc.Finish())

	dec, err := transform.NewDecryptor(&wire, testKey(t))
	require.NoError(t, err)
	_, err = io.ReadAll(dec)
	assert.ErrorIs(t, err, transform.ErrAuthenticationFailed)
}

func TestEncryptionTamperDetected(t *testing.T) {
	key := testKey(t)
	var wire bytes.Buffer
	enc, err := transform.NewEncryptor(&wire, key)
	require.NoError(t, err)
	enc.Write([]byte("an authenticated message"))
	require.NoError(t, enc.Finish())

	raw := wire.Bytes()
	raw[len(raw)/2] ^= 0x01

	dec, err := transform.NewDecryptor(bytes.NewReader(raw), key)
	require.NoError(t, err)
	_, err = io.ReadAll(dec)
	assert.ErrorIs(t, err, transform.ErrAuthenticationFailed)
}

func TestEncryptionTruncationDetected(t *testing.T) {
	key := testKey(t)
	var wire bytes.Buffer
	enc, err := transform.NewEncryptor(&wire, key)
	require.NoError(t, err)
	enc.Write(bytes.Repeat([]byte("chunky"), 50000))
	require.NoError(t, enc.Finish())

	// Drop everything after the first chunk's frame, then terminate cleanly.
	// The final-flag chunk never arrives, which must not pass as a valid
	// empty tail.
	raw := wire.Bytes()
	cut := raw[:16+3+1+64*1024+16] // prefix, frame header, flag, chunk, tag
	cut = append(cut, 0)           // terminator

	dec, err := transform.NewDecryptor(bytes.NewReader(cut), key)
	require.NoError(t, err)
	_, err = io.ReadAll(dec)
	assert.ErrorIs(t, err, transform.ErrCorruptStream)
}

func TestChecksumRoundTrip(t *testing.T) {
	for name, payload := range testPayloads(t) {
		var wire bytes.Buffer
		w := transform.NewChecksumWriter(&wire)
		_, err := w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Finish())

		got, err := io.ReadAll(transform.NewChecksumReader(&wire))
		require.NoError(t, err, name)
		assert.Equal(t, payload, got, name)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	var wire bytes.Buffer
	w := transform.NewChecksumWriter(&wire)
	w.Write([]byte("bytes worth protecting"))
	require.NoError(t, w.Finish())

	raw := wire.Bytes()
	raw[5] ^= 0x01

	_, err := io.ReadAll(transform.NewChecksumReader(bytes.NewReader(raw)))
	assert.ErrorIs(t, err, transform.ErrChecksumMismatch)
}

func TestKeyedChecksum(t *testing.T) {
	key := testKey(t)
	var wire bytes.Buffer
	w, err := transform.NewKeyedChecksumWriter(&wire, key)
	require.NoError(t, err)
	w.Write([]byte("keyed"))
	require.NoError(t, w.Finish())

	wireCopy := bytes.NewReader(wire.Bytes())
	r, err := transform.NewKeyedChecksumReader(wireCopy, key)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "keyed", string(got))

	// A different key must not verify.
	r, err = transform.NewKeyedChecksumReader(bytes.NewReader(wire.Bytes()), testKey(t))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, transform.ErrChecksumMismatch)
}

// TestStackedLayers runs compression inside encryption, the common
// deployment: compress first, then encrypt, since ciphertext does not
// compress.
func TestStackedLayers(t *testing.T) {
	key := testKey(t)
	payload := bytes.Repeat([]byte("stack me up and down "), 10000)

	var wire bytes.Buffer
	enc, err := transform.NewEncryptor(&wire, key)
	require.NoError(t, err)
	comp := transform.NewCompressor(enc, transform.Zstd)
	_, err = comp.Write(payload)
	require.NoError(t, err)
	require.NoError(t, comp.Finish())
	require.NoError(t, enc.Finish())

	assert.Less(t, wire.Len(), len(payload)/4, "compression must happen before encryption")

	dec, err := transform.NewDecryptor(&wire, key)
	require.NoError(t, err)
	got, err := io.ReadAll(transform.NewDecompressor(dec, transform.Zstd))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
