package transform

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bohdloss/ende/endio"
)

// Compression selects the algorithm used by Compressor and Decompressor.
type Compression uint8

const (
	// None frames the data without compressing it. Useful for keeping the
	// wire format of a "compressed" region while skipping the work.
	None Compression = iota
	Deflate
	Zlib
	Gzip
	Zstd
	Lz4
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Deflate:
		return "deflate"
	case Zlib:
		return "zlib"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name as produced by String back to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none":
		return None, nil
	case "deflate":
		return Deflate, nil
	case "zlib":
		return Zlib, nil
	case "gzip":
		return Gzip, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return Lz4, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Chunk bodies carry a stored/compressed flag and the raw length, so an
// incompressible chunk costs two bytes of overhead instead of growing, and
// the decompressor can allocate exactly once.
const (
	chunkStored     = 0
	chunkCompressed = 1
)

// Compressor compresses data written to it in independent chunks, framing
// each chunk for the matching Decompressor. Call Finish when done.
type Compressor struct {
	fw       frameWriter
	codec    Compression
	pending  endio.Buffer
	body     endio.Buffer
	zenc     *zstd.Encoder
	lz4c     lz4.Compressor
	finished bool
}

// NewCompressor returns a Compressor writing framed chunks to w.
func NewCompressor(w io.Writer, codec Compression) *Compressor {
	return &Compressor{fw: frameWriter{w: w}, codec: codec}
}

// Write implements io.Writer, buffering data and emitting a frame whenever a
// full chunk accumulates.
func (c *Compressor) Write(buff []byte) (int, error) {
	if c.finished {
		return 0, ErrUseAfterFinish
	}
	n, _ := c.pending.Write(buff)
	for c.pending.Len() >= DefaultChunkSize {
		chunk := c.pending.Bytes()[:DefaultChunkSize]
		if err := c.flush(chunk); err != nil {
			return 0, err
		}
		c.pending.Discard(DefaultChunkSize)
	}
	return n, nil
}

// Finish flushes any partial chunk and writes the stream terminator.
func (c *Compressor) Finish() error {
	if c.finished {
		return ErrUseAfterFinish
	}
	c.finished = true
	if c.pending.Len() > 0 {
		if err := c.flush(c.pending.Bytes()); err != nil {
			return err
		}
		c.pending.Reset()
	}
	return c.fw.terminate()
}

// flush compresses one chunk and writes it as a frame. A chunk the codec
// cannot shrink is stored uncompressed.
func (c *Compressor) flush(chunk []byte) error {
	c.body.Reset()
	var lenBuff [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuff[:], uint64(len(chunk)))

	compressed, err := c.compress(chunk)
	if err != nil {
		return err
	}

	if compressed == nil || len(compressed) >= len(chunk) {
		c.body.WriteByte(chunkStored)
		c.body.Write(lenBuff[:n])
		c.body.Write(chunk)
	} else {
		c.body.WriteByte(chunkCompressed)
		c.body.Write(lenBuff[:n])
		c.body.Write(compressed)
	}
	return c.fw.writeFrame(c.body.Bytes())
}

// compress runs the codec over chunk. A nil result means the chunk should be
// stored as-is.
func (c *Compressor) compress(chunk []byte) ([]byte, error) {
	switch c.codec {
	case None:
		return nil, nil
	case Zstd:
		if c.zenc == nil {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			c.zenc = enc
		}
		return c.zenc.EncodeAll(chunk, nil), nil
	case Lz4:
		dst := make([]byte, lz4.CompressBlockBound(len(chunk)))
		n, err := c.lz4c.CompressBlock(chunk, dst)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return dst[:n], nil
	default:
		var buff bytes.Buffer
		var zw io.WriteCloser
		var err error
		switch c.codec {
		case Zlib:
			zw, err = zlib.NewWriterLevel(&buff, zlib.DefaultCompression)
		case Gzip:
			zw, err = gzip.NewWriterLevel(&buff, gzip.DefaultCompression)
		default:
			zw, err = flate.NewWriter(&buff, flate.DefaultCompression)
		}
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(chunk); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil
	}
}

// Decompressor reads framed chunks produced by a Compressor with the same
// codec and serves the decompressed data. It returns io.EOF at the stream
// terminator, leaving the underlying reader positioned just past it.
type Decompressor struct {
	fr    frameReader
	codec Compression
	out   endio.Buffer
	zdec  *zstd.Decoder
}

// NewDecompressor returns a Decompressor reading framed chunks from r.
func NewDecompressor(r io.Reader, codec Compression) *Decompressor {
	return &Decompressor{fr: frameReader{r: r}, codec: codec}
}

// Read implements io.Reader.
func (d *Decompressor) Read(buff []byte) (int, error) {
	for d.out.Len() == 0 {
		body, err := d.fr.next()
		if err != nil {
			return 0, err
		}
		if err := d.decompress(body); err != nil {
			return 0, err
		}
	}
	n, _ := d.out.Read(buff)
	return n, nil
}

// decompress expands one chunk body into the output buffer.
func (d *Decompressor) decompress(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("%w: chunk too short", ErrCorruptStream)
	}
	flag := body[0]
	rawLen, n := binary.Uvarint(body[1:])
	if n <= 0 || rawLen > maxFrameSize {
		return fmt.Errorf("%w: bad chunk length", ErrCorruptStream)
	}
	payload := body[1+n:]

	switch flag {
	case chunkStored:
		if uint64(len(payload)) != rawLen {
			return fmt.Errorf("%w: stored chunk is %d bytes, declared %d", ErrCorruptStream, len(payload), rawLen)
		}
		_, err := d.out.Write(payload)
		return err
	case chunkCompressed:
	default:
		return fmt.Errorf("%w: unknown chunk flag %d", ErrCorruptStream, flag)
	}

	dst := d.out.Extend(int(rawLen))
	switch d.codec {
	case None:
		return fmt.Errorf("%w: compressed chunk in an uncompressed stream", ErrCorruptStream)
	case Zstd:
		if d.zdec == nil {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return err
			}
			d.zdec = dec
		}
		out, err := d.zdec.DecodeAll(payload, dst[:0])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptStream, err)
		}
		if uint64(len(out)) != rawLen {
			return fmt.Errorf("%w: chunk expands to %d bytes, declared %d", ErrCorruptStream, len(out), rawLen)
		}
		return nil
	case Lz4:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil || uint64(n) != rawLen {
			return fmt.Errorf("%w: bad lz4 chunk", ErrCorruptStream)
		}
		return nil
	default:
		var zr io.ReadCloser
		var err error
		src := bytes.NewReader(payload)
		switch d.codec {
		case Zlib:
			zr, err = zlib.NewReader(src)
		case Gzip:
			zr, err = gzip.NewReader(src)
		default:
			zr = flate.NewReader(src)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptStream, err)
		}
		defer zr.Close()
		if _, err := io.ReadFull(zr, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptStream, err)
		}
		var extra [1]byte
		if n, _ := zr.Read(extra[:]); n != 0 {
			return fmt.Errorf("%w: chunk expands past its declared %d bytes", ErrCorruptStream, rawLen)
		}
		return nil
	}
}
