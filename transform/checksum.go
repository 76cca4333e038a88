package transform

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bohdloss/ende/endio"
)

// DigestSize is the length in bytes of the checksum appended to the stream.
const DigestSize = 32

// ChecksumWriter frames data through to the underlying writer while hashing
// it with BLAKE3, and appends the digest after the terminator on Finish. It
// detects corruption, not tampering; an attacker who can rewrite the stream
// can rewrite the digest. Use Encryptor when authentication matters, or the
// keyed variant when both sides share a secret.
type ChecksumWriter struct {
	fw       frameWriter
	hash     *blake3.Hasher
	pending  endio.Buffer
	finished bool
}

// NewChecksumWriter returns a ChecksumWriter writing framed data to w.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{fw: frameWriter{w: w}, hash: blake3.New()}
}

// NewKeyedChecksumWriter returns a ChecksumWriter whose digest is keyed with
// the given 32-byte key, making it a MAC.
func NewKeyedChecksumWriter(w io.Writer, key []byte) (*ChecksumWriter, error) {
	hash, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, err
	}
	return &ChecksumWriter{fw: frameWriter{w: w}, hash: hash}, nil
}

// Write implements io.Writer.
func (c *ChecksumWriter) Write(buff []byte) (int, error) {
	if c.finished {
		return 0, ErrUseAfterFinish
	}
	c.hash.Write(buff)
	n, _ := c.pending.Write(buff)
	for c.pending.Len() >= DefaultChunkSize {
		if err := c.fw.writeFrame(c.pending.Bytes()[:DefaultChunkSize]); err != nil {
			return 0, err
		}
		c.pending.Discard(DefaultChunkSize)
	}
	return n, nil
}

// Finish flushes buffered data, writes the stream terminator and appends the
// digest.
func (c *ChecksumWriter) Finish() error {
	if c.finished {
		return ErrUseAfterFinish
	}
	c.finished = true
	if c.pending.Len() > 0 {
		if err := c.fw.writeFrame(c.pending.Bytes()); err != nil {
			return err
		}
		c.pending.Reset()
	}
	if err := c.fw.terminate(); err != nil {
		return err
	}
	digest := c.hash.Sum(nil)
	return endio.Write(digest[:DigestSize], c.fw.w)
}

// ChecksumReader reads a stream produced by a ChecksumWriter, hashing the
// data as it passes. Reaching the terminator verifies the appended digest; a
// mismatch is ErrChecksumMismatch, otherwise io.EOF.
type ChecksumReader struct {
	fr       frameReader
	hash     *blake3.Hasher
	out      endio.Buffer
	verified bool
}

// NewChecksumReader returns a ChecksumReader reading framed data from r.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{fr: frameReader{r: r}, hash: blake3.New()}
}

// NewKeyedChecksumReader returns a ChecksumReader verifying a keyed digest.
func NewKeyedChecksumReader(r io.Reader, key []byte) (*ChecksumReader, error) {
	hash, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, err
	}
	return &ChecksumReader{fr: frameReader{r: r}, hash: hash}, nil
}

// Read implements io.Reader.
func (c *ChecksumReader) Read(buff []byte) (int, error) {
	for c.out.Len() == 0 {
		body, err := c.fr.next()
		if err == io.EOF {
			if err := c.verify(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		c.hash.Write(body)
		c.out.Write(body)
	}
	n, _ := c.out.Read(buff)
	return n, nil
}

// verify reads the appended digest and compares it to the computed one.
func (c *ChecksumReader) verify() error {
	if c.verified {
		return nil
	}
	var expect [DigestSize]byte
	if err := endio.Read(expect[:], c.fr.r); err != nil {
		return err
	}
	digest := c.hash.Sum(nil)
	if subtle.ConstantTimeCompare(expect[:], digest[:DigestSize]) != 1 {
		return fmt.Errorf("%w: stream digest does not match content", ErrChecksumMismatch)
	}
	c.verified = true
	return nil
}
