package transform

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bohdloss/ende/endio"
)

// KeySize is the length in bytes of an encryption key.
const KeySize = chacha20poly1305.KeySize

const (
	noncePrefixSize = 16
	// The chunk counter occupies 7 nonce bytes; the final byte of the nonce
	// is the final-chunk flag.
	maxChunkCounter = 1<<56 - 1
)

// Encryptor encrypts data written to it with XChaCha20-Poly1305, sealing
// independent chunks under a per-stream random nonce prefix and a chunk
// counter. The last chunk is sealed with a final flag, so truncating the
// stream at a chunk boundary is detectable. Call Finish when done.
type Encryptor struct {
	fw       frameWriter
	aead     cipher.AEAD
	prefix   [noncePrefixSize]byte
	counter  uint64
	pending  endio.Buffer
	body     endio.Buffer
	finished bool
}

// NewEncryptor returns an Encryptor writing to w under the given key, which
// must be KeySize bytes. The random nonce prefix is written to w immediately.
func NewEncryptor(w io.Writer, key []byte) (*Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	e := &Encryptor{fw: frameWriter{w: w}, aead: aead}
	if _, err := rand.Read(e.prefix[:]); err != nil {
		return nil, err
	}
	if err := endio.Write(e.prefix[:], w); err != nil {
		return nil, err
	}
	return e, nil
}

// Write implements io.Writer, buffering plaintext and sealing a chunk
// whenever a full one accumulates.
func (e *Encryptor) Write(buff []byte) (int, error) {
	if e.finished {
		return 0, ErrUseAfterFinish
	}
	n, _ := e.pending.Write(buff)
	for e.pending.Len() > DefaultChunkSize {
		// Keep at least one byte back so the final chunk is never created
		// retroactively; Finish always owns the final flag.
		if err := e.seal(e.pending.Bytes()[:DefaultChunkSize], false); err != nil {
			return 0, err
		}
		e.pending.Discard(DefaultChunkSize)
	}
	return n, nil
}

// Finish seals the remaining data as the final chunk and writes the stream
// terminator.
func (e *Encryptor) Finish() error {
	if e.finished {
		return ErrUseAfterFinish
	}
	e.finished = true
	if err := e.seal(e.pending.Bytes(), true); err != nil {
		return err
	}
	e.pending.Reset()
	return e.fw.terminate()
}

// seal encrypts one chunk and writes it as a frame. The chunk's position and
// final flag are bound into the nonce, so reordering, replaying or reflagging
// chunks fails authentication.
func (e *Encryptor) seal(chunk []byte, final bool) error {
	if e.counter > maxChunkCounter {
		return fmt.Errorf("encrypt: chunk counter exhausted")
	}
	nonce := e.nonce(e.counter, final)
	e.counter++

	e.body.Reset()
	var flag byte
	if final {
		flag = 1
	}
	e.body.WriteByte(flag)
	e.body.Write(e.aead.Seal(nil, nonce, chunk, nil))
	return e.fw.writeFrame(e.body.Bytes())
}

func (e *Encryptor) nonce(counter uint64, final bool) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, e.prefix[:])
	for i := 0; i < 7; i++ {
		nonce[noncePrefixSize+i] = byte(counter >> (8 * i))
	}
	if final {
		nonce[chacha20poly1305.NonceSizeX-1] = 1
	}
	return nonce
}

// Decryptor reads a stream produced by an Encryptor under the same key. Any
// tampering with chunk content, order or the final flag is
// ErrAuthenticationFailed; a stream that ends before its final chunk is
// ErrCorruptStream. It returns io.EOF at the stream terminator.
type Decryptor struct {
	fr      frameReader
	aead    cipher.AEAD
	prefix  [noncePrefixSize]byte
	counter uint64
	out     endio.Buffer
	started bool
	final   bool
}

// NewDecryptor returns a Decryptor reading from r under the given key.
func NewDecryptor(r io.Reader, key []byte) (*Decryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Decryptor{fr: frameReader{r: r}, aead: aead}, nil
}

// Read implements io.Reader.
func (d *Decryptor) Read(buff []byte) (int, error) {
	if !d.started {
		if err := endio.Read(d.prefix[:], d.fr.r); err != nil {
			return 0, err
		}
		d.started = true
	}
	for d.out.Len() == 0 {
		body, err := d.fr.next()
		if err == io.EOF {
			if !d.final {
				return 0, fmt.Errorf("%w: stream ends before its final chunk", ErrCorruptStream)
			}
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		if err := d.open(body); err != nil {
			return 0, err
		}
	}
	n, _ := d.out.Read(buff)
	return n, nil
}

// open authenticates and decrypts one chunk body into the output buffer.
func (d *Decryptor) open(body []byte) error {
	if d.final {
		return fmt.Errorf("%w: chunk after the final chunk", ErrCorruptStream)
	}
	if len(body) < 1+d.aead.Overhead() {
		return fmt.Errorf("%w: chunk too short", ErrCorruptStream)
	}
	flag := body[0]
	if flag > 1 {
		return fmt.Errorf("%w: unknown chunk flag %d", ErrCorruptStream, flag)
	}
	if d.counter > maxChunkCounter {
		return fmt.Errorf("%w: chunk counter exhausted", ErrCorruptStream)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, d.prefix[:])
	for i := 0; i < 7; i++ {
		nonce[noncePrefixSize+i] = byte(d.counter >> (8 * i))
	}
	nonce[chacha20poly1305.NonceSizeX-1] = flag
	d.counter++

	pt, err := d.aead.Open(nil, nonce, body[1:], nil)
	if err != nil {
		return ErrAuthenticationFailed
	}
	d.out.Write(pt)
	if flag == 1 {
		d.final = true
	}
	return nil
}
