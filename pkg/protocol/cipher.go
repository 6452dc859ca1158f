package protocol

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Tnze/go-mc/net/CFB8"
)

// Cipher is the byte-for-byte encryption layer of a connection.
//
// It sits between the buffered transport and the frame layer:
//
//	socket ─► bufio.Reader ─► Cipher.Reader ─► FrameReader
//	FrameWriter ─► Cipher.Writer ─► bufio.Writer ─► socket
//
// Bytes buffered by bufio before activation are decrypted when they are
// consumed, so activation never depends on frame boundaries.
type Cipher struct {
	in  *bufio.Reader
	out io.Writer

	activated atomic.Bool
	dec       atomic.Pointer[cipher.Stream]
	rbuf      []byte // reader goroutine only

	mu  sync.Mutex // guards enc and the outbound write path
	enc cipher.Stream
	buf []byte
}

// NewCipher wraps a buffered transport. The cipher starts inactive and
// passes bytes through unchanged.
func NewCipher(in *bufio.Reader, out io.Writer) *Cipher {
	return &Cipher{in: in, out: out}
}

// Activate enables AES-128 in 8-bit cipher feedback mode with IV = key in
// both directions.
// It may be called at most once; later calls return ErrCipherAlreadyActive.
func (c *Cipher) Activate(key []byte) error {
	if len(key) != 16 {
		return fmt.Errorf("protocol: cipher key must be 16 bytes, got %d", len(key))
	}
	if !c.activated.CompareAndSwap(false, true) {
		return ErrCipherAlreadyActive
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	dec := cipher.Stream(CFB8.NewCFB8Decrypt(block, key))
	c.mu.Lock()
	c.enc = CFB8.NewCFB8Encrypt(block, key)
	c.mu.Unlock()
	c.dec.Store(&dec)
	return nil
}

// Active reports whether Activate has succeeded.
func (c *Cipher) Active() bool {
	return c.activated.Load()
}

// Reader returns the decrypting side.
func (c *Cipher) Reader() *CipherReader {
	return &CipherReader{c: c}
}

// Writer returns the encrypting side.
func (c *Cipher) Writer() *CipherWriter {
	return &CipherWriter{c: c}
}

// CipherReader decrypts bytes as they are consumed from the buffered
// transport. It implements io.Reader and io.ByteReader.
type CipherReader struct {
	c *Cipher
}

func (r *CipherReader) Read(p []byte) (int, error) {
	n, err := r.c.in.Read(p)
	if s := r.c.dec.Load(); s != nil && n > 0 {
		c := r.c
		if cap(c.rbuf) < n {
			c.rbuf = make([]byte, n)
		}
		src := c.rbuf[:n]
		copy(src, p[:n])
		(*s).XORKeyStream(p[:n], src)
	}
	return n, err
}

func (r *CipherReader) ReadByte() (byte, error) {
	b, err := r.c.in.ReadByte()
	if err != nil {
		return 0, err
	}
	if s := r.c.dec.Load(); s != nil {
		in, out := [1]byte{b}, [1]byte{}
		(*s).XORKeyStream(out[:], in[:])
		b = out[0]
	}
	return b, nil
}

// CipherWriter encrypts bytes before handing them to the buffered
// transport. Writes are serialized.
type CipherWriter struct {
	c *Cipher
}

func (w *CipherWriter) Write(p []byte) (int, error) {
	c := w.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return c.out.Write(p)
	}
	if cap(c.buf) < len(p) {
		c.buf = make([]byte, len(p))
	}
	buf := c.buf[:len(p)]
	c.enc.XORKeyStream(buf, p)
	return c.out.Write(buf)
}
