package archive

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of the derived ChaCha20-Poly1305 key.
const KeySize = chacha20poly1305.KeySize

// SaltSize is the size in bytes of the Argon2id salt stored in the
// archive header.
const SaltSize = 16

// noncePrefixSize is the size of the random prefix persisted in the
// archive header. The remaining 5 bytes of the 12-byte AEAD nonce (a
// 4-byte big-endian chunk counter plus a 1-byte last-frame flag) are
// derived per frame and never stored, mirroring the STREAM-BE32
// construction.
const noncePrefixSize = 7

const (
	argon2Time    = 3
	argon2MemKiB  = 64 * 1024
	argon2Threads = 4
)

// DeriveKey runs Argon2id over password and salt using fixed cost
// parameters, producing a KeySize key suitable for ChaCha20-Poly1305.
func DeriveKey(password []byte, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKDFFailed, SaltSize, len(salt))
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: empty password", ErrKDFFailed)
	}
	return argon2.IDKey(password, salt, argon2Time, argon2MemKiB, argon2Threads, KeySize), nil
}

// NewSalt returns a fresh random SaltSize salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRNGFailed, err)
	}
	return salt, nil
}

// NewNoncePrefix returns a fresh random noncePrefixSize prefix.
func NewNoncePrefix() ([]byte, error) {
	prefix := make([]byte, noncePrefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRNGFailed, err)
	}
	return prefix, nil
}

// StreamCipher implements the STREAM-BE32 AEAD construction: a 12-byte
// nonce built from a fixed random prefix, a big-endian chunk counter, and
// a one-byte flag marking the final frame. Each frame is sealed/opened
// independently; the counter increments after every frame and the cipher
// refuses to process another frame once a terminal frame has been used.
type StreamCipher struct {
	aead   cipher.AEAD
	nonce  [chacha20poly1305.NonceSize]byte
	closed bool
}

// NewStreamCipher builds a StreamCipher from a derived key and the
// archive's random nonce prefix.
func NewStreamCipher(key []byte, noncePrefix []byte) (*StreamCipher, error) {
	if len(noncePrefix) != noncePrefixSize {
		return nil, fmt.Errorf("archive: nonce prefix must be %d bytes, got %d", noncePrefixSize, len(noncePrefix))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKDFFailed, err)
	}
	sc := &StreamCipher{aead: aead}
	copy(sc.nonce[:noncePrefixSize], noncePrefix)
	return sc, nil
}

func (c *StreamCipher) setLastFlag() {
	c.nonce[len(c.nonce)-1] = 1
}

func (c *StreamCipher) incCounter() {
	for i := len(c.nonce) - 2; i >= noncePrefixSize; i-- {
		c.nonce[i]++
		if c.nonce[i] != 0 {
			return
		}
	}
	panic("archive: stream chunk counter wrapped around")
}

// Overhead returns the AEAD tag size appended to every sealed frame.
func (c *StreamCipher) Overhead() int { return c.aead.Overhead() }

// EncryptNext seals plaintext as a non-terminal frame and advances the
// chunk counter.
func (c *StreamCipher) EncryptNext(dst, plaintext []byte) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("archive: stream cipher already sealed a terminal frame")
	}
	out := c.aead.Seal(dst, c.nonce[:], plaintext, nil)
	c.incCounter()
	return out, nil
}

// EncryptLast seals plaintext as the terminal frame. The cipher must not
// be used again afterwards.
func (c *StreamCipher) EncryptLast(dst, plaintext []byte) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("archive: stream cipher already sealed a terminal frame")
	}
	c.setLastFlag()
	out := c.aead.Seal(dst, c.nonce[:], plaintext, nil)
	c.closed = true
	return out, nil
}

// DecryptNext opens a non-terminal frame and advances the chunk counter.
func (c *StreamCipher) DecryptNext(dst, ciphertext []byte) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: frame received after terminal frame", ErrDecryptFailed)
	}
	out, err := c.aead.Open(dst, c.nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	c.incCounter()
	return out, nil
}

// DecryptLast opens the terminal frame. The cipher must not be used
// again afterwards.
func (c *StreamCipher) DecryptLast(dst, ciphertext []byte) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: frame received after terminal frame", ErrDecryptFailed)
	}
	c.setLastFlag()
	out, err := c.aead.Open(dst, c.nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	c.closed = true
	return out, nil
}
