package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// magicHeader is written at the start of every archive, legacy or v1.
var magicHeader = [10]byte{'K', 'R', 'A', 'T', 'E', '_', 'P', 'K', 'G', 0}

const versionV1 = 1

// legacyVersionByte is the byte found where the version byte would be in
// a v1 archive, when the archive is actually a pre-versioned ("legacy")
// one: it is the first byte of the gzip magic number (0x1f, 0x8b).
const legacyVersionByte = 0x1f

const (
	flagEncrypted  byte = 1 << 0
	flagCompressed byte = 1 << 1
)

// Header describes the fixed preamble of a v1 archive container,
// excluding the magic and version bytes already consumed by Dispatch.
type Header struct {
	Encrypted   bool
	Compressed  bool
	GzipLevel   uint8
	Salt        []byte // SaltSize bytes, empty if not encrypted
	NoncePrefix []byte // noncePrefixSize bytes, empty if not encrypted
}

// WriteHeader writes the magic, version, flags, level, salt, and nonce
// prefix to w in the v1 on-disk order.
func WriteHeader(w io.Writer, h Header) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magicHeader[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	if err := bw.WriteByte(versionV1); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	var flags byte
	if h.Compressed {
		flags |= flagCompressed
	}
	if h.Encrypted {
		flags |= flagEncrypted
	}
	if err := bw.WriteByte(flags); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	if err := bw.WriteByte(h.GzipLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}

	if h.Encrypted {
		if len(h.Salt) != SaltSize {
			return fmt.Errorf("archive: encrypted header needs a %d-byte salt, got %d", SaltSize, len(h.Salt))
		}
		if len(h.NoncePrefix) != noncePrefixSize {
			return fmt.Errorf("archive: encrypted header needs a %d-byte nonce prefix, got %d", noncePrefixSize, len(h.NoncePrefix))
		}
		if err := bw.WriteByte(byte(len(h.Salt))); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
		if _, err := bw.Write(h.Salt); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
		if err := bw.WriteByte(byte(len(h.NoncePrefix))); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
		if _, err := bw.Write(h.NoncePrefix); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
	} else {
		if err := bw.WriteByte(0); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
		if err := bw.WriteByte(0); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkIO, err)
		}
	}

	return bw.Flush()
}

// Dispatch reads the 10-byte magic and the byte that follows it, then
// routes to either the legacy or the v1 decode path without requiring a
// seekable source: the byte that distinguishes the two formats is
// reattached to the front of the returned payload reader rather than
// being unread via Seek, since the underlying source (a pipe, a decrypt
// stream) may not support it.
//
// For a legacy archive, payload is the gzip(tar) stream, unchanged and
// ready to decompress directly. For a v1 archive, header is populated
// and payload is the stream immediately following the preamble: either
// more framed ciphertext (if header.Encrypted) or gzip(tar) bytes.
func Dispatch(r io.Reader) (legacy bool, header Header, payload io.Reader, err error) {
	var magic [10]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if magic != magicHeader {
		return false, Header{}, nil, ErrBadMagic
	}

	var versionBuf [1]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}

	if versionBuf[0] == legacyVersionByte {
		payload = io.MultiReader(bytes.NewReader(versionBuf[:]), r)
		return true, Header{}, payload, nil
	}
	if versionBuf[0] != versionV1 {
		return false, Header{}, nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, versionBuf[0])
	}

	var flagsBuf [1]byte
	if _, err := io.ReadFull(r, flagsBuf[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	flags := flagsBuf[0]

	var levelBuf [1]byte
	if _, err := io.ReadFull(r, levelBuf[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}

	h := Header{
		Encrypted:  flags&flagEncrypted != 0,
		Compressed: flags&flagCompressed != 0,
		GzipLevel:  levelBuf[0],
	}

	var saltLenBuf [1]byte
	if _, err := io.ReadFull(r, saltLenBuf[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	saltLen := int(saltLenBuf[0])
	if saltLen > 0 {
		h.Salt = make([]byte, saltLen)
		if _, err := io.ReadFull(r, h.Salt); err != nil {
			return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
		}
	}

	var nonceLenBuf [1]byte
	if _, err := io.ReadFull(r, nonceLenBuf[:]); err != nil {
		return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	nonceLen := int(nonceLenBuf[0])
	if nonceLen > 0 {
		h.NoncePrefix = make([]byte, nonceLen)
		if _, err := io.ReadFull(r, h.NoncePrefix); err != nil {
			return false, Header{}, nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
		}
	}

	if h.Encrypted && (saltLen != SaltSize || nonceLen != noncePrefixSize) {
		return false, Header{}, nil, fmt.Errorf("%w: unexpected salt/nonce length", ErrBadMagic)
	}

	return false, h, r, nil
}
