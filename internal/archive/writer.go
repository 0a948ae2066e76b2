package archive

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncryptWriter buffers plaintext into PlainChunkSize frames, sealing and
// writing each full frame eagerly. The final, possibly short, frame is
// only sealed on Close since only then is it known to be the last one.
type EncryptWriter struct {
	cipher *StreamCipher
	dst    io.Writer
	pool   *BufferPool

	buf    []byte
	err    error
	closed bool
}

// NewEncryptWriter wraps dst so that everything written through the
// returned writer is sealed into framed STREAM-BE32 chunks.
func NewEncryptWriter(cipher *StreamCipher, dst io.Writer, pool *BufferPool) *EncryptWriter {
	if pool == nil {
		pool = NewBufferPool()
	}
	return &EncryptWriter{
		cipher: cipher,
		dst:    dst,
		pool:   pool,
		buf:    make([]byte, 0, PlainChunkSize),
	}
}

func (w *EncryptWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	total := len(p)
	for len(p) > 0 {
		room := PlainChunkSize - len(w.buf)
		n := len(p)
		if n > room {
			n = room
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]

		if len(w.buf) == PlainChunkSize && len(p) > 0 {
			if err := w.flush(false); err != nil {
				w.err = err
				return 0, err
			}
		}
	}
	return total, nil
}

// Close seals and writes the final frame. It does not close the
// underlying writer.
func (w *EncryptWriter) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flush(true); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *EncryptWriter) flush(last bool) error {
	sealed := w.pool.Get(len(w.buf) + w.cipher.Overhead())[:0]
	var err error
	if last {
		sealed, err = w.cipher.EncryptLast(sealed, w.buf)
	} else {
		sealed, err = w.cipher.EncryptNext(sealed, w.buf)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	defer w.pool.Put(sealed)

	var header [4]byte
	packed, err := PackChunkHeader(len(sealed), last)
	if err != nil {
		return fmt.Errorf("archive: %v", err)
	}
	binary.BigEndian.PutUint32(header[:], packed)

	if _, err := w.dst.Write(header[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	if _, err := w.dst.Write(sealed); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkIO, err)
	}
	w.buf = w.buf[:0]
	return nil
}
