package archive

import (
	"sync"
	"sync/atomic"
)

// chunkBufSize is sized for a full plaintext chunk plus AEAD overhead, so
// a single pooled buffer can hold either a plaintext or ciphertext frame.
const chunkBufSize = PlainChunkSize + 64

// BufferPool pools the fixed-size chunk buffers used while encrypting and
// decrypting archive frames. Buffers are zeroized before being returned
// to the pool to avoid leaking plaintext or key material through reuse.
type BufferPool struct {
	pool         sync.Pool
	hits, misses int64
}

// NewBufferPool returns a BufferPool ready for use.
func NewBufferPool() *BufferPool {
	p := &BufferPool{}
	p.pool.New = func() interface{} {
		return make([]byte, chunkBufSize)
	}
	return p
}

// Get returns a chunk-sized buffer, truncated to size.
func (p *BufferPool) Get(size int) []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < size {
		atomic.AddInt64(&p.misses, 1)
		return make([]byte, size)
	}
	atomic.AddInt64(&p.hits, 1)
	return buf[:size]
}

// Put zeroizes buf and returns it to the pool if it is chunk-sized.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < chunkBufSize {
		return
	}
	buf = buf[:cap(buf)]
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(buf)
}

// Metrics reports pool hit/miss counters.
func (p *BufferPool) Metrics() (hits, misses int64) {
	return atomic.LoadInt64(&p.hits), atomic.LoadInt64(&p.misses)
}
