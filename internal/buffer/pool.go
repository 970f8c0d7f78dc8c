// Package buffer provides reusable byte buffers for the streaming paths.
package buffer

import (
	"sync"
)

// ChunkPool hands out fixed-size byte slices to reduce GC pressure on the
// chunked read and write loops.
type ChunkPool struct {
	size int
	pool sync.Pool
}

// NewChunkPool creates a pool of buffers of exactly size bytes.
func NewChunkPool(size int) *ChunkPool {
	if size <= 0 {
		size = 1 << 20
	}
	p := &ChunkPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of buffers handed out by the pool
func (p *ChunkPool) Size() int {
	return p.size
}

// Get returns a buffer of Size bytes. Its contents are unspecified.
func (p *ChunkPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns buf to the pool. Buffers of a different capacity are dropped.
func (p *ChunkPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

var (
	poolsMu sync.Mutex
	pools   = make(map[int]*ChunkPool)
)

// ForSize returns the process-wide pool for the given chunk size, creating it
// on first use.
func ForSize(size int) *ChunkPool {
	poolsMu.Lock()
	defer poolsMu.Unlock()

	if p, ok := pools[size]; ok {
		return p
	}
	p := NewChunkPool(size)
	pools[size] = p
	return p
}
