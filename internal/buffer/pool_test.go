package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkPool_GetPut(t *testing.T) {
	p := NewChunkPool(4096)

	buf := p.Get()
	assert.Len(t, buf, 4096)
	assert.Equal(t, 4096, p.Size())

	// Shortened slices are restored to full length on reuse
	p.Put(buf[:10])
	again := p.Get()
	assert.Len(t, again, 4096)
}

func TestChunkPool_RejectsForeignBuffers(t *testing.T) {
	p := NewChunkPool(1024)
	p.Put(make([]byte, 512))
	p.Put(nil)

	assert.Len(t, p.Get(), 1024)
}

func TestChunkPool_DefaultSize(t *testing.T) {
	assert.Equal(t, 1<<20, NewChunkPool(0).Size())
}

func TestForSize(t *testing.T) {
	a := ForSize(8192)
	b := ForSize(8192)
	c := ForSize(16384)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
