package teefan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockPool_SourceBufferNeverSpansBlockBoundary(t *testing.T) {
	p := newBlockPool(16)

	buf := p.sourceBuffer(10)
	assert.Len(t, buf, 6) // 16 - (10 mod 16)

	buf = p.sourceBuffer(16)
	assert.Len(t, buf, 16)
}

func TestBlockPool_SinkBufferBoundedByWindow(t *testing.T) {
	p := newBlockPool(16)
	p.sourceBuffer(0)[0] = 'x' // realize block 0

	s := &sink{posWritten: 2, posToWrite: 5}
	buf := p.sinkBuffer(s)
	assert.Len(t, buf, 3) // window is narrower than remaining block space
}

func TestBlockPool_GrowsOnDemand(t *testing.T) {
	p := newBlockPool(16)
	buf := p.sourceBuffer(1000)
	require.NotNil(t, buf)
	assert.Equal(t, 1000/16, p.blockIndex(1000))
}

func TestBlockPool_FreeIsMonotoneAndIdempotent(t *testing.T) {
	p := newBlockPool(16)
	for i := 0; i < 4; i++ {
		p.sourceBuffer(int64(i) * 16)
	}
	assert.Equal(t, 4, p.resident())

	p.free(32) // blocks 0 and 1 fall strictly below floor(32/16)=2
	assert.Equal(t, 2, p.resident())

	p.free(16) // already released further than this; no-op
	assert.Equal(t, 2, p.resident())

	p.free(64)
	assert.Equal(t, 0, p.resident())
}

func TestBlockPool_ByteAtReadsWrittenData(t *testing.T) {
	p := newBlockPool(16)
	buf := p.sourceBuffer(0)
	buf[5] = '\n'
	assert.Equal(t, byte('\n'), p.byteAt(5))
}
