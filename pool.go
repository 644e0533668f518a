// pool.go implements the buffer pool (spec.md §4.1): a growable directory of
// fixed-size blocks addressed by absolute input offset. Modeled on the
// index-by-offset, single-block-region discipline the corpus's generic
// buffer pools use, adapted here to runtime-configurable block size rather
// than a fixed type parameter.
package teefan

// blockPool is a logical infinite byte array realized as an ordered sequence
// of equally sized blocks. Block k holds bytes [k*blockSize, (k+1)*blockSize).
// Blocks are allocated lazily and freed in order from the front; the pool is
// driven entirely by offsets, never pointers, except at the read/write
// syscall boundary.
type blockPool struct {
	blockSize int
	blocks    []*block
	base      int // index of blocks[0] in absolute block-index space
}

type block struct {
	data []byte
}

func newBlockPool(blockSize int) *blockPool {
	return &blockPool{blockSize: blockSize}
}

// blockIndex returns the block index containing the given absolute offset.
func (p *blockPool) blockIndex(pos int64) int {
	return int(pos / int64(p.blockSize))
}

// ensure grows the directory so that idx is resident, allocating any blocks
// between the current frontier and idx lazily. Returns the block.
func (p *blockPool) ensure(idx int) *block {
	if idx < p.base {
		// Already freed; callers must never request a freed block.
		panic("teefan: pool requested a freed block")
	}
	rel := idx - p.base
	if rel >= len(p.blocks) {
		grown := make([]*block, rel+1)
		copy(grown, p.blocks)
		p.blocks = grown
	}
	b := p.blocks[rel]
	if b == nil {
		b = &block{data: make([]byte, p.blockSize)}
		p.blocks[rel] = b
	}
	return b
}

// sourceBuffer returns a writable region starting at pos, sized to the
// remainder of its containing block, growing the directory as needed.
func (p *blockPool) sourceBuffer(pos int64) []byte {
	idx := p.blockIndex(pos)
	b := p.ensure(idx)
	offsetInBlock := int(pos % int64(p.blockSize))
	return b.data[offsetInBlock:]
}

// sinkBuffer returns a readable region for sink S starting at S.pos_written,
// bounded by both the block boundary and S's allocated window.
func (p *blockPool) sinkBuffer(s *sink) []byte {
	idx := p.blockIndex(s.posWritten)
	b := p.ensure(idx)
	offsetInBlock := int(s.posWritten % int64(p.blockSize))
	maxLen := int64(p.blockSize - offsetInBlock)
	if window := s.posToWrite - s.posWritten; window < maxLen {
		maxLen = window
	}
	return b.data[offsetInBlock : offsetInBlock+int(maxLen)]
}

// pointerAt returns a byte slice view starting at pos and running to the end
// of its containing block; used for newline scanning, which never needs to
// cross a block boundary within a single call since shares are bounded by
// available_data already known to be resident.
func (p *blockPool) pointerAt(pos int64) []byte {
	idx := p.blockIndex(pos)
	if idx < p.base {
		panic("teefan: pointerAt requested a freed block")
	}
	b := p.ensure(idx)
	offsetInBlock := int(pos % int64(p.blockSize))
	return b.data[offsetInBlock:]
}

// byteAt returns the single byte at the given absolute offset.
func (p *blockPool) byteAt(pos int64) byte {
	return p.pointerAt(pos)[0]
}

// free releases every block strictly below floor(minPos / blockSize).
// Idempotent; releases are monotone, matching the pool's single direction of
// travel.
func (p *blockPool) free(minPos int64) {
	target := p.blockIndex(minPos)
	if target <= p.base {
		return
	}
	drop := target - p.base
	if drop > len(p.blocks) {
		drop = len(p.blocks)
	}
	p.blocks = p.blocks[drop:]
	p.base = target
}

// resident reports the number of blocks currently held, for bounded-memory
// assertions in tests.
func (p *blockPool) resident() int {
	n := 0
	for _, b := range p.blocks {
		if b != nil {
			n++
		}
	}
	return n
}
