package sink

import (
	"errors"
	"sync"
	"time"
)

// ErrPoolExhausted is returned by BlockPool.Get when every block of the
// pool is still in flight.
var ErrPoolExhausted = errors.New("sink: block pool exhausted")

// Block is one delivered chunk of captured audio.
type Block struct {
	// Data holds interleaved PCM bytes in the track's format.
	Data []byte
	// Samples is the number of whole sample frames in Data.
	Samples int
	// DTS and PTS are the decode and presentation timestamps. For raw
	// capture they are always equal.
	DTS time.Time
	PTS time.Time
	// Discontinuity marks a block that does not follow the previous one.
	Discontinuity bool

	pool *BlockPool
}

// Release returns the block's capacity to the pool it was taken from.
// The block must not be used afterwards.
func (b *Block) Release() {
	if b.pool != nil {
		b.pool.put()
	}
}

// BlockPool bounds the number of blocks in flight at once.
//
// The read callback runs on the event loop goroutine and must not
// allocate without bound; the pool turns memory pressure into an explicit
// allocation failure the pipeline absorbs as a dropped, discontinuity
// marked notification.
type BlockPool struct {
	mu          sync.Mutex
	outstanding int
	max         int
}

// NewBlockPool creates a pool allowing at most max blocks in flight.
func NewBlockPool(max int) *BlockPool {
	return &BlockPool{max: max}
}

// Get allocates a block with a Data buffer of exactly size bytes. It
// fails with ErrPoolExhausted when max blocks are already in flight.
func (p *BlockPool) Get(size int) (*Block, error) {
	p.mu.Lock()
	if p.outstanding == p.max {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.outstanding++
	p.mu.Unlock()

	return &Block{
		Data: make([]byte, size),
		pool: p,
	}, nil
}

func (p *BlockPool) put() {
	p.mu.Lock()
	if p.outstanding > 0 {
		p.outstanding--
	}
	p.mu.Unlock()
}

// InFlight reports how many blocks are currently outstanding.
func (p *BlockPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
