package search

import (
	"sync/atomic"

	"notemind/internal/storage"
)

// Pool is the immutable in-memory snapshot of stored blocks the retrieval
// engine reads from. A sync pass writes to the store, not the snapshot;
// results only become visible to retrieval when Swap installs a fresh scan.
// A retrieval in progress keeps the slice it loaded.
type Pool struct {
	blocks atomic.Pointer[[]storage.Block]
}

// NewPool creates a pool seeded with the given snapshot.
func NewPool(blocks []storage.Block) *Pool {
	p := &Pool{}
	p.Swap(blocks)
	return p
}

// Load returns the current snapshot. Callers must not mutate it.
func (p *Pool) Load() []storage.Block {
	return *p.blocks.Load()
}

// Swap atomically installs a new snapshot.
func (p *Pool) Swap(blocks []storage.Block) {
	p.blocks.Store(&blocks)
}

// Len returns the size of the current snapshot.
func (p *Pool) Len() int {
	return len(p.Load())
}
