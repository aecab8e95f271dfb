package cache

import "sync"

// entryPool is a preallocated free list of cacheEntry structs, the Go
// stand-in for the "atomic/nowait allocation flag" contract in spec.md
// §9: store and evict must never block or sleep, so every entry the
// cache will ever hand out is allocated once, up front, sized
// CacheSizeLimit + EntryPoolHeadroom to absorb the brief window between
// allocating a new entry and evicting an old one.
//
// alloc/release only ever take this one mutex; they never call into the
// index or recency locks, so they can't participate in a lock-order
// cycle no matter where they're called from.
type entryPool struct {
	mu   sync.Mutex
	free []*cacheEntry
}

func newEntryPool(cfg Config) *entryPool {
	capacity := cfg.CacheSizeLimit + cfg.EntryPoolHeadroom
	blockBytes := cfg.BlockBytes()

	free := make([]*cacheEntry, capacity)
	for i := range free {
		free[i] = &cacheEntry{data: make([]byte, blockBytes)}
	}
	return &entryPool{free: free}
}

// alloc returns a fresh entry, or nil if the pool is exhausted (the
// ErrOutOfMemory case from spec.md §4.5.2 step 3).
func (p *entryPool) alloc() *cacheEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil
	}
	e := p.free[n-1]
	p.free = p.free[:n-1]
	return e
}

// release resets e and returns it to the free list. e must already be
// unlinked from both its owning index and the recency list.
func (p *entryPool) release(e *cacheEntry) {
	e.blockNo = 0
	e.state = stateFresh
	e.owner = nil
	e.prev, e.next, e.linked = nil, nil, false

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, e)
}
