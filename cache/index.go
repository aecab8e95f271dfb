package cache

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// BackendID identifies a virtual block backend. Distinct backends get
// distinct, independent caches of the same block numbers: entries are
// never shared across backends, grounded in the (blockID, tenantID)
// scoping idiom friggdb/backend uses to key per-tenant block storage.
type BackendID = uuid.UUID

// BackendIndex is spec.md's PerBackendIndex: one per virtual backend,
// holding that backend's block cache and page-reuse checksum table.
// Its mutex is the "index lock" from spec.md §5 and must always be
// acquired before the cache's recency lock when an operation needs both.
type BackendIndex struct {
	id BackendID
	mu sync.Mutex

	blockCache    map[uint64]*cacheEntry
	pageChecksums map[uint64]uint64

	unrecognizedPages uint64
	samePages         uint64
	changedPages      uint64
}

func NewBackendIndex(id BackendID) *BackendIndex {
	return &BackendIndex{
		id:            id,
		blockCache:    make(map[uint64]*cacheEntry),
		pageChecksums: make(map[uint64]uint64),
	}
}

// lookup returns the entry cached for blockNo, if any. Caller must hold
// idx.mu.
func (idx *BackendIndex) lookup(blockNo uint64) *cacheEntry {
	return idx.blockCache[blockNo]
}

// insert adds e under blockNo. blockNo must be absent; the façade
// guarantees this by always looking up before inserting under the same
// critical section, so a collision here is an invariant violation, not
// an expected outcome. Caller must hold idx.mu.
func (idx *BackendIndex) insert(blockNo uint64, e *cacheEntry) {
	if _, exists := idx.blockCache[blockNo]; exists {
		panic(fmt.Sprintf("cache: duplicate insert of block %d into backend %s", blockNo, idx.id))
	}
	idx.blockCache[blockNo] = e
}

// remove deletes and returns the entry cached for blockNo, if any.
// Caller must hold idx.mu.
func (idx *BackendIndex) remove(blockNo uint64) *cacheEntry {
	e, ok := idx.blockCache[blockNo]
	if !ok {
		return nil
	}
	delete(idx.blockCache, blockNo)
	return e
}

// Counters returns a snapshot of this backend's page-reuse-detector
// counters.
func (idx *BackendIndex) Counters() (unrecognized, same, changed uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.unrecognizedPages, idx.samePages, idx.changedPages
}
