package cache

// entryState is the state machine from spec.md §4.5.4. There is
// deliberately no "invalid but retained" state: an entry that stops
// being valid is unlinked and freed in the same operation, never kept
// around with valid=false.
type entryState int

const (
	stateFresh entryState = iota
	stateValid
)

// cacheEntry is a cached copy of one block for one backend. It is owned
// exclusively by the BackendIndex that holds it; the global recency list
// only holds a non-owning intrusive link (prev/next), per the
// cyclic-ownership guidance in spec.md §9: the index owns entries, the
// list never destroys one itself.
type cacheEntry struct {
	blockNo uint64
	data    []byte
	state   entryState

	owner *BackendIndex

	// Intrusive doubly-linked list node for the global recency list.
	// linked is true iff this entry is currently attached to the list.
	prev, next *cacheEntry
	linked     bool
}

func (e *cacheEntry) valid() bool {
	return e.state == stateValid
}
