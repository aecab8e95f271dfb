package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jpaton/xen-blkback-ljx/hostpage"
)

func testConfig() Config {
	return Config{
		LogBlockSize:      3, // 8 sectors/block
		SectorSize:        512,
		CacheSizeLimit:    4,
		EntryPoolHeadroom: 2,
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(testConfig(), nil, nil)
	require.NoError(t, err)
	return c
}

func pageOf(id uint64, blockBytes int, fill byte) *hostpage.MemPage {
	p := hostpage.NewMemPage(id, blockBytes)
	p.Reassign(id, bytesOf(blockBytes, fill))
	return p
}

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

// P1: fetch before any store misses.
func TestFetch_MissesBeforeStore(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	page := pageOf(1, c.cfg.BlockBytes(), 0)

	ok := c.Fetch(idx, page, 0, 8)
	require.False(t, ok)
}

// P2: store then fetch of the same block hits with the stored contents.
func TestStoreThenFetch_Hits(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	storePage := pageOf(1, c.cfg.BlockBytes(), 0xAB)

	c.Store(idx, storePage, 0)

	fetchPage := hostpage.NewMemPage(1, c.cfg.BlockBytes())
	ok := c.Fetch(idx, fetchPage, 0, 8)
	require.True(t, ok)

	got, err := readAll(fetchPage)
	require.NoError(t, err)
	require.Equal(t, bytesOf(c.cfg.BlockBytes(), 0xAB), got)
}

// P3: a misaligned sector number never hits or stores.
func TestMisalignedSector_NeverCaches(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	page := pageOf(1, c.cfg.BlockBytes(), 0xCD)

	c.Store(idx, page, 3) // not a multiple of 8
	require.Equal(t, int64(0), c.LiveEntries())

	ok := c.Fetch(idx, page, 3, 8)
	require.False(t, ok)
}

// P4: invalidating a range removes exactly the blocks it overlaps.
func TestInvalidateRange_RemovesOverlappingBlocks(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())

	c.Store(idx, pageOf(1, c.cfg.BlockBytes(), 1), 0)  // block 0
	c.Store(idx, pageOf(2, c.cfg.BlockBytes(), 2), 8)  // block 1
	c.Store(idx, pageOf(3, c.cfg.BlockBytes(), 3), 16) // block 2
	require.Equal(t, int64(3), c.LiveEntries())

	c.InvalidateRange(idx, 0, 16, nil) // blocks 0 and 1

	require.False(t, c.Fetch(idx, hostpage.NewMemPage(1, c.cfg.BlockBytes()), 0, 8))
	require.False(t, c.Fetch(idx, hostpage.NewMemPage(2, c.cfg.BlockBytes()), 8, 8))
	require.True(t, c.Fetch(idx, hostpage.NewMemPage(3, c.cfg.BlockBytes()), 16, 8))
	require.Equal(t, int64(1), c.LiveEntries())
}

// P5: distinct backends never share entries for the same block number.
func TestDistinctBackends_DontShareEntries(t *testing.T) {
	c := newTestCache(t)
	idxA := c.NewBackendIndex(uuid.New())
	idxB := c.NewBackendIndex(uuid.New())

	c.Store(idxA, pageOf(1, c.cfg.BlockBytes(), 0x11), 0)

	ok := c.Fetch(idxB, hostpage.NewMemPage(1, c.cfg.BlockBytes()), 0, 8)
	require.False(t, ok)
}

// L1: once over CacheSizeLimit, the cache evicts down to the limit.
func TestStore_EvictsOverCapacity(t *testing.T) {
	c := newTestCache(t) // CacheSizeLimit = 4
	idx := c.NewBackendIndex(uuid.New())

	for i := uint64(0); i < 6; i++ {
		c.Store(idx, pageOf(i+100, c.cfg.BlockBytes(), byte(i)), i*8)
	}

	require.LessOrEqual(t, c.LiveEntries(), int64(4))
}

// L2: touching an entry via fetch protects it from eviction ahead of
// entries that were stored more recently but never re-touched.
func TestFetch_ProtectsFromEviction(t *testing.T) {
	c := newTestCache(t) // CacheSizeLimit = 4
	idx := c.NewBackendIndex(uuid.New())

	for i := uint64(0); i < 4; i++ {
		c.Store(idx, pageOf(i+1, c.cfg.BlockBytes(), byte(i)), i*8)
	}

	// Re-touch block 0, the least recently used entry, so it becomes the
	// most recently used instead.
	require.True(t, c.Fetch(idx, hostpage.NewMemPage(1, c.cfg.BlockBytes()), 0, 8))

	// Two more stores should now evict blocks 1 and 2 (now least
	// recently used), not block 0.
	c.Store(idx, pageOf(10, c.cfg.BlockBytes(), 9), 4*8)
	c.Store(idx, pageOf(11, c.cfg.BlockBytes(), 9), 5*8)

	require.True(t, c.Fetch(idx, hostpage.NewMemPage(1, c.cfg.BlockBytes()), 0, 8))
	require.False(t, c.Fetch(idx, hostpage.NewMemPage(2, c.cfg.BlockBytes()), 1*8, 8))
	require.False(t, c.Fetch(idx, hostpage.NewMemPage(3, c.cfg.BlockBytes()), 2*8, 8))
}

// L3: destroying a backend index frees every entry it owned.
func TestDestroyBackendIndex_FreesEntries(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())

	c.Store(idx, pageOf(1, c.cfg.BlockBytes(), 1), 0)
	c.Store(idx, pageOf(2, c.cfg.BlockBytes(), 2), 8)
	require.Equal(t, int64(2), c.LiveEntries())

	c.DestroyBackendIndex(idx)
	require.Equal(t, int64(0), c.LiveEntries())
}

// L4: a mapping failure during store drops the attempt without changing
// live-entry accounting.
func TestStore_DropsOnMappingFailure(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	page := hostpage.NewMemPage(1, c.cfg.BlockBytes())
	page.SetFailMapping(true)

	c.Store(idx, page, 0)

	require.Equal(t, int64(0), c.LiveEntries())
	page.SetFailMapping(false)
	require.False(t, c.Fetch(idx, page, 0, 8))
}

// A copy failure on a re-store into an already-valid entry must tear the
// entry down just as completely as a copy failure on first allocation —
// spec.md §4.5.2 step 4 makes no exception for a pre-existing entry.
func TestStore_DropsOnMappingFailure_PreExistingEntry(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	page := hostpage.NewMemPage(1, c.cfg.BlockBytes())

	c.Store(idx, page, 0)
	require.Equal(t, int64(1), c.LiveEntries())
	require.True(t, c.Fetch(idx, page, 0, 8))

	page.SetFailMapping(true)
	c.Store(idx, page, 0)

	require.Equal(t, int64(0), c.LiveEntries())
	page.SetFailMapping(false)
	require.False(t, c.Fetch(idx, page, 0, 8))
}

// The page-reuse detector classifies an unseen page as unrecognized and a
// subsequently changed page as changed, per backend.
func TestPageReuseDetector_ClassifiesAcrossObservations(t *testing.T) {
	c := newTestCache(t)
	idx := c.NewBackendIndex(uuid.New())
	page := pageOf(42, c.cfg.BlockBytes(), 7)

	require.False(t, c.Fetch(idx, page, 0, 8)) // unrecognized, still a miss

	c.Store(idx, page, 0)
	require.True(t, c.Fetch(idx, page, 0, 8)) // same checksum

	page.Reassign(42, bytesOf(c.cfg.BlockBytes(), 9))
	require.True(t, c.Fetch(idx, page, 0, 8)) // changed checksum, index unaffected

	unrecognized, same, changed := idx.Counters()
	require.Equal(t, uint64(1), unrecognized)
	require.Equal(t, uint64(1), same) // first fetch after store; Store itself does not observe pages
	require.Equal(t, uint64(1), changed)
}

func readAll(p *hostpage.MemPage) ([]byte, error) {
	var out []byte
	err := p.WithBytes(func(b []byte) error {
		out = append(out, b...)
		return nil
	})
	return out, err
}
