// Package cache implements the block-level read cache described in
// spec.md: a per-backend associative index of fixed-size blocks, backed
// by a process-global LRU recency list, with a page-reuse detector that
// tracks whether the host has silently rewritten a memory page it lent
// the driver.
//
// Every exported method is safe to call from both submission and
// completion context: no operation here blocks, sleeps, or performs I/O.
//
// Locking follows spec.md §5 throughout: whenever an operation needs
// both a backend's index lock and the global recency lock, it acquires
// the index lock first. enforceCapacity is the one operation that
// doesn't know which index it needs until it has looked at the recency
// list, so it peeks the list, drops the recency lock, takes the index
// lock, then re-takes the recency lock and re-validates before acting —
// never holding the recency lock while blocking on an index lock.
package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/jpaton/xen-blkback-ljx/blockio"
	"github.com/jpaton/xen-blkback-ljx/hostpage"
	"github.com/jpaton/xen-blkback-ljx/internal/ratelimit"
)

// warnLogsPerSecond bounds how often store-dropped warnings can be
// logged: a host that keeps handing out pages it can't map, or a
// workload that keeps exhausting the entry pool, would otherwise flood
// the log once per I/O completion.
const warnLogsPerSecond = 5

// Cache is the cache operations façade: Fetch, Store, InvalidateRange,
// plus backend index lifecycle management.
type Cache struct {
	cfg        Config
	logger     log.Logger
	warnLogger *ratelimit.Logger
	metrics    *metrics
	pool       *entryPool

	// recencyMu is the single recency lock from spec.md §5: it guards
	// recency. liveEntries is tracked separately with an atomic so
	// metrics export never needs to take recencyMu at all.
	recencyMu   sync.Mutex
	recency     recencyList
	liveEntries atomic.Int64
}

// New constructs a Cache with a preallocated entry pool sized to
// cfg.CacheSizeLimit + cfg.EntryPoolHeadroom. logger may be nil (treated
// as a no-op logger); reg may be nil (metrics are created but not
// registered anywhere).
func New(cfg Config, logger log.Logger, reg prometheus.Registerer) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Cache{
		cfg:        cfg,
		logger:     logger,
		warnLogger: ratelimit.New(warnLogsPerSecond, logger),
		metrics:    newMetrics(reg),
		pool:       newEntryPool(cfg),
	}, nil
}

// NewBackendIndex creates a fresh, empty index for a virtual backend.
func (c *Cache) NewBackendIndex(id BackendID) *BackendIndex {
	return NewBackendIndex(id)
}

// DestroyBackendIndex drains every entry owned by idx from the global
// recency list and returns them to the entry pool. Callers must not use
// idx after this returns.
func (c *Cache) DestroyBackendIndex(idx *BackendIndex) {
	idx.mu.Lock()
	blocks := make([]uint64, 0, len(idx.blockCache))
	for b := range idx.blockCache {
		blocks = append(blocks, b)
	}
	idx.mu.Unlock()

	for _, b := range blocks {
		c.dropBlock(idx, b)
	}
}

// Fetch implements spec.md §4.5.1.
func (c *Cache) Fetch(idx *BackendIndex, page hostpage.Page, sectorNumber, sectorCount uint64) bool {
	hit, err := c.fetch(idx, page, sectorNumber, sectorCount)
	if err != nil && !errors.Is(err, ErrMisaligned) {
		// A misaligned sector is an expected, silent miss (spec.md §4.5.1
		// step 1); anything else here is the page's mapping failing mid-copy,
		// worth a trace for anyone debugging a host that's misbehaving.
		level.Debug(c.logger).Log("msg", "fetch miss: page mapping failed", "sector", sectorNumber, "err", err)
	}
	return hit
}

func (c *Cache) fetch(idx *BackendIndex, page hostpage.Page, sectorNumber, sectorCount uint64) (bool, error) {
	if !c.cfg.blockAligned(sectorNumber) {
		return false, ErrMisaligned
	}

	c.observePage(idx, page)

	blockNo := c.cfg.blockNo(sectorNumber)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	e := idx.lookup(blockNo)
	if e == nil || !e.valid() {
		c.metrics.misses.Inc()
		return false, nil
	}

	n := int(sectorCount) * c.cfg.SectorSize
	if err := blockio.Copy(page, e.data, n, blockio.ToPage); err != nil {
		c.metrics.misses.Inc()
		return false, err
	}

	c.recencyMu.Lock()
	c.recency.touch(e)
	c.recencyMu.Unlock()

	c.metrics.hits.Inc()
	return true, nil
}

// Store implements spec.md §4.5.2: populate (or refresh) the cache entry
// for the block containing sectorNumber from page, then enforce
// CacheSizeLimit by evicting least-recently-touched entries.
func (c *Cache) Store(idx *BackendIndex, page hostpage.Page, sectorNumber uint64) {
	err := c.store(idx, page, sectorNumber)
	if err == nil || errors.Is(err, ErrMisaligned) {
		return
	}

	c.metrics.storeDropped.Inc()
	msg := "store dropped: page mapping failed"
	if errors.Is(err, ErrOutOfMemory) {
		msg = "store dropped: entry pool exhausted"
	}
	level.Warn(c.warnLogger).Log("msg", msg, "sector", sectorNumber, "err", err)
}

// store does the real work behind Store. On copy failure it always tears
// the entry back down — deletes it from the index, unlinks it from the
// recency list, releases it to the pool, and decrements live_entries —
// whether the entry was freshly allocated for this call or already
// present and valid from an earlier store (spec.md §4.5.2 step 4 makes
// no exception for the latter: a failed re-store must not leave a stale
// entry behind).
func (c *Cache) store(idx *BackendIndex, page hostpage.Page, sectorNumber uint64) error {
	if !c.cfg.blockAligned(sectorNumber) {
		return ErrMisaligned
	}
	blockNo := c.cfg.blockNo(sectorNumber)

	idx.mu.Lock()
	e := idx.lookup(blockNo)
	fresh := e == nil
	if fresh {
		e = c.pool.alloc()
		if e == nil {
			idx.mu.Unlock()
			return ErrOutOfMemory
		}
		e.owner = idx
		e.blockNo = blockNo
		idx.insert(blockNo, e)
		c.bumpLive(1)
	}

	if err := blockio.Copy(page, e.data, c.cfg.BlockBytes(), blockio.FromPage); err != nil {
		idx.remove(blockNo)
		c.recencyMu.Lock()
		c.recency.unlink(e)
		c.recencyMu.Unlock()
		idx.mu.Unlock()

		c.pool.release(e)
		c.bumpLive(-1)
		return err
	}
	e.state = stateValid

	c.recencyMu.Lock()
	c.recency.touch(e)
	c.recencyMu.Unlock()

	idx.mu.Unlock()

	c.enforceCapacity()
	return nil
}

// InvalidateRange implements spec.md §4.5.3: destroy idx's cached entries
// for blocks [firstSector>>LogBlockSize, firstSector>>LogBlockSize +
// sectorCount>>LogBlockSize), and forget
// the page-reuse checksum for every page the invalidated request
// touched.
func (c *Cache) InvalidateRange(idx *BackendIndex, firstSector, sectorCount uint64, pages []hostpage.Page) {
	startBlock := c.cfg.blockNo(firstSector)
	blockSectors := uint64(1) << c.cfg.LogBlockSize
	endBlock := startBlock + sectorCount/blockSectors

	for b := startBlock; b < endBlock; b++ {
		c.dropBlock(idx, b)
	}

	idx.mu.Lock()
	for _, p := range pages {
		idx.forget(p.ID())
	}
	idx.mu.Unlock()
}

// dropBlock removes block b from idx, if present, unlinking it from the
// recency list and returning it to the entry pool. idx.mu is held across
// both the index removal and the recency unlink so no other operation
// can observe, or keep using, the entry in between.
func (c *Cache) dropBlock(idx *BackendIndex, b uint64) {
	idx.mu.Lock()
	e := idx.remove(b)
	if e != nil {
		c.recencyMu.Lock()
		c.recency.unlink(e)
		c.recencyMu.Unlock()
	}
	idx.mu.Unlock()

	if e == nil {
		return
	}
	c.bumpLive(-1)
	c.pool.release(e)
}

// enforceCapacity evicts least-recently-touched entries until
// liveEntries is at or below CacheSizeLimit (spec.md §4.5.2 step 5).
//
// It cannot simply pop the recency list's head and then lock that
// entry's owning index: that would acquire the recency lock before an
// index lock, the reverse of spec.md §5's mandated order, and could
// deadlock against Fetch/Store/dropBlock on that same backend. Instead
// it peeks the head, drops the recency lock, takes the owner's index
// lock, re-takes the recency lock, and re-validates that the entry is
// still linked to the same owner before evicting it. If another goroutine
// got there first, it just loops and tries again.
func (c *Cache) enforceCapacity() {
	for {
		c.recencyMu.Lock()
		if int64(c.recency.length) <= int64(c.cfg.CacheSizeLimit) {
			c.recencyMu.Unlock()
			return
		}
		candidate := c.recency.head
		if candidate == nil {
			c.recencyMu.Unlock()
			return
		}
		owner := candidate.owner
		blockNo := candidate.blockNo
		c.recencyMu.Unlock()

		if owner == nil {
			continue
		}

		owner.mu.Lock()
		c.recencyMu.Lock()
		if !candidate.linked || candidate.owner != owner || candidate.blockNo != blockNo {
			// Stale: someone else already evicted or invalidated this
			// entry, or recycled it for a different block, between our
			// peek and now. Retry from the top.
			c.recencyMu.Unlock()
			owner.mu.Unlock()
			continue
		}
		c.recency.unlink(candidate)
		owner.remove(blockNo)
		c.recencyMu.Unlock()
		owner.mu.Unlock()

		c.bumpLive(-1)
		c.pool.release(candidate)
		c.metrics.evictions.Inc()
	}
}

// bumpLive adjusts the live-entry counter and its exported gauge
// together, so the two can never drift apart.
func (c *Cache) bumpLive(delta int64) {
	v := c.liveEntries.Add(delta)
	if v < 0 {
		panic(fmt.Sprintf("cache: live entry count went negative (%d)", v))
	}
	c.metrics.liveEntries.Set(float64(v))
}

// observePage runs the page-reuse detector for page against idx's
// checksum table. Per spec.md §4.5.1 step 2, this runs on every fetch
// attempt regardless of outcome: it's the only reliable hook for
// detecting host page recycling.
func (c *Cache) observePage(idx *BackendIndex, page hostpage.Page) {
	var checksum uint64
	err := page.WithBytes(func(b []byte) error {
		checksum = checksumPage(b)
		return nil
	})
	if err != nil {
		// Mapping failure during observation is silently dropped, same
		// as any other mapping failure (spec.md §4.6): the detector's
		// counters are advisory, never a correctness signal.
		return
	}

	idx.mu.Lock()
	class := idx.observe(page.ID(), checksum)
	idx.mu.Unlock()

	switch class {
	case reuseUnrecognized:
		c.metrics.unrecognized.Inc()
	case reuseSame:
		c.metrics.samePage.Inc()
	case reuseChanged:
		c.metrics.changedPage.Inc()
	}
}

// LiveEntries returns the current number of live entries across every
// backend, for metrics export without taking the recency lock.
func (c *Cache) LiveEntries() int64 {
	return c.liveEntries.Load()
}

// Config returns the tunables this Cache was constructed with.
func (c *Cache) Config() Config {
	return c.cfg
}
