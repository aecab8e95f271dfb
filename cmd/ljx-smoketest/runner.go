package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/jpaton/xen-blkback-ljx/cache"
	"github.com/jpaton/xen-blkback-ljx/hostpage"
	"github.com/jpaton/xen-blkback-ljx/internal/workerpool"
)

// summary is one row of the tablewriter report: the per-backend outcome
// of replaying a scenario or the built-in fuzz drive.
type summary struct {
	backend      string
	ops          int
	hits         int
	misses       int
	mismatches   int
	unrecognized uint64
	samePages    uint64
	changedPages uint64
}

// runScenario replays s against a fresh cache built with its
// cache-size-limit, one worker-pool job per backend, and returns a
// summary row per backend. Backends run concurrently; this is the
// package's one deliberately concurrent entry point, per SPEC_FULL.md
// §4.3.
func runScenario(logger log.Logger, s *scenario) ([]summary, error) {
	cfg := cache.DefaultConfig()
	if s.CacheSizeLimit > 0 {
		cfg.CacheSizeLimit = s.CacheSizeLimit
	}
	c, err := cache.New(cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing cache: %w", err)
	}

	pool := workerpool.New(workerpool.Config{
		MaxWorkers: runtime.GOMAXPROCS(0),
		QueueDepth: len(s.Backends) + 1,
	}, nil)
	defer pool.Shutdown()

	results := make([]summary, len(s.Backends))
	var wg sync.WaitGroup
	wg.Add(len(s.Backends))

	for i, b := range s.Backends {
		i, b := i, b
		err := pool.Submit(func() error {
			defer wg.Done()
			results[i] = replayBackend(c, b)
			return nil
		})
		if err != nil {
			wg.Done()
			level.Error(logger).Log("msg", "dropping backend from run", "backend", b.Backend, "err", err)
		}
	}
	wg.Wait()

	return results, nil
}

func replayBackend(c *cache.Cache, b step) summary {
	idx := c.NewBackendIndex(uuid.New())
	defer c.DestroyBackendIndex(idx)

	s := summary{backend: b.Backend}
	blockBytes := c.Config().BlockBytes()

	for _, o := range b.Ops {
		s.ops++
		switch {
		case o.Store != nil:
			page := hostpage.NewMemPage(o.Store.PageID, blockBytes)
			page.Reassign(o.Store.PageID, fillBytes(blockBytes, o.Store.Fill))
			c.Store(idx, page, o.Store.Sector)

		case o.Fetch != nil:
			page := hostpage.NewMemPage(o.Fetch.PageID, blockBytes)
			hit := c.Fetch(idx, page, o.Fetch.Sector, o.Fetch.SectorCount)
			if hit {
				s.hits++
			} else {
				s.misses++
			}
			if o.Fetch.ExpectHit != nil && *o.Fetch.ExpectHit != hit {
				s.mismatches++
			}
			if hit && o.Fetch.ExpectFill != nil {
				if !pageIsFilled(page, *o.Fetch.ExpectFill) {
					s.mismatches++
				}
			}

		case o.Invalidate != nil:
			var pages []hostpage.Page
			for _, id := range o.Invalidate.PageIDs {
				pages = append(pages, hostpage.NewMemPage(id, blockBytes))
			}
			c.InvalidateRange(idx, o.Invalidate.Sector, o.Invalidate.SectorCount, pages)
		}
	}

	s.unrecognized, s.samePages, s.changedPages = idx.Counters()
	return s
}

// fuzzDrive is the built-in scenario run when no YAML file is given:
// many synthetic backends, each issuing a random mix of store/fetch
// against a small working set, exercising the cache under contention
// without needing a prewritten scenario.
func fuzzDrive(logger log.Logger, backends, opsPerBackend int, cacheSizeLimit int) ([]summary, error) {
	s := &scenario{CacheSizeLimit: cacheSizeLimit}
	rnd := rand.New(rand.NewSource(1))

	for b := 0; b < backends; b++ {
		var ops []op
		for i := 0; i < opsPerBackend; i++ {
			block := uint64(rnd.Intn(32))
			sector := block * 8
			if rnd.Intn(3) == 0 {
				ops = append(ops, op{Store: &storeOp{PageID: block + 1, Sector: sector, Fill: byte(i)}})
			} else {
				ops = append(ops, op{Fetch: &fetchOp{PageID: block + 1, Sector: sector, SectorCount: 8}})
			}
		}
		s.Backends = append(s.Backends, step{Backend: fmt.Sprintf("fuzz-%d", b), Ops: ops})
	}

	return runScenario(logger, s)
}

func fillBytes(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func pageIsFilled(p *hostpage.MemPage, fill byte) bool {
	ok := true
	_ = p.WithBytes(func(b []byte) error {
		for _, v := range b {
			if v != fill {
				ok = false
				break
			}
		}
		return nil
	})
	return ok
}
