package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scenario is the YAML replay format from SPEC_FULL.md §4.6: a fixed
// sequence of operations against a fixed set of backends, the moral
// equivalent of original_source/tests/main.c's hand-coded call sequence.
type scenario struct {
	CacheSizeLimit int    `yaml:"cache-size-limit"`
	Backends       []step `yaml:"backends"`
}

type step struct {
	Backend string `yaml:"backend"`
	Ops     []op   `yaml:"ops"`
}

// op is one store, fetch, or invalidate call. Exactly one of Store,
// Fetch, Invalidate should be set; the others are zero-valued.
type op struct {
	Store *storeOp `yaml:"store,omitempty"`

	Fetch *fetchOp `yaml:"fetch,omitempty"`

	Invalidate *invalidateOp `yaml:"invalidate,omitempty"`
}

type storeOp struct {
	PageID uint64 `yaml:"page-id"`
	Sector uint64 `yaml:"sector"`
	Fill   byte   `yaml:"fill"`
}

type fetchOp struct {
	PageID      uint64 `yaml:"page-id"`
	Sector      uint64 `yaml:"sector"`
	SectorCount uint64 `yaml:"sector-count"`
	ExpectHit   *bool  `yaml:"expect-hit,omitempty"`
	ExpectFill  *byte  `yaml:"expect-fill,omitempty"`
}

type invalidateOp struct {
	Sector      uint64   `yaml:"sector"`
	SectorCount uint64   `yaml:"sector-count"`
	PageIDs     []uint64 `yaml:"page-ids"`
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var s scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	return &s, nil
}
