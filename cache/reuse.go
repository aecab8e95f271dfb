package cache

import "encoding/binary"

// reuseClass is the outcome of a single observe call, per spec.md §4.4.
type reuseClass int

const (
	reuseUnrecognized reuseClass = iota
	reuseSame
	reuseChanged
)

// checksumPage computes the content-agnostic detector checksum: modular
// 64-bit addition over every 8-byte word in data. Trailing bytes that
// don't make up a full word are ignored, which only ever widens the
// (already tolerated) collision rate and never affects correctness,
// since the detector only feeds advisory counters.
func checksumPage(data []byte) uint64 {
	var sum uint64
	n := len(data) - len(data)%8
	for i := 0; i < n; i += 8 {
		sum += binary.LittleEndian.Uint64(data[i : i+8])
	}
	return sum
}

// observe records the checksum of a page and classifies it against the
// last checksum seen for the same page identity, updating this
// backend's counters. Caller must hold idx.mu.
//
// Allocation failure inserting a brand-new checksum is not representable
// in this Go port (map writes don't fail); the C source's silent-drop
// failure mode for that case has no analogue here.
func (idx *BackendIndex) observe(pageID uint64, checksum uint64) reuseClass {
	prev, known := idx.pageChecksums[pageID]

	var class reuseClass
	switch {
	case !known:
		class = reuseUnrecognized
		idx.unrecognizedPages++
	case prev == checksum:
		class = reuseSame
		idx.samePages++
	default:
		class = reuseChanged
		idx.changedPages++
	}

	idx.pageChecksums[pageID] = checksum
	return class
}

// forget removes a page's checksum, called by invalidate_range for every
// page owned by the invalidated request so the detector doesn't
// misclassify a deliberate overwrite as "same" on its next observation.
// Caller must hold idx.mu.
func (idx *BackendIndex) forget(pageID uint64) {
	delete(idx.pageChecksums, pageID)
}
