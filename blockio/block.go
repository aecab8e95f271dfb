// Package blockio implements the block-copy primitive: transferring a
// fixed-size block between a host memory page and an in-cache buffer.
package blockio

import (
	"errors"

	"github.com/jpaton/xen-blkback-ljx/hostpage"
)

// ErrMappingFailed is returned when the page's mapping could not be
// established. Re-exported from hostpage so callers need not import
// that package just to compare errors.
var ErrMappingFailed = hostpage.ErrMappingFailed

// ErrShortPage is an invariant violation: the page mapped to fewer bytes
// than the copy requires. This should never happen for a correctly sized
// host page and is not part of the cache's ordinary failure taxonomy.
var ErrShortPage = errors.New("blockio: page shorter than requested copy")

// Direction selects which way Copy moves bytes.
type Direction int

const (
	// FromPage copies host page contents into the block buffer (used by
	// store).
	FromPage Direction = iota
	// ToPage copies the block buffer into the host page (used by fetch).
	ToPage
)

// Copy transfers n bytes between page and buf, starting at byte offset 0
// in both. The page's mapping is acquired and released within this call
// on every exit path, including failure.
//
// Copy always starts at offset 0, so the original C primitive's
// start_offset parameter is not needed here. Store copies a whole block;
// fetch copies only the requested sectors. If either the mapped page or
// buf is shorter than n, Copy returns ErrShortPage.
func Copy(page hostpage.Page, buf []byte, n int, dir Direction) error {
	return page.WithBytes(func(mapped []byte) error {
		if len(mapped) < n || len(buf) < n {
			return ErrShortPage
		}
		switch dir {
		case FromPage:
			copy(buf[:n], mapped[:n])
		case ToPage:
			copy(mapped[:n], buf[:n])
		}
		return nil
	})
}
