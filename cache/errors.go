package cache

import "errors"

// Error taxonomy from spec.md §7. The internal fetch/store helpers in
// cache.go return these; Fetch/Store themselves still degrade to a
// bool/no-op at the public API, but use errors.Is against these
// sentinels to decide what's worth a metric bump and a log line versus
// an expected, silent miss.
var (
	// ErrMisaligned means a sector number was not block-aligned.
	ErrMisaligned = errors.New("cache: sector not block-aligned")
	// ErrOutOfMemory means the preallocated entry pool is exhausted.
	ErrOutOfMemory = errors.New("cache: entry pool exhausted")
)
