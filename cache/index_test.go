package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBackendIndex_InsertLookupRemove(t *testing.T) {
	idx := NewBackendIndex(uuid.New())
	e := &cacheEntry{blockNo: 5}

	require.Nil(t, idx.lookup(5))

	idx.insert(5, e)
	require.Same(t, e, idx.lookup(5))

	require.Same(t, e, idx.remove(5))
	require.Nil(t, idx.lookup(5))
	require.Nil(t, idx.remove(5))
}

func TestBackendIndex_InsertDuplicatePanics(t *testing.T) {
	idx := NewBackendIndex(uuid.New())
	idx.insert(5, &cacheEntry{blockNo: 5})

	require.Panics(t, func() {
		idx.insert(5, &cacheEntry{blockNo: 5})
	})
}

func TestBackendIndex_CountersIndependentPerBackend(t *testing.T) {
	a := NewBackendIndex(uuid.New())
	b := NewBackendIndex(uuid.New())

	a.observe(1, 100)
	a.observe(1, 100)
	b.observe(1, 200)

	unrecognized, same, changed := a.Counters()
	require.Equal(t, uint64(1), unrecognized)
	require.Equal(t, uint64(1), same)
	require.Equal(t, uint64(0), changed)

	unrecognized, same, changed = b.Counters()
	require.Equal(t, uint64(1), unrecognized)
	require.Equal(t, uint64(0), same)
	require.Equal(t, uint64(0), changed)
}
