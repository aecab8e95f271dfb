package cache

import "fmt"

// recencyList is the process-global intrusive doubly-linked list
// ordering every live cache entry across every backend from least- to
// most-recently touched. It is deliberately a plain, unsynchronized
// structure: the single recency lock that guards it lives on Cache
// (cache.go), matching the lock-order discipline in spec.md §5 (index
// lock before recency lock). Every operation here is O(1), as required
// for use from interrupt/completion context.
//
// The design note in spec.md §4.3 calls out a bug in the original C
// source: touching an already-linked entry rotated the *head* of the
// list to the tail, regardless of which entry was accessed, which
// degrades recency tracking to round-robin. touch here always moves the
// accessed entry itself.
type recencyList struct {
	head, tail *cacheEntry
	length     int
}

// touch links e at the tail if it isn't linked yet, or moves it there if
// it already is.
func (l *recencyList) touch(e *cacheEntry) {
	if e.linked {
		l.unlink(e)
	}
	l.linkTail(e)
}

// linkTail attaches e, which must not already be linked, at the tail.
func (l *recencyList) linkTail(e *cacheEntry) {
	if e.linked {
		panic(fmt.Sprintf("cache: entry for block %d linked twice", e.blockNo))
	}
	e.prev = l.tail
	e.next = nil
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	e.linked = true
	l.length++
}

// unlink detaches e without destroying it. It is a no-op if e is not
// currently linked.
func (l *recencyList) unlink(e *cacheEntry) {
	if !e.linked {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
	e.linked = false
	l.length--
}
