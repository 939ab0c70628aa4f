// Package replacer implements the LRU Replacer of spec §4.2: the set of
// buffer frames that are currently evictable, in least-recently-unpinned
// order.
//
// Grounded on intellect4all-storage-engines/btree/pager.go's own
// container/list + map LRU bookkeeping (lru *list.List, lruMap
// map[uint32]*list.Element), generalized from "pages in a page cache" to
// "frames eligible for eviction" per spec §4.2's three-operation contract.
package replacer

import (
	"container/list"
	"sync"

	"github.com/cinderdb/cinderdb/internal/common"
)

// LRU tracks frames eligible for eviction. The frame at the front of the
// list is the next victim (least recently unpinned); Unpin appends to the
// back (most-recently-unpinned end).
type LRU struct {
	mu      sync.Mutex
	list    *list.List
	entries map[common.FrameID]*list.Element
}

func New() *LRU {
	return &LRU{
		list:    list.New(),
		entries: make(map[common.FrameID]*list.Element),
	}
}

// Pin removes f from the evictable set, e.g. because it was just fetched.
func (r *LRU) Pin(f common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.entries[f]; ok {
		r.list.Remove(el)
		delete(r.entries, f)
	}
}

// Unpin inserts f at the most-recently-unpinned end. Idempotent: a second
// Unpin on a frame already in the set is a no-op.
func (r *LRU) Unpin(f common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[f]; ok {
		return
	}
	r.entries[f] = r.list.PushBack(f)
}

// Victim removes and returns the least-recently-unpinned frame, if any.
func (r *LRU) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	front := r.list.Front()
	if front == nil {
		return 0, false
	}
	f := front.Value.(common.FrameID)
	r.list.Remove(front)
	delete(r.entries, f)
	return f, true
}

// Size reports how many frames are currently evictable (test/introspection
// hook).
func (r *LRU) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Len()
}
