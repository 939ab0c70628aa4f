package index

import (
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/page"
)

// Iterator walks a tree's leaves left to right in key order, grounded on
// original_source/src/index/index_iterator.cpp, reshaped into Go's
// idiomatic for-it.Valid(); it.Next() loop instead of operator++/operator*.
type Iterator struct {
	tree    *Tree
	pageID  common.PageID
	slot    uint32
	key     []byte
	value   common.RowID
	atEnd   bool
	err     error
}

// Begin returns an iterator over every entry, left to right.
func (t *Tree) Begin() *Iterator {
	t.mu.RLock()
	leafID, err := t.beginLeaf()
	t.mu.RUnlock()

	it := &Iterator{tree: t, pageID: leafID, slot: 0, err: err}
	it.atEnd = err != nil || !leafID.Valid()
	if !it.atEnd {
		it.load()
	}
	return it
}

// BeginAt returns an iterator positioned at the first entry with key >= key.
func (t *Tree) BeginAt(key []byte) *Iterator {
	t.mu.RLock()
	leafID, slot, err := t.beginAt(key)
	t.mu.RUnlock()

	it := &Iterator{tree: t, pageID: leafID, slot: slot, err: err}
	it.atEnd = err != nil || !leafID.Valid()
	if !it.atEnd {
		it.load()
	}
	return it
}

func (it *Iterator) Valid() bool { return !it.atEnd && it.err == nil }

func (it *Iterator) Err() error { return it.err }

func (it *Iterator) Key() []byte { return it.key }

func (it *Iterator) Value() common.RowID { return it.value }

// load reads the entry at (pageID, slot) into key/value, advancing to the
// next leaf if slot has run past the current page's size.
func (it *Iterator) load() {
	t := it.tree
	t.mu.RLock()
	defer t.mu.RUnlock()

	for {
		g, ok, err := t.pool.FetchPage(it.pageID)
		if err != nil {
			it.err = err
			it.atEnd = true
			return
		}
		if !ok {
			it.atEnd = true
			return
		}
		leaf := page.AsLeafPage(g.Data())
		if it.slot < leaf.Size() {
			it.key = append([]byte(nil), leaf.KeyAt(it.slot)...)
			it.value = leaf.ValueAt(it.slot)
			g.Unpin()
			return
		}
		next := leaf.NextLeafID()
		g.Unpin()
		if !next.Valid() {
			it.atEnd = true
			return
		}
		it.pageID = next
		it.slot = 0
	}
}

// Next advances the iterator to the next entry in key order.
func (it *Iterator) Next() {
	if it.atEnd {
		return
	}
	it.slot++
	it.load()
}
