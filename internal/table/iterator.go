package table

import (
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/page"
	"github.com/cinderdb/cinderdb/internal/record"
)

// Iterator walks a Heap's rows in physical (page, slot) order, skipping
// tombstoned and empty slots, mirroring original_source's TableIterator /
// TableHeap::Begin/FindNextValidRow — reshaped into Go's idiomatic
// for-it.Valid(); it.Next() loop instead of operator++/operator*.
type Iterator struct {
	heap *Heap
	rid  common.RowID
	row  *record.Row
	err  error
}

// Begin returns an iterator positioned at the heap's first live row, or an
// invalid (Valid()==false) iterator if the heap is empty.
func (h *Heap) Begin() *Iterator {
	it := &Iterator{heap: h, rid: common.InvalidRowID}
	it.advance(h.firstPageID, -1)
	return it
}

// Valid reports whether the iterator is positioned on a row.
func (it *Iterator) Valid() bool { return it.rid.Valid() && it.err == nil }

// Err returns the first error encountered while scanning, if any.
func (it *Iterator) Err() error { return it.err }

// Row returns the row the iterator currently points to.
func (it *Iterator) Row() *record.Row { return it.row }

// Next advances the iterator to the next live row.
func (it *Iterator) Next() {
	if !it.rid.Valid() {
		return
	}
	it.advance(it.rid.PageID, int64(it.rid.SlotNum))
}

// advance scans forward for the first live slot strictly after afterSlot
// on pageID (afterSlot == -1 means "from the very start of the page"),
// crossing page boundaries via NextPageID when a page is exhausted.
func (it *Iterator) advance(pageID common.PageID, afterSlot int64) {
	for pageID.Valid() {
		g, ok, err := it.heap.pool.FetchPage(pageID)
		if err != nil {
			it.err = err
			it.rid = common.InvalidRowID
			return
		}
		if !ok {
			it.rid = common.InvalidRowID
			return
		}
		tp := page.AsTablePage(g.Data())

		var slot uint32
		var found bool
		if afterSlot < 0 {
			slot, found = tp.FirstTupleSlot()
		} else {
			slot, found = tp.NextTupleSlot(uint32(afterSlot))
		}
		next := tp.NextPageID()
		g.Unpin()

		if found {
			it.rid = common.RowID{PageID: pageID, SlotNum: slot}
			row, err := it.heap.GetTuple(it.rid)
			if err != nil {
				it.err = err
				it.rid = common.InvalidRowID
				return
			}
			it.row = row
			return
		}

		pageID = next
		afterSlot = -1
	}
	it.rid = common.InvalidRowID
}
