// Package table implements the table heap: an unordered, singly linked
// list of slotted table pages holding one table's rows (spec §4.6),
// grounded on original_source/src/storage/table_heap.cpp.
package table

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/page"
	"github.com/cinderdb/cinderdb/internal/record"
)

// Heap owns a table's first page ID and walks the page->NextPageID chain
// to insert, fetch, and scan rows. It holds no lock-manager reference
// itself (spec §4.8's Lock Manager is an executor-level concern, acquired
// around these calls) — TableHeap here is pure storage, matching the
// layering original_source's executor imposes one level up.
type Heap struct {
	pool        *buffer.Pool
	schema      *record.Schema
	firstPageID common.PageID
	log         *zap.Logger
}

// Create allocates a fresh, empty first page and returns a new Heap
// (original_source's TableHeap constructor path that builds first_page_id_
// via NewPage).
func Create(pool *buffer.Pool, schema *record.Schema, log *zap.Logger) (*Heap, error) {
	g, ok, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("table: buffer pool exhausted creating table heap")
	}
	tp := page.AsTablePage(g.Data())
	tp.Init(g.PageID(), common.InvalidPageID)
	id := g.PageID()
	g.MarkDirty()
	g.Unpin()
	return &Heap{pool: pool, schema: schema, firstPageID: id, log: log}, nil
}

// Open reattaches to an existing heap whose first page ID was recorded by
// the catalog.
func Open(pool *buffer.Pool, schema *record.Schema, firstPageID common.PageID, log *zap.Logger) *Heap {
	return &Heap{pool: pool, schema: schema, firstPageID: firstPageID, log: log}
}

func (h *Heap) FirstPageID() common.PageID { return h.firstPageID }

// maxTupleSize is the largest a serialized row can ever be: it must fit
// inside one fresh table page alongside its own slot entry.
func (h *Heap) maxTupleSize() uint32 {
	empty := page.AsTablePage(page.NewRaw())
	empty.Init(0, common.InvalidPageID)
	return empty.FreeSpaceRemaining() - 8 // one slot directory entry
}

// InsertTuple serializes row against the heap's schema and appends it to
// the first page with room, extending the page chain if every existing
// page is full (mirrors TableHeap::InsertTuple's while(1) walk).
func (h *Heap) InsertTuple(row *record.Row) (common.RowID, error) {
	size := row.GetSerializedSize(h.schema)
	if size > h.maxTupleSize() {
		return common.InvalidRowID, fmt.Errorf("table: row of %d bytes exceeds max tuple size %d", size, h.maxTupleSize())
	}
	buf := make([]byte, size)
	if _, err := row.SerializeTo(buf, h.schema); err != nil {
		return common.InvalidRowID, err
	}

	pageID := h.firstPageID
	for {
		g, ok, err := h.pool.FetchPage(pageID)
		if err != nil {
			return common.InvalidRowID, err
		}
		if !ok {
			return common.InvalidRowID, fmt.Errorf("table: could not fetch page %d", pageID)
		}
		tp := page.AsTablePage(g.Data())
		if slot, ok := tp.InsertTuple(buf); ok {
			g.MarkDirty()
			g.Unpin()
			row.RID = common.RowID{PageID: pageID, SlotNum: slot}
			return row.RID, nil
		}

		next := tp.NextPageID()
		if !next.Valid() {
			ng, ok, err := h.pool.NewPage()
			if err != nil {
				g.Unpin()
				return common.InvalidRowID, err
			}
			if !ok {
				g.Unpin()
				return common.InvalidRowID, fmt.Errorf("table: buffer pool exhausted extending heap")
			}
			ntp := page.AsTablePage(ng.Data())
			ntp.Init(ng.PageID(), pageID)
			tp.SetNextPageID(ng.PageID())
			g.MarkDirty()
			g.Unpin()
			pageID = ng.PageID()
			ng.Unpin()
			continue
		}
		g.Unpin()
		pageID = next
	}
}

// GetTuple fetches and deserializes the row at rid.
func (h *Heap) GetTuple(rid common.RowID) (*record.Row, error) {
	g, ok, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("table: page %d not found", rid.PageID)
	}
	defer g.Unpin()

	tp := page.AsTablePage(g.Data())
	raw, ok := tp.GetTuple(rid.SlotNum)
	if !ok {
		return nil, fmt.Errorf("table: row %s not found or deleted", rid)
	}
	row, _, err := record.DeserializeFromRow(raw, h.schema)
	if err != nil {
		return nil, err
	}
	row.RID = rid
	return row, nil
}

// MarkDelete tombstones rid without reclaiming space (spec §4.6: the
// two-phase delete protocol strict 2PL relies on to allow rollback).
func (h *Heap) MarkDelete(rid common.RowID) error {
	g, ok, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("table: page %d not found", rid.PageID)
	}
	defer g.Unpin()
	if !page.AsTablePage(g.Data()).MarkDelete(rid.SlotNum) {
		return fmt.Errorf("table: row %s already deleted or invalid", rid)
	}
	g.MarkDirty()
	return nil
}

// RollbackDelete undoes a MarkDelete that was never committed.
func (h *Heap) RollbackDelete(rid common.RowID) error {
	g, ok, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("table: page %d not found", rid.PageID)
	}
	defer g.Unpin()
	if !page.AsTablePage(g.Data()).RollbackDelete(rid.SlotNum) {
		return fmt.Errorf("table: row %s invalid", rid)
	}
	g.MarkDirty()
	return nil
}

// ApplyDelete physically reclaims a previously mark-deleted row's storage.
func (h *Heap) ApplyDelete(rid common.RowID) error {
	g, ok, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("table: page %d not found", rid.PageID)
	}
	defer g.Unpin()
	page.AsTablePage(g.Data()).ApplyDelete(rid.SlotNum)
	g.MarkDirty()
	return nil
}

// UpdateTuple tries an in-place update first; if the new row no longer
// fits the page (even after reclaiming the old tuple's space) it falls
// back to delete-then-reinsert, returning the row's new RID (spec §4.6,
// original_source's res==-3 branch of TableHeap::UpdateTuple).
func (h *Heap) UpdateTuple(row *record.Row, rid common.RowID) (common.RowID, error) {
	size := row.GetSerializedSize(h.schema)
	buf := make([]byte, size)
	if _, err := row.SerializeTo(buf, h.schema); err != nil {
		return common.InvalidRowID, err
	}

	g, ok, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return common.InvalidRowID, err
	}
	if !ok {
		return common.InvalidRowID, fmt.Errorf("table: page %d not found", rid.PageID)
	}
	tp := page.AsTablePage(g.Data())
	if tp.UpdateTuple(rid.SlotNum, buf) {
		g.MarkDirty()
		g.Unpin()
		return rid, nil
	}
	g.Unpin()

	if err := h.ApplyDelete(rid); err != nil {
		return common.InvalidRowID, err
	}
	return h.InsertTuple(row)
}
