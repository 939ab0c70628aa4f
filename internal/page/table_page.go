package page

import "github.com/cinderdb/cinderdb/internal/common"

// Table page header layout (spec §3/§4.4), grounded bit-for-bit on
// original_source/src/page/table_page.cpp's TablePage::Init /
// InsertTuple / ApplyDelete:
//
//	[0:4]   page ID            (int32, little-endian — the page "self-identifies")
//	[4:8]   previous page ID    (int32)
//	[8:12]  next page ID        (int32)
//	[12:16] free space pointer  (uint32 — offset where tuple bytes begin; starts at PageSize)
//	[16:20] tuple count         (uint32)
//	[20:]   slot directory: tupleCount * {offset uint32, size uint32}, one entry per tuple
//
// Tuples are packed contiguously against the bottom of the page
// (free space pointer .. PageSize); inserting decrements the free space
// pointer and writes the new tuple just below the old boundary. A slot's
// size field reserves its top bit as the tombstone flag ("marked delete");
// size == 0 means the slot was never used or has been reclaimed by
// ApplyDelete.
const (
	tpPageIDOff      = 0
	tpPrevPageIDOff  = 4
	tpNextPageIDOff  = 8
	tpFreeSpaceOff   = 12
	tpTupleCountOff  = 16
	tpHeaderSize     = 20
	tpSlotSize       = 8
	tpTombstoneBit   = uint32(1) << 31
	tpSizeMask       = tpTombstoneBit - 1
)

type TablePage struct {
	buf []byte
}

func AsTablePage(buf []byte) *TablePage { return &TablePage{buf: buf} }

// Init formats a freshly allocated frame as an empty table page.
func (t *TablePage) Init(id, prev common.PageID) {
	t.SetPageID(id)
	t.SetPrevPageID(prev)
	t.SetNextPageID(common.InvalidPageID)
	t.setFreeSpacePointer(common.PageSize)
	t.setTupleCount(0)
}

func (t *TablePage) Bytes() []byte { return t.buf }

func (t *TablePage) PageID() common.PageID     { return pageIDAt(t.buf, tpPageIDOff) }
func (t *TablePage) SetPageID(id common.PageID) { putPageIDAt(t.buf, tpPageIDOff, id) }

func (t *TablePage) PrevPageID() common.PageID      { return pageIDAt(t.buf, tpPrevPageIDOff) }
func (t *TablePage) SetPrevPageID(id common.PageID) { putPageIDAt(t.buf, tpPrevPageIDOff, id) }

func (t *TablePage) NextPageID() common.PageID      { return pageIDAt(t.buf, tpNextPageIDOff) }
func (t *TablePage) SetNextPageID(id common.PageID) { putPageIDAt(t.buf, tpNextPageIDOff, id) }

func (t *TablePage) freeSpacePointer() uint32        { return u32At(t.buf, tpFreeSpaceOff) }
func (t *TablePage) setFreeSpacePointer(v uint32)    { putU32At(t.buf, tpFreeSpaceOff, v) }

func (t *TablePage) TupleCount() uint32     { return u32At(t.buf, tpTupleCountOff) }
func (t *TablePage) setTupleCount(v uint32) { putU32At(t.buf, tpTupleCountOff, v) }

// FreeSpaceRemaining is the room between the end of the slot directory and
// the start of the tuple area.
func (t *TablePage) FreeSpaceRemaining() uint32 {
	used := uint32(tpHeaderSize) + t.TupleCount()*tpSlotSize
	fsp := t.freeSpacePointer()
	if fsp < used {
		return 0
	}
	return fsp - used
}

func (t *TablePage) slotOff(slot uint32) int { return tpHeaderSize + int(slot)*tpSlotSize }

func (t *TablePage) tupleOffset(slot uint32) uint32 { return u32At(t.buf, t.slotOff(slot)) }
func (t *TablePage) setTupleOffset(slot uint32, v uint32) {
	putU32At(t.buf, t.slotOff(slot), v)
}

func (t *TablePage) rawSize(slot uint32) uint32 { return u32At(t.buf, t.slotOff(slot)+4) }
func (t *TablePage) setRawSize(slot uint32, v uint32) {
	putU32At(t.buf, t.slotOff(slot)+4, v)
}

// TupleSize returns the slot's stored length with the tombstone bit masked
// off (what the original and spec §3 call "tuple size").
func (t *TablePage) TupleSize(slot uint32) uint32 { return t.rawSize(slot) & tpSizeMask }

func IsDeleted(rawSize uint32) bool { return rawSize&tpTombstoneBit != 0 }

func (t *TablePage) IsDeleted(slot uint32) bool { return IsDeleted(t.rawSize(slot)) }

// InsertTuple writes data into a reused empty slot or a freshly appended
// one. Returns the slot number and true on success, false if there is not
// enough free space.
func (t *TablePage) InsertTuple(data []byte) (uint32, bool) {
	size := uint32(len(data))
	count := t.TupleCount()

	slot := count
	for i := uint32(0); i < count; i++ {
		if t.rawSize(i) == 0 {
			slot = i
			break
		}
	}

	needsNewSlot := slot == count
	extra := uint32(0)
	if needsNewSlot {
		extra = tpSlotSize
	}
	if t.FreeSpaceRemaining() < size+extra {
		return 0, false
	}

	fsp := t.freeSpacePointer() - size
	copy(t.buf[fsp:fsp+size], data)
	t.setFreeSpacePointer(fsp)
	t.setTupleOffset(slot, fsp)
	t.setRawSize(slot, size)
	if needsNewSlot {
		t.setTupleCount(count + 1)
	}
	return slot, true
}

// GetTuple returns a copy of a live tuple's bytes.
func (t *TablePage) GetTuple(slot uint32) ([]byte, bool) {
	if slot >= t.TupleCount() {
		return nil, false
	}
	raw := t.rawSize(slot)
	if IsDeleted(raw) || raw == 0 {
		return nil, false
	}
	off := t.tupleOffset(slot)
	out := make([]byte, raw)
	copy(out, t.buf[off:off+raw])
	return out, true
}

// MarkDelete sets the tombstone bit on a live tuple. Returns false if the
// slot is out of range or already deleted.
func (t *TablePage) MarkDelete(slot uint32) bool {
	if slot >= t.TupleCount() {
		return false
	}
	raw := t.rawSize(slot)
	if IsDeleted(raw) {
		return false
	}
	if raw > 0 {
		t.setRawSize(slot, raw|tpTombstoneBit)
	}
	return true
}

// RollbackDelete clears the tombstone bit, undoing MarkDelete.
func (t *TablePage) RollbackDelete(slot uint32) bool {
	if slot >= t.TupleCount() {
		return false
	}
	raw := t.rawSize(slot)
	if IsDeleted(raw) {
		t.setRawSize(slot, raw&tpSizeMask)
	}
	return true
}

// ApplyDelete physically reclaims a tombstoned slot's storage, sliding
// every tuple that lived below it (toward the free space pointer) up by
// the reclaimed size, and zeroing the slot.
func (t *TablePage) ApplyDelete(slot uint32) {
	if slot >= t.TupleCount() {
		return
	}
	raw := t.rawSize(slot)
	size := raw & tpSizeMask
	if size == 0 {
		return
	}
	off := t.tupleOffset(slot)
	fsp := t.freeSpacePointer()

	// shift [fsp, off) up by size, so the hole at [off, off+size) closes
	// and the tuple area stays contiguous.
	copy(t.buf[fsp+size:off+size], t.buf[fsp:off])
	t.setFreeSpacePointer(fsp + size)
	t.setRawSize(slot, 0)
	t.setTupleOffset(slot, 0)

	for i := uint32(0); i < t.TupleCount(); i++ {
		r := t.rawSize(i)
		s := r & tpSizeMask
		if s == 0 {
			continue
		}
		o := t.tupleOffset(i)
		if o < off {
			t.setTupleOffset(i, o+size)
		}
	}
}

// UpdateTuple overwrites slot's bytes with newData in place. Returns false
// if the slot is invalid/deleted or there isn't enough free space for the
// new size, in which case the caller's policy (spec §4.6) is delete+insert.
func (t *TablePage) UpdateTuple(slot uint32, newData []byte) bool {
	if slot >= t.TupleCount() {
		return false
	}
	raw := t.rawSize(slot)
	if IsDeleted(raw) {
		return false
	}
	oldSize := raw & tpSizeMask
	newSize := uint32(len(newData))
	if t.FreeSpaceRemaining()+oldSize < newSize {
		return false
	}

	oldOff := t.tupleOffset(slot)
	fsp := t.freeSpacePointer()
	newFsp := fsp + oldSize - newSize

	// shift [fsp, oldOff) down/up by (oldSize - newSize) so the tuple area
	// stays contiguous after the size change, then write the new bytes
	// just below the shifted region.
	copy(t.buf[newFsp:newFsp+(oldOff-fsp)], t.buf[fsp:oldOff])
	copy(t.buf[oldOff+oldSize-newSize:oldOff+oldSize], newData)
	t.setFreeSpacePointer(newFsp)
	t.setRawSize(slot, newSize)

	// Includes slot itself: its own new offset (oldOff+oldSize-newSize,
	// where the new bytes were just written) falls out of this same
	// formula, matching original_source's TablePage::UpdateTuple.
	for i := uint32(0); i < t.TupleCount(); i++ {
		r := t.rawSize(i)
		if r&tpSizeMask == 0 {
			continue
		}
		o := t.tupleOffset(i)
		if o < oldOff+oldSize {
			t.setTupleOffset(i, o+oldSize-newSize)
		}
	}
	return true
}

// FirstTupleSlot returns the slot of the first live tuple, if any.
func (t *TablePage) FirstTupleSlot() (uint32, bool) {
	for i := uint32(0); i < t.TupleCount(); i++ {
		if !t.IsDeleted(i) && t.rawSize(i) != 0 {
			return i, true
		}
	}
	return 0, false
}

// NextTupleSlot returns the next live slot strictly after cur, if any.
func (t *TablePage) NextTupleSlot(cur uint32) (uint32, bool) {
	for i := cur + 1; i < t.TupleCount(); i++ {
		if !t.IsDeleted(i) && t.rawSize(i) != 0 {
			return i, true
		}
	}
	return 0, false
}
