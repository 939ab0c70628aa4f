package page

import "github.com/cinderdb/cinderdb/internal/common"

// Leaf page header (spec §3/§4's "Leaf page (B+-tree)"), grounded on
// original_source/src/page/b_plus_tree_leaf_page.cpp's Init/pairs_off
// layout, generalized from its fixed-width GenericKey to a configurable
// key size carried in the header itself (so a tree opened from disk can
// recover its own KeyManager-agnostic geometry). The leading page-type tag
// mirrors original_source's BPlusTreePage base class, whose first field is
// exactly this: the tree's generic descent (internal/index.findLeafPage)
// must tell a leaf from an internal node before it knows which view to
// construct, so unlike the other page kinds this one self-describes.
//
//	[0:4]   page type     (uint32: pageTypeLeaf)
//	[4:8]   page ID       (int32)
//	[8:12]  parent ID     (int32)
//	[12:16] key size      (uint32, bytes per key)
//	[16:20] size          (uint32, current entry count)
//	[20:24] max size      (uint32)
//	[24:28] next leaf ID  (int32)
//	[28:]   size * (key[keySize] | RowId[8]) pairs, sorted by key
const (
	lpPageTypeOff = 0
	lpPageIDOff   = 4
	lpParentOff   = 8
	lpKeySizeOff  = 12
	lpSizeOff     = 16
	lpMaxSizeOff  = 20
	lpNextLeafOff = 24
	lpHeaderSize  = 28

	rowIDSize = 8 // RowId = {page_id int32, slot_num uint32}

	pageTypeLeaf     = uint32(PageTypeLeaf)
	pageTypeInternal = uint32(PageTypeInternal)
)

// PageTypeLeaf and PageTypeInternal are the two B+-tree page-type tags, a
// generic caller (the tree's descent logic) can check against a freshly
// fetched page's PageType() before deciding which view to construct.
const (
	PageTypeLeaf     uint32 = 1
	PageTypeInternal uint32 = 2
)

func rowIDAt(buf []byte, off int) common.RowID {
	return common.RowID{
		PageID:  common.PageID(i32At(buf, off)),
		SlotNum: u32At(buf, off+4),
	}
}

func putRowIDAt(buf []byte, off int, r common.RowID) {
	putI32At(buf, off, int32(r.PageID))
	putU32At(buf, off+4, r.SlotNum)
}

type LeafPage struct {
	buf []byte
}

func AsLeafPage(buf []byte) *LeafPage { return &LeafPage{buf: buf} }

// LeafMaxSize computes spec §4.7's leaf_max_size: as many (key,RowId) pairs
// as fit in one page body, floored at 2.
func LeafMaxSize(keySize uint32) uint32 {
	n := (uint32(common.PageSize) - lpHeaderSize) / (keySize + rowIDSize)
	if n < 2 {
		n = 2
	}
	return n
}

// PageType returns the leading on-disk tag distinguishing this page from
// an InternalPage. Always pageTypeLeaf for a page formatted by Init.
func (l *LeafPage) PageType() uint32 { return u32At(l.buf, lpPageTypeOff) }

func (l *LeafPage) Init(id, parent common.PageID, keySize uint32) {
	putU32At(l.buf, lpPageTypeOff, pageTypeLeaf)
	l.SetPageID(id)
	l.SetParentID(parent)
	l.setKeySize(keySize)
	l.setSize(0)
	l.setMaxSize(LeafMaxSize(keySize))
	l.SetNextLeafID(common.InvalidPageID)
}

func (l *LeafPage) Bytes() []byte { return l.buf }

func (l *LeafPage) PageID() common.PageID      { return pageIDAt(l.buf, lpPageIDOff) }
func (l *LeafPage) SetPageID(id common.PageID) { putPageIDAt(l.buf, lpPageIDOff, id) }

func (l *LeafPage) ParentID() common.PageID      { return pageIDAt(l.buf, lpParentOff) }
func (l *LeafPage) SetParentID(id common.PageID) { putPageIDAt(l.buf, lpParentOff, id) }

func (l *LeafPage) KeySize() uint32     { return u32At(l.buf, lpKeySizeOff) }
func (l *LeafPage) setKeySize(v uint32) { putU32At(l.buf, lpKeySizeOff, v) }

func (l *LeafPage) Size() uint32     { return u32At(l.buf, lpSizeOff) }
func (l *LeafPage) setSize(v uint32) { putU32At(l.buf, lpSizeOff, v) }

func (l *LeafPage) MaxSize() uint32     { return u32At(l.buf, lpMaxSizeOff) }
func (l *LeafPage) setMaxSize(v uint32) { putU32At(l.buf, lpMaxSizeOff, v) }

func (l *LeafPage) NextLeafID() common.PageID      { return pageIDAt(l.buf, lpNextLeafOff) }
func (l *LeafPage) SetNextLeafID(id common.PageID) { putPageIDAt(l.buf, lpNextLeafOff, id) }

func (l *LeafPage) pairSize() int { return int(l.KeySize()) + rowIDSize }

func (l *LeafPage) pairOff(i uint32) int { return lpHeaderSize + int(i)*l.pairSize() }

func (l *LeafPage) KeyAt(i uint32) []byte {
	off := l.pairOff(i)
	return l.buf[off : off+int(l.KeySize())]
}

func (l *LeafPage) SetKeyAt(i uint32, key []byte) {
	off := l.pairOff(i)
	copy(l.buf[off:off+int(l.KeySize())], key)
}

func (l *LeafPage) ValueAt(i uint32) common.RowID {
	off := l.pairOff(i) + int(l.KeySize())
	return rowIDAt(l.buf, off)
}

func (l *LeafPage) SetValueAt(i uint32, v common.RowID) {
	off := l.pairOff(i) + int(l.KeySize())
	putRowIDAt(l.buf, off, v)
}

// shift moves the [from, l.Size()) window of pairs by delta slots (delta
// may be negative), used by Insert/Remove to keep the array dense.
func (l *LeafPage) shift(from uint32, delta int) {
	size := int(l.Size())
	ps := l.pairSize()
	if delta > 0 {
		for i := size - 1; i >= int(from); i-- {
			copy(l.buf[l.pairOff(uint32(i+delta)):], l.buf[l.pairOff(uint32(i)):l.pairOff(uint32(i))+ps])
		}
	} else if delta < 0 {
		for i := int(from); i < size; i++ {
			copy(l.buf[l.pairOff(uint32(i+delta)):], l.buf[l.pairOff(uint32(i)):l.pairOff(uint32(i))+ps])
		}
	}
}

// InsertAt inserts (key, value) at index idx, shifting later pairs right.
func (l *LeafPage) InsertAt(idx uint32, key []byte, value common.RowID) {
	l.shift(idx, 1)
	l.setSize(l.Size() + 1)
	l.SetKeyAt(idx, key)
	l.SetValueAt(idx, value)
}

// RemoveAt removes the pair at idx, shifting later pairs left.
func (l *LeafPage) RemoveAt(idx uint32) {
	l.shift(idx+1, -1)
	l.setSize(l.Size() - 1)
}

// MoveHalfTo moves the upper half of this leaf's entries to recipient
// (spec §4.7 split: "move the upper half of entries").
func (l *LeafPage) MoveHalfTo(recipient *LeafPage) {
	half := l.Size() / 2
	start := l.Size() - half
	for i := uint32(0); i < half; i++ {
		recipient.appendRaw(l.KeyAt(start+i), l.ValueAt(start+i))
	}
	l.setSize(start)
}

// MoveAllTo moves every entry to recipient (used by coalesce).
func (l *LeafPage) MoveAllTo(recipient *LeafPage) {
	for i := uint32(0); i < l.Size(); i++ {
		recipient.appendRaw(l.KeyAt(i), l.ValueAt(i))
	}
	l.setSize(0)
}

func (l *LeafPage) appendRaw(key []byte, v common.RowID) {
	idx := l.Size()
	l.setSize(idx + 1)
	l.SetKeyAt(idx, key)
	l.SetValueAt(idx, v)
}

// MoveFirstToEndOf (redistribute, borrow-from-right case).
func (l *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	recipient.appendRaw(l.KeyAt(0), l.ValueAt(0))
	l.RemoveAt(0)
}

// MoveLastToFrontOf (redistribute, borrow-from-left case).
func (l *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	last := l.Size() - 1
	recipient.InsertAt(0, l.KeyAt(last), l.ValueAt(last))
	l.setSize(last)
}

// FindSlot performs a binary search for the first index whose key is >= key
// (spec §4.7's Search/Insert descent), returning Size() if none qualifies.
func (l *LeafPage) FindSlot(key []byte, cmp func(a, b []byte) int) uint32 {
	lo, hi := uint32(0), l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
