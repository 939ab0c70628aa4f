package page

import "github.com/cinderdb/cinderdb/internal/common"

// Internal page header — identical fields to the leaf page minus the
// next-leaf thread (spec §3: "Same header except 'next-leaf' replaced by
// nothing"). Body layout mirrors the leaf page's packed (key,value) pairs
// so insert/split/redistribute share the same shifting logic, but here
// value[i] is a child PageID (padded to the same 8-byte width as a RowId,
// per spec §4.7's "internal_max_size is set equal [to leaf_max_size]") and
// key[i] is only meaningful for i in [1, size): "the first key slot is
// unused" (spec §3). Leads with the same page-type tag as LeafPage so the
// tree's generic descent can tell the two kinds apart on disk.
//
//	[0:4]   page type (pageTypeInternal)
//	[4:8]   page ID
//	[8:12]  parent ID
//	[12:16] key size
//	[16:20] size (number of child pointers == number of pairs stored)
//	[20:24] max size
//	[24:]   size * (key[keySize] | PageID padded to 8 bytes)
const (
	ipPageTypeOff = 0
	ipPageIDOff   = 4
	ipParentOff   = 8
	ipKeySizeOff  = 12
	ipSizeOff     = 16
	ipMaxSizeOff  = 20
	ipHeaderSize  = 24
)

type InternalPage struct {
	buf []byte
}

func AsInternalPage(buf []byte) *InternalPage { return &InternalPage{buf: buf} }

// InternalMaxSize mirrors LeafMaxSize: spec §4.7 sets it equal to leaf_max_size.
func InternalMaxSize(keySize uint32) uint32 { return LeafMaxSize(keySize) }

// PageType returns the leading on-disk tag distinguishing this page from a
// LeafPage. Always pageTypeInternal for a page formatted by Init.
func (p *InternalPage) PageType() uint32 { return u32At(p.buf, ipPageTypeOff) }

func (p *InternalPage) Init(id, parent common.PageID, keySize uint32) {
	putU32At(p.buf, ipPageTypeOff, pageTypeInternal)
	p.SetPageID(id)
	p.SetParentID(parent)
	p.setKeySize(keySize)
	p.setSize(0)
	p.setMaxSize(InternalMaxSize(keySize))
}

func (p *InternalPage) Bytes() []byte { return p.buf }

func (p *InternalPage) PageID() common.PageID      { return pageIDAt(p.buf, ipPageIDOff) }
func (p *InternalPage) SetPageID(id common.PageID) { putPageIDAt(p.buf, ipPageIDOff, id) }

func (p *InternalPage) ParentID() common.PageID      { return pageIDAt(p.buf, ipParentOff) }
func (p *InternalPage) SetParentID(id common.PageID) { putPageIDAt(p.buf, ipParentOff, id) }

func (p *InternalPage) KeySize() uint32     { return u32At(p.buf, ipKeySizeOff) }
func (p *InternalPage) setKeySize(v uint32) { putU32At(p.buf, ipKeySizeOff, v) }

func (p *InternalPage) Size() uint32     { return u32At(p.buf, ipSizeOff) }
func (p *InternalPage) setSize(v uint32) { putU32At(p.buf, ipSizeOff, v) }

func (p *InternalPage) MaxSize() uint32     { return u32At(p.buf, ipMaxSizeOff) }
func (p *InternalPage) setMaxSize(v uint32) { putU32At(p.buf, ipMaxSizeOff, v) }

func (p *InternalPage) pairSize() int    { return int(p.KeySize()) + rowIDSize }
func (p *InternalPage) pairOff(i uint32) int { return ipHeaderSize + int(i)*p.pairSize() }

// KeyAt is only meaningful for i in [1, Size()); index 0 is the unused slot
// spec §3 describes.
func (p *InternalPage) KeyAt(i uint32) []byte {
	off := p.pairOff(i)
	return p.buf[off : off+int(p.KeySize())]
}

func (p *InternalPage) SetKeyAt(i uint32, key []byte) {
	off := p.pairOff(i)
	copy(p.buf[off:off+int(p.KeySize())], key)
}

func (p *InternalPage) ValueAt(i uint32) common.PageID {
	off := p.pairOff(i) + int(p.KeySize())
	return pageIDAt(p.buf, off)
}

func (p *InternalPage) SetValueAt(i uint32, v common.PageID) {
	off := p.pairOff(i) + int(p.KeySize())
	putPageIDAt(p.buf, off, v)
}

func (p *InternalPage) shift(from uint32, delta int) {
	size := int(p.Size())
	ps := p.pairSize()
	if delta > 0 {
		for i := size - 1; i >= int(from); i-- {
			copy(p.buf[p.pairOff(uint32(i+delta)):], p.buf[p.pairOff(uint32(i)):p.pairOff(uint32(i))+ps])
		}
	} else if delta < 0 {
		for i := int(from); i < size; i++ {
			copy(p.buf[p.pairOff(uint32(i+delta)):], p.buf[p.pairOff(uint32(i)):p.pairOff(uint32(i))+ps])
		}
	}
}

// Init2 sets up a brand new root with exactly two children and one
// separator key (used when splitting the root, spec §4.7).
func (p *InternalPage) Init2(id, parent common.PageID, keySize uint32, left, right common.PageID, sep []byte) {
	p.Init(id, parent, keySize)
	p.setSize(2)
	p.SetValueAt(0, left)
	p.SetKeyAt(1, sep)
	p.SetValueAt(1, right)
}

// InsertAfter inserts (sep, child) right after the entry holding leftValue
// (the usual "insert promoted key+new child next to the page that split").
// Returns false if leftValue isn't found among the current children.
func (p *InternalPage) InsertAfter(leftValue common.PageID, sep []byte, child common.PageID) bool {
	idx, ok := p.indexOfValue(leftValue)
	if !ok {
		return false
	}
	at := idx + 1
	p.shift(at, 1)
	p.setSize(p.Size() + 1)
	p.SetKeyAt(at, sep)
	p.SetValueAt(at, child)
	return true
}

func (p *InternalPage) indexOfValue(v common.PageID) (uint32, bool) {
	for i := uint32(0); i < p.Size(); i++ {
		if p.ValueAt(i) == v {
			return i, true
		}
	}
	return 0, false
}

// IndexOfValue is the exported lookup used by the tree when it needs to
// know "where among my parent's children am I".
func (p *InternalPage) IndexOfValue(v common.PageID) (uint32, bool) { return p.indexOfValue(v) }

// RemoveAt removes the pair at idx, shifting later pairs left.
func (p *InternalPage) RemoveAt(idx uint32) {
	p.shift(idx+1, -1)
	p.setSize(p.Size() - 1)
}

// Lookup returns the child subtree covering key: the largest i such that
// key[i] <= key (or 0 if key is smaller than every separator).
func (p *InternalPage) Lookup(key []byte, cmp func(a, b []byte) int) common.PageID {
	lo, hi := uint32(1), p.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(p.KeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return p.ValueAt(lo - 1)
}

func (p *InternalPage) appendRaw(key []byte, v common.PageID) {
	idx := p.Size()
	p.setSize(idx + 1)
	if idx > 0 {
		p.SetKeyAt(idx, key)
	}
	p.SetValueAt(idx, v)
}

// MoveHalfTo moves the upper half of entries to recipient, mirroring
// LeafPage.MoveHalfTo. The caller is responsible for fixing up the moved
// children's ParentID and for wiring the promoted separator into the
// parent (spec §4.7's internal-node split: "the middle key is promoted,
// not copied").
func (p *InternalPage) MoveHalfTo(recipient *InternalPage) {
	half := p.Size() / 2
	start := p.Size() - half
	recipient.setSize(0)
	for i := uint32(0); i < half; i++ {
		recipient.appendRaw(p.KeyAt(start+i), p.ValueAt(start+i))
	}
	if half > 0 {
		// Park the middle key in recipient's unused slot 0 so the caller
		// can read it back (KeyAt(0)) and promote it to the parent.
		recipient.SetKeyAt(0, p.KeyAt(start))
	}
	p.setSize(start)
}

// MoveAllTo appends every entry (the first with key sepFromParent, which
// replaces index-0's unused slot semantics) to recipient, used by coalesce.
func (p *InternalPage) MoveAllTo(recipient *InternalPage, sepFromParent []byte) {
	for i := uint32(0); i < p.Size(); i++ {
		key := p.KeyAt(i)
		if i == 0 {
			key = sepFromParent
		}
		recipient.appendRaw(key, p.ValueAt(i))
	}
	p.setSize(0)
}

// MoveFirstToEndOf moves this page's first child (whose separator becomes
// sepFromParent in the recipient, and whose own key[1] becomes the new
// separator the parent must adopt) to the end of recipient.
func (p *InternalPage) MoveFirstToEndOf(recipient *InternalPage, sepFromParent []byte) (newParentSep []byte) {
	recipient.appendRaw(sepFromParent, p.ValueAt(0))
	newParentSep = append([]byte(nil), p.KeyAt(1)...)
	p.shift(1, -1)
	p.setSize(p.Size() - 1)
	return newParentSep
}

// MoveLastToFrontOf moves this page's last child to the front of recipient,
// returning the separator the parent must adopt for the moved child.
func (p *InternalPage) MoveLastToFrontOf(recipient *InternalPage, sepFromParent []byte) (newParentSep []byte) {
	last := p.Size() - 1
	lastKey := append([]byte(nil), p.KeyAt(last)...)
	lastVal := p.ValueAt(last)
	p.setSize(last)

	recipient.shift(0, 1)
	recipient.setSize(recipient.Size() + 1)
	recipient.SetKeyAt(1, sepFromParent)
	recipient.SetValueAt(0, lastVal)
	return lastKey
}
