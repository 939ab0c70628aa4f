package page

import "github.com/cinderdb/cinderdb/internal/common"

// IndexRootsPage is the tiny well-known directory page mapping an index ID
// to the PageID of its current root (spec §4.7/§6: "the catalog needs a
// stable place to remember a B+-tree's root page across root splits and
// reloads"). Grounded on original_source's catalog storing root IDs in its
// catalog meta page; split out here into its own page kind so the catalog
// package stays pure glue rather than another byte-layout owner.
//
//	[0:4]  count
//	[4:]   count * {indexID uint32, rootPageID int32}
const (
	irpCountOff  = 0
	irpHeaderSize = 4
	irpEntrySize  = 8
)

type IndexRootsPage struct {
	buf []byte
}

func AsIndexRootsPage(buf []byte) *IndexRootsPage { return &IndexRootsPage{buf: buf} }

func NewIndexRootsPage(buf []byte) *IndexRootsPage {
	p := &IndexRootsPage{buf: buf}
	p.setCount(0)
	return p
}

func (p *IndexRootsPage) Bytes() []byte { return p.buf }

func (p *IndexRootsPage) Count() uint32     { return u32At(p.buf, irpCountOff) }
func (p *IndexRootsPage) setCount(v uint32) { putU32At(p.buf, irpCountOff, v) }

func (p *IndexRootsPage) entryOff(i uint32) int { return irpHeaderSize + int(i)*irpEntrySize }

func (p *IndexRootsPage) indexIDAt(i uint32) uint32    { return u32At(p.buf, p.entryOff(i)) }
func (p *IndexRootsPage) rootAt(i uint32) common.PageID { return pageIDAt(p.buf, p.entryOff(i)+4) }

// Lookup returns the root PageID registered for indexID, if any.
func (p *IndexRootsPage) Lookup(indexID uint32) (common.PageID, bool) {
	for i := uint32(0); i < p.Count(); i++ {
		if p.indexIDAt(i) == indexID {
			return p.rootAt(i), true
		}
	}
	return common.InvalidPageID, false
}

// Insert registers indexID's root, or updates it if already present.
// Returns false if the page is full and indexID is new.
func (p *IndexRootsPage) Insert(indexID uint32, root common.PageID) bool {
	for i := uint32(0); i < p.Count(); i++ {
		if p.indexIDAt(i) == indexID {
			putPageIDAt(p.buf, p.entryOff(i)+4, root)
			return true
		}
	}
	n := p.Count()
	if p.entryOff(n+1) > len(p.buf) {
		return false
	}
	putU32At(p.buf, p.entryOff(n), indexID)
	putPageIDAt(p.buf, p.entryOff(n)+4, root)
	p.setCount(n + 1)
	return true
}

// Delete removes indexID's entry, compacting the array. Returns false if
// indexID wasn't present.
func (p *IndexRootsPage) Delete(indexID uint32) bool {
	n := p.Count()
	for i := uint32(0); i < n; i++ {
		if p.indexIDAt(i) == indexID {
			for j := i; j < n-1; j++ {
				copy(p.buf[p.entryOff(j):p.entryOff(j)+irpEntrySize], p.buf[p.entryOff(j+1):p.entryOff(j+1)+irpEntrySize])
			}
			p.setCount(n - 1)
			return true
		}
	}
	return false
}
