package page

import "github.com/cinderdb/cinderdb/internal/common"

// catalogMetaMagic guards against reading an uninitialized or foreign page
// as catalog metadata (spec §6).
const catalogMetaMagic = 0x43415441 // "CATA"

// CatalogMetaPage is the well-known directory of every table's and index's
// metadata page (spec §6):
//
//	[0:4]   magic
//	[4:8]   table_count
//	[8:12]  index_count
//	[12:]   table_count * {table_id uint32, meta_page int32}
//	[...:]  index_count * {index_id uint32, meta_page int32}
const (
	cmpMagicOff     = 0
	cmpTableCntOff  = 4
	cmpIndexCntOff  = 8
	cmpHeaderSize   = 12
	cmpEntrySize    = 8
)

type CatalogMetaPage struct {
	buf []byte
}

func AsCatalogMetaPage(buf []byte) *CatalogMetaPage { return &CatalogMetaPage{buf: buf} }

// NewCatalogMetaPage formats buf as an empty catalog metadata page.
func NewCatalogMetaPage(buf []byte) *CatalogMetaPage {
	p := &CatalogMetaPage{buf: buf}
	putU32At(p.buf, cmpMagicOff, catalogMetaMagic)
	p.setTableCount(0)
	p.setIndexCount(0)
	return p
}

// Valid reports whether buf carries the expected magic number.
func (p *CatalogMetaPage) Valid() bool { return u32At(p.buf, cmpMagicOff) == catalogMetaMagic }

func (p *CatalogMetaPage) Bytes() []byte { return p.buf }

func (p *CatalogMetaPage) TableCount() uint32     { return u32At(p.buf, cmpTableCntOff) }
func (p *CatalogMetaPage) setTableCount(v uint32) { putU32At(p.buf, cmpTableCntOff, v) }

func (p *CatalogMetaPage) IndexCount() uint32     { return u32At(p.buf, cmpIndexCntOff) }
func (p *CatalogMetaPage) setIndexCount(v uint32) { putU32At(p.buf, cmpIndexCntOff, v) }

func (p *CatalogMetaPage) tableOff(i uint32) int { return cmpHeaderSize + int(i)*cmpEntrySize }

func (p *CatalogMetaPage) indexBase() int { return p.tableOff(p.TableCount()) }

func (p *CatalogMetaPage) indexOff(i uint32) int { return p.indexBase() + int(i)*cmpEntrySize }

// Tables returns every (tableID, metaPageID) pair currently registered.
func (p *CatalogMetaPage) Tables() map[uint32]common.PageID {
	out := make(map[uint32]common.PageID, p.TableCount())
	for i := uint32(0); i < p.TableCount(); i++ {
		off := p.tableOff(i)
		out[u32At(p.buf, off)] = pageIDAt(p.buf, off+4)
	}
	return out
}

// Indexes returns every (indexID, metaPageID) pair currently registered.
func (p *CatalogMetaPage) Indexes() map[uint32]common.PageID {
	out := make(map[uint32]common.PageID, p.IndexCount())
	for i := uint32(0); i < p.IndexCount(); i++ {
		off := p.indexOff(i)
		out[u32At(p.buf, off)] = pageIDAt(p.buf, off+4)
	}
	return out
}

// PutTable registers or updates tableID's metadata page. Returns false if
// the page has no room for a new entry.
func (p *CatalogMetaPage) PutTable(tableID uint32, metaPage common.PageID) bool {
	n := p.TableCount()
	for i := uint32(0); i < n; i++ {
		off := p.tableOff(i)
		if u32At(p.buf, off) == tableID {
			putPageIDAt(p.buf, off+4, metaPage)
			return true
		}
	}
	// Growing the table region means shifting every index entry right by
	// one slot, since index entries are packed immediately after it.
	idxN := p.IndexCount()
	newTableOff := p.tableOff(n)
	if newTableOff+cmpEntrySize+int(idxN)*cmpEntrySize > len(p.buf) {
		return false
	}
	oldIndexBase := p.indexBase()
	newIndexBase := newTableOff + cmpEntrySize
	copy(p.buf[newIndexBase:newIndexBase+int(idxN)*cmpEntrySize], p.buf[oldIndexBase:oldIndexBase+int(idxN)*cmpEntrySize])
	putU32At(p.buf, newTableOff, tableID)
	putPageIDAt(p.buf, newTableOff+4, metaPage)
	p.setTableCount(n + 1)
	return true
}

// RemoveTable drops tableID's entry, compacting the table region (and
// sliding the index region left to follow it).
func (p *CatalogMetaPage) RemoveTable(tableID uint32) bool {
	n := p.TableCount()
	for i := uint32(0); i < n; i++ {
		if u32At(p.buf, p.tableOff(i)) == tableID {
			idxN := p.IndexCount()
			oldIndexBase := p.indexBase()
			for j := i; j < n-1; j++ {
				copy(p.buf[p.tableOff(j):p.tableOff(j)+cmpEntrySize], p.buf[p.tableOff(j+1):p.tableOff(j+1)+cmpEntrySize])
			}
			newIndexBase := p.tableOff(n - 1)
			copy(p.buf[newIndexBase:newIndexBase+int(idxN)*cmpEntrySize], p.buf[oldIndexBase:oldIndexBase+int(idxN)*cmpEntrySize])
			p.setTableCount(n - 1)
			return true
		}
	}
	return false
}

// PutIndex registers or updates indexID's metadata page.
func (p *CatalogMetaPage) PutIndex(indexID uint32, metaPage common.PageID) bool {
	n := p.IndexCount()
	for i := uint32(0); i < n; i++ {
		off := p.indexOff(i)
		if u32At(p.buf, off) == indexID {
			putPageIDAt(p.buf, off+4, metaPage)
			return true
		}
	}
	off := p.indexOff(n)
	if off+cmpEntrySize > len(p.buf) {
		return false
	}
	putU32At(p.buf, off, indexID)
	putPageIDAt(p.buf, off+4, metaPage)
	p.setIndexCount(n + 1)
	return true
}

// RemoveIndex drops indexID's entry, compacting the index region.
func (p *CatalogMetaPage) RemoveIndex(indexID uint32) bool {
	n := p.IndexCount()
	for i := uint32(0); i < n; i++ {
		if u32At(p.buf, p.indexOff(i)) == indexID {
			for j := i; j < n-1; j++ {
				copy(p.buf[p.indexOff(j):p.indexOff(j)+cmpEntrySize], p.buf[p.indexOff(j+1):p.indexOff(j+1)+cmpEntrySize])
			}
			p.setIndexCount(n - 1)
			return true
		}
	}
	return false
}
