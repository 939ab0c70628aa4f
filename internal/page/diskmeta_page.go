package page

import "github.com/cinderdb/cinderdb/internal/common"

// Disk meta page layout (spec §3):
//
//	[0:4]   extent count (uint32)
//	[4:8]   total allocated pages (uint32)
//	[8:8+4*E] per-extent "pages used in extent" array (uint32 each)
const (
	diskMetaExtentCountOff = 0
	diskMetaTotalAllocOff  = 4
	diskMetaExtentArrayOff = 8
)

// MaxExtents bounds how many extents' usage counters fit in one meta page.
var MaxExtents = (common.PageSize - diskMetaExtentArrayOff) / 4

// DiskMetaPage is the fixed header page (physical page 0) tracking how many
// extents exist and how full each one is.
type DiskMetaPage struct {
	buf []byte
}

func AsDiskMetaPage(buf []byte) *DiskMetaPage { return &DiskMetaPage{buf: buf} }

func NewDiskMetaPage() *DiskMetaPage {
	m := &DiskMetaPage{buf: NewRaw()}
	m.SetExtentCount(0)
	m.SetTotalAllocated(0)
	return m
}

func (m *DiskMetaPage) Bytes() []byte { return m.buf }

func (m *DiskMetaPage) ExtentCount() uint32     { return u32At(m.buf, diskMetaExtentCountOff) }
func (m *DiskMetaPage) SetExtentCount(v uint32) { putU32At(m.buf, diskMetaExtentCountOff, v) }

func (m *DiskMetaPage) TotalAllocated() uint32     { return u32At(m.buf, diskMetaTotalAllocOff) }
func (m *DiskMetaPage) SetTotalAllocated(v uint32) { putU32At(m.buf, diskMetaTotalAllocOff, v) }

func (m *DiskMetaPage) extentOff(i uint32) int { return diskMetaExtentArrayOff + int(i)*4 }

func (m *DiskMetaPage) ExtentUsed(i uint32) uint32 { return u32At(m.buf, m.extentOff(i)) }
func (m *DiskMetaPage) SetExtentUsed(i uint32, v uint32) {
	putU32At(m.buf, m.extentOff(i), v)
}
