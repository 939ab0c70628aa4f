// Package page provides typed, byte-exact views over a raw page buffer.
//
// Mirrors the Page/PageHeader split found in hmarui66-blink-tree-go's
// page.go and ryogrid-bltree-go-for-embedding's bufmgr.go PageHeader
// marshaling: a page is never copied into a Go struct and copied back —
// every accessor reads or writes directly through the backing []byte so a
// page survives a round trip through disk I/O byte-exact, per spec §4.4.
// Per design note §9 ("dynamic dispatch for page kinds"), there is no
// virtual page hierarchy: each of these types is a thin tagged view
// constructed over a buffer handed out by the buffer pool; constructing two
// different views over the same buffer is intentionally cheap and legal.
package page

import (
	"encoding/binary"

	"github.com/cinderdb/cinderdb/internal/common"
)

// Kind tags which typed view a raw frame is currently being interpreted as.
// Nothing on disk stores this Kind value: callers know the kind from context
// (e.g. "this is the index roots page"). The B+-tree leaf and internal page
// headers do carry their own page-type field, which the tree reads to tell a
// leaf from an internal node.
type Kind uint8

const (
	KindTable Kind = iota
	KindBTreeLeaf
	KindBTreeInternal
	KindBitmap
	KindDiskMeta
	KindIndexRoots
)

// le is shorthand for the one byte order this engine ever uses.
var le = binary.LittleEndian

func u32At(buf []byte, off int) uint32     { return le.Uint32(buf[off:]) }
func putU32At(buf []byte, off int, v uint32) { le.PutUint32(buf[off:], v) }
func i32At(buf []byte, off int) int32      { return int32(le.Uint32(buf[off:])) }
func putI32At(buf []byte, off int, v int32) { le.PutUint32(buf[off:], uint32(v)) }

func pageIDAt(buf []byte, off int) common.PageID { return common.PageID(i32At(buf, off)) }
func putPageIDAt(buf []byte, off int, p common.PageID) { putI32At(buf, off, int32(p)) }

// NewRaw allocates a zeroed page-sized buffer, as the buffer pool does when
// handing a fresh frame to new_page().
func NewRaw() []byte { return make([]byte, common.PageSize) }
