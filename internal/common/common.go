// Package common holds the handful of types and constants shared by every
// layer of the storage engine: page identifiers, row identifiers and the
// fixed page size. Keeping them here (rather than in internal/page, which
// would create an import cycle with internal/diskmgr) mirrors
// ryogrid-bltree-go-for-embedding's own common.go, which held BtId/page-size
// constants consumed by both the buffer manager and the tree.
package common

import "fmt"

// PageSize is the fixed size, in bytes, of every page in the backing file.
const PageSize = 4096

// PageID identifies a logical page. -1 is reserved as InvalidPageID.
type PageID int32

// InvalidPageID marks "no page" (e.g. an empty tree's root, or list terminators).
const InvalidPageID PageID = -1

func (p PageID) Valid() bool { return p != InvalidPageID }

// RowID uniquely identifies a tuple inside a table heap.
type RowID struct {
	PageID  PageID
	SlotNum uint32
}

// InvalidRowID is the table-heap iterator's end sentinel: (-1, -1 as uint32).
var InvalidRowID = RowID{PageID: InvalidPageID, SlotNum: ^uint32(0)}

func (r RowID) Valid() bool { return r.PageID != InvalidPageID }

func (r RowID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}

// FrameID identifies a slot ("frame") in the buffer pool's fixed frame array.
type FrameID int32
