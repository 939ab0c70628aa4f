package index

import (
	"fmt"
	"sync"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/page"
)

// RootsPageID is the well-known page holding the index_id -> root_page_id
// directory (spec §4.7/§6), grounded on original_source's
// INDEX_ROOTS_PAGE_ID constant. The catalog is responsible for formatting
// this page (via EnsureRootsPage) before any index is opened.
const RootsPageID common.PageID = 0

// EnsureRootsPage formats page 0 as an empty IndexRootsPage the first time
// a database is created. It allocates the page, so it is called once, on a
// fresh file; it returns an error if the allocation does not yield page 0.
func EnsureRootsPage(pool *buffer.Pool) error {
	g, ok, err := pool.NewPage()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: buffer pool exhausted allocating index roots page")
	}
	if g.PageID() != RootsPageID {
		return fmt.Errorf("index: expected index roots page at %d, got %d (must be the first page ever allocated)", RootsPageID, g.PageID())
	}
	page.NewIndexRootsPage(g.Data())
	g.MarkDirty()
	g.Unpin()
	return nil
}

// Tree is a crab-latch-free B+-tree: every public operation takes a single
// tree-wide lock for its duration rather than the page-by-page latch
// coupling original_source's BPlusTree relies on the caller's WLatch/RLatch
// discipline for. Spec §5's Concurrency Model describes the row/table
// locking strict 2PL gives callers; the tree's own internal structure
// modifications (split/merge) are serialized here instead, a simplification
// recorded as an Open Question resolution in DESIGN.md.
type Tree struct {
	mu sync.RWMutex

	indexID         uint32
	pool            *buffer.Pool
	km              *KeyManager
	rootPageID      common.PageID
	leafMaxSize     uint32
	internalMaxSize uint32
}

// Open attaches to an index, reading its current root (if any) from the
// roots page, mirroring BPlusTree's constructor.
func Open(indexID uint32, pool *buffer.Pool, km *KeyManager) (*Tree, error) {
	g, ok, err := pool.FetchPage(RootsPageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("index: roots page not initialized, call EnsureRootsPage first")
	}
	root := common.InvalidPageID
	if r, found := page.AsIndexRootsPage(g.Data()).Lookup(indexID); found {
		root = r
	}
	g.Unpin()

	leafMax := page.LeafMaxSize(km.KeySize())
	internalMax := page.InternalMaxSize(km.KeySize())
	return &Tree{
		indexID:         indexID,
		pool:            pool,
		km:              km,
		rootPageID:      root,
		leafMaxSize:     leafMax,
		internalMaxSize: internalMax,
	}, nil
}

func (t *Tree) IsEmpty() bool { return !t.rootPageID.Valid() }

// updateRootPageID persists rootPageID into the roots page directory.
// mode mirrors original_source's insert_record tri-state: 1=insert,
// 0=update, -1=delete.
func (t *Tree) updateRootPageID(mode int) error {
	g, ok, err := t.pool.FetchPage(RootsPageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: roots page missing")
	}
	defer g.Unpin()
	rp := page.AsIndexRootsPage(g.Data())
	switch mode {
	case -1:
		rp.Delete(t.indexID)
	default:
		if !rp.Insert(t.indexID, t.rootPageID) {
			return fmt.Errorf("index: roots page full")
		}
	}
	g.MarkDirty()
	return nil
}

// GetValue performs a point lookup (spec §4.7 Search). Returns ok=false if
// key isn't present.
func (t *Tree) GetValue(key []byte) (common.RowID, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.IsEmpty() {
		return common.InvalidRowID, false, nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return common.InvalidRowID, false, err
	}
	g, ok, err := t.pool.FetchPage(leafID)
	if err != nil || !ok {
		return common.InvalidRowID, false, err
	}
	defer g.Unpin()
	leaf := page.AsLeafPage(g.Data())
	idx := leaf.FindSlot(key, t.km.Compare)
	if idx < leaf.Size() && t.km.Compare(leaf.KeyAt(idx), key) == 0 {
		return leaf.ValueAt(idx), true, nil
	}
	return common.InvalidRowID, false, nil
}

// findLeafPage descends from the root to the leaf covering key (or the
// left-most leaf if leftMost is set), pinning and unpinning internal pages
// along the way and returning the (still unpinned) leaf's PageID.
func (t *Tree) findLeafPage(key []byte, leftMost bool) (common.PageID, error) {
	id := t.rootPageID
	for {
		g, ok, err := t.pool.FetchPage(id)
		if err != nil {
			return common.InvalidPageID, err
		}
		if !ok {
			return common.InvalidPageID, fmt.Errorf("index: page %d missing", id)
		}
		if isLeafPage(g.Data()) {
			g.Unpin()
			return id, nil
		}
		inner := page.AsInternalPage(g.Data())
		var childID common.PageID
		if leftMost {
			childID = inner.ValueAt(0)
		} else {
			childID = inner.Lookup(key, t.km.Compare)
		}
		g.Unpin()
		id = childID
	}
}

// isLeafPage distinguishes the two page kinds by their shared leading
// page-type tag (see bplus_leaf_page.go), needed because the tree's
// generic descent doesn't know a child's kind until it looks.
func isLeafPage(buf []byte) bool {
	return page.AsLeafPage(buf).PageType() == page.PageTypeLeaf
}

func (t *Tree) minLeafSize() uint32     { return t.leafMaxSize / 2 }
func (t *Tree) minInternalSize() uint32 { return t.internalMaxSize / 2 }

// setParentID rewrites id's ParentID field, dispatching on whichever kind
// id turns out to be.
func (t *Tree) setParentID(id, parent common.PageID) error {
	g, ok, err := t.pool.FetchPage(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: page %d missing while reparenting", id)
	}
	if isLeafPage(g.Data()) {
		page.AsLeafPage(g.Data()).SetParentID(parent)
	} else {
		page.AsInternalPage(g.Data()).SetParentID(parent)
	}
	g.MarkDirty()
	g.Unpin()
	return nil
}

func genericParentID(buf []byte) common.PageID {
	if isLeafPage(buf) {
		return page.AsLeafPage(buf).ParentID()
	}
	return page.AsInternalPage(buf).ParentID()
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds key->value to the tree (spec §4.7). Returns ok=false if key
// already exists (this index enforces uniqueness, per original_source's
// "we only support unique key" Insert contract).
func (t *Tree) Insert(key []byte, value common.RowID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return true, t.startNewTree(key, value)
	}
	return t.insertIntoLeaf(key, value)
}

func (t *Tree) startNewTree(key []byte, value common.RowID) error {
	g, ok, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: buffer pool exhausted starting new tree")
	}
	leaf := page.AsLeafPage(g.Data())
	leaf.Init(g.PageID(), common.InvalidPageID, t.km.KeySize())
	leaf.InsertAt(0, key, value)
	t.rootPageID = g.PageID()
	g.MarkDirty()
	g.Unpin()
	return t.updateRootPageID(1)
}

func (t *Tree) insertIntoLeaf(key []byte, value common.RowID) (bool, error) {
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return false, err
	}
	g, ok, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: leaf page %d missing", leafID)
	}
	leaf := page.AsLeafPage(g.Data())
	idx := leaf.FindSlot(key, t.km.Compare)
	if idx < leaf.Size() && t.km.Compare(leaf.KeyAt(idx), key) == 0 {
		g.Unpin()
		return false, nil
	}
	leaf.InsertAt(idx, key, value)
	g.MarkDirty()

	if leaf.Size() >= leaf.MaxSize() {
		oldID, newID, sepKey, err := t.splitLeaf(leaf)
		g.Unpin()
		if err != nil {
			return false, err
		}
		return true, t.insertIntoParent(oldID, sepKey, newID)
	}
	g.Unpin()
	return true, nil
}

// splitLeaf moves the upper half of node's entries into a freshly
// allocated sibling, threading it into the leaf chain (spec §4.7's leaf
// split). Returns the original and new page IDs and the promoted
// separator key. The new page is unpinned here; node's page stays pinned
// by the caller's guard.
func (t *Tree) splitLeaf(node *page.LeafPage) (oldID, newID common.PageID, sepKey []byte, err error) {
	ng, ok, err := t.pool.NewPage()
	if err != nil {
		return 0, 0, nil, err
	}
	if !ok {
		return 0, 0, nil, fmt.Errorf("index: buffer pool exhausted splitting leaf")
	}
	newLeaf := page.AsLeafPage(ng.Data())
	newLeaf.Init(ng.PageID(), node.ParentID(), t.km.KeySize())
	node.MoveHalfTo(newLeaf)
	newLeaf.SetNextLeafID(node.NextLeafID())
	node.SetNextLeafID(newLeaf.PageID())
	sepKey = append([]byte(nil), newLeaf.KeyAt(0)...)
	oldID, newID = node.PageID(), newLeaf.PageID()
	ng.MarkDirty()
	ng.Unpin()
	return oldID, newID, sepKey, nil
}

// insertIntoParent wires (sepKey, newID) into oldID's parent, splitting
// that parent (recursively) if it overflows, or creating a new root if
// oldID had none (spec §4.7: "the middle key is promoted").
func (t *Tree) insertIntoParent(oldID common.PageID, sepKey []byte, newID common.PageID) error {
	g, ok, err := t.pool.FetchPage(oldID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: page %d missing", oldID)
	}
	parentID := genericParentID(g.Data())
	g.Unpin()

	if !parentID.Valid() {
		ng, ok, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("index: buffer pool exhausted creating new root")
		}
		newRoot := page.AsInternalPage(ng.Data())
		newRoot.Init2(ng.PageID(), common.InvalidPageID, t.km.KeySize(), oldID, newID, sepKey)
		t.rootPageID = ng.PageID()
		ng.MarkDirty()
		ng.Unpin()
		if err := t.setParentID(oldID, t.rootPageID); err != nil {
			return err
		}
		if err := t.setParentID(newID, t.rootPageID); err != nil {
			return err
		}
		return t.updateRootPageID(0)
	}

	pg, ok, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("index: parent page %d missing", parentID)
	}
	parent := page.AsInternalPage(pg.Data())
	if !parent.InsertAfter(oldID, sepKey, newID) {
		pg.Unpin()
		return fmt.Errorf("index: parent %d does not contain child %d", parentID, oldID)
	}
	pg.MarkDirty()
	if err := t.setParentID(newID, parentID); err != nil {
		pg.Unpin()
		return err
	}

	if parent.Size() >= parent.MaxSize() {
		oldID2, newID2, sepKey2, err := t.splitInternal(parent)
		pg.Unpin()
		if err != nil {
			return err
		}
		return t.insertIntoParent(oldID2, sepKey2, newID2)
	}
	pg.Unpin()
	return nil
}

func (t *Tree) splitInternal(node *page.InternalPage) (oldID, newID common.PageID, sepKey []byte, err error) {
	ng, ok, err := t.pool.NewPage()
	if err != nil {
		return 0, 0, nil, err
	}
	if !ok {
		return 0, 0, nil, fmt.Errorf("index: buffer pool exhausted splitting internal page")
	}
	newNode := page.AsInternalPage(ng.Data())
	newNode.Init(ng.PageID(), node.ParentID(), t.km.KeySize())
	node.MoveHalfTo(newNode)
	for i := uint32(0); i < newNode.Size(); i++ {
		if err := t.setParentID(newNode.ValueAt(i), newNode.PageID()); err != nil {
			ng.Unpin()
			return 0, 0, nil, err
		}
	}
	sepKey = append([]byte(nil), newNode.KeyAt(0)...)
	oldID, newID = node.PageID(), newNode.PageID()
	ng.MarkDirty()
	ng.Unpin()
	return oldID, newID, sepKey, nil
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Delete removes key's entry (spec §4.7). Returns ok=false if key isn't
// present.
func (t *Tree) Delete(key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.IsEmpty() {
		return false, nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return false, err
	}
	g, ok, err := t.pool.FetchPage(leafID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("index: leaf page %d missing", leafID)
	}
	leaf := page.AsLeafPage(g.Data())
	idx := leaf.FindSlot(key, t.km.Compare)
	if idx >= leaf.Size() || t.km.Compare(leaf.KeyAt(idx), key) != 0 {
		g.Unpin()
		return false, nil
	}
	leaf.RemoveAt(idx)
	g.MarkDirty()
	return true, t.coalesceOrRedistributeLeaf(g, leaf)
}

// coalesceOrRedistributeLeaf takes ownership of g: it always unpins it
// (and, when merging, asks the pool to delete the now-empty page), so the
// caller must not touch g again afterward.
func (t *Tree) coalesceOrRedistributeLeaf(g *buffer.PageGuard, node *page.LeafPage) error {
	nodeID := node.PageID()
	parentID := node.ParentID()

	if !parentID.Valid() {
		deleted := node.Size() == 0
		if deleted {
			t.rootPageID = common.InvalidPageID
		}
		g.MarkDirty()
		g.Unpin()
		if deleted {
			if err := t.updateRootPageID(-1); err != nil {
				return err
			}
			return t.pool.DeletePage(nodeID)
		}
		return nil
	}
	if node.Size() >= t.minLeafSize() {
		g.Unpin()
		return nil
	}

	pg, ok, err := t.pool.FetchPage(parentID)
	if err != nil {
		g.Unpin()
		return err
	}
	if !ok {
		g.Unpin()
		return fmt.Errorf("index: parent page %d missing", parentID)
	}
	parent := page.AsInternalPage(pg.Data())
	idx, _ := parent.IndexOfValue(nodeID)
	idxI := int(idx)
	sibIdxI := idxI - 1
	if sibIdxI < 0 {
		sibIdxI = idxI + 1
	}
	sibID := parent.ValueAt(uint32(sibIdxI))

	sg, ok, err := t.pool.FetchPage(sibID)
	if err != nil || !ok {
		g.Unpin()
		pg.Unpin()
		if err == nil {
			err = fmt.Errorf("index: sibling page %d missing", sibID)
		}
		return err
	}
	sib := page.AsLeafPage(sg.Data())

	if node.Size()+sib.Size() >= t.leafMaxSize {
		if idxI > sibIdxI {
			sib.MoveLastToFrontOf(node)
			parent.SetKeyAt(uint32(idxI), node.KeyAt(0))
		} else {
			sib.MoveFirstToEndOf(node)
			parent.SetKeyAt(1, sib.KeyAt(0))
		}
		g.MarkDirty()
		sg.MarkDirty()
		pg.MarkDirty()
		g.Unpin()
		sg.Unpin()
		pg.Unpin()
		return nil
	}

	var deletedID common.PageID
	if idxI > sibIdxI {
		node.MoveAllTo(sib)
		sib.SetNextLeafID(node.NextLeafID())
		parent.RemoveAt(uint32(idxI))
		deletedID = nodeID
	} else {
		sib.MoveAllTo(node)
		node.SetNextLeafID(sib.NextLeafID())
		parent.RemoveAt(uint32(sibIdxI))
		deletedID = sibID
	}
	g.MarkDirty()
	sg.MarkDirty()
	pg.MarkDirty()
	g.Unpin()
	sg.Unpin()
	if err := t.pool.DeletePage(deletedID); err != nil {
		pg.Unpin()
		return err
	}
	return t.coalesceOrRedistributeInternal(pg, parent)
}

// coalesceOrRedistributeInternal mirrors coalesceOrRedistributeLeaf for
// internal pages, additionally handling AdjustRoot's "root collapsed to a
// single child" case.
func (t *Tree) coalesceOrRedistributeInternal(g *buffer.PageGuard, node *page.InternalPage) error {
	nodeID := node.PageID()
	parentID := node.ParentID()

	if !parentID.Valid() {
		if node.Size() == 1 {
			child := node.ValueAt(0)
			g.Unpin()
			if err := t.setParentID(child, common.InvalidPageID); err != nil {
				return err
			}
			t.rootPageID = child
			if err := t.updateRootPageID(0); err != nil {
				return err
			}
			return t.pool.DeletePage(nodeID)
		}
		g.Unpin()
		return nil
	}
	if node.Size() >= t.minInternalSize() {
		g.Unpin()
		return nil
	}

	pg, ok, err := t.pool.FetchPage(parentID)
	if err != nil {
		g.Unpin()
		return err
	}
	if !ok {
		g.Unpin()
		return fmt.Errorf("index: parent page %d missing", parentID)
	}
	parent := page.AsInternalPage(pg.Data())
	idx, _ := parent.IndexOfValue(nodeID)
	idxI := int(idx)
	sibIdxI := idxI - 1
	if sibIdxI < 0 {
		sibIdxI = idxI + 1
	}
	sibID := parent.ValueAt(uint32(sibIdxI))

	sg, ok, err := t.pool.FetchPage(sibID)
	if err != nil || !ok {
		g.Unpin()
		pg.Unpin()
		if err == nil {
			err = fmt.Errorf("index: sibling page %d missing", sibID)
		}
		return err
	}
	sib := page.AsInternalPage(sg.Data())

	if node.Size()+sib.Size() >= t.internalMaxSize {
		if idxI > sibIdxI {
			newSep := sib.MoveLastToFrontOf(node, parent.KeyAt(uint32(idxI)))
			parent.SetKeyAt(uint32(idxI), newSep)
			if err := t.setParentID(node.ValueAt(0), nodeID); err != nil {
				g.Unpin()
				sg.Unpin()
				pg.Unpin()
				return err
			}
		} else {
			newSep := sib.MoveFirstToEndOf(node, parent.KeyAt(1))
			parent.SetKeyAt(1, newSep)
			if err := t.setParentID(node.ValueAt(node.Size()-1), nodeID); err != nil {
				g.Unpin()
				sg.Unpin()
				pg.Unpin()
				return err
			}
		}
		g.MarkDirty()
		sg.MarkDirty()
		pg.MarkDirty()
		g.Unpin()
		sg.Unpin()
		pg.Unpin()
		return nil
	}

	var deletedID common.PageID
	var survivor *page.InternalPage
	if idxI > sibIdxI {
		sep := append([]byte(nil), parent.KeyAt(uint32(idxI))...)
		node.MoveAllTo(sib, sep)
		survivor = sib
		parent.RemoveAt(uint32(idxI))
		deletedID = nodeID
	} else {
		sep := append([]byte(nil), parent.KeyAt(uint32(sibIdxI))...)
		sib.MoveAllTo(node, sep)
		survivor = node
		parent.RemoveAt(uint32(sibIdxI))
		deletedID = sibID
	}
	for i := uint32(0); i < survivor.Size(); i++ {
		if err := t.setParentID(survivor.ValueAt(i), survivor.PageID()); err != nil {
			g.Unpin()
			sg.Unpin()
			pg.Unpin()
			return err
		}
	}
	g.MarkDirty()
	sg.MarkDirty()
	pg.MarkDirty()
	g.Unpin()
	sg.Unpin()
	if err := t.pool.DeletePage(deletedID); err != nil {
		pg.Unpin()
		return err
	}
	return t.coalesceOrRedistributeInternal(pg, parent)
}

/*****************************************************************************
 * INDEX ITERATOR SUPPORT
 *****************************************************************************/

// beginLeaf returns the left-most leaf's PageID, for a full scan.
func (t *Tree) beginLeaf() (common.PageID, error) {
	if t.IsEmpty() {
		return common.InvalidPageID, nil
	}
	return t.findLeafPage(nil, true)
}

// beginAt locates the (leaf page, slot) position of the first key >= key,
// for a range scan starting at key (spec §4.7's indexed range scan).
func (t *Tree) beginAt(key []byte) (common.PageID, uint32, error) {
	if t.IsEmpty() {
		return common.InvalidPageID, 0, nil
	}
	leafID, err := t.findLeafPage(key, false)
	if err != nil {
		return common.InvalidPageID, 0, err
	}
	g, ok, err := t.pool.FetchPage(leafID)
	if err != nil {
		return common.InvalidPageID, 0, err
	}
	if !ok {
		return common.InvalidPageID, 0, fmt.Errorf("index: leaf page %d missing", leafID)
	}
	idx := page.AsLeafPage(g.Data()).FindSlot(key, t.km.Compare)
	g.Unpin()
	return leafID, idx, nil
}
