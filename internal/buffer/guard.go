package buffer

import "github.com/cinderdb/cinderdb/internal/common"

// PageGuard exclusively owns one pinned frame, per design note §9: it is
// the only handle through which callers read or mutate a fetched page's
// bytes, and the only way to release the pin is to call Unpin — there is no
// separate "cast bytes to a typed view, then remember to unpin with the
// right dirty bit" step to forget. Callers should `defer g.Unpin()`
// immediately after a successful Fetch/New, mutating through g.Data() (or
// a page.As*Page view over it) and calling g.MarkDirty() whenever they do.
type PageGuard struct {
	pool     *Pool
	id       common.PageID
	frame    common.FrameID
	dirty    bool
	released bool
}

func newGuard(p *Pool, id common.PageID, f common.FrameID) *PageGuard {
	return &PageGuard{pool: p, id: id, frame: f}
}

// PageID returns the logical page this guard pins.
func (g *PageGuard) PageID() common.PageID { return g.id }

// Data returns the frame's raw bytes, to be interpreted via a page.As*Page
// view. The slice is only valid until Unpin is called.
func (g *PageGuard) Data() []byte {
	return g.pool.frames[g.frame].data
}

// MarkDirty records that this guard's lifetime included a mutation. It is
// cumulative: calling it once is enough even if Unpin is deferred before
// further writes happen.
func (g *PageGuard) MarkDirty() { g.dirty = true }

// Unpin releases the pin this guard holds, folding in any MarkDirty calls
// made during its lifetime. Safe to call more than once; only the first
// call has effect.
func (g *PageGuard) Unpin() {
	if g.released {
		return
	}
	g.pool.unpin(g.id, g.dirty)
	g.released = true
}
