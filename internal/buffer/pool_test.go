package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/diskmgr"
)

func newTestPool(t *testing.T, size int) *buffer.Pool {
	t.Helper()
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)
	return buffer.New(dm, size, nil)
}

func TestFetchPage_SameIDTwiceSharesFrameAndIncrementsPin(t *testing.T) {
	p := newTestPool(t, 4)
	g1, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	id := g1.PageID()

	g2, ok, err := p.FetchPage(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, g1.Data(), g2.Data())

	g1.Unpin()
	g2.Unpin()
	require.True(t, p.CheckAllUnpinned())
}

func TestFetchPage_PoolExhaustion(t *testing.T) {
	p := newTestPool(t, 2)
	g1, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	g2, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	// both frames pinned: a third distinct page cannot be fetched/created.
	_, ok, err = p.NewPage()
	require.NoError(t, err)
	require.False(t, ok)

	g1.Unpin()
	g2.Unpin()
}

func TestDirtyThenEvicted_ReFetchSeesDirtyBytes(t *testing.T) {
	p := newTestPool(t, 1)

	g, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	id := g.PageID()
	copy(g.Data(), []byte("hello world"))
	g.MarkDirty()
	g.Unpin()

	// forces eviction of id's frame since the pool only has one frame.
	g2, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	g2.Unpin()

	g3, ok, err := p.FetchPage(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte('h'), g3.Data()[0])
	g3.Unpin()
}

func TestDeletePage_FailsWhilePinned(t *testing.T) {
	p := newTestPool(t, 4)
	g, ok, err := p.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	err = p.DeletePage(g.PageID())
	require.Error(t, err)

	g.Unpin()
	require.NoError(t, p.DeletePage(g.PageID()))
}

func TestDeletePage_UnknownIsNoOp(t *testing.T) {
	p := newTestPool(t, 4)
	require.NoError(t, p.DeletePage(common.PageID(999)))
}
