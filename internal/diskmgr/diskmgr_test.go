package diskmgr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/diskmgr"
	"github.com/cinderdb/cinderdb/internal/page"
)

// withSmallExtents shrinks page.MaxPagesPerExtent to a small, test-friendly
// value (spec §8's "B" is a few tens of thousands in a real 4KiB page; the
// invariants it tests don't depend on that scale) and restores it after.
func withSmallExtents(t *testing.T, b uint32) {
	old := page.MaxPagesPerExtent
	page.MaxPagesPerExtent = b
	t.Cleanup(func() { page.MaxPagesPerExtent = old })
}

func TestAllocatePage_StrictlyIncreasingFromZero(t *testing.T) {
	withSmallExtents(t, 8)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	var got []common.PageID
	for i := 0; i < 20; i++ {
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		got = append(got, id)
	}
	for i, id := range got {
		require.Equal(t, common.PageID(i), id)
	}
}

func TestAllocatePage_TwoExtentsFillsDeterministically(t *testing.T) {
	const b = 8
	withSmallExtents(t, b)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	for i := 0; i < 2*b; i++ {
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.Equal(t, common.PageID(i), id)
	}

	extentCount, total, perExtent := dm.Stats()
	require.EqualValues(t, 2, extentCount)
	require.EqualValues(t, 2*b, total)
	require.Equal(t, []uint32{b, b}, perExtent)
}

func TestDeallocate_ThenCountsMatchSpecExample(t *testing.T) {
	const b = 8
	withSmallExtents(t, b)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	for i := 0; i < 2*b; i++ {
		_, err := dm.AllocatePage()
		require.NoError(t, err)
	}

	for _, id := range []common.PageID{0, b - 1, b, b + 1, b + 2} {
		require.NoError(t, dm.DeallocatePage(id))
	}

	_, total, perExtent := dm.Stats()
	require.EqualValues(t, 2*b-5, total)
	require.Equal(t, []uint32{b - 2, b - 3}, perExtent)
}

func TestAllocateDeallocate_SameOffsetIsFreeAgain(t *testing.T) {
	withSmallExtents(t, 8)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	id, err := dm.AllocatePage()
	require.NoError(t, err)
	free, err := dm.IsFree(id)
	require.NoError(t, err)
	require.False(t, free)

	require.NoError(t, dm.DeallocatePage(id))
	free, err = dm.IsFree(id)
	require.NoError(t, err)
	require.True(t, free)
}

func TestDeallocateAlreadyFree_IsNoOp(t *testing.T) {
	withSmallExtents(t, 8)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	id, err := dm.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, dm.DeallocatePage(id))
	require.NoError(t, dm.DeallocatePage(id)) // no-op, not an error
}

func TestAllocate_FillsExtentThenGrows(t *testing.T) {
	const b = 4
	withSmallExtents(t, b)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	seen := map[common.PageID]bool{}
	for i := 0; i < b; i++ {
		id, err := dm.AllocatePage()
		require.NoError(t, err)
		require.False(t, seen[id], "offsets must be distinct")
		seen[id] = true
	}
	extentCount, _, perExtent := dm.Stats()
	require.EqualValues(t, 1, extentCount)
	require.Equal(t, []uint32{b}, perExtent)

	// next allocation must grow a second extent, not reuse an offset.
	id, err := dm.AllocatePage()
	require.NoError(t, err)
	require.False(t, seen[id])
	extentCount, _, _ = dm.Stats()
	require.EqualValues(t, 2, extentCount)
}

func TestReadWritePage_RoundTrip(t *testing.T) {
	withSmallExtents(t, 8)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	id, err := dm.AllocatePage()
	require.NoError(t, err)

	want := make([]byte, common.PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	require.NoError(t, dm.WritePage(id, want))

	got := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(id, got))
	require.Equal(t, want, got)
}

func TestReadPage_PastEOFZeroFills(t *testing.T) {
	withSmallExtents(t, 8)
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)

	id, err := dm.AllocatePage()
	require.NoError(t, err)

	got := make([]byte, common.PageSize)
	for i := range got {
		got[i] = 0xAA
	}
	require.NoError(t, dm.ReadPage(id, got))
	for _, b := range got {
		require.EqualValues(t, 0, b)
	}
}
