package page_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/page"
)

func freshTablePage() *page.TablePage {
	tp := page.AsTablePage(page.NewRaw())
	tp.Init(0, common.InvalidPageID)
	return tp
}

func TestTablePage_InsertGetRoundTrip(t *testing.T) {
	tp := freshTablePage()
	slot, ok := tp.InsertTuple([]byte("hello"))
	require.True(t, ok)
	got, ok := tp.GetTuple(slot)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
}

func TestTablePage_MarkAndApplyDelete(t *testing.T) {
	tp := freshTablePage()
	slot, ok := tp.InsertTuple([]byte("a-tuple"))
	require.True(t, ok)

	require.True(t, tp.MarkDelete(slot))
	_, ok = tp.GetTuple(slot)
	require.False(t, ok, "marked-deleted tuple must not be visible")

	tp.ApplyDelete(slot)
	require.EqualValues(t, 0, tp.TupleSize(slot))
}

func TestTablePage_RollbackDeleteRestoresVisibility(t *testing.T) {
	tp := freshTablePage()
	slot, ok := tp.InsertTuple([]byte("row"))
	require.True(t, ok)
	require.True(t, tp.MarkDelete(slot))
	require.True(t, tp.RollbackDelete(slot))

	got, ok := tp.GetTuple(slot)
	require.True(t, ok)
	require.Equal(t, []byte("row"), got)
}

func TestTablePage_InsertReusesRecycledSlot(t *testing.T) {
	tp := freshTablePage()
	s1, _ := tp.InsertTuple([]byte("one"))
	tp.MarkDelete(s1)
	tp.ApplyDelete(s1)

	before := tp.TupleCount()
	s2, ok := tp.InsertTuple([]byte("two"))
	require.True(t, ok)
	require.Equal(t, s1, s2, "should reuse the recycled slot rather than grow the directory")
	require.Equal(t, before, tp.TupleCount())
}

func TestTablePage_UpdateInPlaceGrowAndShrink(t *testing.T) {
	tp := freshTablePage()
	slot, _ := tp.InsertTuple([]byte("short"))
	_, _ = tp.InsertTuple([]byte("second-tuple-after"))

	require.True(t, tp.UpdateTuple(slot, []byte("a-much-longer-replacement-value")))
	got, ok := tp.GetTuple(slot)
	require.True(t, ok)
	require.Equal(t, []byte("a-much-longer-replacement-value"), got)

	require.True(t, tp.UpdateTuple(slot, []byte("sm")))
	got, ok = tp.GetTuple(slot)
	require.True(t, ok)
	require.Equal(t, []byte("sm"), got)
}

func TestTablePage_IterationSkipsDeletedTuples(t *testing.T) {
	tp := freshTablePage()
	s1, _ := tp.InsertTuple([]byte("first"))
	s2, _ := tp.InsertTuple([]byte("second"))
	s3, _ := tp.InsertTuple([]byte("third"))
	tp.MarkDelete(s2)

	first, ok := tp.FirstTupleSlot()
	require.True(t, ok)
	require.Equal(t, s1, first)

	next, ok := tp.NextTupleSlot(first)
	require.True(t, ok)
	require.Equal(t, s3, next, "slot s2 is tombstoned and must be skipped")

	_, ok = tp.NextTupleSlot(next)
	require.False(t, ok)
}

func TestTablePage_InsertFailsWhenFull(t *testing.T) {
	tp := freshTablePage()
	big := make([]byte, common.PageSize)
	_, ok := tp.InsertTuple(big)
	require.False(t, ok)
}
