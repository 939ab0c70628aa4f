package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/diskmgr"
	"github.com/cinderdb/cinderdb/internal/record"
	"github.com/cinderdb/cinderdb/internal/table"
)

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	id, err := record.NewFixedColumn("id", record.TypeInteger, 0, false, true)
	require.NoError(t, err)
	name, err := record.NewVarcharColumn("name", 64, 1, true, false)
	require.NoError(t, err)
	return record.NewSchema([]*record.Column{id, name})
}

func newTestHeap(t *testing.T, poolSize int) (*buffer.Pool, *table.Heap, *record.Schema) {
	t.Helper()
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)
	pool := buffer.New(dm, poolSize, nil)
	schema := testSchema(t)
	h, err := table.Create(pool, schema, nil)
	require.NoError(t, err)
	return pool, h, schema
}

func row(id int32, name string) *record.Row {
	return record.NewRow([]*record.Field{record.NewIntegerField(id), record.NewVarcharField(name)})
}

func TestHeap_InsertThenGetRoundTrip(t *testing.T) {
	_, h, _ := newTestHeap(t, 8)
	rid, err := h.InsertTuple(row(1, "alice"))
	require.NoError(t, err)

	got, err := h.GetTuple(rid)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Fields[0].AsInteger())
	require.Equal(t, "alice", got.Fields[1].AsVarchar())
}

func TestHeap_MarkDeleteHidesRowUntilRollback(t *testing.T) {
	_, h, _ := newTestHeap(t, 8)
	rid, err := h.InsertTuple(row(2, "bob"))
	require.NoError(t, err)

	require.NoError(t, h.MarkDelete(rid))
	_, err = h.GetTuple(rid)
	require.Error(t, err)

	require.NoError(t, h.RollbackDelete(rid))
	got, err := h.GetTuple(rid)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Fields[1].AsVarchar())
}

func TestHeap_UpdateTupleGrowInPlace(t *testing.T) {
	_, h, _ := newTestHeap(t, 8)
	rid, err := h.InsertTuple(row(3, "c"))
	require.NoError(t, err)

	newRid, err := h.UpdateTuple(row(3, "a-much-longer-name-value"), rid)
	require.NoError(t, err)

	got, err := h.GetTuple(newRid)
	require.NoError(t, err)
	require.Equal(t, "a-much-longer-name-value", got.Fields[1].AsVarchar())
}

func TestHeap_IteratorVisitsAllLiveRowsAcrossPages(t *testing.T) {
	_, h, _ := newTestHeap(t, 8)
	const n = 200 // ~61 bytes a row with its slot: about 66 rows a page, so 4 pages
	inserted := make(map[int32]bool)
	for i := int32(0); i < n; i++ {
		_, err := h.InsertTuple(row(i, "row-padding-to-force-multiple-pages"))
		require.NoError(t, err)
		inserted[i] = true
	}

	seen := make(map[int32]bool)
	iter := h.Begin()
	for iter.Valid() {
		seen[iter.Row().Fields[0].AsInteger()] = true
		iter.Next()
	}
	require.NoError(t, iter.Err())
	require.Equal(t, inserted, seen)
}
