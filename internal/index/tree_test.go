package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/diskmgr"
	"github.com/cinderdb/cinderdb/internal/index"
	"github.com/cinderdb/cinderdb/internal/record"
)

func newTestTree(t *testing.T, poolSize int) (*buffer.Pool, *index.Tree, *index.KeyManager) {
	t.Helper()
	dm, err := diskmgr.NewMemBackedForTest()
	require.NoError(t, err)
	pool := buffer.New(dm, poolSize, nil)
	require.NoError(t, index.EnsureRootsPage(pool))

	idCol, err := record.NewFixedColumn("id", record.TypeInteger, 0, false, true)
	require.NoError(t, err)
	keySchema := record.NewSchema([]*record.Column{idCol})
	km, err := index.NewKeyManager(keySchema)
	require.NoError(t, err)

	tree, err := index.Open(1, pool, km)
	require.NoError(t, err)
	return pool, tree, km
}

func keyOf(t *testing.T, km *index.KeyManager, v int32) []byte {
	t.Helper()
	row := record.NewRow([]*record.Field{record.NewIntegerField(v)})
	k, err := km.SerializeKey(row)
	require.NoError(t, err)
	return k
}

func TestTree_EmptyGetValueReturnsNotFound(t *testing.T) {
	_, tree, km := newTestTree(t, 16)
	_, ok, err := tree.GetValue(keyOf(t, km, 1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTree_InsertThenGetValueRoundTrip(t *testing.T) {
	pool, tree, km := newTestTree(t, 32)
	const n = 500
	for i := int32(0); i < n; i++ {
		ok, err := tree.Insert(keyOf(t, km, i), common.RowID{PageID: common.PageID(i), SlotNum: uint32(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int32(0); i < n; i++ {
		rid, ok, err := tree.GetValue(keyOf(t, km, i))
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found", i)
		require.EqualValues(t, i, rid.PageID)
	}

	_, ok, err := tree.GetValue(keyOf(t, km, n+1))
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, pool.CheckAllUnpinned())
}

func TestTree_InsertDuplicateKeyFails(t *testing.T) {
	pool, tree, km := newTestTree(t, 16)
	ok, err := tree.Insert(keyOf(t, km, 7), common.RowID{PageID: 1, SlotNum: 0})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(keyOf(t, km, 7), common.RowID{PageID: 2, SlotNum: 0})
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, pool.CheckAllUnpinned())
}

func TestTree_AscendingScanVisitsKeysInOrder(t *testing.T) {
	pool, tree, km := newTestTree(t, 32)
	const n = 400
	for i := int32(n - 1); i >= 0; i-- { // insert in reverse to exercise left-side splits too
		_, err := tree.Insert(keyOf(t, km, i), common.RowID{PageID: common.PageID(i), SlotNum: 0})
		require.NoError(t, err)
	}

	it := tree.Begin()
	var prev int32 = -1
	count := 0
	for it.Valid() {
		row, err := km.DeserializeKey(it.Key())
		require.NoError(t, err)
		v := row.Fields[0].AsInteger()
		require.Greater(t, v, prev)
		prev = v
		count++
		it.Next()
	}
	require.NoError(t, it.Err())
	require.Equal(t, n, count)
	require.True(t, pool.CheckAllUnpinned())
}

func TestTree_DeleteRemovesKeyAndKeepsRestReachable(t *testing.T) {
	pool, tree, km := newTestTree(t, 32)
	const n = 300
	for i := int32(0); i < n; i++ {
		_, err := tree.Insert(keyOf(t, km, i), common.RowID{PageID: common.PageID(i), SlotNum: 0})
		require.NoError(t, err)
	}

	for i := int32(0); i < n; i += 2 {
		ok, err := tree.Delete(keyOf(t, km, i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int32(0); i < n; i++ {
		_, ok, err := tree.GetValue(keyOf(t, km, i))
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, ok, "key %d should have been deleted", i)
		} else {
			require.True(t, ok, "key %d should still be present", i)
		}
	}
	require.True(t, pool.CheckAllUnpinned())
}

func TestTree_DeleteEveryKeyEmptiesTree(t *testing.T) {
	pool, tree, km := newTestTree(t, 32)
	const n = 120
	for i := int32(0); i < n; i++ {
		_, err := tree.Insert(keyOf(t, km, i), common.RowID{PageID: common.PageID(i), SlotNum: 0})
		require.NoError(t, err)
	}
	for i := int32(0); i < n; i++ {
		ok, err := tree.Delete(keyOf(t, km, i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.True(t, tree.IsEmpty())
	require.True(t, pool.CheckAllUnpinned())
}
