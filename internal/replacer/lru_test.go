package replacer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/replacer"
)

func TestLRU_VictimOrderIsLeastRecentlyUnpinned(t *testing.T) {
	r := replacer.New()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	f, ok := r.Victim()
	require.True(t, ok)
	require.EqualValues(t, 1, f)

	f, ok = r.Victim()
	require.True(t, ok)
	require.EqualValues(t, 2, f)
}

func TestLRU_PinRemovesFromEvictableSet(t *testing.T) {
	r := replacer.New()
	r.Unpin(1)
	r.Pin(1)
	_, ok := r.Victim()
	require.False(t, ok)
}

func TestLRU_UnpinIsIdempotent(t *testing.T) {
	r := replacer.New()
	r.Unpin(1)
	r.Unpin(1)
	require.Equal(t, 1, r.Size())
}

func TestLRU_VictimOnEmptyReturnsFalse(t *testing.T) {
	r := replacer.New()
	_, ok := r.Victim()
	require.False(t, ok)
}
