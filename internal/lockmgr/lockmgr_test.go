package lockmgr_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/lockmgr"
)

func rid(n int32) common.RowID { return common.RowID{PageID: common.PageID(n), SlotNum: 0} }

func TestLockShared_AbortsUnderReadUncommitted(t *testing.T) {
	m := lockmgr.New(nil)
	txn := m.Begin(lockmgr.ReadUncommitted)

	err := m.LockShared(txn, rid(1))
	require.Error(t, err)
	var abortErr *lockmgr.AbortError
	require.True(t, errors.As(err, &abortErr))
	require.Equal(t, lockmgr.LockSharedOnReadUncommitted, abortErr.Reason)
	require.Equal(t, lockmgr.TxnAborted, txn.State())
}

func TestLockExclusive_SerializesConcurrentWriters(t *testing.T) {
	m := lockmgr.New(nil)
	t1 := m.Begin(lockmgr.Serializable)
	t2 := m.Begin(lockmgr.Serializable)
	row := rid(1)

	require.NoError(t, m.LockExclusive(t1, row))

	done := make(chan error, 1)
	go func() { done <- m.LockExclusive(t2, row) }()

	select {
	case <-done:
		t.Fatal("second LockExclusive granted while first still holds the row")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, m.Unlock(t1, row))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second LockExclusive never woke after unlock")
	}
}

func TestLockUpgrade_ConflictsWithConcurrentUpgrade(t *testing.T) {
	m := lockmgr.New(nil)
	t1 := m.Begin(lockmgr.Serializable)
	t2 := m.Begin(lockmgr.Serializable)
	row := rid(1)

	require.NoError(t, m.LockShared(t1, row))
	require.NoError(t, m.LockShared(t2, row))

	done := make(chan error, 1)
	go func() { done <- m.LockUpgrade(t1, row) }()
	time.Sleep(20 * time.Millisecond) // let t1's upgrade register as in-flight

	err := m.LockUpgrade(t2, row)
	require.Error(t, err)
	var abortErr *lockmgr.AbortError
	require.True(t, errors.As(err, &abortErr))
	require.Equal(t, lockmgr.UpgradeConflict, abortErr.Reason)

	require.NoError(t, m.Unlock(t2, row))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("t1's upgrade never completed")
	}
}

func TestDeadlock_AbortsYoungestTransactionInCycle(t *testing.T) {
	m := lockmgr.New(nil)
	m.Run()
	defer m.Close()

	t1 := m.Begin(lockmgr.Serializable)
	t2 := m.Begin(lockmgr.Serializable) // t2 has the larger ID: the expected victim
	rowA, rowB := rid(1), rid(2)

	require.NoError(t, m.LockExclusive(t1, rowA))
	require.NoError(t, m.LockExclusive(t2, rowB))

	errCh1 := make(chan error, 1)
	errCh2 := make(chan error, 1)
	go func() { errCh1 <- m.LockExclusive(t1, rowB) }() // t1 waits on t2
	time.Sleep(10 * time.Millisecond)
	go func() { errCh2 <- m.LockExclusive(t2, rowA) }() // t2 waits on t1: cycle t1<->t2

	var err1, err2 error
	for err1 == nil && err2 == nil {
		select {
		case err1 = <-errCh1:
		case err2 = <-errCh2:
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock detector never aborted either transaction")
		}
	}

	require.NoError(t, err1, "t1 (older) should not be aborted")
	require.Error(t, err2, "t2 (younger) should be the detector's victim")
	var abortErr *lockmgr.AbortError
	require.True(t, errors.As(err2, &abortErr))
	require.Equal(t, lockmgr.Deadlock, abortErr.Reason)
	require.Equal(t, lockmgr.TxnAborted, t2.State())
}

func TestUnlock_AllowedDuringShrinking(t *testing.T) {
	m := lockmgr.New(nil)
	txn := m.Begin(lockmgr.Serializable)
	row1, row2 := rid(1), rid(2)

	require.NoError(t, m.LockExclusive(txn, row1))
	require.NoError(t, m.LockExclusive(txn, row2))
	require.NoError(t, m.Unlock(txn, row1))
	require.Equal(t, lockmgr.TxnShrinking, txn.State())

	// The liberal reading (spec §9): a second unlock while Shrinking must
	// not abort the transaction.
	require.NoError(t, m.Unlock(txn, row2))
	require.Equal(t, lockmgr.TxnShrinking, txn.State())
}

func TestLockOnShrinking_AbortsFurtherAcquisition(t *testing.T) {
	m := lockmgr.New(nil)
	txn := m.Begin(lockmgr.Serializable)
	row1, row2 := rid(1), rid(2)

	require.NoError(t, m.LockExclusive(txn, row1))
	require.NoError(t, m.Unlock(txn, row1))
	require.Equal(t, lockmgr.TxnShrinking, txn.State())

	err := m.LockExclusive(txn, row2)
	require.Error(t, err)
	var abortErr *lockmgr.AbortError
	require.True(t, errors.As(err, &abortErr))
	require.Equal(t, lockmgr.LockOnShrinking, abortErr.Reason)
}
