package recovery_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cinderdb/cinderdb/internal/recovery"
)

// TestRecovery_ConcreteScenario replays spec §8's worked example: checkpoint
// {lsn=0, active={}, data={"a":1}} plus the log stream
// [Begin T1@1, Insert T1 "b":2@2, Begin T2@3, Update T2 "a":1->9@4, Commit T1@5]
// must leave the kv map {"a":1, "b":2}: T2's update is undone (it never
// committed) and T1's insert survives (it committed).
func TestRecovery_ConcreteScenario(t *testing.T) {
	ckpt, err := recovery.NewCheckpoint(0, nil, map[string]int32{"a": 1})
	require.NoError(t, err)

	mgr, err := recovery.Init(ckpt)
	require.NoError(t, err)

	const t1, t2 recovery.TxnID = 1, 2
	mgr.AppendLogRec(&recovery.LogRec{Type: recovery.RecBegin, LSN: 1, PrevLSN: recovery.InvalidLSN, TxnID: t1})
	mgr.AppendLogRec(&recovery.LogRec{Type: recovery.RecInsert, LSN: 2, PrevLSN: 1, TxnID: t1, NewKey: "b", NewValue: 2})
	mgr.AppendLogRec(&recovery.LogRec{Type: recovery.RecBegin, LSN: 3, PrevLSN: recovery.InvalidLSN, TxnID: t2})
	mgr.AppendLogRec(&recovery.LogRec{
		Type: recovery.RecUpdate, LSN: 4, PrevLSN: 3, TxnID: t2,
		OldKey: "a", OldValue: 1, NewKey: "a", NewValue: 9,
	})
	mgr.AppendLogRec(&recovery.LogRec{Type: recovery.RecCommit, LSN: 5, PrevLSN: 2, TxnID: t1})

	mgr.RedoPhase()
	mgr.UndoPhase()

	require.Equal(t, map[string]int32{"a": 1, "b": 2}, mgr.Data())
}

func TestRecovery_LoggerProducesChainedRecords(t *testing.T) {
	log := recovery.NewLogger()
	const txn recovery.TxnID = 7

	begin := log.Begin(txn)
	ins := log.Insert(txn, "x", 1)
	upd := log.Update(txn, "x", 1, "x", 2)
	commit := log.Commit(txn)

	require.Equal(t, recovery.InvalidLSN, begin.PrevLSN)
	require.Equal(t, begin.LSN, ins.PrevLSN)
	require.Equal(t, ins.LSN, upd.PrevLSN)
	require.Equal(t, upd.LSN, commit.PrevLSN)
}

func TestRecovery_AbortedTransactionIsFullyUndoneDuringRedo(t *testing.T) {
	ckpt, err := recovery.NewCheckpoint(0, nil, map[string]int32{})
	require.NoError(t, err)
	mgr, err := recovery.Init(ckpt)
	require.NoError(t, err)

	log := recovery.NewLogger()
	const txn recovery.TxnID = 1
	mgr.AppendLogRec(log.Begin(txn))
	mgr.AppendLogRec(log.Insert(txn, "k", 42))
	mgr.AppendLogRec(log.Abort(txn))

	mgr.RedoPhase()
	mgr.UndoPhase()

	require.Equal(t, map[string]int32{}, mgr.Data())
}

func TestCheckpoint_DataRoundTripsThroughCompression(t *testing.T) {
	original := map[string]int32{"a": 1, "b": -7, "c": 0}
	ckpt, err := recovery.NewCheckpoint(3, map[recovery.TxnID]recovery.LSN{5: 9}, original)
	require.NoError(t, err)

	got, err := ckpt.Data()
	require.NoError(t, err)
	require.Equal(t, original, got)
	require.Equal(t, recovery.LSN(9), ckpt.ActiveTxns[5])
}
