package recovery

import "sort"

// Manager replays a log stream against a checkpoint snapshot (spec §4.9),
// grounded on original_source/src/include/recovery/recovery_manager.h's
// Init/RedoPhase/UndoPhase. It owns no page store: Data holds the logical
// kv map the log records describe.
type Manager struct {
	logRecs    map[LSN]*LogRec
	persistLSN LSN
	activeTxns map[TxnID]LSN
	data       map[string]int32
}

// Init seeds the manager from a checkpoint (spec §4.9's "Init" step).
func Init(checkpoint *Checkpoint) (*Manager, error) {
	data, err := checkpoint.Data()
	if err != nil {
		return nil, err
	}
	active := make(map[TxnID]LSN, len(checkpoint.ActiveTxns))
	for k, v := range checkpoint.ActiveTxns {
		active[k] = v
	}
	return &Manager{
		logRecs:    make(map[LSN]*LogRec),
		persistLSN: checkpoint.CheckpointLSN,
		activeTxns: active,
		data:       data,
	}, nil
}

// AppendLogRec adds a record to the replayable stream (test/replay-only,
// mirroring original_source's AppendLogRec).
func (m *Manager) AppendLogRec(rec *LogRec) {
	m.logRecs[rec.LSN] = rec
}

// Data returns the manager's current logical kv state.
func (m *Manager) Data() map[string]int32 { return m.data }

func (m *Manager) maxLSN() LSN {
	var max LSN = -1
	for lsn := range m.logRecs {
		if lsn > max {
			max = lsn
		}
	}
	return max
}

// RedoPhase replays every record from persist_lsn onward forward, applying
// each record's data effect and tracking each transaction's latest LSN
// (spec §4.9's Redo step). An Abort record triggers an immediate localized
// undo back to that transaction's Begin.
func (m *Manager) RedoPhase() {
	last := m.maxLSN()
	for lsn := m.persistLSN; lsn <= last; lsn++ {
		rec, ok := m.logRecs[lsn]
		if !ok {
			continue
		}
		m.activeTxns[rec.TxnID] = rec.LSN
		switch rec.Type {
		case RecInsert:
			m.data[rec.NewKey] = rec.NewValue
		case RecDelete:
			delete(m.data, rec.NewKey)
		case RecUpdate:
			delete(m.data, rec.OldKey)
			m.data[rec.NewKey] = rec.NewValue
		case RecCommit:
			delete(m.activeTxns, rec.TxnID)
		case RecAbort:
			m.undoChain(rec.PrevLSN)
		}
	}
}

// UndoPhase walks every transaction still in the active table backward via
// PrevLSN, reversing each data op, until no predecessor remains (spec
// §4.9's Undo step — loser transactions left incomplete by the crash).
func (m *Manager) UndoPhase() {
	ids := make([]TxnID, 0, len(m.activeTxns))
	for id := range m.activeTxns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m.undoChain(m.activeTxns[id])
	}
}

// undoChain reverses every record from lsn backward to (and including) the
// first record reached, stopping when PrevLSN runs out.
func (m *Manager) undoChain(lsn LSN) {
	for lsn != InvalidLSN {
		rec, ok := m.logRecs[lsn]
		if !ok {
			return
		}
		switch rec.Type {
		case RecInsert:
			delete(m.data, rec.NewKey)
		case RecDelete:
			m.data[rec.NewKey] = rec.NewValue
		case RecUpdate:
			delete(m.data, rec.NewKey)
			m.data[rec.OldKey] = rec.OldValue
		}
		lsn = rec.PrevLSN
	}
}
