package lockmgr

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cinderdb/cinderdb/internal/common"
)

// DefaultDetectionInterval is how often the detector goroutine started by
// Run wakes to rebuild
// the wait-for graph, mirroring original_source's cycle_detection_interval_.
const DefaultDetectionInterval = 50 * time.Millisecond

// Manager is the Lock Manager of spec §4.8: row-granularity shared/
// exclusive locks under strict 2PL, with a background cycle detector that
// picks the youngest transaction in any wait-for cycle as its victim.
type Manager struct {
	mu        sync.Mutex
	lockTable map[common.RowID]*requestQueue
	waitsFor  map[TxnID]map[TxnID]struct{}

	txns map[TxnID]*Txn

	nextTxnID uint64

	detectionInterval time.Duration
	stop              chan struct{}
	stopped           chan struct{}
	log               *zap.SugaredLogger
}

// New constructs a lock manager. Call Run to start the background deadlock
// detector; Close stops it.
func New(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		lockTable:         make(map[common.RowID]*requestQueue),
		waitsFor:          make(map[TxnID]map[TxnID]struct{}),
		txns:              make(map[TxnID]*Txn),
		detectionInterval: DefaultDetectionInterval,
		stop:              make(chan struct{}),
		stopped:           make(chan struct{}),
		log:               log,
	}
}

// Begin allocates a fresh TxnID, constructs its Txn, and registers it with
// the detector in one step — the usual way an executor starts a transaction.
func (m *Manager) Begin(isolation IsolationLevel) *Txn {
	id := TxnID(atomic.AddUint64(&m.nextTxnID, 1))
	txn := NewTxn(id, isolation)
	m.Register(txn)
	return txn
}

// Register makes txn visible to the deadlock detector (it needs to map a
// waiting request's TxnID back to a *Txn to abort it).
func (m *Manager) Register(txn *Txn) {
	m.mu.Lock()
	m.txns[txn.id] = txn
	m.mu.Unlock()
}

func (m *Manager) queueFor(rid common.RowID) *requestQueue {
	q, ok := m.lockTable[rid]
	if !ok {
		q = newRequestQueue(&m.mu)
		m.lockTable[rid] = q
	}
	return q
}

// lockPrepare is original_source's LockPrepare: reject acquisitions once a
// transaction has entered Shrinking.
func (m *Manager) lockPrepare(txn *Txn) error {
	if txn.State() == TxnShrinking {
		txn.setState(TxnAborted)
		return &AbortError{TxnID: txn.id, Reason: LockOnShrinking}
	}
	return nil
}

// checkAbort is original_source's CheckAbort: a transaction woken by the
// deadlock detector observes Aborted and must drop its pending request.
func (m *Manager) checkAbort(txn *Txn, q *requestQueue) error {
	if txn.State() == TxnAborted {
		q.remove(txn.id)
		return &AbortError{TxnID: txn.id, Reason: Deadlock}
	}
	return nil
}

// LockShared acquires rid's shared lock for txn (spec §4.8). Disallowed
// under ReadUncommitted, where readers never need a shared lock.
func (m *Manager) LockShared(txn *Txn, rid common.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lockPrepare(txn); err != nil {
		return err
	}
	if txn.IsolationLevel() == ReadUncommitted {
		txn.setState(TxnAborted)
		return &AbortError{TxnID: txn.id, Reason: LockSharedOnReadUncommitted}
	}

	q := m.queueFor(rid)
	req := q.append(txn.id, LockShared)
	for q.writing {
		q.cond.Wait()
		if txn.State() == TxnAborted {
			break
		}
	}
	if err := m.checkAbort(txn, q); err != nil {
		return err
	}

	txn.addShared(rid)
	q.sharingCnt++
	req.granted = LockShared
	return nil
}

// LockExclusive acquires rid's exclusive lock for txn, waiting for every
// reader and writer to release first.
func (m *Manager) LockExclusive(txn *Txn, rid common.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lockPrepare(txn); err != nil {
		return err
	}

	q := m.queueFor(rid)
	req := q.append(txn.id, LockExclusive)
	for q.writing || q.sharingCnt > 0 {
		q.cond.Wait()
		if txn.State() == TxnAborted {
			break
		}
	}
	if err := m.checkAbort(txn, q); err != nil {
		return err
	}

	txn.addExclusive(rid)
	q.writing = true
	req.granted = LockExclusive
	return nil
}

// LockUpgrade promotes txn's shared lock on rid to exclusive. Only one
// upgrade may be in flight per row at a time (spec §4.8); a second
// concurrent upgrader aborts immediately rather than queueing, since
// queueing could itself deadlock against the upgrade it's waiting behind.
func (m *Manager) LockUpgrade(txn *Txn, rid common.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.lockPrepare(txn); err != nil {
		return err
	}

	q := m.queueFor(rid)
	if q.upgrading {
		txn.setState(TxnAborted)
		return &AbortError{TxnID: txn.id, Reason: UpgradeConflict}
	}

	req := q.find(txn.id)
	if req == nil {
		req = q.append(txn.id, LockShared)
		req.granted = LockShared
	}
	req.mode = LockExclusive

	if q.writing || q.sharingCnt > 1 {
		q.upgrading = true
		for q.writing || q.sharingCnt > 1 {
			q.cond.Wait()
			if txn.State() == TxnAborted {
				break
			}
		}
	}
	if txn.State() == TxnAborted {
		q.upgrading = false
	}
	if err := m.checkAbort(txn, q); err != nil {
		return err
	}

	txn.removeShared(rid)
	q.sharingCnt--
	txn.addExclusive(rid)
	q.upgrading = false
	q.writing = true
	req.granted = LockExclusive
	return nil
}

// Unlock releases txn's lock on rid. Per spec §9's liberal reading of the
// source's LockPrepare/Unlock ambiguity, unlock is always permitted — it
// never aborts for being called during Shrinking.
func (m *Manager) Unlock(txn *Txn, rid common.RowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(rid)
	req := q.find(txn.id)
	if req == nil {
		return nil
	}
	mode := req.granted

	if mode == LockShared {
		txn.removeShared(rid)
	} else {
		txn.removeExclusive(rid)
	}
	q.remove(txn.id)

	if txn.State() == TxnGrowing &&
		!(txn.IsolationLevel() == ReadCommitted && mode == LockShared) {
		txn.setState(TxnShrinking)
	}

	if mode == LockShared {
		q.sharingCnt--
	} else {
		q.writing = false
	}
	q.cond.Broadcast()
	return nil
}
