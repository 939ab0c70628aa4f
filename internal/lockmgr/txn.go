// Package lockmgr grants shared and exclusive row locks under strict
// two-phase locking (spec §4.8), grounded on
// original_source/src/concurrency/lock_manager.cpp. A lock table keyed by
// RowId holds a queue of requests per row; growing transactions append a
// request and block on the queue's condition variable until it can be
// granted, or until a cooperative deadlock detector aborts them.
package lockmgr

import (
	"fmt"
	"sync"

	"github.com/cinderdb/cinderdb/internal/common"
)

// TxnID identifies a transaction. Ascending allocation order doubles as
// "youngest first" for the deadlock detector's victim selection.
type TxnID uint64

// TxnState is strict 2PL's state machine (spec §4.8): Growing accepts lock
// acquisitions; the first unlock (barring a ReadCommitted shared unlock)
// moves to Shrinking, after which acquiring any further lock aborts.
type TxnState int

const (
	TxnGrowing TxnState = iota
	TxnShrinking
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnGrowing:
		return "growing"
	case TxnShrinking:
		return "shrinking"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsolationLevel controls whether LockShared is permitted at all and
// whether a shared unlock triggers the Shrinking transition.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	Serializable
)

// AbortReason is one of spec §7's four transaction-abort kinds.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	LockSharedOnReadUncommitted
	UpgradeConflict
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LockOnShrinking"
	case LockSharedOnReadUncommitted:
		return "LockSharedOnReadUncommitted"
	case UpgradeConflict:
		return "UpgradeConflict"
	case Deadlock:
		return "Deadlock"
	default:
		return "Unknown"
	}
}

// AbortError is the exceptional control-flow signal spec §7 calls for: it
// bears the aborting transaction's ID and the reason, and is returned
// (never panicked) so the caller can unwind normally.
type AbortError struct {
	TxnID  TxnID
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("lockmgr: txn %d aborted: %s", e.TxnID, e.Reason)
}

// Txn is a single transaction's lock-manager-visible state: which rows it
// holds shared/exclusive locks on, and its position in the 2PL state
// machine. The executor that actually runs statements owns the rest of a
// transaction's context; this is only what the lock manager needs.
type Txn struct {
	id        TxnID
	isolation IsolationLevel

	mu      sync.Mutex
	state   TxnState
	shared  map[common.RowID]struct{}
	excl    map[common.RowID]struct{}
}

func NewTxn(id TxnID, isolation IsolationLevel) *Txn {
	return &Txn{
		id:        id,
		isolation: isolation,
		state:     TxnGrowing,
		shared:    make(map[common.RowID]struct{}),
		excl:      make(map[common.RowID]struct{}),
	}
}

func (t *Txn) ID() TxnID                      { return t.id }
func (t *Txn) IsolationLevel() IsolationLevel  { return t.isolation }

func (t *Txn) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Txn) setState(s TxnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Txn) addShared(rid common.RowID) {
	t.mu.Lock()
	t.shared[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Txn) removeShared(rid common.RowID) {
	t.mu.Lock()
	delete(t.shared, rid)
	t.mu.Unlock()
}

func (t *Txn) addExclusive(rid common.RowID) {
	t.mu.Lock()
	t.excl[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Txn) removeExclusive(rid common.RowID) {
	t.mu.Lock()
	delete(t.excl, rid)
	t.mu.Unlock()
}

// SharedLockSet and ExclusiveLockSet return snapshots, used by the deadlock
// detector and by tests.
func (t *Txn) SharedLockSet() []common.RowID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]common.RowID, 0, len(t.shared))
	for r := range t.shared {
		out = append(out, r)
	}
	return out
}

func (t *Txn) ExclusiveLockSet() []common.RowID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]common.RowID, 0, len(t.excl))
	for r := range t.excl {
		out = append(out, r)
	}
	return out
}
