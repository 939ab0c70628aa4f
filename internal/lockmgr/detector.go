package lockmgr

import (
	"sort"
	"time"

	"github.com/cinderdb/cinderdb/internal/common"
)

// Run starts the background deadlock detector goroutine (spec §4.8,
// §9 "model as an independent task that sleeps and periodically acquires
// the lock-manager mutex"). Call Close to stop it.
func (m *Manager) Run() {
	go m.runCycleDetection()
}

// Close stops the detector goroutine and waits for it to exit.
func (m *Manager) Close() {
	close(m.stop)
	<-m.stopped
}

func (m *Manager) addEdge(t1, t2 TxnID) {
	if m.waitsFor[t1] == nil {
		m.waitsFor[t1] = make(map[TxnID]struct{})
	}
	m.waitsFor[t1][t2] = struct{}{}
}

func (m *Manager) removeEdge(t1, t2 TxnID) {
	delete(m.waitsFor[t1], t2)
}

// hasCycle runs iterative-in-spirit (recursive in code, matching
// original_source's DFS) depth-first search over the wait-for graph from
// every transaction in ascending ID order, returning the youngest
// transaction ID on the first cycle found.
func (m *Manager) hasCycle() (TxnID, bool) {
	visited := make(map[TxnID]bool)
	onPath := make(map[TxnID]bool)
	var path []TxnID
	var revisited TxnID
	found := false

	var dfs func(id TxnID) bool
	dfs = func(id TxnID) bool {
		if onPath[id] {
			revisited = id
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		neighbors := make([]TxnID, 0, len(m.waitsFor[id]))
		for n := range m.waitsFor[id] {
			neighbors = append(neighbors, n)
		}
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })
		for _, n := range neighbors {
			if dfs(n) {
				return true
			}
		}
		onPath[id] = false
		path = path[:len(path)-1]
		return false
	}

	ids := make(map[TxnID]struct{})
	for t1, nbrs := range m.waitsFor {
		ids[t1] = struct{}{}
		for t2 := range nbrs {
			ids[t2] = struct{}{}
		}
	}
	sorted := make([]TxnID, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, start := range sorted {
		visited = make(map[TxnID]bool)
		onPath = make(map[TxnID]bool)
		path = nil
		if dfs(start) {
			newest := revisited
			for i := len(path) - 1; i >= 0 && path[i] != revisited; i-- {
				if path[i] > newest {
					newest = path[i]
				}
			}
			found = true
			return newest, found
		}
	}
	return 0, false
}

// deleteNode drops txnID from the wait-for graph entirely: every edge that
// pointed at it from a still-waiting request is removed, mirroring
// original_source's DeleteNode (which walks the aborted transaction's own
// lock sets to find those edges).
func (m *Manager) deleteNode(txnID TxnID) {
	delete(m.waitsFor, txnID)
	txn := m.txns[txnID]
	if txn == nil {
		return
	}
	for _, rid := range append(txn.SharedLockSet(), txn.ExclusiveLockSet()...) {
		q := m.lockTable[rid]
		if q == nil {
			continue
		}
		for _, req := range q.requests {
			if req.granted == lockNone {
				m.removeEdge(req.txnID, txnID)
			}
		}
	}
}

// runCycleDetection is the detector loop: build the wait-for graph from
// every row's queue (a waiting request draws an edge to every already-
// granted request sharing its queue), repeatedly abort the youngest
// transaction in any cycle until the graph is acyclic, then discard it and
// sleep (spec §4.8).
func (m *Manager) runCycleDetection() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.detectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		required := make(map[TxnID]common.RowID)
		for rid, q := range m.lockTable {
			for _, req := range q.requests {
				if req.granted != lockNone {
					continue
				}
				required[req.txnID] = rid
				for _, granted := range q.requests {
					if granted.granted == lockNone {
						continue
					}
					m.addEdge(req.txnID, granted.txnID)
				}
			}
		}

		for {
			victim, ok := m.hasCycle()
			if !ok {
				break
			}
			txn := m.txns[victim]
			m.deleteNode(victim)
			if txn != nil {
				txn.setState(TxnAborted)
			}
			if rid, ok := required[victim]; ok {
				if q := m.lockTable[rid]; q != nil {
					q.cond.Broadcast()
				}
			}
		}
		m.waitsFor = make(map[TxnID]map[TxnID]struct{})
		m.mu.Unlock()
	}
}
