// Package transaction implements page-level two-phase locking with
// deadlock detection.
package transaction

import (
	"sync"

	"github.com/dsg-go/stowdb/common"
)

// LockMode is the granularity of access a transaction requests on a page.
type LockMode int

const (
	// Shared may be held by any number of transactions concurrently.
	Shared LockMode = iota
	// Exclusive is held by at most one transaction, incompatible with
	// every other Shared or Exclusive holder.
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "Exclusive"
	}
	return "Shared"
}

type pageLock struct {
	shared    map[common.TransactionID]bool
	exclusive common.TransactionID
	hasExcl   bool
}

func newPageLock() *pageLock {
	return &pageLock{shared: make(map[common.TransactionID]bool)}
}

func (l *pageLock) isEmpty() bool {
	return len(l.shared) == 0 && !l.hasExcl
}

// holdersExcluding returns every transaction currently holding any lock on the
// page, excluding tid itself.
func (l *pageLock) holdersExcluding(tid common.TransactionID) map[common.TransactionID]bool {
	out := make(map[common.TransactionID]bool)
	for h := range l.shared {
		if h != tid {
			out[h] = true
		}
	}
	if l.hasExcl && l.exclusive != tid {
		out[l.exclusive] = true
	}
	return out
}

// canGrant reports whether tid can be granted mode right now: reentrance
// (already holding X gets X; already holding at least S gets S), and
// upgrade only when tid is the sole S-holder with no X-holder.
func (l *pageLock) canGrant(tid common.TransactionID, mode LockMode) bool {
	if l.hasExcl {
		return l.exclusive == tid
	}
	switch mode {
	case Shared:
		return true
	case Exclusive:
		if len(l.shared) == 0 {
			return true
		}
		return len(l.shared) == 1 && l.shared[tid]
	}
	panic("unreachable")
}

func (l *pageLock) grant(tid common.TransactionID, mode LockMode) {
	switch mode {
	case Shared:
		l.shared[tid] = true
	case Exclusive:
		delete(l.shared, tid)
		l.exclusive = tid
		l.hasExcl = true
	}
}

func (l *pageLock) release(tid common.TransactionID) {
	delete(l.shared, tid)
	if l.hasExcl && l.exclusive == tid {
		l.hasExcl = false
		l.exclusive = common.TransactionID(0)
	}
}

// LockManager grants and tracks page-level S/X locks and detects
// deadlocks via cycle search over a waits-for graph.
type LockManager struct {
	mu   sync.Mutex
	cond *sync.Cond

	locks map[common.PageID]*pageLock
	// held indexes the inverse of locks, for O(1) ReleaseAll / HoldsLock.
	held map[common.TransactionID]map[common.PageID]bool
	// dependencies is the waits-for graph: tid -> set of tids it is
	// currently blocked behind.
	dependencies map[common.TransactionID]map[common.TransactionID]bool
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	lm := &LockManager{
		locks:        make(map[common.PageID]*pageLock),
		held:         make(map[common.TransactionID]map[common.PageID]bool),
		dependencies: make(map[common.TransactionID]map[common.TransactionID]bool),
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

// Acquire blocks until tid holds mode on pid, or returns a DeadlockError
// if granting it would require waiting on a cycle through tid. The
// caller of a failed Acquire must abort: call TransactionComplete(tid,
// false) as cleanup.
func (lm *LockManager) Acquire(tid common.TransactionID, pid common.PageID, mode LockMode) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		lock, ok := lm.locks[pid]
		if !ok {
			lock = newPageLock()
			lm.locks[pid] = lock
		}

		if lock.canGrant(tid, mode) {
			lock.grant(tid, mode)
			if lm.held[tid] == nil {
				lm.held[tid] = make(map[common.PageID]bool)
			}
			lm.held[tid][pid] = true
			delete(lm.dependencies, tid)
			return nil
		}

		lm.dependencies[tid] = lock.holdersExcluding(tid)
		if lm.hasCycleThrough(tid) {
			delete(lm.dependencies, tid)
			return common.NewError(common.DeadlockError, "transaction %d aborted: deadlock acquiring %s on %s", tid, mode, pid)
		}

		lm.cond.Wait()
	}
}

// hasCycleThrough reports whether start is reachable from itself via the
// waits-for graph, i.e. whether granting start's pending request would
// close a cycle. Caller must hold lm.mu.
func (lm *LockManager) hasCycleThrough(start common.TransactionID) bool {
	visited := map[common.TransactionID]bool{start: true}
	stack := make([]common.TransactionID, 0, len(lm.dependencies[start]))
	for next := range lm.dependencies[start] {
		stack = append(stack, next)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == start {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for next := range lm.dependencies[cur] {
			stack = append(stack, next)
		}
	}
	return false
}

// Release drops tid's lock on pid, if any, and wakes waiters.
func (lm *LockManager) Release(tid common.TransactionID, pid common.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(tid, pid)
	lm.cond.Broadcast()
}

func (lm *LockManager) releaseLocked(tid common.TransactionID, pid common.PageID) {
	lock, ok := lm.locks[pid]
	if !ok {
		return
	}
	lock.release(tid)
	if lock.isEmpty() {
		delete(lm.locks, pid)
	}
	if pages, ok := lm.held[tid]; ok {
		delete(pages, pid)
		if len(pages) == 0 {
			delete(lm.held, tid)
		}
	}
	delete(lm.dependencies, tid)
}

// ReleaseAll releases every lock tid holds.
func (lm *LockManager) ReleaseAll(tid common.TransactionID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for pid := range lm.held[tid] {
		lock := lm.locks[pid]
		lock.release(tid)
		if lock.isEmpty() {
			delete(lm.locks, pid)
		}
	}
	delete(lm.held, tid)
	delete(lm.dependencies, tid)
	lm.cond.Broadcast()
}

// ReleaseAllOnPage drops every holder of pid, used when a page is evicted
// or discarded by the buffer pool.
func (lm *LockManager) ReleaseAllOnPage(pid common.PageID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lock, ok := lm.locks[pid]
	if !ok {
		return
	}
	for tid := range lock.shared {
		if pages := lm.held[tid]; pages != nil {
			delete(pages, pid)
		}
	}
	if lock.hasExcl {
		if pages := lm.held[lock.exclusive]; pages != nil {
			delete(pages, pid)
		}
	}
	delete(lm.locks, pid)
	lm.cond.Broadcast()
}

// HoldsLock reports whether tid holds any lock (S or X) on pid.
func (lm *LockManager) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.held[tid][pid]
}
