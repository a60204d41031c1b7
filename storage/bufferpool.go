package storage

import (
	"sync"

	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/transaction"
)

// FileLookup resolves a table id to the HeapFile backing it. The catalog
// implements this so the buffer pool can load a page through the right
// file on a cache miss, and flush/revert it through that same file on
// transaction completion.
type FileLookup interface {
	GetFile(id common.TableID) (*HeapFile, error)
}

// BufferPool is a bounded cache of up to numPages HeapPages, enforcing a
// NO-STEAL/FORCE policy: a dirty page is never written to disk before its
// transaction commits, and every page a committing transaction dirtied is
// flushed before TransactionComplete returns.
type BufferPool struct {
	mu sync.Mutex

	numPages int
	pages    map[common.PageID]*HeapPage
	// order tracks recency for LRU-ish eviction: least recently touched
	// at the front. Any clean page is a legal victim; this just gives a
	// deterministic, reasonable choice among them.
	order []common.PageID

	lockManager *transaction.LockManager
	files       FileLookup
}

// NewBufferPool creates a pool that caches at most numPages pages,
// consulting lockManager on every acquisition and files to load pages on
// a miss.
func NewBufferPool(numPages int, files FileLookup, lockManager *transaction.LockManager) *BufferPool {
	return &BufferPool{
		numPages:    numPages,
		pages:       make(map[common.PageID]*HeapPage),
		lockManager: lockManager,
		files:       files,
	}
}

func lockModeFor(perm common.Permission) transaction.LockMode {
	if perm == common.ReadWrite {
		return transaction.Exclusive
	}
	return transaction.Shared
}

// GetPage acquires the requested lock (which may block, or fail with a
// DeadlockError the caller must treat as an abort) and returns the
// cached page, loading it through its heap file and evicting a clean
// page to make room if necessary.
func (bp *BufferPool) GetPage(tid common.TransactionID, pid common.PageID, perm common.Permission) (*HeapPage, error) {
	if err := bp.lockManager.Acquire(tid, pid, lockModeFor(perm)); err != nil {
		return nil, err
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if page, ok := bp.pages[pid]; ok {
		bp.touchLocked(pid)
		return page, nil
	}

	if len(bp.pages) >= bp.numPages {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	file, err := bp.files.GetFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	data, err := file.ReadPage(pid.PageNumber)
	if err != nil {
		return nil, err
	}
	page := NewHeapPage(pid, file.TupleDesc(), data)
	bp.pages[pid] = page
	bp.order = append(bp.order, pid)
	return page, nil
}

func (bp *BufferPool) touchLocked(pid common.PageID) {
	for i, p := range bp.order {
		if p == pid {
			bp.order = append(bp.order[:i], bp.order[i+1:]...)
			break
		}
	}
	bp.order = append(bp.order, pid)
}

// evictLocked selects and drops the first clean page found (in recency
// order), releasing all locks on it. Fails with BufferFullError if every
// cached page is dirty. Caller must hold bp.mu.
func (bp *BufferPool) evictLocked() error {
	for i, pid := range bp.order {
		page := bp.pages[pid]
		if _, dirty := page.IsDirty(); dirty {
			continue
		}
		bp.order = append(bp.order[:i], bp.order[i+1:]...)
		delete(bp.pages, pid)
		bp.lockManager.ReleaseAllOnPage(pid)
		return nil
	}
	return common.NewError(common.BufferFullError, "buffer pool full: every cached page is dirty")
}

// HoldsLock reports whether tid already holds any lock on pid.
func (bp *BufferPool) HoldsLock(tid common.TransactionID, pid common.PageID) bool {
	return bp.lockManager.HoldsLock(tid, pid)
}

// UnsafeReleasePage releases tid's lock on pid directly through the lock
// manager, without any of the bookkeeping transactionComplete does. Used
// only by HeapFile.InsertTuple's probe-then-upgrade sequence, where the
// probing ReadOnly lock was never used to dirty a page.
func (bp *BufferPool) UnsafeReleasePage(tid common.TransactionID, pid common.PageID) {
	bp.lockManager.Release(tid, pid)
}

// InsertTuple delegates to tableId's heap file and marks every page it
// returns dirty under tid.
func (bp *BufferPool) InsertTuple(tid common.TransactionID, tableID common.TableID, t *Tuple) error {
	file, err := bp.files.GetFile(tableID)
	if err != nil {
		return err
	}
	pages, err := file.InsertTuple(tid, t)
	if err != nil {
		return err
	}
	for _, p := range pages {
		p.MarkDirty(true, tid)
	}
	return nil
}

// DeleteTuple delegates to t's heap file and marks every page it returns
// dirty under tid.
func (bp *BufferPool) DeleteTuple(tid common.TransactionID, t *Tuple) error {
	rid, ok := t.RecordID()
	if !ok {
		return common.NewError(common.NotFoundError, "cannot delete a tuple with no RecordID")
	}
	file, err := bp.files.GetFile(rid.PageID.TableID)
	if err != nil {
		return err
	}
	pages, err := file.DeleteTuple(tid, t)
	if err != nil {
		return err
	}
	for _, p := range pages {
		p.MarkDirty(true, tid)
	}
	return nil
}

// TransactionComplete ends tid: on commit, every page it dirtied is
// flushed to disk (FORCE); on abort, every page it dirtied is re-read
// from disk, discarding the in-memory changes. Either way, all locks tid
// holds are released only after that page work finishes.
func (bp *BufferPool) TransactionComplete(tid common.TransactionID, commit bool) error {
	bp.mu.Lock()
	var dirtied []common.PageID
	for pid, page := range bp.pages {
		if dtid, ok := page.IsDirty(); ok && dtid == tid {
			dirtied = append(dirtied, pid)
		}
	}
	bp.mu.Unlock()

	var firstErr error
	for _, pid := range dirtied {
		file, err := bp.files.GetFile(pid.TableID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		bp.mu.Lock()
		page := bp.pages[pid]
		bp.mu.Unlock()
		if page == nil {
			continue
		}

		if commit {
			if err := file.WritePage(pid.PageNumber, page.PageData()); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			page.MarkDirty(false, 0)
		} else {
			data, err := file.ReadPage(pid.PageNumber)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			reverted := NewHeapPage(pid, file.TupleDesc(), data)
			bp.mu.Lock()
			bp.pages[pid] = reverted
			bp.mu.Unlock()
		}
	}

	bp.lockManager.ReleaseAll(tid)
	return firstErr
}

// FlushAllPages writes every dirty cached page to disk. It is for tests
// and administrative use only: called mid-transaction, it breaks the
// NO-STEAL invariant by making uncommitted writes durable.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	pages := make([]common.PageID, 0, len(bp.pages))
	for pid := range bp.pages {
		pages = append(pages, pid)
	}
	bp.mu.Unlock()

	for _, pid := range pages {
		bp.mu.Lock()
		page := bp.pages[pid]
		bp.mu.Unlock()
		if page == nil {
			continue
		}
		if _, dirty := page.IsDirty(); !dirty {
			continue
		}
		file, err := bp.files.GetFile(pid.TableID)
		if err != nil {
			return err
		}
		if err := file.WritePage(pid.PageNumber, page.PageData()); err != nil {
			return err
		}
		page.MarkDirty(false, 0)
	}
	return nil
}

// DiscardPage drops pid from the cache without flushing, and releases all
// locks on it. Used by callers that know a page's contents are no longer
// needed (e.g. after dropping a table).
func (bp *BufferPool) DiscardPage(pid common.PageID) {
	bp.mu.Lock()
	delete(bp.pages, pid)
	for i, p := range bp.order {
		if p == pid {
			bp.order = append(bp.order[:i], bp.order[i+1:]...)
			break
		}
	}
	bp.mu.Unlock()
	bp.lockManager.ReleaseAllOnPage(pid)
}

// Size returns the number of pages currently cached. Always <= numPages.
func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pages)
}
