package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/dsg-go/stowdb/common"
)

// HeapFile is an unordered sequence of HeapPages persisted as one
// fixed-page-size file on disk. Its table id is derived deterministically
// from its absolute path, so restarts see the same id for the same file.
type HeapFile struct {
	id   common.TableID
	path string
	desc *TupleDesc
	bp   *BufferPool

	file *os.File

	// extendMu serializes file-extension: two concurrent inserts that
	// both discover no free slot must not both append a page.
	extendMu sync.Mutex
}

// NewHeapFile opens (creating if necessary) the file at path and wraps it
// as a HeapFile of the given schema. bp is the buffer pool InsertTuple,
// DeleteTuple, and Iterator route through.
func NewHeapFile(path string, desc *TupleDesc, bp *BufferPool) (*HeapFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, common.WrapIOError(err, "resolving absolute path for %s", path)
	}

	f, err := os.OpenFile(absPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, common.WrapIOError(err, "opening heap file %s", absPath)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, common.WrapIOError(err, "stat-ing heap file %s", absPath)
	}
	common.Assert(stat.Size()%int64(common.PageSize) == 0, "heap file %s length %d is not a multiple of page size %d", absPath, stat.Size(), common.PageSize)

	hf := &HeapFile{
		id:   common.HashPath(absPath),
		path: absPath,
		desc: desc,
		bp:   bp,
		file: f,
	}
	return hf, nil
}

// TableID returns the file's stable table identifier.
func (f *HeapFile) TableID() common.TableID {
	return f.id
}

// TupleDesc returns the file's row schema.
func (f *HeapFile) TupleDesc() *TupleDesc {
	return f.desc
}

// Path returns the absolute path backing this file.
func (f *HeapFile) Path() string {
	return f.path
}

// Close releases the underlying file descriptor.
func (f *HeapFile) Close() error {
	return f.file.Close()
}

// NumPages returns fileLength / pageSize. The file's length is always a
// multiple of the page size.
func (f *HeapFile) NumPages() (int, error) {
	stat, err := f.file.Stat()
	if err != nil {
		return 0, common.WrapIOError(err, "stat-ing heap file %s", f.path)
	}
	common.Assert(stat.Size()%int64(common.PageSize) == 0, "heap file %s length %d is not a multiple of page size", f.path, stat.Size())
	return int(stat.Size() / int64(common.PageSize)), nil
}

// ReadPage seeks to pageNumber*pageSize and reads exactly pageSize bytes.
// Fails with PageOutOfRangeError if fewer bytes are available.
func (f *HeapFile) ReadPage(pageNumber int) ([]byte, error) {
	buf := make([]byte, common.PageSize)
	n, err := f.file.ReadAt(buf, int64(pageNumber)*int64(common.PageSize))
	if n == common.PageSize {
		return buf, nil
	}
	if err != nil {
		return nil, common.NewError(common.PageOutOfRangeError, "page %d of %s: %v", pageNumber, f.path, err)
	}
	return nil, common.NewError(common.PageOutOfRangeError, "page %d of %s: short read (%d bytes)", pageNumber, f.path, n)
}

// WritePage seeks to pageNumber*pageSize and writes exactly pageSize
// bytes. Writing at pageNumber == NumPages() extends the file by one page,
// which is how allocatePage appends.
func (f *HeapFile) WritePage(pageNumber int, data []byte) error {
	common.Assert(len(data) == common.PageSize, "WritePage: expected %d bytes, got %d", common.PageSize, len(data))
	if _, err := f.file.WriteAt(data, int64(pageNumber)*int64(common.PageSize)); err != nil {
		return common.WrapIOError(err, "writing page %d of %s", pageNumber, f.path)
	}
	return nil
}

// allocatePage appends one empty page and returns its page number.
func (f *HeapFile) allocatePage() (int, error) {
	n, err := f.NumPages()
	if err != nil {
		return 0, err
	}
	if err := f.WritePage(n, EmptyPageData()); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertTuple places t on the first page with a free slot, extending the
// file with a new page if none has room. It returns the single page that
// was modified, dirtied under tid.
//
// Probing existing pages takes the buffer pool's lock under ReadOnly,
// releases it via the unsafe (lock-manager-only) path, then re-acquires
// ReadWrite before mutating -- this avoids holding an exclusive lock on
// every page in the file just to find one with room.
func (f *HeapFile) InsertTuple(tid common.TransactionID, t *Tuple) ([]*HeapPage, error) {
	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}

	if page, ok, err := f.tryInsertAmongPages(tid, t, 0, numPages); err != nil {
		return nil, err
	} else if ok {
		return []*HeapPage{page}, nil
	}

	f.extendMu.Lock()
	defer f.extendMu.Unlock()

	// Someone may have extended the file while we waited for extendMu;
	// check any newly visible pages before appending another.
	currentPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}
	if currentPages > numPages {
		if page, ok, err := f.tryInsertAmongPages(tid, t, numPages, currentPages); err != nil {
			return nil, err
		} else if ok {
			return []*HeapPage{page}, nil
		}
	}

	newPageNum, err := f.allocatePage()
	if err != nil {
		return nil, err
	}
	pid := common.PageID{TableID: f.id, PageNumber: newPageNum}
	page, err := f.bp.GetPage(tid, pid, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.InsertTuple(t); err != nil {
		return nil, err
	}
	page.MarkDirty(true, tid)
	return []*HeapPage{page}, nil
}

func (f *HeapFile) tryInsertAmongPages(tid common.TransactionID, t *Tuple, from, to int) (*HeapPage, bool, error) {
	for pn := from; pn < to; pn++ {
		pid := common.PageID{TableID: f.id, PageNumber: pn}

		// If tid already holds a lock on this page (e.g. a prior insert
		// in the same transaction left it exclusively locked), the probe
		// below is a reentrant no-op grant: releasing afterward would
		// drop tid's real, pre-existing lock instead of just the probe.
		alreadyHeld := f.bp.HoldsLock(tid, pid)

		page, err := f.bp.GetPage(tid, pid, common.ReadOnly)
		if err != nil {
			return nil, false, err
		}
		if page.NumEmptySlots() == 0 {
			if !alreadyHeld {
				f.bp.UnsafeReleasePage(tid, pid)
			}
			continue
		}
		if !alreadyHeld {
			f.bp.UnsafeReleasePage(tid, pid)
		}

		page, err = f.bp.GetPage(tid, pid, common.ReadWrite)
		if err != nil {
			return nil, false, err
		}
		if err := page.InsertTuple(t); err != nil {
			// Another transaction filled it between our probe and
			// our re-acquire; keep scanning.
			continue
		}
		page.MarkDirty(true, tid)
		return page, true, nil
	}
	return nil, false, nil
}

// DeleteTuple removes t, which must belong to this file, from its page.
// Fails with NotFoundError if t belongs to a different file.
func (f *HeapFile) DeleteTuple(tid common.TransactionID, t *Tuple) ([]*HeapPage, error) {
	rid, ok := t.RecordID()
	if !ok || rid.PageID.TableID != f.id {
		return nil, common.NewError(common.NotFoundError, "tuple does not belong to heap file %s", f.path)
	}

	page, err := f.bp.GetPage(tid, rid.PageID, common.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := page.DeleteTuple(t); err != nil {
		return nil, err
	}
	page.MarkDirty(true, tid)
	return []*HeapPage{page}, nil
}

// HeapFileIterator walks every tuple of a HeapFile, page by page, taking
// a ReadOnly lock per page through the buffer pool as it goes. It
// supports rewind.
type HeapFileIterator struct {
	file *HeapFile
	tid  common.TransactionID

	open    bool
	pageNum int
	numPgs  int
	tuples  []*Tuple
	idx     int
}

// Iterator returns a lazy, rewindable sequence over every tuple in the
// file, acquiring ReadOnly locks page-by-page as it advances.
func (f *HeapFile) Iterator(tid common.TransactionID) *HeapFileIterator {
	return &HeapFileIterator{file: f, tid: tid}
}

// Open (re)starts the iterator at the first page.
func (it *HeapFileIterator) Open() error {
	numPgs, err := it.file.NumPages()
	if err != nil {
		return err
	}
	it.numPgs = numPgs
	it.pageNum = 0
	it.tuples = nil
	it.idx = 0
	it.open = true
	return nil
}

// Rewind is equivalent to calling Open again.
func (it *HeapFileIterator) Rewind() error {
	return it.Open()
}

// Close releases the iterator's buffered state. It does not release
// locks; those are held by the transaction until transactionComplete.
func (it *HeapFileIterator) Close() {
	it.open = false
	it.tuples = nil
}

// HasNext reports whether Next would return a tuple, loading the next
// page's tuples (and acquiring its lock) if necessary. This may block if
// that page's lock is held incompatibly by another transaction.
func (it *HeapFileIterator) HasNext() (bool, error) {
	common.Assert(it.open, "HasNext called before Open")
	for it.idx >= len(it.tuples) {
		if it.pageNum >= it.numPgs {
			return false, nil
		}
		pid := common.PageID{TableID: it.file.id, PageNumber: it.pageNum}
		page, err := it.file.bp.GetPage(it.tid, pid, common.ReadOnly)
		if err != nil {
			return false, err
		}
		it.tuples = page.Iterator()
		it.idx = 0
		it.pageNum++
	}
	return true, nil
}

// Next returns the next tuple. Callers must check HasNext first.
func (it *HeapFileIterator) Next() (*Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	common.Assert(has, "Next called with no tuples remaining")
	t := it.tuples[it.idx]
	it.idx++
	return t, nil
}
