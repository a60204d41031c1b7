package storage

import (
	"testing"

	"github.com/dsg-go/stowdb/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolSizeBound(t *testing.T) {
	common.SetPageSizeForTest(256)
	defer common.ResetPageSizeForTest()

	d := NewTupleDesc(FieldInfo{Type: IntFieldType, Name: "n"})
	f, bp := newTestHeapFile(t, d, 2)

	capacity := numSlotsForTuple(common.PageSize, d.Size())
	// Fill three pages' worth of tuples across separate committed
	// transactions, so pages are clean (and therefore evictable) by the
	// time the pool needs to make room for a new one.
	for round := 0; round < 3; round++ {
		tid := common.TransactionID(round + 1)
		for i := 0; i < capacity; i++ {
			tup := NewTuple(d)
			tup.SetField(0, IntField(round*capacity+i))
			require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
			assert.LessOrEqual(t, bp.Size(), 2)
		}
		require.NoError(t, bp.TransactionComplete(tid, true))
	}
	assert.LessOrEqual(t, bp.Size(), 2)
}

func TestBufferPoolNoStealRefusesToEvictDirtyPages(t *testing.T) {
	common.SetPageSizeForTest(256)
	defer common.ResetPageSizeForTest()

	d := NewTupleDesc(FieldInfo{Type: IntFieldType, Name: "n"})
	f, bp := newTestHeapFile(t, d, 1)

	tid := common.TransactionID(1)
	capacity := numSlotsForTuple(common.PageSize, d.Size())
	for i := 0; i < capacity; i++ {
		tup := NewTuple(d)
		tup.SetField(0, IntField(i))
		require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
	}
	// Page 0 is now full and dirty, and is the pool's only slot. The next
	// insert (same transaction, to avoid an unrelated lock-wait on page 0)
	// must allocate page 1, try to cache it, and find no clean victim to
	// evict.
	overflow := NewTuple(d)
	overflow.SetField(0, IntField(999))
	err := bp.InsertTuple(tid, f.TableID(), overflow)
	require.Error(t, err)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, common.BufferFullError, code)
}

func TestBufferPoolCommitFlushesDirtyPages(t *testing.T) {
	common.SetPageSizeForTest(256)
	defer common.ResetPageSizeForTest()

	d := NewTupleDesc(FieldInfo{Type: IntFieldType, Name: "n"})
	f, bp := newTestHeapFile(t, d, 16)

	tid := common.TransactionID(1)
	tup := NewTuple(d)
	tup.SetField(0, IntField(7))
	require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
	require.NoError(t, bp.TransactionComplete(tid, true))

	data, err := f.ReadPage(0)
	require.NoError(t, err)
	page := NewHeapPage(common.PageID{TableID: f.TableID(), PageNumber: 0}, d, data)
	got := page.Iterator()
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].Field(0).String())
}

func TestBufferPoolAbortRevertsUncommittedInsert(t *testing.T) {
	common.SetPageSizeForTest(256)
	defer common.ResetPageSizeForTest()

	d := NewTupleDesc(FieldInfo{Type: IntFieldType, Name: "n"})
	f, bp := newTestHeapFile(t, d, 16)

	tid := common.TransactionID(1)
	tup := NewTuple(d)
	tup.SetField(0, IntField(7))
	require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
	require.NoError(t, bp.TransactionComplete(tid, false))

	n, err := f.NumPages()
	require.NoError(t, err)
	if n == 0 {
		return
	}
	data, err := f.ReadPage(0)
	require.NoError(t, err)
	page := NewHeapPage(common.PageID{TableID: f.TableID(), PageNumber: 0}, d, data)
	assert.Empty(t, page.Iterator(), "aborted insert must not be visible on disk")
}

func TestBufferPoolTransactionCompleteReleasesLocks(t *testing.T) {
	common.SetPageSizeForTest(256)
	defer common.ResetPageSizeForTest()

	d := NewTupleDesc(FieldInfo{Type: IntFieldType, Name: "n"})
	f, bp := newTestHeapFile(t, d, 16)

	tid1 := common.TransactionID(1)
	pid := common.PageID{TableID: f.TableID(), PageNumber: 0}

	tup := NewTuple(d)
	tup.SetField(0, IntField(1))
	require.NoError(t, bp.InsertTuple(tid1, f.TableID(), tup))
	require.NoError(t, bp.TransactionComplete(tid1, true))

	tid2 := common.TransactionID(2)
	_, err := bp.GetPage(tid2, pid, common.ReadWrite)
	assert.NoError(t, err, "page lock must be free for a new transaction after commit")
}
