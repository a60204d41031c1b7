package execution

import (
	"path/filepath"
	"testing"

	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
	"github.com/dsg-go/stowdb/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceIterator is a fixed in-memory DBIterator, used to test operators
// without a backing heap file.
type sliceIterator struct {
	desc   *storage.TupleDesc
	tuples []*storage.Tuple
	idx    int
}

func newSliceIterator(desc *storage.TupleDesc, tuples []*storage.Tuple) *sliceIterator {
	return &sliceIterator{desc: desc, tuples: tuples}
}

func (s *sliceIterator) Open() error { s.idx = 0; return nil }
func (s *sliceIterator) HasNext() (bool, error) {
	return s.idx < len(s.tuples), nil
}
func (s *sliceIterator) Next() (*storage.Tuple, error) {
	t := s.tuples[s.idx]
	s.idx++
	return t, nil
}
func (s *sliceIterator) Rewind() error                 { s.idx = 0; return nil }
func (s *sliceIterator) Close()                        {}
func (s *sliceIterator) TupleDesc() *storage.TupleDesc { return s.desc }

func intRowDesc() *storage.TupleDesc {
	return storage.NewTupleDesc(
		fieldInfo(storage.IntFieldType, "group"),
		fieldInfo(storage.IntFieldType, "value"),
	)
}

// fieldInfo is a tiny constructor convenience for tests.
func fieldInfo(ft storage.FieldType, name string) storage.FieldInfo {
	return storage.FieldInfo{Type: ft, Name: name}
}

func rowsOf(desc *storage.TupleDesc, pairs [][2]int32) []*storage.Tuple {
	out := make([]*storage.Tuple, len(pairs))
	for i, p := range pairs {
		tup := storage.NewTuple(desc)
		tup.SetField(0, storage.IntField(p[0]))
		tup.SetField(1, storage.IntField(p[1]))
		out[i] = tup
	}
	return out
}

func drain(t *testing.T, it DBIterator) []*storage.Tuple {
	t.Helper()
	require.NoError(t, it.Open())
	var out []*storage.Tuple
	for {
		has, err := it.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := it.Next()
		require.NoError(t, err)
		out = append(out, tup)
	}
	return out
}

func TestFilterPassesMatchingRows(t *testing.T) {
	desc := intRowDesc()
	src := newSliceIterator(desc, rowsOf(desc, [][2]int32{{0, 1}, {0, 5}, {0, 10}}))
	f := NewFilter(Predicate{FieldIndex: 1, Op: storage.OpGE, Value: storage.IntField(5)}, src)

	out := drain(t, f)
	require.Len(t, out, 2)
	assert.Equal(t, "5", out[0].Field(1).String())
	assert.Equal(t, "10", out[1].Field(1).String())
}

func TestFilterRewind(t *testing.T) {
	desc := intRowDesc()
	src := newSliceIterator(desc, rowsOf(desc, [][2]int32{{0, 1}, {0, 2}}))
	f := NewFilter(Predicate{FieldIndex: 1, Op: storage.OpGT, Value: storage.IntField(0)}, src)

	first := drain(t, f)
	require.NoError(t, f.Rewind())
	has, err := f.HasNext()
	require.NoError(t, err)
	assert.True(t, has)

	second := []*storage.Tuple{}
	for {
		has, err := f.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tup, err := f.Next()
		require.NoError(t, err)
		second = append(second, tup)
	}
	assert.Equal(t, len(first), len(second))
}

func TestIntAggregatorUngroupedSum(t *testing.T) {
	desc := intRowDesc()
	src := newSliceIterator(desc, rowsOf(desc, [][2]int32{{0, 1}, {0, 2}, {0, 3}}))
	agg := NewIntAggregator(src, 1, noGrouping, storage.FieldType{}, AggSum)

	out := drain(t, agg)
	require.Len(t, out, 1)
	assert.Equal(t, "6", out[0].Field(0).String())
}

func TestIntAggregatorGroupedMax(t *testing.T) {
	desc := intRowDesc()
	rows := rowsOf(desc, [][2]int32{{0, 5}, {1, 9}, {0, 2}, {1, 1}})
	src := newSliceIterator(desc, rows)
	agg := NewIntAggregator(src, 1, 0, storage.IntFieldType, AggMax)

	out := drain(t, agg)
	require.Len(t, out, 2)
	// first-seen group order: 0, then 1
	assert.Equal(t, "0", out[0].Field(0).String())
	assert.Equal(t, "5", out[0].Field(1).String())
	assert.Equal(t, "1", out[1].Field(0).String())
	assert.Equal(t, "9", out[1].Field(1).String())
}

func TestIntAggregatorAvgAndCount(t *testing.T) {
	desc := intRowDesc()
	src := newSliceIterator(desc, rowsOf(desc, [][2]int32{{0, 2}, {0, 4}, {0, 6}}))
	avg := NewIntAggregator(src, 1, noGrouping, storage.FieldType{}, AggAvg)
	out := drain(t, avg)
	assert.Equal(t, "4", out[0].Field(0).String())

	src2 := newSliceIterator(desc, rowsOf(desc, [][2]int32{{0, 2}, {0, 4}, {0, 6}}))
	cnt := NewIntAggregator(src2, 1, noGrouping, storage.FieldType{}, AggCount)
	out2 := drain(t, cnt)
	assert.Equal(t, "3", out2[0].Field(0).String())
}

func TestStringCountAggregatorOverStringColumn(t *testing.T) {
	desc := storage.NewTupleDesc(
		fieldInfo(storage.IntFieldType, "group"),
		fieldInfo(storage.StringFieldType(8), "name"),
	)
	a := storage.NewTuple(desc)
	a.SetField(0, storage.IntField(0))
	a.SetField(1, storage.NewStringField("ann", 8))
	b := storage.NewTuple(desc)
	b.SetField(0, storage.IntField(0))
	b.SetField(1, storage.NewStringField("bob", 8))

	src := newSliceIterator(desc, []*storage.Tuple{a, b})
	agg := NewStringCountAggregator(src, 1, noGrouping, storage.FieldType{})

	out := drain(t, agg)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].Field(0).String())
}

// newExecTestFile sets up a fresh heap file + buffer pool pair for the
// operator integration tests below.
func newExecTestFile(t *testing.T, desc *storage.TupleDesc) (*storage.HeapFile, *storage.BufferPool) {
	t.Helper()
	lm := transaction.NewLockManager()
	lookup := &singleFileLookup{}
	bp := storage.NewBufferPool(16, lookup, lm)

	path := filepath.Join(t.TempDir(), "t.dat")
	f, err := storage.NewHeapFile(path, desc, bp)
	require.NoError(t, err)
	lookup.file = f
	t.Cleanup(func() { _ = f.Close() })
	return f, bp
}

type singleFileLookup struct {
	file *storage.HeapFile
}

func (l *singleFileLookup) GetFile(id common.TableID) (*storage.HeapFile, error) {
	if l.file == nil || l.file.TableID() != id {
		return nil, common.NewError(common.NotFoundError, "no such table")
	}
	return l.file, nil
}

func TestSeqScanOverHeapFile(t *testing.T) {
	desc := storage.NewTupleDesc(fieldInfo(storage.IntFieldType, "n"))
	f, bp := newExecTestFile(t, desc)

	tid := common.TransactionID(1)
	for i := 0; i < 5; i++ {
		tup := storage.NewTuple(desc)
		tup.SetField(0, storage.IntField(i))
		require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
	}
	require.NoError(t, bp.TransactionComplete(tid, true))

	tid2 := common.TransactionID(2)
	scan := NewSeqScan(tid2, f.TableID(), f)
	out := drain(t, scan)
	assert.Len(t, out, 5)
	require.NoError(t, bp.TransactionComplete(tid2, true))
}

func TestInsertThenSeqScan(t *testing.T) {
	desc := storage.NewTupleDesc(fieldInfo(storage.IntFieldType, "n"))
	f, bp := newExecTestFile(t, desc)

	tid := common.TransactionID(1)
	toInsert := make([]*storage.Tuple, 3)
	for i := range toInsert {
		tup := storage.NewTuple(desc)
		tup.SetField(0, storage.IntField(i*10))
		toInsert[i] = tup
	}
	src := newSliceIterator(desc, toInsert)
	ins := NewInsert(tid, f.TableID(), bp, src)

	out := drain(t, ins)
	require.Len(t, out, 1)
	assert.Equal(t, "3", out[0].Field(0).String())
	require.NoError(t, bp.TransactionComplete(tid, true))

	tid2 := common.TransactionID(2)
	scan := NewSeqScan(tid2, f.TableID(), f)
	scanned := drain(t, scan)
	assert.Len(t, scanned, 3)
	require.NoError(t, bp.TransactionComplete(tid2, true))
}

func TestDeleteRemovesScannedRows(t *testing.T) {
	desc := storage.NewTupleDesc(fieldInfo(storage.IntFieldType, "n"))
	f, bp := newExecTestFile(t, desc)

	tid := common.TransactionID(1)
	for i := 0; i < 4; i++ {
		tup := storage.NewTuple(desc)
		tup.SetField(0, storage.IntField(i))
		require.NoError(t, bp.InsertTuple(tid, f.TableID(), tup))
	}
	require.NoError(t, bp.TransactionComplete(tid, true))

	tid2 := common.TransactionID(2)
	scan := NewSeqScan(tid2, f.TableID(), f)
	del := NewDelete(tid2, bp, scan)
	out := drain(t, del)
	require.Len(t, out, 1)
	assert.Equal(t, "4", out[0].Field(0).String())
	require.NoError(t, bp.TransactionComplete(tid2, true))

	tid3 := common.TransactionID(3)
	remaining := drain(t, NewSeqScan(tid3, f.TableID(), f))
	assert.Empty(t, remaining)
	require.NoError(t, bp.TransactionComplete(tid3, true))
}
