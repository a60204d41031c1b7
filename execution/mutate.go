package execution

import (
	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
)

// countDesc is the one-column int schema Insert and Delete yield: the
// number of rows they affected.
var countDesc = storage.NewTupleDesc(storage.FieldInfo{Type: storage.IntFieldType, Name: "count"})

// Insert reads every row of child and inserts it into table, through bp,
// under tid. It yields exactly one row on its first Next: the count of
// tuples inserted.
type Insert struct {
	tid   common.TransactionID
	table common.TableID
	bp    *storage.BufferPool
	child DBIterator

	done  bool
	count int32
}

// NewInsert inserts every row child produces into table.
func NewInsert(tid common.TransactionID, table common.TableID, bp *storage.BufferPool, child DBIterator) *Insert {
	return &Insert{tid: tid, table: table, bp: bp, child: child}
}

func (ins *Insert) Open() error {
	ins.done = false
	ins.count = 0
	return ins.child.Open()
}

func (ins *Insert) HasNext() (bool, error) {
	return !ins.done, nil
}

func (ins *Insert) Next() (*storage.Tuple, error) {
	common.Assert(!ins.done, "Insert.Next called twice")
	for {
		has, err := ins.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		t, err := ins.child.Next()
		if err != nil {
			return nil, err
		}
		if err := ins.bp.InsertTuple(ins.tid, ins.table, t); err != nil {
			return nil, err
		}
		ins.count++
	}
	ins.done = true
	result := storage.NewTuple(countDesc)
	result.SetField(0, storage.IntField(ins.count))
	return result, nil
}

func (ins *Insert) Rewind() error {
	return common.NewError(common.NotFoundError, "Insert does not support Rewind")
}

func (ins *Insert) Close() {
	ins.child.Close()
}

func (ins *Insert) TupleDesc() *storage.TupleDesc {
	return countDesc
}

// Delete reads every row of child (rows carrying a RecordID from a prior
// scan) and deletes it through bp under tid. It yields exactly one row on
// its first Next: the count of tuples deleted.
type Delete struct {
	tid   common.TransactionID
	bp    *storage.BufferPool
	child DBIterator

	done  bool
	count int32
}

// NewDelete deletes every row child produces.
func NewDelete(tid common.TransactionID, bp *storage.BufferPool, child DBIterator) *Delete {
	return &Delete{tid: tid, bp: bp, child: child}
}

func (del *Delete) Open() error {
	del.done = false
	del.count = 0
	return del.child.Open()
}

func (del *Delete) HasNext() (bool, error) {
	return !del.done, nil
}

func (del *Delete) Next() (*storage.Tuple, error) {
	common.Assert(!del.done, "Delete.Next called twice")
	for {
		has, err := del.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		t, err := del.child.Next()
		if err != nil {
			return nil, err
		}
		if err := del.bp.DeleteTuple(del.tid, t); err != nil {
			return nil, err
		}
		del.count++
	}
	del.done = true
	result := storage.NewTuple(countDesc)
	result.SetField(0, storage.IntField(del.count))
	return result, nil
}

func (del *Delete) Rewind() error {
	return common.NewError(common.NotFoundError, "Delete does not support Rewind")
}

func (del *Delete) Close() {
	del.child.Close()
}

func (del *Delete) TupleDesc() *storage.TupleDesc {
	return countDesc
}
