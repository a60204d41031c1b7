package execution

import (
	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
)

// SeqScan produces every tuple of one table, in heap-file order, under
// one transaction. Rows carry the underlying table's TupleDesc.
type SeqScan struct {
	tid   common.TransactionID
	table common.TableID
	file  *storage.HeapFile
	it    *storage.HeapFileIterator
}

// NewSeqScan scans table under tid. file must be the HeapFile table
// resolves to (typically via a Catalog lookup the caller already did).
func NewSeqScan(tid common.TransactionID, table common.TableID, file *storage.HeapFile) *SeqScan {
	return &SeqScan{tid: tid, table: table, file: file}
}

func (s *SeqScan) Open() error {
	s.it = s.file.Iterator(s.tid)
	return s.it.Open()
}

func (s *SeqScan) HasNext() (bool, error) {
	common.Assert(s.it != nil, "SeqScan.HasNext called before Open")
	return s.it.HasNext()
}

func (s *SeqScan) Next() (*storage.Tuple, error) {
	common.Assert(s.it != nil, "SeqScan.Next called before Open")
	return s.it.Next()
}

func (s *SeqScan) Rewind() error {
	common.Assert(s.it != nil, "SeqScan.Rewind called before Open")
	return s.it.Rewind()
}

func (s *SeqScan) Close() {
	if s.it != nil {
		s.it.Close()
	}
}

func (s *SeqScan) TupleDesc() *storage.TupleDesc {
	return s.file.TupleDesc()
}
