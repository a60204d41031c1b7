package execution

import (
	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
)

// Predicate is a single column comparison against a fixed value:
// child.Field(FieldIndex) <Op> Value.
type Predicate struct {
	FieldIndex int
	Op         storage.CompareOp
	Value      storage.Field
}

func (p Predicate) matches(t *storage.Tuple) bool {
	return t.Field(p.FieldIndex).Compare(p.Op, p.Value)
}

// Filter passes through only the rows of its child that satisfy pred.
type Filter struct {
	pred  Predicate
	child DBIterator

	next   *storage.Tuple
	primed bool
}

// NewFilter wraps child, yielding only rows matching pred.
func NewFilter(pred Predicate, child DBIterator) *Filter {
	return &Filter{pred: pred, child: child}
}

func (f *Filter) Open() error {
	f.primed = false
	f.next = nil
	return f.child.Open()
}

func (f *Filter) advance() error {
	for {
		has, err := f.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			f.next = nil
			f.primed = true
			return nil
		}
		t, err := f.child.Next()
		if err != nil {
			return err
		}
		if f.pred.matches(t) {
			f.next = t
			f.primed = true
			return nil
		}
	}
}

func (f *Filter) HasNext() (bool, error) {
	if !f.primed {
		if err := f.advance(); err != nil {
			return false, err
		}
	}
	return f.next != nil, nil
}

func (f *Filter) Next() (*storage.Tuple, error) {
	has, err := f.HasNext()
	if err != nil {
		return nil, err
	}
	common.Assert(has, "Filter.Next called with no rows remaining")
	t := f.next
	f.primed = false
	f.next = nil
	return t, nil
}

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	f.primed = false
	f.next = nil
	return nil
}

func (f *Filter) Close() {
	f.child.Close()
}

func (f *Filter) TupleDesc() *storage.TupleDesc {
	return f.child.TupleDesc()
}
