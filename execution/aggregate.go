package execution

import (
	"math"

	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
)

// AggregateOp is the reduction applied to each group's aggregate column.
type AggregateOp int

const (
	AggCount AggregateOp = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// noGrouping is passed as GroupFieldIndex to aggregate with no GROUP BY.
const noGrouping = -1

type intGroupState struct {
	count int64
	sum   int64
	min   int32
	max   int32
}

// IntAggregator computes COUNT/SUM/AVG/MIN/MAX over one integer column of
// its child, optionally grouped by another column. With no group-by, it
// yields a single row on exhaustion; with a group-by, it yields one row
// per distinct group value, in first-seen order.
type IntAggregator struct {
	child           DBIterator
	aggFieldIndex   int
	groupFieldIndex int
	op              AggregateOp

	groupFieldType storage.FieldType
	desc           *storage.TupleDesc

	order   []storage.Field
	state   map[string]*intGroupState
	results []*storage.Tuple
	idx     int
	done    bool
}

// NewIntAggregator aggregates child's aggFieldIndex column with op. If
// groupFieldIndex is -1 there is no grouping; otherwise groupFieldType
// must be the type of that column.
func NewIntAggregator(child DBIterator, aggFieldIndex, groupFieldIndex int, groupFieldType storage.FieldType, op AggregateOp) *IntAggregator {
	var fields []storage.FieldInfo
	if groupFieldIndex != noGrouping {
		fields = append(fields, storage.FieldInfo{Type: groupFieldType, Name: "group"})
	}
	fields = append(fields, storage.FieldInfo{Type: storage.IntFieldType, Name: aggName(op)})

	return &IntAggregator{
		child:           child,
		aggFieldIndex:   aggFieldIndex,
		groupFieldIndex: groupFieldIndex,
		op:              op,
		groupFieldType:  groupFieldType,
		desc:            storage.NewTupleDesc(fields...),
	}
}

func aggName(op AggregateOp) string {
	switch op {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	panic("unreachable")
}

func (a *IntAggregator) Open() error {
	if err := a.child.Open(); err != nil {
		return err
	}
	a.state = make(map[string]*intGroupState)
	a.order = nil
	a.results = nil
	a.idx = 0
	a.done = false

	for {
		has, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		a.accumulate(t)
	}

	var groupKeys []string
	seen := make(map[string]bool)
	for _, gf := range a.order {
		key := gf.String()
		if !seen[key] {
			seen[key] = true
			groupKeys = append(groupKeys, key)
		}
	}
	groupVal := make(map[string]storage.Field)
	if a.groupFieldIndex != noGrouping {
		for _, gf := range a.order {
			groupVal[gf.String()] = gf
		}
	}

	for _, key := range groupKeys {
		st := a.state[key]
		row := storage.NewTuple(a.desc)
		col := 0
		if a.groupFieldIndex != noGrouping {
			row.SetField(0, groupVal[key])
			col = 1
		}
		row.SetField(col, storage.IntField(reduce(a.op, st)))
		a.results = append(a.results, row)
	}
	if a.groupFieldIndex == noGrouping {
		st := a.state[""]
		if st == nil {
			st = &intGroupState{}
		}
		row := storage.NewTuple(a.desc)
		row.SetField(0, storage.IntField(reduce(a.op, st)))
		a.results = []*storage.Tuple{row}
	}
	return nil
}

func (a *IntAggregator) accumulate(t *storage.Tuple) {
	key := ""
	if a.groupFieldIndex != noGrouping {
		gf := t.Field(a.groupFieldIndex)
		key = gf.String()
		a.order = append(a.order, gf)
	}
	st, ok := a.state[key]
	if !ok {
		st = &intGroupState{min: math.MaxInt32, max: math.MinInt32}
		a.state[key] = st
	}
	st.count++
	// COUNT is type-agnostic (StringAggregator only ever needs it), so
	// the aggregated column is read as an int only when the reduction
	// actually uses its value.
	if a.op != AggCount {
		v := int32(t.Field(a.aggFieldIndex).(storage.IntField))
		st.sum += int64(v)
		if v < st.min {
			st.min = v
		}
		if v > st.max {
			st.max = v
		}
	}
}

func reduce(op AggregateOp, st *intGroupState) int32 {
	switch op {
	case AggCount:
		return int32(st.count)
	case AggSum:
		return int32(st.sum)
	case AggAvg:
		if st.count == 0 {
			return 0
		}
		return int32(st.sum / st.count)
	case AggMin:
		return st.min
	case AggMax:
		return st.max
	}
	panic("unreachable")
}

func (a *IntAggregator) HasNext() (bool, error) {
	return a.idx < len(a.results), nil
}

func (a *IntAggregator) Next() (*storage.Tuple, error) {
	common.Assert(a.idx < len(a.results), "IntAggregator.Next called with no rows remaining")
	t := a.results[a.idx]
	a.idx++
	return t, nil
}

func (a *IntAggregator) Rewind() error {
	a.idx = 0
	return nil
}

func (a *IntAggregator) Close() {
	a.child.Close()
}

func (a *IntAggregator) TupleDesc() *storage.TupleDesc {
	return a.desc
}

// StringAggregator supports only COUNT over a string column, optionally
// grouped: COUNT is type-agnostic, the other reductions are not.
type StringAggregator struct {
	inner *IntAggregator
}

// NewStringCountAggregator counts rows of child, grouped by
// groupFieldIndex (or ungrouped if noGrouping-equivalent caller passes
// -1), per string column aggFieldIndex. The aggregated column's value is
// irrelevant to COUNT, so it is delegated to IntAggregator with AggCount.
func NewStringCountAggregator(child DBIterator, aggFieldIndex, groupFieldIndex int, groupFieldType storage.FieldType) *StringAggregator {
	return &StringAggregator{inner: NewIntAggregator(child, aggFieldIndex, groupFieldIndex, groupFieldType, AggCount)}
}

func (s *StringAggregator) Open() error                  { return s.inner.Open() }
func (s *StringAggregator) HasNext() (bool, error)       { return s.inner.HasNext() }
func (s *StringAggregator) Next() (*storage.Tuple, error) { return s.inner.Next() }
func (s *StringAggregator) Rewind() error                { return s.inner.Rewind() }
func (s *StringAggregator) Close()                       { s.inner.Close() }
func (s *StringAggregator) TupleDesc() *storage.TupleDesc { return s.inner.TupleDesc() }
