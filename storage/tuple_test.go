package storage

import (
	"testing"

	"github.com/dsg-go/stowdb/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDesc() *TupleDesc {
	return NewTupleDesc(
		FieldInfo{Type: IntFieldType, Name: "id"},
		FieldInfo{Type: StringFieldType(8), Name: "name"},
	)
}

func TestTupleSetFieldAndEquals(t *testing.T) {
	d := testDesc()
	a := NewTuple(d)
	a.SetField(0, IntField(1))
	a.SetField(1, NewStringField("ann", 8))

	b := NewTuple(d)
	b.SetField(0, IntField(1))
	b.SetField(1, NewStringField("ann", 8))

	assert.True(t, a.Equals(b))

	b.SetField(0, IntField(2))
	assert.False(t, a.Equals(b))
}

func TestTupleSetFieldTypeMismatchPanics(t *testing.T) {
	d := testDesc()
	tup := NewTuple(d)
	assert.Panics(t, func() {
		tup.SetField(0, NewStringField("oops", 8))
	})
}

func TestTupleWriteAndReadRoundTrip(t *testing.T) {
	d := testDesc()
	tup := NewTuple(d)
	tup.SetField(0, IntField(42))
	tup.SetField(1, NewStringField("bob", 8))

	buf := make([]byte, d.Size())
	tup.writeTo(buf)

	rid := common.RecordID{PageID: common.PageID{TableID: 1, PageNumber: 0}, Slot: 3}
	got := readTuple(d, buf, rid)

	assert.True(t, tup.Equals(got))
	gotRid, ok := got.RecordID()
	require.True(t, ok)
	assert.Equal(t, rid, gotRid)
}

func TestTupleRecordIDLifecycle(t *testing.T) {
	tup := NewTuple(testDesc())
	_, ok := tup.RecordID()
	assert.False(t, ok)

	rid := common.RecordID{PageID: common.PageID{TableID: 1, PageNumber: 0}, Slot: 0}
	tup.setRecordID(rid)
	got, ok := tup.RecordID()
	require.True(t, ok)
	assert.Equal(t, rid, got)

	tup.clearRecordID()
	_, ok = tup.RecordID()
	assert.False(t, ok)
}
