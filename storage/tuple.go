package storage

import (
	"strings"

	"github.com/dsg-go/stowdb/common"
)

// Tuple is a fixed-size row: a TupleDesc plus one Field per column, plus
// an optional RecordID assigned once the tuple is placed on a page.
type Tuple struct {
	desc   *TupleDesc
	fields []Field
	rid    *common.RecordID
}

// NewTuple creates an empty tuple over desc; fields are assigned
// one-by-one via SetField before the tuple is usable.
func NewTuple(desc *TupleDesc) *Tuple {
	return &Tuple{desc: desc, fields: make([]Field, desc.NumFields())}
}

// TupleDesc returns the tuple's schema.
func (t *Tuple) TupleDesc() *TupleDesc {
	return t.desc
}

// SetField assigns the value at column i.
func (t *Tuple) SetField(i int, f Field) {
	common.Assert(f.Type() == t.desc.FieldType(i), "SetField: type mismatch at column %d: got %s want %s", i, f.Type(), t.desc.FieldType(i))
	t.fields[i] = f
}

// Field returns the value at column i.
func (t *Tuple) Field(i int) Field {
	return t.fields[i]
}

// RecordID returns the tuple's location, and whether it has been set. A
// tuple not yet placed on a page has no RecordID.
func (t *Tuple) RecordID() (common.RecordID, bool) {
	if t.rid == nil {
		return common.RecordID{}, false
	}
	return *t.rid, true
}

// setRecordID is called by HeapPage on insertion.
func (t *Tuple) setRecordID(rid common.RecordID) {
	t.rid = &rid
}

// clearRecordID is called by HeapPage on deletion.
func (t *Tuple) clearRecordID() {
	t.rid = nil
}

// Equals compares two tuples field-by-field; RecordID is not considered.
func (t *Tuple) Equals(other *Tuple) bool {
	if !t.desc.Equals(other.desc) || len(t.fields) != len(other.fields) {
		return false
	}
	for i := range t.fields {
		if t.fields[i] == nil || other.fields[i] == nil || !t.fields[i].Equals(other.fields[i]) {
			return false
		}
	}
	return true
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "<unset>"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, ", ")
}

// writeTo serializes the tuple's fields into buf, which must be at least
// desc.Size() bytes, per the column offsets in desc.
func (t *Tuple) writeTo(buf []byte) {
	for i, f := range t.fields {
		common.Assert(f != nil, "writeTo: column %d unset", i)
		f.WriteTo(buf[t.desc.FieldOffset(i):])
	}
}

// readTuple deserializes a tuple of schema desc from buf (a slot's bytes)
// and attaches rid.
func readTuple(desc *TupleDesc, buf []byte, rid common.RecordID) *Tuple {
	t := NewTuple(desc)
	for i := 0; i < desc.NumFields(); i++ {
		off := desc.FieldOffset(i)
		switch desc.FieldType(i).Kind {
		case IntKind:
			t.fields[i] = ReadIntField(buf[off:])
		case StringKind:
			t.fields[i] = ReadStringField(buf[off:], desc.FieldType(i).stringCapacity())
		}
	}
	t.setRecordID(rid)
	return t
}
