package storage

import (
	"fmt"
	"strings"

	"github.com/dsg-go/stowdb/common"
)

// FieldInfo pairs a column's physical type with its (optional) name.
type FieldInfo struct {
	Type FieldType
	Name string
}

// TupleDesc is the ordered schema of a row: one FieldInfo per column.
// Two descriptors are equal iff their type sequences match; names are
// not part of equality.
type TupleDesc struct {
	fields  []FieldInfo
	offsets []int
	size    int
}

// NewTupleDesc builds a TupleDesc from the given fields. It panics if
// fields is empty: a row needs at least one column.
func NewTupleDesc(fields ...FieldInfo) *TupleDesc {
	common.Assert(len(fields) > 0, "TupleDesc requires at least one field")
	offsets := make([]int, len(fields))
	size := 0
	for i, f := range fields {
		offsets[i] = size
		size += f.Type.ByteLength()
	}
	return &TupleDesc{fields: append([]FieldInfo(nil), fields...), offsets: offsets, size: size}
}

// NumFields returns the number of columns.
func (d *TupleDesc) NumFields() int {
	return len(d.fields)
}

// FieldType returns the type of column i. O(1).
func (d *TupleDesc) FieldType(i int) FieldType {
	return d.fields[i].Type
}

// FieldName returns the name of column i, which may be empty.
func (d *TupleDesc) FieldName(i int) string {
	return d.fields[i].Name
}

// FieldOffset returns the byte offset of column i within a serialized row.
func (d *TupleDesc) FieldOffset(i int) int {
	return d.offsets[i]
}

// IndexForName returns the index of the first column named name, and
// whether one was found.
func (d *TupleDesc) IndexForName(name string) (int, bool) {
	for i, f := range d.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Size returns the fixed on-disk byte size of a row with this schema:
// Σ fieldType.byteLength.
func (d *TupleDesc) Size() int {
	return d.size
}

// Equals reports whether d and other describe the same sequence of field
// types, ignoring names.
func (d *TupleDesc) Equals(other *TupleDesc) bool {
	if other == nil || len(d.fields) != len(other.fields) {
		return false
	}
	for i := range d.fields {
		if d.fields[i].Type != other.fields[i].Type {
			return false
		}
	}
	return true
}

func (d *TupleDesc) String() string {
	parts := make([]string, len(d.fields))
	for i, f := range d.fields {
		if f.Name != "" {
			parts[i] = fmt.Sprintf("%s(%s)", f.Name, f.Type)
		} else {
			parts[i] = f.Type.String()
		}
	}
	return strings.Join(parts, ", ")
}
