package storage

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dsg-go/stowdb/common"
)

// FieldKind distinguishes the two primitive value types a column may hold.
type FieldKind int8

const (
	IntKind FieldKind = iota
	StringKind
)

func (k FieldKind) String() string {
	switch k {
	case IntKind:
		return "int"
	case StringKind:
		return "string"
	}
	return "unknown"
}

// FieldType describes the physical type of a column: its kind, and for
// strings, the fixed byte length every value of that column occupies on
// disk. ByteLength() is what TupleDesc sums to compute a row's on-disk
// size.
type FieldType struct {
	Kind FieldKind
	// Length is the fixed byte length for StringKind columns. Zero means
	// "use DefaultStringLength"; callers should read it back through
	// ByteLength rather than this field directly.
	Length int
}

// IntFieldType is the 4-byte signed integer column type.
var IntFieldType = FieldType{Kind: IntKind}

// StringFieldType returns a string column type with the given fixed byte
// length. A length of 0 selects DefaultStringLength.
func StringFieldType(length int) FieldType {
	return FieldType{Kind: StringKind, Length: length}
}

// ByteLength returns the fixed on-disk size of this field type: 4 bytes
// for an integer, or a 4-byte length prefix plus the fixed payload
// capacity for a string.
func (t FieldType) ByteLength() int {
	switch t.Kind {
	case IntKind:
		return 4
	case StringKind:
		if t.Length > 0 {
			return 4 + t.Length
		}
		return 4 + common.DefaultStringLength
	}
	panic("unreachable")
}

// stringCapacity returns the payload capacity in bytes (excluding the
// 4-byte length prefix).
func (t FieldType) stringCapacity() int {
	if t.Length > 0 {
		return t.Length
	}
	return common.DefaultStringLength
}

func (t FieldType) String() string {
	if t.Kind == StringKind {
		return fmt.Sprintf("string(%d)", t.ByteLength())
	}
	return "int"
}

// CompareOp enumerates the comparisons a Field must support: <, ≤, =, ≥,
// >, ≠.
type CompareOp int

const (
	OpLT CompareOp = iota
	OpLE
	OpEQ
	OpGE
	OpGT
	OpNE
)

// Field is an immutable, typed value held in a Tuple. The two concrete
// implementations are IntField and StringField.
type Field interface {
	Type() FieldType
	// Compare evaluates `this <op> other`. Panics if other has a
	// different FieldType.Kind.
	Compare(op CompareOp, other Field) bool
	// Equals is a convenience for Compare(OpEQ, other).
	Equals(other Field) bool
	String() string
	// WriteTo serializes the field into buf using its fixed wire format.
	// buf must be at least Type().ByteLength() bytes.
	WriteTo(buf []byte)
}

// IntField is a 4-byte signed integer value.
type IntField int32

func (f IntField) Type() FieldType { return IntFieldType }

func (f IntField) Compare(op CompareOp, other Field) bool {
	o, ok := other.(IntField)
	common.Assert(ok, "IntField.Compare: type mismatch with %T", other)
	switch op {
	case OpLT:
		return f < o
	case OpLE:
		return f <= o
	case OpEQ:
		return f == o
	case OpGE:
		return f >= o
	case OpGT:
		return f > o
	case OpNE:
		return f != o
	}
	panic("unreachable")
}

func (f IntField) Equals(other Field) bool { return f.Compare(OpEQ, other) }
func (f IntField) String() string          { return fmt.Sprintf("%d", int32(f)) }

func (f IntField) WriteTo(buf []byte) {
	binary.BigEndian.PutUint32(buf, uint32(int32(f)))
}

// ReadIntField parses a 4-byte big-endian two's-complement integer at the
// front of buf.
func ReadIntField(buf []byte) IntField {
	return IntField(int32(binary.BigEndian.Uint32(buf)))
}

// StringField is a fixed-length UTF-8 string, NUL-padded on disk. length
// is the column's fixed byte width (not the string's length).
type StringField struct {
	Value  string
	Length int
}

// NewStringField builds a StringField for a column with the given fixed
// byte length (0 meaning DefaultStringLength). It panics if value's UTF-8
// encoding does not fit.
func NewStringField(value string, length int) StringField {
	f := StringField{Value: value, Length: length}
	common.Assert(len(value) <= f.Type().stringCapacity(), "string %q too long for field of capacity %d", value, f.Type().stringCapacity())
	return f
}

func (f StringField) Type() FieldType { return StringFieldType(f.Length) }

func (f StringField) Compare(op CompareOp, other Field) bool {
	o, ok := other.(StringField)
	common.Assert(ok, "StringField.Compare: type mismatch with %T", other)
	switch op {
	case OpLT:
		return f.Value < o.Value
	case OpLE:
		return f.Value <= o.Value
	case OpEQ:
		return f.Value == o.Value
	case OpGE:
		return f.Value >= o.Value
	case OpGT:
		return f.Value > o.Value
	case OpNE:
		return f.Value != o.Value
	}
	panic("unreachable")
}

func (f StringField) Equals(other Field) bool { return f.Compare(OpEQ, other) }
func (f StringField) String() string          { return f.Value }

// WriteTo writes a 4-byte big-endian length prefix followed by the UTF-8
// payload, NUL-padded to Type().ByteLength().
func (f StringField) WriteTo(buf []byte) {
	width := f.Type().ByteLength()
	capacity := f.Type().stringCapacity()
	common.Assert(len(buf) >= width, "buffer too small for string field")
	payload := []byte(f.Value)
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	n := copy(buf[4:4+capacity], payload)
	for i := 4 + n; i < width; i++ {
		buf[i] = 0
	}
}

// ReadStringField parses a length-prefixed, NUL-padded string field whose
// payload capacity (excluding the 4-byte prefix) is capacity, from the
// front of buf.
func ReadStringField(buf []byte, capacity int) StringField {
	n := binary.BigEndian.Uint32(buf)
	common.Assert(int(n) <= capacity, "corrupt string field: length %d exceeds capacity %d", n, capacity)
	return StringField{Value: string(buf[4 : 4+n]), Length: capacity}
}

// FormatFields renders a slice of Fields the way a row-oriented scan tool
// would, comma-separated.
func FormatFields(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
