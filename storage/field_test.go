package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntFieldRoundTrip(t *testing.T) {
	f := IntField(-42)
	buf := make([]byte, f.Type().ByteLength())
	f.WriteTo(buf)
	got := ReadIntField(buf)
	assert.Equal(t, f, got)
}

func TestIntFieldCompare(t *testing.T) {
	a, b := IntField(3), IntField(5)
	assert.True(t, a.Compare(OpLT, b))
	assert.True(t, b.Compare(OpGT, a))
	assert.True(t, a.Compare(OpLE, a))
	assert.True(t, a.Compare(OpEQ, a))
	assert.True(t, a.Compare(OpNE, b))
	assert.False(t, a.Compare(OpGE, b))
}

func TestStringFieldRoundTrip(t *testing.T) {
	f := NewStringField("hello", 16)
	buf := make([]byte, f.Type().ByteLength())
	f.WriteTo(buf)

	got := ReadStringField(buf, f.Type().stringCapacity())
	assert.Equal(t, "hello", got.Value)
	assert.Equal(t, f.Type().ByteLength(), 4+16)
}

func TestStringFieldWireSize(t *testing.T) {
	ft := StringFieldType(10)
	assert.Equal(t, 14, ft.ByteLength())

	def := StringFieldType(0)
	assert.Equal(t, 4+128, def.ByteLength())
}

func TestStringFieldPadding(t *testing.T) {
	f := NewStringField("hi", 8)
	buf := make([]byte, f.Type().ByteLength())
	for i := range buf {
		buf[i] = 0xFF
	}
	f.WriteTo(buf)

	// length prefix
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(2), buf[3])
	// remaining payload bytes must be NUL, not left over from the buffer.
	for i := 4 + len("hi"); i < len(buf); i++ {
		assert.Equal(t, byte(0), buf[i], "byte %d should be NUL-padded", i)
	}
}

func TestStringFieldTooLongPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewStringField("this string is much too long to fit", 4)
	})
}

func TestStringFieldCompare(t *testing.T) {
	a := NewStringField("apple", 16)
	b := NewStringField("banana", 16)
	assert.True(t, a.Compare(OpLT, b))
	assert.True(t, a.Compare(OpNE, b))
	assert.True(t, a.Compare(OpEQ, a))
}
