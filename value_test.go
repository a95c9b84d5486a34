package cotask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_NumberRoundTrip(t *testing.T) {
	v := NumberValue(42)
	assert.Equal(t, KindNumber, v.Kind())
	n, ok := v.Number()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), n)

	_, ok = v.Text()
	assert.False(t, ok)
	_, ok = v.Bytes()
	assert.False(t, ok)
	_, ok = v.Opaque()
	assert.False(t, ok)
}

func TestValue_TextRoundTrip(t *testing.T) {
	v := TextValue("hello")
	assert.Equal(t, KindText, v.Kind())
	s, ok := v.Text()
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = v.Number()
	assert.False(t, ok)
}

func TestValue_BytesRoundTrip(t *testing.T) {
	b := []byte{1, 2, 3}
	v := BytesValue(b)
	assert.Equal(t, KindBytes, v.Kind())
	got, ok := v.Bytes()
	assert.True(t, ok)
	assert.Equal(t, b, got)
}

func TestValue_OpaqueRoundTrip(t *testing.T) {
	type handle struct{ id int }
	h := &handle{id: 7}
	v := OpaqueValue(h)
	assert.Equal(t, KindOpaque, v.Kind())
	got, ok := v.Opaque()
	assert.True(t, ok)
	assert.Same(t, h, got)
}

func TestValueKind_String(t *testing.T) {
	assert.Equal(t, "number", KindNumber.String())
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "bytes", KindBytes.String())
	assert.Equal(t, "opaque", KindOpaque.String())
	assert.Contains(t, ValueKind(99).String(), "unknown_kind")
}

func TestMessage_ZeroValueIsNumberKind(t *testing.T) {
	var m Message
	assert.Equal(t, KindNumber, m.Value.Kind())
	n, ok := m.Value.Number()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), n)
}
