package cotask

import "fmt"

// ValueKind tags the payload carried by a Value, replacing the C original's
// pointer-or-text heuristic (spec.md section 9, "Opaque message values")
// with an explicit, producer-set discriminant.
type ValueKind int

const (
	// KindNumber carries a machine-word-sized unsigned integer.
	KindNumber ValueKind = iota
	// KindText carries a producer-owned string; its length is not bounded.
	KindText
	// KindBytes carries a producer-owned byte slice.
	KindBytes
	// KindOpaque carries an arbitrary handle the bus never interprets.
	KindOpaque
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("unknown_kind(%d)", int(k))
	}
}

// Value is a tagged variant for a PubSubMessage payload. The bus never
// interprets, copies, or frees a Value's contents — per spec.md section 5,
// the publisher is responsible for keeping any referenced data (Text,
// Bytes, Opaque) alive until every subscriber has finished processing the
// message it arrived in.
type Value struct {
	kind   ValueKind
	number uint64
	text   string
	bytes  []byte
	opaque any
}

// NumberValue constructs a Value carrying a numeric payload.
func NumberValue(v uint64) Value {
	return Value{kind: KindNumber, number: v}
}

// TextValue constructs a Value carrying a text payload.
func TextValue(s string) Value {
	return Value{kind: KindText, text: s}
}

// BytesValue constructs a Value carrying a byte-slice payload. The caller
// retains ownership; the bus stores the slice header by value only.
func BytesValue(b []byte) Value {
	return Value{kind: KindBytes, bytes: b}
}

// OpaqueValue constructs a Value carrying an arbitrary handle the bus never
// interprets.
func OpaqueValue(v any) Value {
	return Value{kind: KindOpaque, opaque: v}
}

// Kind reports which payload this Value carries.
func (v Value) Kind() ValueKind { return v.kind }

// Number returns the numeric payload and true, or (0, false) if this Value
// does not carry KindNumber.
func (v Value) Number() (uint64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.number, true
}

// Text returns the text payload and true, or ("", false) if this Value does
// not carry KindText.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Bytes returns the byte-slice payload and true, or (nil, false) if this
// Value does not carry KindBytes.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// Opaque returns the opaque payload and true, or (nil, false) if this Value
// does not carry KindOpaque.
func (v Value) Opaque() (any, bool) {
	if v.kind != KindOpaque {
		return nil, false
	}
	return v.opaque, true
}

// Message is the unit of delivery on the bus: an integer key plus a tagged
// Value. See spec.md section 3 ("PubSubMessage").
type Message struct {
	Key   int
	Value Value
}
