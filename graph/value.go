package graph

import (
	"bytes"
	"fmt"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	// ValueInvalid is the zero Value; it holds nothing.
	ValueInvalid ValueKind = iota

	// ValueFloat is a scalar float64.
	ValueFloat

	// ValueVec3 is a 3-component vector (color, direction).
	ValueVec3

	// ValueString is a UTF-8 string.
	ValueString

	// ValueBlob is an opaque byte slice.
	ValueBlob

	// ValueFloats is a float64 array (curves, geometry).
	ValueFloats
)

// String returns a human-readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case ValueInvalid:
		return "Invalid"
	case ValueFloat:
		return "Float"
	case ValueVec3:
		return "Vec3"
	case ValueString:
		return "String"
	case ValueBlob:
		return "Blob"
	case ValueFloats:
		return "Floats"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Value is a tagged union for node parameters. Nodes carry parameters
// as a name -> Value map; the engine serializes them into each kernel's
// uniform layout at dispatch time.
//
// Values are immutable after construction. The zero Value is invalid
// and serializes to nothing.
type Value struct {
	kind   ValueKind
	scalar float64
	vec    [3]float64
	str    string
	blob   []byte
	floats []float64
}

// Float wraps a scalar.
func Float(v float64) Value { return Value{kind: ValueFloat, scalar: v} }

// Vec3 wraps a 3-vector.
func Vec3(x, y, z float64) Value { return Value{kind: ValueVec3, vec: [3]float64{x, y, z}} }

// String wraps a string.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Blob wraps a byte slice. The slice is stored as-is; callers must not
// modify it after handing it to a node.
func Blob(b []byte) Value { return Value{kind: ValueBlob, blob: b} }

// Floats wraps a float64 slice. The slice is stored as-is.
func Floats(fs []float64) Value { return Value{kind: ValueFloats, floats: fs} }

// Kind returns the variant held by the value.
func (v Value) Kind() ValueKind { return v.kind }

// AsFloat returns the scalar and true if the value is a Float.
func (v Value) AsFloat() (float64, bool) {
	return v.scalar, v.kind == ValueFloat
}

// AsVec3 returns the vector and true if the value is a Vec3.
func (v Value) AsVec3() ([3]float64, bool) {
	return v.vec, v.kind == ValueVec3
}

// AsString returns the string and true if the value is a String.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == ValueString
}

// AsBlob returns the byte slice and true if the value is a Blob.
func (v Value) AsBlob() ([]byte, bool) {
	return v.blob, v.kind == ValueBlob
}

// AsFloats returns the float slice and true if the value is a Floats.
func (v Value) AsFloats() ([]float64, bool) {
	return v.floats, v.kind == ValueFloats
}

// Equal reports whether two values hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueFloat:
		return v.scalar == o.scalar
	case ValueVec3:
		return v.vec == o.vec
	case ValueString:
		return v.str == o.str
	case ValueBlob:
		return bytes.Equal(v.blob, o.blob)
	case ValueFloats:
		if len(v.floats) != len(o.floats) {
			return false
		}
		for i := range v.floats {
			if v.floats[i] != o.floats[i] {
				return false
			}
		}
		return true
	default:
		return true // two invalid values are equal
	}
}

// String implements fmt.Stringer for debugging.
func (v Value) String() string {
	switch v.kind {
	case ValueFloat:
		return fmt.Sprintf("Float(%g)", v.scalar)
	case ValueVec3:
		return fmt.Sprintf("Vec3(%g, %g, %g)", v.vec[0], v.vec[1], v.vec[2])
	case ValueString:
		return fmt.Sprintf("String(%q)", v.str)
	case ValueBlob:
		return fmt.Sprintf("Blob(%d bytes)", len(v.blob))
	case ValueFloats:
		return fmt.Sprintf("Floats(%d)", len(v.floats))
	default:
		return "Invalid"
	}
}
