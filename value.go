package jsexport

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	// KindEmpty is the zero Value. It stands for "no value": a property hook
	// that did not handle a name, or a getter that failed.
	KindEmpty Kind = iota
	KindUndefined
	KindNull
	KindBool
	KindNumber
	KindString
	KindObject
	// KindError carries a reported exception.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a JavaScript value crossing the bridge. Values are immutable and
// safe to copy.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	o    Object
	err  error
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{kind: KindUndefined} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Float64 returns a number value.
func Float64(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int64 returns a number value. Integers beyond 2^53 lose precision.
func Int64(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ObjectValue returns an object value; a nil object yields null.
func ObjectValue(o Object) Value {
	if o == nil {
		return Null()
	}
	return Value{kind: KindObject, o: o}
}

// ErrorValue returns a value carrying err as a JavaScript exception.
func ErrorValue(err error) Value {
	return Value{kind: KindError, err: err}
}

// Kind returns the tag of the value.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsEmpty() bool     { return v.kind == KindEmpty }
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsBool() bool      { return v.kind == KindBool }
func (v Value) IsNumber() bool    { return v.kind == KindNumber }
func (v Value) IsString() bool    { return v.kind == KindString }
func (v Value) IsObject() bool    { return v.kind == KindObject }
func (v Value) IsError() bool     { return v.kind == KindError }

// IsNullish reports whether the value is empty, undefined or null.
func (v Value) IsNullish() bool {
	return v.kind == KindEmpty || v.kind == KindUndefined || v.kind == KindNull
}

// ToBool returns the truthiness of the value.
func (v Value) ToBool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	case KindObject, KindError:
		return true
	default:
		return false
	}
}

// ToFloat64 returns the numeric value. Strings are parsed; anything that is
// not a number yields NaN.
func (v Value) ToFloat64() float64 {
	switch v.kind {
	case KindNumber:
		return v.n
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNull:
		return 0
	case KindString:
		if v.s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// ToInt64 returns the value truncated to an int64; NaN and infinities give 0.
func (v Value) ToInt64() int64 {
	f := v.ToFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

// ToInt32 returns the value converted with ToInt32 wrap-around semantics.
func (v Value) ToInt32() int32 {
	return int32(uint32(v.ToInt64()))
}

// ToString returns the string form of the value.
func (v Value) ToString() string {
	switch v.kind {
	case KindEmpty, KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindObject:
		return "[object Object]"
	case KindError:
		if v.err == nil {
			return "Error"
		}
		return v.err.Error()
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.ToString()
}

// ToObject returns the object of an object value.
func (v Value) ToObject() (Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.o, true
}

// Err returns the exception carried by an error value.
func (v Value) Err() error {
	if v.kind != KindError {
		return nil
	}
	return v.err
}

// Equal reports strict equality; objects compare by handle identity.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindObject:
		return v.o == other.o
	case KindError:
		return v.err == other.err
	default:
		return true
	}
}

// GoString implements fmt.GoStringer for test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("String(%q)", v.s)
	case KindNumber:
		return fmt.Sprintf("Float64(%s)", formatNumber(v.n))
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	default:
		return v.kind.String()
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
