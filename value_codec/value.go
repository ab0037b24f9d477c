package value_codec

import (
	"fmt"
	"strconv"

	"memscan/process"
)

// Value is a user-supplied operand for a filter. Only the field matching Type is meaningful.
type Value struct {
	Type  ValueType
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
}

func IntValue(t ValueType, v int64) Value {
	return Value{Type: t, Int: v, Uint: uint64(v), Float: float64(v)}
}

func UintValue(t ValueType, v uint64) Value {
	return Value{Type: t, Int: int64(v), Uint: v, Float: float64(v)}
}

func FloatValue(t ValueType, v float64) Value {
	return Value{Type: t, Int: int64(v), Uint: uint64(v), Float: v}
}

func StringValue(t ValueType, s string) Value {
	return Value{Type: t, Str: s}
}

func BytesValue(b []byte) Value {
	return Value{Type: ByteArray, Bytes: b}
}

func (v Value) asInt() int64 {
	switch {
	case v.Type.IsFloat():
		return int64(v.Float)
	case v.Type.IsSigned():
		return v.Int
	}
	return int64(v.Uint)
}

func (v Value) asUint() uint64 {
	switch {
	case v.Type.IsFloat():
		return uint64(v.Float)
	case v.Type.IsSigned():
		return uint64(v.Int)
	}
	return v.Uint
}

func (v Value) asFloat() float64 {
	switch {
	case v.Type.IsFloat():
		return v.Float
	case v.Type.IsSigned():
		return float64(v.Int)
	}
	return float64(v.Uint)
}

func (v Value) String() string {
	switch {
	case v.Type.IsFloat():
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case v.Type.IsSigned():
		return strconv.FormatInt(v.Int, 10)
	case v.Type.IsNumeric():
		return strconv.FormatUint(v.Uint, 10)
	case v.Type == ByteArray:
		return process.AOB{Pattern: v.Bytes}.String()
	}
	return strconv.Quote(v.Str)
}

// ParseValue reads text as a value of type t. Integers accept 0x, 0o and 0b
// prefixes and are range checked against the width of t.
func ParseValue(t ValueType, text string) (Value, error) {
	switch t {
	case Int8, Int16, Int32, Int64:
		n, err := strconv.ParseInt(text, 0, t.Width()*8)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", t, text, err)
		}
		return IntValue(t, n), nil
	case UInt8, UInt16, UInt32, UInt64:
		n, err := strconv.ParseUint(text, 0, t.Width()*8)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", t, text, err)
		}
		return UintValue(t, n), nil
	case Float32, Float64:
		f, err := strconv.ParseFloat(text, t.Width()*8)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", t, text, err)
		}
		return FloatValue(t, f), nil
	case UTF8String, UTF16String:
		if text == "" {
			return Value{}, fmt.Errorf("parse %s value: %w", t, ErrEmptyPattern)
		}
		return StringValue(t, text), nil
	case ByteArray:
		aob, err := ParseAOB(text)
		if err != nil {
			return Value{}, err
		}
		if aob.HasWildcards() {
			return Value{}, fmt.Errorf("parse %s value %q: wildcards need a pattern filter", t, text)
		}
		return BytesValue(aob.Pattern), nil
	}
	return Value{}, fmt.Errorf("%w: %v", ErrUnknownValueType, t)
}
