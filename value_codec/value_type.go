// Package value_codec converts between typed scan values and the raw bytes of
// the target, and decides whether a position matches a scan filter.
package value_codec

import (
	"fmt"
	"strings"
)

// ValueType is the closed set of value kinds a scan can look for.
type ValueType int

const (
	Int8 ValueType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float32
	Float64
	UTF8String
	UTF16String
	ByteArray
)

var valueTypeNames = [...]string{
	Int8:        "i8",
	UInt8:       "u8",
	Int16:       "i16",
	UInt16:      "u16",
	Int32:       "i32",
	UInt32:      "u32",
	Int64:       "i64",
	UInt64:      "u64",
	Float32:     "f32",
	Float64:     "f64",
	UTF8String:  "utf8",
	UTF16String: "utf16",
	ByteArray:   "aob",
}

var valueTypeAliases = map[string]ValueType{
	"byte":   UInt8,
	"int8":   Int8,
	"uint8":  UInt8,
	"int16":  Int16,
	"uint16": UInt16,
	"short":  Int16,
	"int32":  Int32,
	"uint32": UInt32,
	"int":    Int32,
	"int64":  Int64,
	"uint64": UInt64,
	"long":   Int64,
	"float":  Float32,
	"double": Float64,
	"string": UTF8String,
	"str":    UTF8String,
	"wstr":   UTF16String,
	"bytes":  ByteArray,
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(valueTypeNames) {
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
	return valueTypeNames[t]
}

// ParseValueType accepts the short names (i32, f64, utf16, aob) and the common aliases (int, double, string).
func ParseValueType(s string) (ValueType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range valueTypeNames {
		if name == s {
			return ValueType(t), nil
		}
	}
	if t, ok := valueTypeAliases[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownValueType, s)
}

func (t ValueType) Valid() bool {
	return t >= Int8 && t <= ByteArray
}

func (t ValueType) IsNumeric() bool {
	return t >= Int8 && t <= Float64
}

func (t ValueType) IsFloat() bool {
	return t == Float32 || t == Float64
}

func (t ValueType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// IsVariableWidth is true for strings and byte arrays, whose width comes from the search pattern.
func (t ValueType) IsVariableWidth() bool {
	return t == UTF8String || t == UTF16String || t == ByteArray
}

// Width is the element size in bytes, or 0 for variable-width types.
func (t ValueType) Width() int {
	switch t {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	}
	return 0
}

// NaturalAlignment is the stride used when a scan does not set one.
func (t ValueType) NaturalAlignment() int {
	if w := t.Width(); w > 0 {
		return w
	}
	return 1
}
