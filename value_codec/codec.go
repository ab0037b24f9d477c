package value_codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/constraints"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEpsilon is the float tolerance used when a Codec does not set one.
const DefaultEpsilon = 1e-4

// MatchFunc evaluates a filter at one position. cur holds at least the element
// width; prev is nil on an initial scan.
type MatchFunc func(cur, prev []byte) bool

// Codec encodes, decodes and compares values of one type.
type Codec struct {
	Type ValueType

	// Epsilon is the absolute tolerance for float Exact and InRange comparisons.
	Epsilon float64
}

func NewCodec(t ValueType) Codec {
	return Codec{Type: t, Epsilon: DefaultEpsilon}
}

func (c Codec) epsilon() float64 {
	if c.Epsilon < 0 {
		return 0
	}
	return c.Epsilon
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode produces the little-endian in-memory representation of v as c.Type.
func (c Codec) Encode(v Value) ([]byte, error) {
	w := c.Type.Width()
	buf := make([]byte, w)

	switch c.Type {
	case Int8, UInt8:
		buf[0] = byte(v.asUint())
	case Int16, UInt16:
		binary.LittleEndian.PutUint16(buf, uint16(v.asUint()))
	case Int32, UInt32:
		binary.LittleEndian.PutUint32(buf, uint32(v.asUint()))
	case Int64:
		binary.LittleEndian.PutUint64(buf, uint64(v.asInt()))
	case UInt64:
		binary.LittleEndian.PutUint64(buf, v.asUint())
	case Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.asFloat())))
	case Float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.asFloat()))
	case UTF8String:
		if v.Str == "" {
			return nil, ErrEmptyPattern
		}
		return []byte(v.Str), nil
	case UTF16String:
		if v.Str == "" {
			return nil, ErrEmptyPattern
		}
		out, err := utf16le.NewEncoder().Bytes([]byte(v.Str))
		if err != nil {
			return nil, fmt.Errorf("encode utf16: %w", err)
		}
		return out, nil
	case ByteArray:
		if len(v.Bytes) == 0 {
			return nil, ErrEmptyPattern
		}
		return append([]byte(nil), v.Bytes...), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownValueType, c.Type)
	}
	return buf, nil
}

// Decode reads a value of c.Type from b. Numeric types read the first Width
// bytes; strings and byte arrays consume all of b.
func (c Codec) Decode(b []byte) (Value, error) {
	if w := c.Type.Width(); w > 0 && len(b) < w {
		return Value{}, fmt.Errorf("decode %s: %w (%d < %d)", c.Type, ErrShortBuffer, len(b), w)
	}

	switch c.Type {
	case Int8:
		return IntValue(c.Type, int64(readI8(b))), nil
	case UInt8:
		return UintValue(c.Type, uint64(readU8(b))), nil
	case Int16:
		return IntValue(c.Type, int64(readI16(b))), nil
	case UInt16:
		return UintValue(c.Type, uint64(readU16(b))), nil
	case Int32:
		return IntValue(c.Type, int64(readI32(b))), nil
	case UInt32:
		return UintValue(c.Type, uint64(readU32(b))), nil
	case Int64:
		return IntValue(c.Type, readI64(b)), nil
	case UInt64:
		return UintValue(c.Type, readU64(b)), nil
	case Float32:
		return FloatValue(c.Type, float64(readF32(b))), nil
	case Float64:
		return FloatValue(c.Type, readF64(b)), nil
	case UTF8String:
		return StringValue(c.Type, string(b)), nil
	case UTF16String:
		out, err := utf16le.NewDecoder().Bytes(b)
		if err != nil {
			return Value{}, fmt.Errorf("decode utf16: %w", err)
		}
		return StringValue(c.Type, string(out)), nil
	case ByteArray:
		return BytesValue(append([]byte(nil), b...)), nil
	}
	return Value{}, fmt.Errorf("%w: %v", ErrUnknownValueType, c.Type)
}

// Format decodes b for display. Undecodable input is shown as hex.
func (c Codec) Format(b []byte) string {
	v, err := c.Decode(b)
	if err != nil {
		return fmt.Sprintf("% X", b)
	}
	if c.Type == UTF8String || c.Type == UTF16String {
		return strconv.Quote(v.Str)
	}
	return v.String()
}

// Width is the element size a scan with filter f strides over. Variable-width
// types take it from the Exact operand or the pattern.
func (c Codec) Width(f Filter) (int, error) {
	if w := c.Type.Width(); w > 0 {
		if f.Kind == PatternMatch && f.Pattern.Len() != w {
			return 0, fmt.Errorf("%w: pattern of %d bytes for %s", ErrUnsupportedFilter, f.Pattern.Len(), c.Type)
		}
		return w, nil
	}

	switch f.Kind {
	case Exact:
		pat, err := c.Encode(f.Value)
		if err != nil {
			return 0, err
		}
		return len(pat), nil
	case PatternMatch:
		if !f.Pattern.IsValid() {
			return 0, ErrEmptyPattern
		}
		return f.Pattern.Len(), nil
	}
	return 0, fmt.Errorf("%w: %s needs a search pattern for %s", ErrUnsupportedFilter, f.Kind, c.Type)
}

// Compare evaluates f once. Filters that need a previous value fail with
// ErrPrecondition when prev is nil.
func (c Codec) Compare(f Filter, cur, prev []byte) (bool, error) {
	if f.NeedsPrevious() && prev == nil {
		return false, fmt.Errorf("%w: %s filter needs a previous scan", ErrPrecondition, f.Kind)
	}
	match, err := c.Matcher(f)
	if err != nil {
		return false, err
	}
	w := len(cur)
	if tw := c.Type.Width(); tw > 0 {
		w = tw
	}
	if len(cur) < w || (prev != nil && len(prev) < w) {
		return false, ErrShortBuffer
	}
	return match(cur, prev), nil
}

// Matcher compiles f into a MatchFunc so that operands are decoded once per
// scan rather than once per position.
func (c Codec) Matcher(f Filter) (MatchFunc, error) {
	switch c.Type {
	case Int8:
		return numericMatcher(c, f, readI8)
	case UInt8:
		return numericMatcher(c, f, readU8)
	case Int16:
		return numericMatcher(c, f, readI16)
	case UInt16:
		return numericMatcher(c, f, readU16)
	case Int32:
		return numericMatcher(c, f, readI32)
	case UInt32:
		return numericMatcher(c, f, readU32)
	case Int64:
		return numericMatcher(c, f, readI64)
	case UInt64:
		return numericMatcher(c, f, readU64)
	case Float32:
		return numericMatcher(c, f, readF32)
	case Float64:
		return numericMatcher(c, f, readF64)
	case UTF8String, UTF16String, ByteArray:
		return c.bytesMatcher(f)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownValueType, c.Type)
}

type number interface {
	constraints.Integer | constraints.Float
}

func numericMatcher[T number](c Codec, f Filter, read func([]byte) T) (MatchFunc, error) {
	w := c.Type.Width()
	eps := c.epsilon()
	isFloat := c.Type.IsFloat()

	operand := func(v Value) (T, error) {
		b, err := c.Encode(v)
		if err != nil {
			return 0, err
		}
		return read(b), nil
	}

	switch f.Kind {
	case Exact:
		want, err := operand(f.Value)
		if err != nil {
			return nil, err
		}
		if isFloat {
			return func(cur, _ []byte) bool {
				return floatEqual(float64(read(cur)), float64(want), eps)
			}, nil
		}
		return func(cur, _ []byte) bool { return read(cur) == want }, nil
	case Unknown:
		return func(_, _ []byte) bool { return true }, nil
	case Changed:
		return func(cur, prev []byte) bool { return !bytes.Equal(cur[:w], prev[:w]) }, nil
	case Unchanged:
		return func(cur, prev []byte) bool { return bytes.Equal(cur[:w], prev[:w]) }, nil
	case Increased:
		return func(cur, prev []byte) bool { return read(cur) > read(prev) }, nil
	case Decreased:
		return func(cur, prev []byte) bool { return read(cur) < read(prev) }, nil
	case InRange:
		lo, err := operand(f.Low)
		if err != nil {
			return nil, err
		}
		hi, err := operand(f.High)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if isFloat {
			flo, fhi := float64(lo)-eps, float64(hi)+eps
			return func(cur, _ []byte) bool {
				v := float64(read(cur))
				return v >= flo && v <= fhi
			}, nil
		}
		return func(cur, _ []byte) bool {
			v := read(cur)
			return v >= lo && v <= hi
		}, nil
	case PatternMatch:
		if f.Pattern.Len() != w || !f.Pattern.IsValid() {
			return nil, fmt.Errorf("%w: pattern of %d bytes for %s", ErrUnsupportedFilter, f.Pattern.Len(), c.Type)
		}
		return func(cur, _ []byte) bool { return f.Pattern.Matches(cur) }, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedFilter, f.Kind)
}

func (c Codec) bytesMatcher(f Filter) (MatchFunc, error) {
	switch f.Kind {
	case Exact:
		pat, err := c.Encode(f.Value)
		if err != nil {
			return nil, err
		}
		return func(cur, _ []byte) bool {
			return len(cur) >= len(pat) && bytes.Equal(cur[:len(pat)], pat)
		}, nil
	case PatternMatch:
		if !f.Pattern.IsValid() {
			return nil, ErrEmptyPattern
		}
		return func(cur, _ []byte) bool { return f.Pattern.Matches(cur) }, nil
	case Unknown:
		return func(_, _ []byte) bool { return true }, nil
	case Changed:
		return func(cur, prev []byte) bool { return !bytes.Equal(cur, prev) }, nil
	case Unchanged:
		return func(cur, prev []byte) bool { return bytes.Equal(cur, prev) }, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedFilter, f.Kind, c.Type)
}

// floatEqual treats NaN as never equal and equal infinities as equal.
func floatEqual(a, b, eps float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= eps
}

func readI8(b []byte) int8     { return int8(b[0]) }
func readU8(b []byte) uint8    { return b[0] }
func readI16(b []byte) int16   { return int16(binary.LittleEndian.Uint16(b)) }
func readU16(b []byte) uint16  { return binary.LittleEndian.Uint16(b) }
func readI32(b []byte) int32   { return int32(binary.LittleEndian.Uint32(b)) }
func readU32(b []byte) uint32  { return binary.LittleEndian.Uint32(b) }
func readI64(b []byte) int64   { return int64(binary.LittleEndian.Uint64(b)) }
func readU64(b []byte) uint64  { return binary.LittleEndian.Uint64(b) }
func readF32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
func readF64(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
