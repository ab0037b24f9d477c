package value_codec

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"memscan/process"
)

func mustEncode(t *testing.T, c Codec, v Value) []byte {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode(%v) error = %v", v, err)
	}
	return b
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		typ   ValueType
		value Value
		want  []byte
	}{
		{"int32", Int32, IntValue(Int32, 1234), []byte{0xD2, 0x04, 0x00, 0x00}},
		{"int16 negative", Int16, IntValue(Int16, -2), []byte{0xFE, 0xFF}},
		{"uint8", UInt8, UintValue(UInt8, 200), []byte{200}},
		{"uint64", UInt64, UintValue(UInt64, 0x1122334455667788), []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
		{"float32", Float32, FloatValue(Float32, 1.0), []byte{0x00, 0x00, 0x80, 0x3F}},
		{"utf8", UTF8String, StringValue(UTF8String, "hp"), []byte("hp")},
		{"utf16", UTF16String, StringValue(UTF16String, "hp"), []byte{'h', 0, 'p', 0}},
		{"bytes", ByteArray, BytesValue([]byte{1, 2, 3}), []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCodec(tt.typ)
			got := mustEncode(t, c, tt.value)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Encode() mismatch (-want +got):\n%s", diff)
			}

			back, err := c.Decode(got)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if back.String() != tt.value.String() {
				t.Errorf("Decode() = %s, want %s", back, tt.value)
			}
		})
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := NewCodec(Int64).Decode([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Decode() error = %v, want ErrShortBuffer", err)
	}
}

func TestCompareNumeric(t *testing.T) {
	i32 := NewCodec(Int32)
	enc := func(v int64) []byte { return mustEncode(t, i32, IntValue(Int32, v)) }

	tests := []struct {
		name   string
		filter Filter
		cur    []byte
		prev   []byte
		want   bool
	}{
		{"exact hit", ExactFilter(IntValue(Int32, 1234)), enc(1234), nil, true},
		{"exact miss", ExactFilter(IntValue(Int32, 1234)), enc(1235), nil, false},
		{"unknown", UnknownFilter(), enc(7), nil, true},
		{"increased", IncreasedFilter(), enc(1235), enc(1234), true},
		{"increased is strict", IncreasedFilter(), enc(1234), enc(1234), false},
		{"decreased signed", DecreasedFilter(), enc(-1), enc(0), true},
		{"changed", ChangedFilter(), enc(1), enc(2), true},
		{"unchanged", UnchangedFilter(), enc(2), enc(2), true},
		{"range inclusive", RangeFilter(IntValue(Int32, 10), IntValue(Int32, 20)), enc(20), nil, true},
		{"range swapped bounds", RangeFilter(IntValue(Int32, 20), IntValue(Int32, 10)), enc(15), nil, true},
		{"range outside", RangeFilter(IntValue(Int32, 10), IntValue(Int32, 20)), enc(21), nil, false},
		{"pattern wildcard", PatternFilter(process.AOB{Pattern: []byte{0xD2, 0, 0, 0}, Mask: []byte{0xFF, 0, 0xFF, 0xFF}}), enc(1234), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := i32.Compare(tt.filter, tt.cur, tt.prev)
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareFloatTolerance(t *testing.T) {
	f32 := NewCodec(Float32)
	cur := mustEncode(t, f32, FloatValue(Float32, 100.00004))

	ok, err := f32.Compare(ExactFilter(FloatValue(Float32, 100)), cur, nil)
	if err != nil || !ok {
		t.Errorf("Compare(exact 100) = %v, %v; want true within tolerance", ok, err)
	}

	strict := Codec{Type: Float32}
	ok, _ = strict.Compare(ExactFilter(FloatValue(Float32, 100)), cur, nil)
	if ok {
		t.Errorf("Compare() with zero epsilon matched a different float")
	}

	nan := mustEncode(t, f32, FloatValue(Float32, math.NaN()))
	ok, _ = f32.Compare(ExactFilter(FloatValue(Float32, math.NaN())), nan, nil)
	if ok {
		t.Errorf("NaN compared equal to NaN")
	}
}

func TestComparePreconditions(t *testing.T) {
	_, err := NewCodec(Int32).Compare(ChangedFilter(), []byte{0, 0, 0, 0}, nil)
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("Compare(changed, no previous) error = %v, want ErrPrecondition", err)
	}

	_, err = NewCodec(UTF8String).Matcher(IncreasedFilter())
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("Matcher(increased) on strings error = %v, want ErrUnsupportedFilter", err)
	}
}

func TestStringWidthAndMatch(t *testing.T) {
	c := NewCodec(UTF16String)
	f := ExactFilter(StringValue(UTF16String, "abc"))

	w, err := c.Width(f)
	if err != nil || w != 6 {
		t.Fatalf("Width() = %d, %v; want 6", w, err)
	}

	match, err := c.Matcher(f)
	if err != nil {
		t.Fatalf("Matcher() error = %v", err)
	}
	if !match([]byte{'a', 0, 'b', 0, 'c', 0, 'x'}, nil) {
		t.Errorf("utf16 pattern did not match")
	}

	if _, err := c.Width(UnknownFilter()); !errors.Is(err, ErrUnsupportedFilter) {
		t.Errorf("Width(unknown) error = %v, want ErrUnsupportedFilter", err)
	}
}

func TestParse(t *testing.T) {
	t.Run("value types", func(t *testing.T) {
		for in, want := range map[string]ValueType{"i32": Int32, "Double": Float64, "aob": ByteArray, "wstr": UTF16String} {
			got, err := ParseValueType(in)
			if err != nil || got != want {
				t.Errorf("ParseValueType(%q) = %v, %v; want %v", in, got, err, want)
			}
		}
		if _, err := ParseValueType("int128"); !errors.Is(err, ErrUnknownValueType) {
			t.Errorf("ParseValueType(int128) error = %v", err)
		}
	})

	t.Run("values", func(t *testing.T) {
		v, err := ParseValue(UInt16, "0xBEEF")
		if err != nil || v.Uint != 0xBEEF {
			t.Errorf("ParseValue(hex) = %v, %v", v, err)
		}
		if _, err := ParseValue(Int8, "300"); err == nil {
			t.Errorf("ParseValue(Int8, 300) accepted an out of range value")
		}
	})

	t.Run("aob", func(t *testing.T) {
		for _, in := range []string{"D2 04 ?? 00", "D204??00"} {
			aob, err := ParseAOB(in)
			if err != nil {
				t.Fatalf("ParseAOB(%q) error = %v", in, err)
			}
			want := process.AOB{Pattern: []byte{0xD2, 0x04, 0, 0}, Mask: []byte{0xFF, 0xFF, 0, 0xFF}}
			if diff := cmp.Diff(want, aob); diff != "" {
				t.Errorf("ParseAOB(%q) mismatch (-want +got):\n%s", in, diff)
			}
		}
		if _, err := ParseAOB("D2 0"); err == nil {
			t.Errorf("ParseAOB accepted a half byte")
		}
	})

	t.Run("filters", func(t *testing.T) {
		f, err := ParseFilter(ByteArray, "exact", "90 ?? 90")
		if err != nil || f.Kind != PatternMatch {
			t.Errorf("ParseFilter(aob with wildcard) = %v, %v; want pattern", f, err)
		}
		f, err = ParseFilter(Int32, "range", "1", "5")
		if err != nil || f.Kind != InRange || f.High.Int != 5 {
			t.Errorf("ParseFilter(range) = %v, %v", f, err)
		}
		if _, err := ParseFilter(Int32, "exact"); err == nil {
			t.Errorf("ParseFilter(exact) without operand succeeded")
		}
	})
}
