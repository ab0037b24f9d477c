package process

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// pagedMemory serves reads from a flat buffer starting at base and faults on listed pages.
type pagedMemory struct {
	base ProcessMemoryAddress
	data []byte
	bad  map[ProcessMemoryAddress]bool
	dead bool
}

func (m *pagedMemory) ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	if m.dead {
		return nil, ErrProcessUnavailable
	}
	end := addr + ProcessMemoryAddress(size)
	if addr < m.base || end > m.base+ProcessMemoryAddress(len(m.data)) {
		return nil, ErrAddressNotMapped
	}
	for page := addr &^ (PageSize - 1); page < end; page += PageSize {
		if m.bad[page] {
			return nil, ErrRegionUnreadable
		}
	}
	out := make([]byte, size)
	copy(out, m.data[addr-m.base:])
	return out, nil
}

func TestReadRangeMarksFaultingPages(t *testing.T) {
	data := make([]byte, 3*PageSize)
	for i := range data {
		data[i] = 0x11
	}
	mem := &pagedMemory{base: 0x10000, data: data, bad: map[ProcessMemoryAddress]bool{0x11000: true}}

	view, err := ReadRange(mem, 0x10ff8, 0x1010)
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}

	if !view.IsReadable(0) || !view.IsReadable(7) {
		t.Errorf("bytes before the bad page should be readable")
	}
	if view.IsReadable(8) || view.IsReadable(8+PageSize-1) {
		t.Errorf("bytes inside the bad page should be unreadable")
	}
	if !view.IsReadable(8 + PageSize) {
		t.Errorf("bytes after the bad page should be readable")
	}
	if view.Data[8] != 0 {
		t.Errorf("unreadable byte = %#x, want 0", view.Data[8])
	}
	if view.AllReadable() {
		t.Errorf("AllReadable() = true, want false")
	}
}

func TestReadRangeUnavailable(t *testing.T) {
	mem := &pagedMemory{dead: true}
	if _, err := ReadRange(mem, 0x1000, 4); !errors.Is(err, ErrProcessUnavailable) {
		t.Errorf("ReadRange() error = %v, want ErrProcessUnavailable", err)
	}
}

func TestResolvePointerChain(t *testing.T) {
	data := make([]byte, 0x100)
	// 0x1000 -> 0x1040, 0x1040+0x8 -> 0x1080
	data[0x00] = 0x40
	data[0x01] = 0x10
	data[0x48] = 0x80
	data[0x49] = 0x10
	mem := &pagedMemory{base: 0x1000, data: data}

	tests := []struct {
		name    string
		offsets []int32
		want    ProcessMemoryAddress
	}{
		{"no offsets", nil, 0x1000},
		{"one level", []int32{0x10}, 0x1050},
		{"two levels", []int32{0x8, 0x20}, 0x10A0},
		{"negative", []int32{-0x10}, 0x1030},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePointerChain(mem, 0x1000, 8, tt.offsets)
			if err != nil {
				t.Fatalf("ResolvePointerChain() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePointerChain() = %#x, want %#x", got, tt.want)
			}
		})
	}

	if _, err := ResolvePointerChain(mem, 0x1010, 8, []int32{0}); !errors.Is(err, ErrInvalidPointer) {
		t.Errorf("null pointer error = %v, want ErrInvalidPointer", err)
	}
}

func TestAOBMatches(t *testing.T) {
	aob := AOB{Pattern: []byte{0xD2, 0x00, 0x00, 0x00}, Mask: []byte{0xFF, 0x00, 0xFF, 0xFF}}

	if !aob.Matches([]byte{0xD2, 0x04, 0x00, 0x00}) {
		t.Errorf("wildcard position should match any byte")
	}
	if aob.Matches([]byte{0xD2, 0x04, 0x01, 0x00}) {
		t.Errorf("exact position mismatch should fail")
	}
	if aob.Matches([]byte{0xD2}) {
		t.Errorf("short data should not match")
	}
	if diff := cmp.Diff("D2 ?? 00 00", aob.String()); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}
}
