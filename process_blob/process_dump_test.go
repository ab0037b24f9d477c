package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"memscan/process"
	"memscan/process/memory_map"
)

func TestProcessDumpReadWrite(t *testing.T) {
	dump := NewProcessDump()
	dump.AddRegion(0x1000, []byte{1, 2, 3, 4, 5, 6, 7, 8}, "rw-p", "")
	dump.AddRegion(0x2000, []byte{9, 9, 9, 9}, "r--p", "/usr/lib/libfoo.so")

	got, err := dump.ReadMemory(0x1002, 4)
	if err != nil {
		t.Fatalf("ReadMemory() error = %v", err)
	}
	if diff := cmp.Diff([]byte{3, 4, 5, 6}, got); diff != "" {
		t.Errorf("ReadMemory() mismatch (-want +got):\n%s", diff)
	}

	if err := dump.WriteMemory(0x1000, []byte{0xAA}); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}
	if b, _ := dump.ReadMemory(0x1000, 1); b[0] != 0xAA {
		t.Errorf("byte after write = %#x, want 0xAA", b[0])
	}

	if err := dump.WriteMemory(0x2000, []byte{0}); !errors.Is(err, process.ErrRegionNotWritable) {
		t.Errorf("WriteMemory(read-only) error = %v, want ErrRegionNotWritable", err)
	}

	if _, err := dump.ReadMemory(0x1006, 4); !errors.Is(err, process.ErrRegionUnreadable) {
		t.Errorf("ReadMemory(past end) error = %v, want ErrRegionUnreadable", err)
	}

	if _, err := dump.ReadMemory(0x5000, 1); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("ReadMemory(unmapped) error = %v, want ErrAddressNotMapped", err)
	}
}

func TestProcessDumpFaultsAndClose(t *testing.T) {
	dump := NewProcessDump()
	dump.AddRegion(0x1000, make([]byte, 0x3000), "rw-p", "")
	dump.MarkUnreadable(0x2000, 0x1000)

	if _, err := dump.ReadMemory(0x1ff0, 0x20); !errors.Is(err, process.ErrRegionUnreadable) {
		t.Errorf("ReadMemory(overlapping fault) error = %v, want ErrRegionUnreadable", err)
	}
	if _, err := dump.ReadMemory(0x3000, 0x10); err != nil {
		t.Errorf("ReadMemory(after fault) error = %v", err)
	}

	dump.Close()
	if _, err := dump.ReadMemory(0x1000, 1); !process.IsUnavailable(err) {
		t.Errorf("ReadMemory(closed) error = %v, want unavailable", err)
	}
	if err := dump.UpdateMemoryMap(); !process.IsUnavailable(err) {
		t.Errorf("UpdateMemoryMap(closed) error = %v, want unavailable", err)
	}
}

func TestProcessDumpModules(t *testing.T) {
	dump := NewProcessDump()
	dump.AddRegion(0x10000, make([]byte, 0x1000), "r--p", "/usr/bin/game")
	dump.AddRegion(0x11000, make([]byte, 0x2000), "r-xp", "/usr/bin/game")
	dump.AddRegion(0x20000, make([]byte, 0x1000), "rw-p", "[heap]")

	mods, err := dump.GetModules()
	if err != nil {
		t.Fatalf("GetModules() error = %v", err)
	}

	want := []process.Module{{Name: "game", Path: "/usr/bin/game", Base: 0x10000, Size: 0x3000}}
	if diff := cmp.Diff(want, mods); diff != "" {
		t.Errorf("GetModules() mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessDumpLoad(t *testing.T) {
	dir := t.TempDir()

	meta, _ := json.Marshal(map[string]any{"pid": 42, "name": "target"})
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), meta, 0644); err != nil {
		t.Fatal(err)
	}

	mm := []memory_map.MemoryMapItem{
		{Address: 0x4000, Size: 4, Perms: "rw-p"},
		{Address: 0x1000, Size: 4, Perms: "r--p"},
	}
	mmJSON, _ := json.Marshal(mm)
	if err := os.WriteFile(filepath.Join(dir, "process_memory_map.json"), mmJSON, 0644); err != nil {
		t.Fatal(err)
	}

	blob := filepath.Join(dir, fmt.Sprintf("blob_0x%x_%d.bin", 0x4000, 4))
	if err := os.WriteFile(blob, []byte{0xD2, 0x04, 0, 0}, 0644); err != nil {
		t.Fatal(err)
	}

	dump := NewProcessDump()
	if err := dump.Load(dir); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if dump.PID != 42 || dump.Name != "target" {
		t.Errorf("metadata = (%d, %q), want (42, \"target\")", dump.PID, dump.Name)
	}
	if dump.MemoryMap[0].Address != 0x1000 {
		t.Errorf("memory map not sorted: first region %#x", dump.MemoryMap[0].Address)
	}

	got, err := dump.ReadMemory(0x4000, 4)
	if err != nil {
		t.Fatalf("ReadMemory() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0xD2, 0x04, 0, 0}, got); diff != "" {
		t.Errorf("ReadMemory() mismatch (-want +got):\n%s", diff)
	}

	if _, err := dump.ReadMemory(0x1000, 1); !errors.Is(err, process.ErrRegionUnreadable) {
		t.Errorf("ReadMemory(unsaved region) error = %v, want ErrRegionUnreadable", err)
	}
}
