package search

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"memscan/process"
	"memscan/process_blob"
	"memscan/scan_task"
	"memscan/value_codec"
)

func putPointer(data []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(data[off:], v)
}

func runScan(t *testing.T, ps *PointerScanner, target process.ProcessMemoryAddress, opts ...Option) *scan_task.Task {
	t.Helper()
	task, err := ps.Start(context.Background(), target, opts...)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("pointer scan did not finish")
	}
	return task
}

// twoRegionDump maps 0xA0 -> 0x1FF0, so [[0xA0]+0x10] == 0x2000.
func twoRegionDump() *process_blob.ProcessDump {
	low := make([]byte, 0x1000)
	putPointer(low, 0xA0, 0x1FF0)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x0, low, "rw-p", "")
	dump.AddRegion(0x1000, make([]byte, 0x2000), "rw-p", "")
	return dump
}

func TestPointerScanSingleLevel(t *testing.T) {
	ps := NewPointerScanner(twoRegionDump())
	task := runScan(t, ps, 0x2000, WithMaxDepth(2), WithMaxOffset(0x20))

	if task.Status() != scan_task.Completed {
		t.Fatalf("status = %v, err = %v", task.Status(), task.Err())
	}
	want := []PointerChain{{Base: 0xA0, Offsets: []int32{0x10}, ResolvedAddress: 0x2000}}
	if diff := cmp.Diff(want, ps.Results()); diff != "" {
		t.Errorf("Results() mismatch (-want +got):\n%s", diff)
	}
	if p := task.Progress(); p.LevelsDone != 2 || p.TotalLevels != 2 {
		t.Errorf("levels = %d/%d, want 2/2", p.LevelsDone, p.TotalLevels)
	}
}

func TestPointerScanNegativeOffset(t *testing.T) {
	low := make([]byte, 0x1000)
	putPointer(low, 0x100, 0x2010)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x0, low, "rw-p", "")
	dump.AddRegion(0x2000, make([]byte, 0x1000), "rw-p", "")

	ps := NewPointerScanner(dump)
	runScan(t, ps, 0x2000, WithMaxDepth(1), WithMaxOffset(0x20))

	got := ps.Results()
	if len(got) != 1 || got[0].String() != "0x100 -> -0x10" {
		t.Errorf("Results() = %v, want one chain 0x100 -> -0x10", got)
	}
}

func moduleDump() *process_blob.ProcessDump {
	image := make([]byte, 0x1000)
	putPointer(image, 0x100, 0x600010)
	heap := make([]byte, 0x1000)
	putPointer(heap, 0x10, 0x600800)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x400000, image, "r--p", "/usr/lib/libgame.so")
	dump.AddRegion(0x600000, heap, "rw-p", "[heap]")
	return dump
}

func TestPointerScanModuleRelative(t *testing.T) {
	tests := []struct {
		name     string
		absolute bool
		want     []string
	}{
		{"module bases only", false, []string{"libgame.so+0x100 -> +0x0 -> +0x8"}},
		{"absolute bases", true, []string{"0x600010 -> +0x8", "libgame.so+0x100 -> +0x0 -> +0x8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := NewPointerScanner(moduleDump(), WithAbsoluteBases(tt.absolute))
			runScan(t, ps, 0x600808, WithMaxDepth(3), WithMaxOffset(0x20))

			var got []string
			for _, c := range ps.Results() {
				got = append(got, c.String())
				if c.ResolvedAddress != 0x600808 {
					t.Errorf("chain %s resolved to %#x", c, uint64(c.ResolvedAddress))
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("chains mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChainRebase(t *testing.T) {
	c := PointerChain{Base: 0x400100, Module: "libgame.so", ModuleOffset: 0x100, Offsets: []int32{0, 8}}
	moved, ok := c.Rebase([]process.Module{{Name: "libgame.so", Base: 0x7f0000, Size: 0x1000}})
	if !ok || moved.Base != 0x7f0100 {
		t.Errorf("Rebase() = %#x, %v; want 0x7f0100", uint64(moved.Base), ok)
	}
	if _, ok := c.Rebase(nil); ok {
		t.Errorf("Rebase() without the module succeeded")
	}
}

func TestPointerScanCandidateCap(t *testing.T) {
	low := make([]byte, 0x1000)
	putPointer(low, 0x0, 0x2000)
	putPointer(low, 0x8, 0x2000)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x0, low, "rw-p", "")
	dump.AddRegion(0x2000, make([]byte, 0x1000), "rw-p", "")

	ps := NewPointerScanner(dump, WithMaxCandidatesPerRegion(1))
	task := runScan(t, ps, 0x2000, WithMaxDepth(1), WithMaxOffset(0))

	if task.Status() != scan_task.Completed {
		t.Fatalf("capped scan status = %v", task.Status())
	}
	if got := ps.Results(); len(got) != 1 || got[0].Base != 0 {
		t.Errorf("Results() = %v, want only the first candidate", got)
	}
}

func TestPointerScanResultCap(t *testing.T) {
	low := make([]byte, 0x1000)
	for off := 0; off < 0x40; off += 8 {
		putPointer(low, off, 0x2000)
	}
	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x0, low, "rw-p", "")
	dump.AddRegion(0x2000, make([]byte, 0x1000), "rw-p", "")

	ps := NewPointerScanner(dump, WithMaxResults(3))
	runScan(t, ps, 0x2000, WithMaxDepth(1), WithMaxOffset(0))

	if got := len(ps.Results()); got != 3 || !ps.Truncated() {
		t.Errorf("results = %d truncated = %v, want 3/true", got, ps.Truncated())
	}
}

func TestPointerScanInvalidSettings(t *testing.T) {
	ps := NewPointerScanner(twoRegionDump())
	if _, err := ps.Start(context.Background(), 0x2000, WithPointerSize(3)); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Start(pointer size 3) error = %v", err)
	}
	if _, err := ps.Start(context.Background(), 0x2000, WithMaxDepth(0)); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Start(depth 0) error = %v", err)
	}
}

// driftingDump reports a different pointer at driftAddr for pointer-sized
// reads, as if the target rewrote it after the index was built.
type driftingDump struct {
	*process_blob.ProcessDump
	driftAddr process.ProcessMemoryAddress
}

func (d *driftingDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if addr == d.driftAddr && size == 8 {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, 0x2800)
		return b, nil
	}
	return d.ProcessDump.ReadMemory(addr, size)
}

func TestPointerScanReverifies(t *testing.T) {
	ps := NewPointerScanner(&driftingDump{ProcessDump: twoRegionDump(), driftAddr: 0xA0})
	runScan(t, ps, 0x2000, WithMaxDepth(2), WithMaxOffset(0x20))

	if got := ps.Results(); len(got) != 0 {
		t.Errorf("Results() = %v, want stale chain discarded", got)
	}
}

// vanishingDump serves whole-region reads but fails every pointer-sized read as
// if the target exited right after the reverse index was built.
type vanishingDump struct {
	*process_blob.ProcessDump
}

func (v *vanishingDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 8 {
		return nil, fmt.Errorf("read at %#x: %w", uint64(addr), process.ErrProcessUnavailable)
	}
	return v.ProcessDump.ReadMemory(addr, size)
}

func TestPointerScanFailsWhenTargetExits(t *testing.T) {
	ps := NewPointerScanner(&vanishingDump{ProcessDump: twoRegionDump()})
	task := runScan(t, ps, 0x2000, WithMaxDepth(2), WithMaxOffset(0x20))

	if task.Status() != scan_task.Failed || !errors.Is(task.Err(), process.ErrProcessUnavailable) {
		t.Errorf("status = %v err = %v, want failed with ErrProcessUnavailable", task.Status(), task.Err())
	}
	if got := ps.Results(); len(got) != 0 {
		t.Errorf("Results() = %v, want none", got)
	}
}

// pointerGateDump blocks the pointer-sized read at gateAddr until release is closed.
type pointerGateDump struct {
	*process_blob.ProcessDump
	gateAddr process.ProcessMemoryAddress
	once     sync.Once
	entered  chan struct{}
	release  chan struct{}
}

func (g *pointerGateDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if addr == g.gateAddr && size == 8 {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.ProcessDump.ReadMemory(addr, size)
}

func TestPointerScanCancelKeepsShallowerChains(t *testing.T) {
	dump := &pointerGateDump{
		ProcessDump: moduleDump(),
		gateAddr:    0x400100,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	ps := NewPointerScanner(dump, WithAbsoluteBases(true))

	task, err := ps.Start(context.Background(), 0x600808, WithMaxDepth(2), WithMaxOffset(0x20))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-dump.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("second level never verified a chain")
	}
	task.Cancel()
	close(dump.release)

	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled pointer scan did not stop")
	}

	if task.Status() != scan_task.Cancelled {
		t.Errorf("status = %v, want cancelled", task.Status())
	}
	if p := task.Progress(); p.LevelsDone != 1 {
		t.Errorf("LevelsDone = %d, want 1", p.LevelsDone)
	}
	got := ps.Results()
	if len(got) == 0 || got[0].String() != "0x600010 -> +0x8" {
		t.Errorf("Results() = %v, want the first level chain 0x600010 -> +0x8 first", got)
	}
}

func TestPointerResultsPage(t *testing.T) {
	low := make([]byte, 0x1000)
	for off := 0; off < 0x28; off += 8 {
		putPointer(low, off, 0x2000)
	}
	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x0, low, "rw-p", "")
	dump.AddRegion(0x2000, make([]byte, 0x1000), "rw-p", "")

	ps := NewPointerScanner(dump)
	runScan(t, ps, 0x2000, WithMaxDepth(1), WithMaxOffset(0))

	bases := func(chains []PointerChain) []process.ProcessMemoryAddress {
		var out []process.ProcessMemoryAddress
		for _, c := range chains {
			out = append(out, c.Base)
		}
		return out
	}

	tests := []struct {
		name          string
		offset, limit int
		want          []process.ProcessMemoryAddress
	}{
		{"first page", 0, 2, []process.ProcessMemoryAddress{0x0, 0x8}},
		{"last partial page", 4, 2, []process.ProcessMemoryAddress{0x20}},
		{"no limit", 3, 0, []process.ProcessMemoryAddress{0x18, 0x20}},
		{"past the end", 5, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, bases(ps.Page(tt.offset, tt.limit))); diff != "" {
				t.Errorf("Page(%d, %d) mismatch (-want +got):\n%s", tt.offset, tt.limit, diff)
			}
		})
	}
}

// blockingDump holds the first region read until release is closed.
type blockingDump struct {
	*process_blob.ProcessDump
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.ProcessDump.ReadMemory(addr, size)
}

func TestPointerScanCancel(t *testing.T) {
	dump := &blockingDump{ProcessDump: twoRegionDump(), entered: make(chan struct{}), release: make(chan struct{})}
	ps := NewPointerScanner(dump, WithChunkSize(0x100))

	task, err := ps.Start(context.Background(), 0x2000, WithMaxDepth(2), WithMaxOffset(0x20))
	if err != nil {
		t.Fatal(err)
	}
	<-dump.entered

	if _, err := ps.Start(context.Background(), 0x2000); !errors.Is(err, scan_task.ErrScanAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrScanAlreadyRunning", err)
	}

	task.Cancel()
	close(dump.release)

	select {
	case <-task.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled pointer scan did not stop")
	}
	if task.Status() != scan_task.Cancelled {
		t.Errorf("status = %v, want cancelled", task.Status())
	}
	if ps.Busy() {
		t.Errorf("scanner still busy after cancel")
	}
}

func TestFindPaths(t *testing.T) {
	root := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(root[0x4:], 77)
	putPointer(root, 0x8, 0x2000)
	child := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(child[0x10:], 77)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x1000, root, "rw-p", "")
	dump.AddRegion(0x2000, child, "rw-p", "")

	codec := value_codec.NewCodec(value_codec.Int32)
	match, err := codec.Matcher(value_codec.ExactFilter(value_codec.IntValue(value_codec.Int32, 77)))
	if err != nil {
		t.Fatal(err)
	}

	got, err := FindPaths(context.Background(), dump, 0x1000, match, 4, WithMaxDepth(2), WithMaxOffset(0x40))
	if err != nil {
		t.Fatalf("FindPaths() error = %v", err)
	}
	want := []PointerChain{
		{Base: 0x1004, ResolvedAddress: 0x1004},
		{Base: 0x1008, Offsets: []int32{0x10}, ResolvedAddress: 0x2010},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindPaths() mismatch (-want +got):\n%s", diff)
	}
	for _, c := range got {
		if r, err := c.Resolve(dump, 8); err != nil || r != c.ResolvedAddress {
			t.Errorf("chain %s resolves to %#x, %v", c, uint64(r), err)
		}
	}
}
