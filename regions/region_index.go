// Package regions captures an immutable snapshot of the readable memory of a
// process. Every top-level scan builds a fresh Index; refinement passes reuse
// the Index captured by the scan they refine.
package regions

import (
	"fmt"
	"sort"

	"memscan/process"
	"memscan/process/memory_map"
)

// MemoryRegion is one mapping of the target at snapshot time.
type MemoryRegion struct {
	Base       process.ProcessMemoryAddress
	Size       uint64
	Readable   bool
	Writable   bool
	Executable bool
	Shared     bool
	Pathname   string
}

// End is the first address past the region.
func (r MemoryRegion) End() process.ProcessMemoryAddress {
	return r.Base + process.ProcessMemoryAddress(r.Size)
}

func (r MemoryRegion) Contains(addr process.ProcessMemoryAddress) bool {
	return addr >= r.Base && addr < r.End()
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("%016x-%016x %d bytes %s", uint64(r.Base), uint64(r.End()), r.Size, r.Pathname)
}

func fromMemoryMapItem(item memory_map.MemoryMapItem) MemoryRegion {
	return MemoryRegion{
		Base:       process.ProcessMemoryAddress(item.Address),
		Size:       uint64(item.Size),
		Readable:   item.IsReadable(),
		Writable:   item.IsWritable(),
		Executable: item.IsExecutable(),
		Shared:     item.IsShared(),
		Pathname:   item.Pathname,
	}
}

// Source is the part of a MemoryAccessor the index needs.
type Source interface {
	UpdateMemoryMap() error
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)
}

// Index is an ordered, non-overlapping set of regions. It is never mutated after Snapshot returns.
type Index struct {
	regions []MemoryRegion
	total   uint64
}

// Snapshot refreshes the memory map of src and keeps the regions accepted by
// every predicate. Readable is always implied.
func Snapshot(src Source, preds ...Predicate) (*Index, error) {
	if err := src.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("region snapshot: %w", asUnavailable(err))
	}

	mm, err := src.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("region snapshot: %w", asUnavailable(err))
	}

	preds = append([]Predicate{Readable()}, preds...)

	var regions []MemoryRegion
	for _, item := range mm {
		r := fromMemoryMapItem(item)
		if r.Size == 0 || !acceptAll(r, preds) {
			continue
		}
		regions = append(regions, r)
	}

	return New(regions), nil
}

// New builds an Index from already filtered regions. Regions are sorted by base.
func New(regions []MemoryRegion) *Index {
	sorted := make([]MemoryRegion, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Base < sorted[j].Base
	})

	ix := &Index{regions: sorted}
	for _, r := range sorted {
		ix.total += r.Size
	}
	return ix
}

// asUnavailable treats a failure to enumerate regions as a lost process: without
// a memory map there is nothing left to scan.
func asUnavailable(err error) error {
	if process.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %v", process.ErrProcessUnavailable, err)
}

// Regions returns a copy of the regions in ascending address order.
func (ix *Index) Regions() []MemoryRegion {
	out := make([]MemoryRegion, len(ix.regions))
	copy(out, ix.regions)
	return out
}

// Len is the number of regions.
func (ix *Index) Len() int {
	return len(ix.regions)
}

// TotalBytes is the summed size of all regions.
func (ix *Index) TotalBytes() uint64 {
	return ix.total
}

// Find returns the region containing addr.
func (ix *Index) Find(addr process.ProcessMemoryAddress) (MemoryRegion, bool) {
	i := sort.Search(len(ix.regions), func(i int) bool {
		return ix.regions[i].End() > addr
	})
	if i < len(ix.regions) && ix.regions[i].Contains(addr) {
		return ix.regions[i], true
	}
	return MemoryRegion{}, false
}

// Contains reports whether addr lies inside any region.
func (ix *Index) Contains(addr process.ProcessMemoryAddress) bool {
	_, ok := ix.Find(addr)
	return ok
}

// ContainsRange reports whether [addr, addr+size) lies inside a single region.
func (ix *Index) ContainsRange(addr process.ProcessMemoryAddress, size uint64) bool {
	r, ok := ix.Find(addr)
	return ok && uint64(r.End()-addr) >= size
}
