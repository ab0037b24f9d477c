package regions

import (
	"strings"

	"memscan/process"
)

// Predicate decides whether a region takes part in a scan.
type Predicate func(MemoryRegion) bool

func acceptAll(r MemoryRegion, preds []Predicate) bool {
	for _, p := range preds {
		if p != nil && !p(r) {
			return false
		}
	}
	return true
}

func Readable() Predicate {
	return func(r MemoryRegion) bool { return r.Readable }
}

// Writable keeps regions that can hold values the user may later change.
func Writable() Predicate {
	return func(r MemoryRegion) bool { return r.Writable }
}

// ExcludeShared drops MAP_SHARED mappings such as shared memory files and GPU buffers.
func ExcludeShared() Predicate {
	return func(r MemoryRegion) bool { return !r.Shared }
}

// ExcludeSpecial drops kernel-provided pseudo mappings ([vvar], [vsyscall], ...)
// which cannot be read through the process_vm interface.
func ExcludeSpecial() Predicate {
	return func(r MemoryRegion) bool {
		switch r.Pathname {
		case "[vvar]", "[vsyscall]", "[vvar_vclock]":
			return false
		}
		return true
	}
}

// FileBacked keeps only regions mapped from a file on disk.
func FileBacked() Predicate {
	return func(r MemoryRegion) bool { return strings.HasPrefix(r.Pathname, "/") }
}

// InRange keeps regions overlapping [start, end). An end of zero means no upper bound.
func InRange(start, end process.ProcessMemoryAddress) Predicate {
	return func(r MemoryRegion) bool {
		if end != 0 && r.Base >= end {
			return false
		}
		return r.End() > start
	}
}
