package search

import (
	"context"

	"memscan/process"
	"memscan/process/memory_map"
	"memscan/value_codec"
)

// FindPaths walks structures forward from base: every aligned field is tested
// with match, and every field holding a pointer into readable memory is
// followed, up to MaxDepth dereferences. MaxOffset is the structure size read
// at each step. Each hit is returned as a chain whose Resolve lands on the
// matching field.
func FindPaths(ctx context.Context, proc Accessor, base process.ProcessMemoryAddress, match value_codec.MatchFunc, width int, opts ...Option) ([]PointerChain, error) {
	settings := DefaultSettings().apply(opts)
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if settings.MaxOffset == 0 {
		settings.MaxOffset = 256
	}

	if err := proc.UpdateMemoryMap(); err != nil {
		return nil, err
	}
	mm, err := proc.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	isPointer := func(v process.ProcessMemoryAddress) bool {
		item := memory_map.FindRegion(uint64(v), mm)
		return item != nil && item.IsReadable()
	}

	var results []PointerChain
	visited := make(map[process.ProcessMemoryAddress]bool)
	ptr := settings.PointerSize
	step := min(width, ptr)
	if step < 1 {
		step = 1
	}

	// offsets holds the chain offsets applied after the pointer field at fieldBase.
	var walk func(addr process.ProcessMemoryAddress, depth int, fieldBase process.ProcessMemoryAddress, offsets []int32) error
	walk = func(addr process.ProcessMemoryAddress, depth int, fieldBase process.ProcessMemoryAddress, offsets []int32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth > settings.MaxDepth || visited[addr] {
			return nil
		}
		visited[addr] = true

		view, err := process.ReadRange(proc, addr, process.ProcessMemorySize(settings.MaxOffset))
		if err != nil {
			return err
		}

		for off := 0; off+width <= len(view.Data); off += step {
			if !view.RangeReadable(off, width) {
				continue
			}
			field := addr + process.ProcessMemoryAddress(off)

			if match(view.Data[off:off+width], nil) {
				chain := PointerChain{Base: field, ResolvedAddress: field}
				if depth > 0 {
					chain.Base = fieldBase
					chain.Offsets = append(append([]int32(nil), offsets...), int32(off))
				}
				results = append(results, chain)
			}

			if off%ptr != 0 || depth == settings.MaxDepth || !view.RangeReadable(off, ptr) {
				continue
			}
			v := decodePointer(view.Data[off:], ptr)
			if v == 0 || !isPointer(v) {
				continue
			}

			nextBase, nextOffsets := fieldBase, offsets
			if depth == 0 {
				nextBase, nextOffsets = field, nil
			} else {
				nextOffsets = append(append([]int32(nil), offsets...), int32(off))
			}
			if err := walk(v, depth+1, nextBase, nextOffsets); err != nil {
				return err
			}
		}
		return nil
	}

	err = walk(base, 0, base, nil)
	return results, err
}
