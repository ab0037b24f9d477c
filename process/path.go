package process

import (
	"encoding/binary"
	"fmt"
)

// ReadPointer reads a little-endian pointer of pointerSize (4 or 8) bytes.
func ReadPointer(r MemoryReader, addr ProcessMemoryAddress, pointerSize int) (ProcessMemoryAddress, error) {
	data, err := r.ReadMemory(addr, ProcessMemorySize(pointerSize))
	if err != nil {
		return 0, err
	}

	switch pointerSize {
	case 4:
		return ProcessMemoryAddress(binary.LittleEndian.Uint32(data)), nil
	case 8:
		return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
	default:
		return 0, fmt.Errorf("unsupported pointer size %d", pointerSize)
	}
}

// ResolvePointerChain evaluates [[[base]+o1]+o2...]+on and returns the final address.
// Every step dereferences the current address and then adds the next offset, so
// an empty offset list resolves to base itself.
func ResolvePointerChain(r MemoryReader, base ProcessMemoryAddress, pointerSize int, offsets []int32) (ProcessMemoryAddress, error) {
	current := base

	for i, off := range offsets {
		ptr, err := ReadPointer(r, current, pointerSize)
		if err != nil {
			return 0, fmt.Errorf("failed to read pointer at step %d (addr 0x%x): %w", i, uint64(current), err)
		}

		if ptr == 0 {
			return 0, fmt.Errorf("pointer at step %d (addr 0x%x) is null: %w", i, uint64(current), ErrInvalidPointer)
		}

		current = ptr + ProcessMemoryAddress(int64(off))
	}

	return current, nil
}
