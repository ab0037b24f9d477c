package search

import (
	"fmt"
	"slices"
	"strings"

	"memscan/process"
)

// PointerChain is [[[Base]+o1]+o2...]+on. Module is set when Base lies inside a
// loaded image, in which case the chain survives a restart via Rebase.
type PointerChain struct {
	Base            process.ProcessMemoryAddress
	Module          string
	ModuleOffset    uint64
	Offsets         []int32
	ResolvedAddress process.ProcessMemoryAddress
}

func (c PointerChain) IsModuleRelative() bool {
	return c.Module != ""
}

func (c PointerChain) Depth() int {
	return len(c.Offsets)
}

// String renders "libgame.so+0x1a2b0 -> +0x10 -> -0x8" or "0xa0 -> +0x10".
func (c PointerChain) String() string {
	var b strings.Builder
	if c.IsModuleRelative() {
		fmt.Fprintf(&b, "%s+0x%x", c.Module, c.ModuleOffset)
	} else {
		fmt.Fprintf(&b, "0x%x", uint64(c.Base))
	}
	for _, off := range c.Offsets {
		b.WriteString(" -> ")
		b.WriteString(formatOffset(off))
	}
	return b.String()
}

func formatOffset(off int32) string {
	if off < 0 {
		return fmt.Sprintf("-0x%x", -int64(off))
	}
	return fmt.Sprintf("+0x%x", off)
}

// Resolve follows the chain in the target as it is now.
func (c PointerChain) Resolve(r process.MemoryReader, pointerSize int) (process.ProcessMemoryAddress, error) {
	return process.ResolvePointerChain(r, c.Base, pointerSize, c.Offsets)
}

// Rebase moves a module-relative chain to where its module is loaded now.
func (c PointerChain) Rebase(modules []process.Module) (PointerChain, bool) {
	if !c.IsModuleRelative() {
		return c, true
	}
	for _, m := range modules {
		if m.Name == c.Module {
			c.Base = m.Base + process.ProcessMemoryAddress(c.ModuleOffset)
			return c, true
		}
	}
	return c, false
}

func compareChains(a, b PointerChain) int {
	if a.Base != b.Base {
		if a.Base < b.Base {
			return -1
		}
		return 1
	}
	return slices.Compare(a.Offsets, b.Offsets)
}
