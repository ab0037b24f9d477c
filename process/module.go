package process

import (
	"path/filepath"
	"sort"

	"memscan/process/memory_map"
)

// Module is a loaded executable image or shared object.
type Module struct {
	Name string // Base name, e.g. libc.so.6
	Path string
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

// End is the first address past the module image.
func (m Module) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}

func (m Module) Contains(addr ProcessMemoryAddress) bool {
	return addr >= m.Base && addr < m.End()
}

// ModulesFromMemoryMap groups file-backed mappings by path. A module spans from the
// lowest to the highest address mapped from its file.
func ModulesFromMemoryMap(mm []memory_map.MemoryMapItem) []Module {
	byPath := make(map[string]*Module)
	var order []string

	for _, item := range mm {
		if !item.IsFileBacked() {
			continue
		}

		mod, ok := byPath[item.Pathname]
		if !ok {
			mod = &Module{
				Name: filepath.Base(item.Pathname),
				Path: item.Pathname,
				Base: ProcessMemoryAddress(item.Address),
				Size: ProcessMemorySize(item.Size),
			}
			byPath[item.Pathname] = mod
			order = append(order, item.Pathname)
			continue
		}

		start := min(mod.Base, ProcessMemoryAddress(item.Address))
		end := max(mod.End(), ProcessMemoryAddress(item.End()))
		mod.Base = start
		mod.Size = ProcessMemorySize(end - start)
	}

	modules := make([]Module, 0, len(order))
	for _, path := range order {
		modules = append(modules, *byPath[path])
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Base < modules[j].Base
	})

	return modules
}

// FindModule returns the module containing addr, if any. modules must be sorted by Base.
func FindModule(addr ProcessMemoryAddress, modules []Module) (Module, bool) {
	i := sort.Search(len(modules), func(i int) bool {
		return modules[i].End() > addr
	})
	if i < len(modules) && modules[i].Contains(addr) {
		return modules[i], true
	}
	return Module{}, false
}
