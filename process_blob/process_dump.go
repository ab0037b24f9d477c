package process_blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"memscan/process"
	"memscan/process/memory_map"
)

type fault struct {
	start, end uint64
}

// ProcessDump implements process.Process over memory held in this process: either a
// dump loaded from disk or regions added programmatically.
type ProcessDump struct {
	PID       process.ProcessID
	Name      string
	MemoryMap []memory_map.MemoryMapItem
	Blobs     map[uint64][]byte // Address -> Data

	mu     sync.RWMutex
	faults []fault
	closed bool
}

var _ process.Process = (*ProcessDump)(nil)

// NewProcessDump creates a new ProcessDump instance
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		Blobs: make(map[uint64][]byte),
	}
}

// AddRegion maps data at addr with the given permissions ("rw-p", "r-xp", ...).
// pathname may be empty for anonymous memory.
func (p *ProcessDump) AddRegion(addr uint64, data []byte, perms, pathname string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	p.MemoryMap = append(p.MemoryMap, memory_map.MemoryMapItem{
		Address:  addr,
		Size:     uint(len(data)),
		Perms:    perms,
		Pathname: pathname,
	})
	memory_map.Sort(p.MemoryMap)
	p.Blobs[addr] = buf
}

// MarkUnreadable makes any access overlapping [addr, addr+size) fault while the
// region itself stays mapped.
func (p *ProcessDump) MarkUnreadable(addr uint64, size uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, fault{start: addr, end: addr + uint64(size)})
}

// Poke overwrites bytes regardless of permissions, simulating the target changing its own memory.
func (p *ProcessDump) Poke(addr uint64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf, offset, err := p.locate(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(buf[offset:], data)
	return nil
}

func (p *ProcessDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Blobs = nil
	p.MemoryMap = nil
	p.closed = true
	return nil
}

func (p *ProcessDump) GetPID() process.ProcessID {
	return p.PID
}

func (p *ProcessDump) UpdateMemoryMap() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return process.ErrProcessUnavailable
	}
	return nil // Memory map is static in a dump
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	item := memory_map.FindRegion(uint64(addr), p.MemoryMap)
	return item != nil && item.IsReadable()
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, process.ErrProcessUnavailable
	}

	result := make([]memory_map.MemoryMapItem, len(p.MemoryMap))
	copy(result, p.MemoryMap)
	return result, nil
}

func (p *ProcessDump) GetModules() ([]process.Module, error) {
	mm, err := p.GetMemoryMap()
	if err != nil {
		return nil, err
	}
	return process.ModulesFromMemoryMap(mm), nil
}

// locate finds the backing buffer for [addr, addr+size). Caller holds mu.
func (p *ProcessDump) locate(addr, size uint64) ([]byte, uint64, error) {
	if p.closed {
		return nil, 0, process.ErrProcessUnavailable
	}

	region := memory_map.FindRegion(addr, p.MemoryMap)
	if region == nil {
		return nil, 0, process.ErrAddressNotMapped
	}

	data, ok := p.Blobs[region.Address]
	if !ok {
		return nil, 0, fmt.Errorf("no data for region 0x%x: %w", region.Address, process.ErrRegionUnreadable)
	}

	offset := addr - region.Address
	if offset+size > uint64(len(data)) {
		return nil, 0, fmt.Errorf("read of %d bytes at 0x%x exceeds region 0x%x: %w", size, addr, region.Address, process.ErrRegionUnreadable)
	}

	for _, f := range p.faults {
		if addr < f.end && addr+size > f.start {
			return nil, 0, fmt.Errorf("fault at 0x%x: %w", addr, process.ErrRegionUnreadable)
		}
	}

	return data, offset, nil
}

func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	region := memory_map.FindRegion(uint64(addr), p.MemoryMap)
	if region != nil && !region.IsReadable() {
		return nil, fmt.Errorf("region 0x%x is %s: %w", region.Address, region.Perms, process.ErrRegionUnreadable)
	}

	data, offset, err := p.locate(uint64(addr), uint64(size))
	if err != nil {
		return nil, err
	}

	result := make([]byte, size)
	copy(result, data[offset:offset+uint64(size)])
	return result, nil
}

func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf, offset, err := p.locate(uint64(addr), uint64(len(data)))
	if err != nil {
		return err
	}

	region := memory_map.FindRegion(uint64(addr), p.MemoryMap)
	if !region.IsWritable() {
		return fmt.Errorf("memory region at %x is not writable: %w", uint64(addr), process.ErrRegionNotWritable)
	}

	copy(buf[offset:], data)
	return nil
}

// Load reads a dump directory: metadata.json, process_memory_map.json and one
// blob_0x<addr>_<size>.bin per saved region.
func (p *ProcessDump) Load(dirname string) error {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata struct {
		PID  process.ProcessID `json:"pid"`
		Name string            `json:"name"`
	}
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, "process_memory_map.json"))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(mm)

	blobs := make(map[uint64][]byte)
	for _, region := range mm {
		filename := filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			continue // Blob not saved (e.g. too large or not readable)
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read blob %s: %w", filename, err)
		}

		blobs[region.Address] = data
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.PID = metadata.PID
	p.Name = metadata.Name
	p.MemoryMap = mm
	p.Blobs = blobs
	p.closed = false
	return nil
}
