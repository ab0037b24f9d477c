//go:build linux

package process_linux

import (
	"fmt"

	"memscan/process"
	"memscan/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_writev writes data at remoteAddr and returns how many bytes landed.
func process_vm_writev(pid process.ProcessID, data []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	return remoteIO(unix.SYS_PROCESS_VM_WRITEV, "process_vm_writev", pid, data, remoteAddr)
}

// WriteMemory writes data to the target at addr. Only mappings with write
// permission are accepted; process_vm_writev cannot write through a read-only
// mapping the way ptrace pokes can, so it is refused up front.
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	pid := p.pid
	region := memory_map.FindRegion(uint64(addr), p.mm)
	p.mu.Unlock()

	switch {
	case pid == 0:
		return process.ErrProcessNotOpen
	case region == nil:
		return fmt.Errorf("write at %s: %w", addr.ToString(), process.ErrAddressNotMapped)
	case !region.IsWritable():
		return fmt.Errorf("write at %s (%s): %w", addr.ToString(), region.Perms, process.ErrRegionNotWritable)
	}

	// the caller may reuse data while the syscall runs
	buf := append([]byte(nil), data...)

	written, err := process_vm_writev(pid, buf, addr)
	if err != nil {
		return fmt.Errorf("write %d bytes at %s: %w", len(data), addr.ToString(), err)
	}
	if written != len(data) {
		return fmt.Errorf("wrote %d of %d bytes at %s: %w", written, len(data), addr.ToString(), process.ErrRegionUnreadable)
	}
	return nil
}
