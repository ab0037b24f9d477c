//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memscan/process"

	"golang.org/x/sys/unix"
)

// remoteIO moves len(local) bytes between local and the target's memory at
// remote with a single-iovec process_vm_readv or process_vm_writev. It returns
// the number of bytes transferred, which is short when a page faults part way.
func remoteIO(trap uintptr, op string, pid process.ProcessID, local []byte, remote process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{Base: &local[0]}
	localIov.SetLen(len(local))
	remoteIov := unix.RemoteIovec{Base: uintptr(remote), Len: len(local)}

	// the last argument is the flags word, which must be zero
	n, _, errno := unix.Syscall6(trap,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)), 1,
		uintptr(unsafe.Pointer(&remoteIov)), 1,
		0,
	)
	if errno != 0 {
		return 0, classifyErrno(op, errno)
	}
	return int(n), nil
}

// process_vm_readv reads size bytes at remoteAddr. A short read returns the
// bytes before the first unreadable page together with ErrRegionUnreadable.
func process_vm_readv(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	buf := make([]byte, size)
	n, err := remoteIO(unix.SYS_PROCESS_VM_READV, "process_vm_readv", pid, buf, remoteAddr)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return buf[:n], fmt.Errorf("partial read: %d of %d bytes: %w", n, size, process.ErrRegionUnreadable)
	}
	return buf, nil
}

// ReadMemory reads size bytes of the target at addr. The address must lie in
// the memory map captured by the last UpdateMemoryMap; the pid is copied out
// under the lock so no lock is held during the syscall.
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	pid := p.pid
	mapped := p.isValidAddressInternal(addr)
	p.mu.Unlock()

	switch {
	case pid == 0:
		return nil, process.ErrProcessNotOpen
	case !mapped:
		return nil, fmt.Errorf("read at %s: %w", addr.ToString(), process.ErrAddressNotMapped)
	}

	data, err := process_vm_readv(pid, addr, size)
	if err != nil {
		return nil, fmt.Errorf("read %d bytes at %s: %w", size, addr.ToString(), err)
	}
	return data, nil
}
