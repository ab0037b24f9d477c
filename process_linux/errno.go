//go:build linux

package process_linux

import (
	"errors"
	"fmt"

	"memscan/process"

	"golang.org/x/sys/unix"
)

// classifyErrno maps a process_vm_* failure onto the process error taxonomy.
func classifyErrno(op string, errno unix.Errno) error {
	switch {
	case errors.Is(errno, unix.ESRCH):
		return fmt.Errorf("%s: %s: %w", op, errno.Error(), process.ErrProcessUnavailable)
	case errors.Is(errno, unix.EFAULT), errors.Is(errno, unix.EIO), errors.Is(errno, unix.ENOMEM):
		return fmt.Errorf("%s: %s: %w", op, errno.Error(), process.ErrRegionUnreadable)
	default:
		return fmt.Errorf("%s failed: %s (errno: %d)", op, errno.Error(), errno)
	}
}
