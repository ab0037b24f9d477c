// Package process provides interfaces and types for process memory access
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrProcessUnavailable is returned when the target process exited or its handle became invalid.
	ErrProcessUnavailable = errors.New("process unavailable")

	// ErrRegionUnreadable is returned when a read or write faults inside an otherwise mapped range.
	ErrRegionUnreadable = errors.New("region unreadable")

	// ErrRegionNotWritable is returned when writing to a mapping without write permission.
	ErrRegionNotWritable = errors.New("region not writable")

	ErrInvalidPointer = errors.New("invalid pointer read")
)

// IsUnavailable reports whether err means the target can no longer be accessed at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProcessUnavailable) || errors.Is(err, ErrProcessNotOpen)
}
