package scan_session

import (
	"fmt"
	"sort"
	"strings"

	"memscan/process"
)

// PartialWriteError lists the addresses a batch write could not change.
// Every other address in the batch was written.
type PartialWriteError struct {
	Attempted int
	Failed    map[process.ProcessMemoryAddress]error
}

// Addresses returns the failed addresses in ascending order.
func (e *PartialWriteError) Addresses() []process.ProcessMemoryAddress {
	out := make([]process.ProcessMemoryAddress, 0, len(e.Failed))
	for addr := range e.Failed {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *PartialWriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d writes failed", len(e.Failed), e.Attempted)
	for i, addr := range e.Addresses() {
		if i == 3 {
			fmt.Fprintf(&b, ", ...")
			break
		}
		fmt.Fprintf(&b, "; %s: %v", addr.ToString(), e.Failed[addr])
	}
	return b.String()
}

// Unwrap exposes the per-address causes to errors.Is and errors.As.
func (e *PartialWriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, addr := range e.Addresses() {
		errs = append(errs, e.Failed[addr])
	}
	return errs
}

// WriteValue writes data at addr. It does not touch the result set.
func (s *Session) WriteValue(addr process.ProcessMemoryAddress, data []byte) error {
	if err := s.proc.WriteMemory(addr, data); err != nil {
		return fmt.Errorf("write %d bytes at %s: %w", len(data), addr.ToString(), err)
	}
	return nil
}

// WriteValues writes data at each address independently. A failing address
// never stops the others; failures come back as a *PartialWriteError.
func (s *Session) WriteValues(addrs []process.ProcessMemoryAddress, data []byte) error {
	failed := make(map[process.ProcessMemoryAddress]error)
	for _, addr := range addrs {
		if err := s.WriteValue(addr, data); err != nil {
			failed[addr] = err
		}
	}
	if len(failed) == 0 {
		return nil
	}

	s.log.Debugln("batch write:", len(failed), "of", len(addrs), "addresses failed")
	return &PartialWriteError{Attempted: len(addrs), Failed: failed}
}
