package process

import (
	"bytes"
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && (len(aob.Mask) == 0 || len(aob.Pattern) == len(aob.Mask))
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// Len is the number of bytes the pattern covers, wildcards included.
func (aob AOB) Len() int {
	return len(aob.Pattern)
}

// HasWildcards reports whether any position is not an exact match.
func (aob AOB) HasWildcards() bool {
	for _, m := range aob.Mask {
		if m != 0xFF {
			return true
		}
	}
	return false
}

// Matches compares data against the pattern at offset zero. Masked bits are
// ignored, so a zero mask byte always matches.
func (aob AOB) Matches(data []byte) bool {
	if len(data) < len(aob.Pattern) {
		return false
	}
	if len(aob.Mask) == 0 {
		return bytes.Equal(data[:len(aob.Pattern)], aob.Pattern)
	}
	for j := 0; j < len(aob.Pattern); j++ {
		if aob.Mask[j] == 0 {
			continue
		}
		if data[j]&aob.Mask[j] != aob.Pattern[j]&aob.Mask[j] {
			return false
		}
	}
	return true
}

// String renders the pattern as hex bytes with ?? for wildcards.
func (aob AOB) String() string {
	var b bytes.Buffer
	for i, p := range aob.Pattern {
		if i > 0 {
			b.WriteByte(' ')
		}
		if len(aob.Mask) == len(aob.Pattern) && aob.Mask[i] == 0 {
			b.WriteString("??")
			continue
		}
		fmt.Fprintf(&b, "%02X", p)
	}
	return b.String()
}
