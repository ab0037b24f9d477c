package process

// PageSize is the granularity at which unreadable memory is isolated.
const PageSize = 0x1000

// ReadView is a byte range where each byte is either read or known unreadable.
// Unreadable bytes are zero in Data and false in Readable, so viewers can tell
// a fault apart from a real zero.
type ReadView struct {
	Address  ProcessMemoryAddress
	Data     []byte
	Readable []bool
}

// IsReadable reports whether the byte at index i was read successfully.
func (v ReadView) IsReadable(i int) bool {
	return i >= 0 && i < len(v.Readable) && v.Readable[i]
}

// AllReadable reports whether every byte in the view was read.
func (v ReadView) AllReadable() bool {
	for _, ok := range v.Readable {
		if !ok {
			return false
		}
	}
	return true
}

// ReadRange reads size bytes at addr. A failing read is retried page by page so
// that only faulting pages are marked unreadable. An unavailable process is the
// only error returned.
func ReadRange(r MemoryReader, addr ProcessMemoryAddress, size ProcessMemorySize) (ReadView, error) {
	view := ReadView{
		Address:  addr,
		Data:     make([]byte, size),
		Readable: make([]bool, size),
	}
	if size == 0 {
		return view, nil
	}

	data, err := r.ReadMemory(addr, size)
	if err == nil && len(data) == int(size) {
		copy(view.Data, data)
		for i := range view.Readable {
			view.Readable[i] = true
		}
		return view, nil
	}
	if IsUnavailable(err) {
		return view, err
	}

	end := addr + ProcessMemoryAddress(size)
	for start := addr; start < end; {
		next := (start &^ (PageSize - 1)) + PageSize
		if next > end || next < start {
			next = end
		}

		chunk, err := r.ReadMemory(start, ProcessMemorySize(next-start))
		if err != nil {
			if IsUnavailable(err) {
				return view, err
			}
			start = next
			continue
		}

		off := int(start - addr)
		copy(view.Data[off:], chunk)
		for i := 0; i < len(chunk); i++ {
			view.Readable[off+i] = true
		}
		start = next
	}

	return view, nil
}

// RangeReadable reports whether bytes [off, off+n) of the view were all read.
func (v ReadView) RangeReadable(off, n int) bool {
	if off < 0 || n < 0 || off+n > len(v.Readable) {
		return false
	}
	for _, ok := range v.Readable[off : off+n] {
		if !ok {
			return false
		}
	}
	return true
}
