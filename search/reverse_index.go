package search

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"memscan/process"
	"memscan/regions"
	"memscan/scan_task"
)

// storedPointer records that addr holds the pointer value.
type storedPointer struct {
	value process.ProcessMemoryAddress
	addr  process.ProcessMemoryAddress
}

// reverseIndex maps pointer values to the addresses that store them, sorted by value.
type reverseIndex struct {
	entries []storedPointer
	capped  int
}

func (ri *reverseIndex) len() int {
	return len(ri.entries)
}

// within returns the stored pointers whose value lies in [lo, hi].
func (ri *reverseIndex) within(lo, hi process.ProcessMemoryAddress) []storedPointer {
	i := sort.Search(len(ri.entries), func(i int) bool {
		return ri.entries[i].value >= lo
	})
	j := i
	for j < len(ri.entries) && ri.entries[j].value <= hi {
		j++
	}
	return ri.entries[i:j]
}

// buildReverseIndex reads every region once and keeps each aligned slot whose
// value points into a region of the snapshot.
func (ps *PointerScanner) buildReverseIndex(ctx context.Context, task *scan_task.Task, index *regions.Index, settings Settings) (*reverseIndex, error) {
	ri := &reverseIndex{}
	list := index.Regions()
	if len(list) == 0 {
		return ri, nil
	}
	lowest, highest := list[0].Base, list[len(list)-1].End()

	size := process.ProcessMemoryAddress(settings.PointerSize)
	chunk := regions.AlignDown(process.ProcessMemoryAddress(settings.ChunkSize), size)

	for _, r := range list {
		count := 0
		capped := false

		start := regions.AlignUp(r.Base, size)
		for pos := start; pos < r.End() && !capped; {
			if err := ctx.Err(); err != nil {
				return ri, err
			}

			end := r.End()
			if end-pos > chunk {
				end = pos + chunk
			}

			view, err := process.ReadRange(ps.proc, pos, process.ProcessMemorySize(end-pos))
			if err != nil {
				return ri, fmt.Errorf("index %s: %w", r, err)
			}

			for i := 0; i+int(size) <= len(view.Data); i += int(size) {
				if !view.Readable[i] || !view.Readable[i+int(size)-1] {
					continue
				}
				v := decodePointer(view.Data[i:], settings.PointerSize)
				if v == 0 || v < lowest || v >= highest || !index.Contains(v) {
					continue
				}
				if count == settings.MaxCandidatesPerRegion {
					capped = true
					break
				}
				ri.entries = append(ri.entries, storedPointer{value: v, addr: pos + process.ProcessMemoryAddress(i)})
				count++
			}

			task.AddScannedBytes(uint64(end - pos))
			pos = end
		}

		if capped {
			ri.capped++
			ps.log.Debugln("candidate pointers capped at", settings.MaxCandidatesPerRegion, "in region", r.String())
		}
	}

	sort.Slice(ri.entries, func(i, j int) bool {
		a, b := ri.entries[i], ri.entries[j]
		if a.value != b.value {
			return a.value < b.value
		}
		return a.addr < b.addr
	})
	return ri, nil
}

func decodePointer(b []byte, size int) process.ProcessMemoryAddress {
	if size == 4 {
		return process.ProcessMemoryAddress(binary.LittleEndian.Uint32(b))
	}
	return process.ProcessMemoryAddress(binary.LittleEndian.Uint64(b))
}
