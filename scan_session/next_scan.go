package scan_session

import (
	"context"
	"fmt"

	"memscan/process"
	"memscan/regions"
	"memscan/scan_task"
	"memscan/value_codec"
)

// maxSpanGap is the largest hole between two results that is still read as
// part of one span rather than as two reads.
const maxSpanGap = process.PageSize

// StartNextScan narrows the current result set with f. Only addresses already
// in the set are re-read; the previous current bytes become the previous
// value. Addresses that cannot be read any more are dropped. A cancelled or
// failed refinement leaves the result set as it was.
func (s *Session) StartNextScan(ctx context.Context, f value_codec.Filter) (*scan_task.Task, error) {
	if !s.gate.TryAcquire() {
		return nil, scan_task.ErrScanAlreadyRunning
	}

	s.mu.Lock()
	rs, index, t := s.results, s.index, s.valueType
	if rs == nil || s.state != Scanned {
		s.mu.Unlock()
		s.gate.Release()
		return nil, fmt.Errorf("%w: next scan needs a completed initial scan", value_codec.ErrPrecondition)
	}

	match, err := s.refineMatcher(t, rs.width, f)
	if err != nil {
		s.mu.Unlock()
		s.gate.Release()
		return nil, err
	}
	s.state = Refining
	s.mu.Unlock()

	return s.startTask(ctx, "next_scan", Scanned, func(task *scan_task.Task) error {
		return s.runNextScan(task, rs, index, f, match)
	}), nil
}

// refineMatcher checks that f fits the width of the existing results.
func (s *Session) refineMatcher(t value_codec.ValueType, width int, f value_codec.Filter) (value_codec.MatchFunc, error) {
	codec := value_codec.Codec{Type: t, Epsilon: s.settings.FloatEpsilon}
	if t.IsVariableWidth() && (f.Kind == value_codec.Exact || f.Kind == value_codec.PatternMatch) {
		w, err := codec.Width(f)
		if err != nil {
			return nil, err
		}
		if w != width {
			return nil, fmt.Errorf("%w: %s operand is %d bytes, results are %d bytes", value_codec.ErrUnsupportedFilter, f.Kind, w, width)
		}
	}
	return codec.Matcher(f)
}

func (s *Session) runNextScan(task *scan_task.Task, rs *resultSet, index *regions.Index, f value_codec.Filter, match value_codec.MatchFunc) error {
	ctx := task.Context()
	w := rs.width

	task.SetTotalBytes(uint64(rs.len() * w))
	task.SetPhase(scan_task.PhaseReading)

	next := newResultSet(w, true)
	for i := 0; i < rs.len(); {
		if err := ctx.Err(); err != nil {
			s.setState(Scanned)
			s.log.Infoln("next scan cancelled, keeping", rs.len(), "results")
			return err
		}

		j := s.spanEnd(rs, index, i)
		base := rs.addrs[i]
		size := rs.addrs[j-1] + process.ProcessMemoryAddress(w) - base

		view, err := process.ReadRange(s.proc, base, process.ProcessMemorySize(size))
		if err != nil {
			s.setState(Scanned)
			s.log.Warn("next scan failed:", err)
			return fmt.Errorf("refine at %s: %w", base.ToString(), err)
		}

		for k := i; k < j; k++ {
			off := int(rs.addrs[k] - base)
			if !view.RangeReadable(off, w) {
				continue
			}
			cur := view.Data[off : off+w]
			prev := rs.current(k)
			if match(cur, prev) {
				next.add(rs.addrs[k], cur, prev)
			}
		}

		task.AddScannedBytes(uint64((j - i) * w))
		i = j
	}
	if err := ctx.Err(); err != nil {
		s.setState(Scanned)
		s.log.Infoln("next scan cancelled, keeping", rs.len(), "results")
		return err
	}

	s.mu.Lock()
	s.results = next
	s.state = Scanned
	s.passes++
	passes := s.passes
	s.mu.Unlock()

	s.log.Infoln("next scan", f, "pass", passes, "kept", next.len(), "of", rs.len(), "results")
	return nil
}

// spanEnd returns the exclusive end of the run of results starting at i that
// can be fetched with one read: same region, small gaps, at most one chunk.
func (s *Session) spanEnd(rs *resultSet, index *regions.Index, i int) int {
	w := process.ProcessMemoryAddress(rs.width)
	base := rs.addrs[i]

	limit := base + process.ProcessMemoryAddress(s.settings.ChunkSize)
	if index != nil {
		r, ok := index.Find(base)
		if !ok {
			return i + 1
		}
		if r.End() < limit {
			limit = r.End()
		}
	}

	j := i + 1
	for ; j < rs.len(); j++ {
		a := rs.addrs[j]
		if a+w > limit {
			break
		}
		if prevEnd := rs.addrs[j-1] + w; a > prevEnd && a-prevEnd > maxSpanGap {
			break
		}
	}
	return j
}
