package scan_session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"memscan/process"
	"memscan/regions"
	"memscan/scan_task"
	"memscan/value_codec"
)

type scanPlan struct {
	valueType value_codec.ValueType
	filter    value_codec.Filter
	width     int
	alignment int
	match     value_codec.MatchFunc
}

// StartInitialScan replaces the result set with every position in a fresh
// region snapshot that matches f. Changing the value type clears the previous
// results immediately. Validation errors are returned before any work starts.
func (s *Session) StartInitialScan(ctx context.Context, t value_codec.ValueType, f value_codec.Filter, alignment int) (*scan_task.Task, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %v", value_codec.ErrUnknownValueType, t)
	}
	if f.NeedsPrevious() {
		return nil, fmt.Errorf("%w: %s filter needs a previous scan", value_codec.ErrPrecondition, f.Kind)
	}

	codec := value_codec.Codec{Type: t, Epsilon: s.settings.FloatEpsilon}
	width, err := codec.Width(f)
	if err != nil {
		return nil, err
	}
	match, err := codec.Matcher(f)
	if err != nil {
		return nil, err
	}
	align, err := s.resolveAlignment(t, alignment)
	if err != nil {
		return nil, err
	}

	if !s.gate.TryAcquire() {
		return nil, scan_task.ErrScanAlreadyRunning
	}

	s.mu.Lock()
	if s.results != nil && s.valueType != t {
		s.log.Infoln("value type changed from", s.valueType, "to", t, "- clearing", s.results.len(), "results")
		s.clearLocked()
	}
	prevState := s.state
	s.state = Scanning
	s.mu.Unlock()

	plan := scanPlan{valueType: t, filter: f, width: width, alignment: align, match: match}
	return s.startTask(ctx, "initial_scan", prevState, func(task *scan_task.Task) error {
		return s.runInitialScan(task, plan, prevState)
	}), nil
}

func (s *Session) runInitialScan(task *scan_task.Task, plan scanPlan, prevState State) error {
	ctx := task.Context()

	task.SetPhase(scan_task.PhaseRegions)
	index, err := regions.Snapshot(s.proc, s.settings.predicates()...)
	if err != nil {
		s.setState(prevState)
		return err
	}

	var total uint64
	for _, r := range index.Regions() {
		lo, hi := s.settings.clip(r)
		total += uint64(hi - lo)
	}
	task.SetTotalBytes(total)
	task.SetPhase(scan_task.PhaseReading)

	s.log.Infoln("initial scan:", plan.valueType, plan.filter, "align", plan.alignment, "over", index.Len(), "regions,", total, "bytes")

	rs, err := s.scanRegions(ctx, task, index, plan)
	if err != nil && !isCancellation(err) {
		s.log.Warn("initial scan failed:", err)
		s.setState(prevState)
		return err
	}

	s.mu.Lock()
	s.state = Scanned
	s.valueType = plan.valueType
	s.alignment = plan.alignment
	s.index = index
	s.results = rs
	s.passes = 1
	s.mu.Unlock()

	if err != nil {
		s.log.Infoln("initial scan cancelled, kept", rs.len(), "partial results")
		return err
	}
	s.log.Infoln("initial scan complete, found", rs.len(), "results")
	return nil
}

// scanRegions runs scanRegion over every region with up to Workers regions in
// flight. Per-region results are joined in address order.
func (s *Session) scanRegions(parent context.Context, task *scan_task.Task, index *regions.Index, plan scanPlan) (*resultSet, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	list := index.Regions()
	parts := make([]*resultSet, len(list))

	workers := s.settings.Workers
	if n := runtime.NumCPU(); workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for i, r := range list {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(i int, r regions.MemoryRegion) {
			defer func() {
				<-sem
				wg.Done()
			}()

			part := newResultSet(plan.width, false)
			err := s.scanRegionSafe(ctx, task, r, plan, part)
			parts[i] = part
			if err != nil {
				errMu.Lock()
				if firstErr == nil || (isCancellation(firstErr) && !isCancellation(err)) {
					firstErr = err
				}
				errMu.Unlock()
				// a fatal read stops the remaining regions
				cancel()
			}
		}(i, r)
	}
	wg.Wait()

	if firstErr == nil && parent.Err() != nil {
		firstErr = parent.Err()
	}

	rs := newResultSet(plan.width, false)
	for _, part := range parts {
		if part == nil {
			continue
		}
		rs.addrs = append(rs.addrs, part.addrs...)
		rs.cur = append(rs.cur, part.cur...)
	}
	return rs, firstErr
}

// scanRegionSafe turns a panic in a worker into an error for the scan.
func (s *Session) scanRegionSafe(ctx context.Context, task *scan_task.Task, r regions.MemoryRegion, plan scanPlan, rs *resultSet) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("scanning region %s: panic: %v", r, v)
		}
	}()
	return s.scanRegion(ctx, task, r, plan, rs)
}

// scanRegion reads one region in chunks. Each chunk read extends width-1
// bytes past the chunk so values straddling the boundary are seen exactly once.
func (s *Session) scanRegion(ctx context.Context, task *scan_task.Task, r regions.MemoryRegion, plan scanPlan, rs *resultSet) error {
	lo, hi := s.settings.clip(r)
	chunk := process.ProcessMemoryAddress(s.settings.ChunkSize)
	overlap := process.ProcessMemoryAddress(plan.width - 1)

	for pos := lo; pos < hi; {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunkEnd := hi
		if hi-pos > chunk {
			chunkEnd = pos + chunk
		}
		readEnd := chunkEnd + overlap
		if readEnd > hi {
			readEnd = hi
		}

		view, err := process.ReadRange(s.proc, pos, process.ProcessMemorySize(readEnd-pos))
		if err != nil {
			return fmt.Errorf("scan %s: %w", r, err)
		}
		if !view.AllReadable() {
			s.log.Debugln("skipping unreadable pages in chunk at", fmt.Sprintf("%x", uint64(pos)))
		}

		scanView(view, chunkEnd, plan, rs)
		task.AddScannedBytes(uint64(chunkEnd - pos))
		pos = chunkEnd
	}
	return nil
}

// scanView evaluates every aligned position below limit whose bytes were all read.
func scanView(view process.ReadView, limit process.ProcessMemoryAddress, plan scanPlan, rs *resultSet) {
	w := plan.width
	data := view.Data

	var bad []int
	if !view.AllReadable() {
		bad = unreadablePrefix(view.Readable)
	}

	align := process.ProcessMemoryAddress(plan.alignment)
	for addr := regions.AlignUp(view.Address, align); addr < limit; addr += align {
		i := int(addr - view.Address)
		if i+w > len(data) {
			break
		}
		if bad != nil && bad[i+w] != bad[i] {
			continue
		}
		if plan.match(data[i:i+w], nil) {
			rs.add(addr, data[i:i+w], nil)
		}
	}
}

// unreadablePrefix returns counts where p[i] is the number of unreadable bytes before index i.
func unreadablePrefix(readable []bool) []int {
	p := make([]int, len(readable)+1)
	for i, ok := range readable {
		p[i+1] = p[i]
		if !ok {
			p[i+1]++
		}
	}
	return p
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
