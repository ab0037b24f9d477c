// Package scan_session owns a result set and runs the initial and refinement
// scans that produce and narrow it.
package scan_session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"memscan/process"
	"memscan/regions"
	"memscan/scan_task"
	"memscan/value_codec"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var ErrInvalidAlignment = errors.New("alignment must be a power of two")

// Accessor is the memory capability a session scans and writes through.
type Accessor interface {
	process.MemoryReader
	regions.Source
	WriteMemory(addr process.ProcessMemoryAddress, data []byte) error
}

type State int

const (
	Empty State = iota
	Scanning
	Scanned
	Refining
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Scanning:
		return "scanning"
	case Scanned:
		return "scanned"
	case Refining:
		return "refining"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is one result set over one target. At most one scan runs at a time.
type Session struct {
	proc     Accessor
	settings Settings
	log      *logger.Logger
	gate     scan_task.Gate

	mu        sync.RWMutex
	state     State
	valueType value_codec.ValueType
	alignment int
	index     *regions.Index
	results   *resultSet
	passes    int
}

func New(proc Accessor, opts ...Option) *Session {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	return &Session{
		proc:     proc,
		settings: settings,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "scan-session")),
	}
}

func (s *Session) Settings() Settings {
	return s.settings
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ValueType is the type of the current result set. ok is false before the first scan.
func (s *Session) ValueType() (t value_codec.ValueType, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valueType, s.results != nil
}

// Codec returns the codec matching the current result set.
func (s *Session) Codec() value_codec.Codec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return value_codec.Codec{Type: s.valueType, Epsilon: s.settings.FloatEpsilon}
}

// Passes is the number of scans that produced the current result set.
func (s *Session) Passes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}

// Regions is the region snapshot captured by the current initial scan.
func (s *Session) Regions() *regions.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results.len()
}

// Results returns a copy of the whole result set in ascending address order.
func (s *Session) Results() []Entry {
	return s.Page(0, 0)
}

// Page returns up to limit entries starting at offset. A limit of zero means no limit.
func (s *Session) Page(offset, limit int) []Entry {
	s.mu.RLock()
	rs := s.results
	s.mu.RUnlock()

	if rs == nil {
		return nil
	}
	return rs.entries(offset, limit)
}

// Addresses returns the addresses of the current result set.
func (s *Session) Addresses() []process.ProcessMemoryAddress {
	s.mu.RLock()
	rs := s.results
	s.mu.RUnlock()

	if rs == nil {
		return nil
	}
	return append([]process.ProcessMemoryAddress(nil), rs.addrs...)
}

// Busy reports whether a scan is in flight.
func (s *Session) Busy() bool {
	return s.gate.Busy()
}

// Reset drops the result set. It fails while a scan is running.
func (s *Session) Reset() error {
	if !s.gate.TryAcquire() {
		return scan_task.ErrScanAlreadyRunning
	}
	defer s.gate.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.log.Infoln("results reset")
	return nil
}

func (s *Session) clearLocked() {
	s.state = Empty
	s.results = nil
	s.index = nil
	s.passes = 0
}

func (s *Session) resolveAlignment(t value_codec.ValueType, alignment int) (int, error) {
	if alignment == 0 {
		alignment = s.settings.Alignment
	}
	if alignment == 0 {
		alignment = t.NaturalAlignment()
	}
	if !regions.IsPowerOfTwo(alignment) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}
	return alignment, nil
}

// setState moves to a running state and returns the state to restore if the scan fails.
func (s *Session) setState(st State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = st
	return prev
}

// startTask runs fn under the session's gate. If fn panics, a session left in
// Scanning or Refining goes back to restore before the panic reaches the task.
func (s *Session) startTask(ctx context.Context, name string, restore State, fn func(t *scan_task.Task) error) *scan_task.Task {
	return scan_task.Go(ctx, name, func(t *scan_task.Task) error {
		defer s.gate.Release()
		defer func() {
			if r := recover(); r != nil {
				s.restoreRunning(restore)
				panic(r)
			}
		}()
		return fn(t)
	})
}

func (s *Session) restoreRunning(restore State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Scanning || s.state == Refining {
		s.state = restore
	}
}
