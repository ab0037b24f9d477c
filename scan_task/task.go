// Package scan_task is the handle for one long-running scan: a cooperative
// cancellation signal, pollable progress and a terminal status.
package scan_task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrScanAlreadyRunning is returned when a scan is started while another one owns the slot.
var ErrScanAlreadyRunning = errors.New("scan already running")

type Status int32

const (
	Running Status = iota
	Completed
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Terminal reports whether the task has stopped.
func (s Status) Terminal() bool {
	return s != Running
}

type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseRegions
	PhaseReading
	PhaseIndexing
	PhaseSearching
	PhaseVerifying
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRegions:
		return "regions"
	case PhaseReading:
		return "reading"
	case PhaseIndexing:
		return "indexing"
	case PhaseSearching:
		return "searching"
	case PhaseVerifying:
		return "verifying"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Progress is a point-in-time copy of a task's counters.
type Progress struct {
	Name         string
	Status       Status
	Phase        Phase
	ScannedBytes uint64
	TotalBytes   uint64
	LevelsDone   int
	TotalLevels  int
	Elapsed      time.Duration
}

// Fraction is the completed share in [0, 1]. Level progress wins over bytes once levels are known.
func (p Progress) Fraction() float64 {
	if p.Status == Completed {
		return 1
	}
	if p.TotalLevels > 0 && p.Phase >= PhaseSearching {
		return float64(p.LevelsDone) / float64(p.TotalLevels)
	}
	if p.TotalBytes == 0 {
		return 0
	}
	f := float64(p.ScannedBytes) / float64(p.TotalBytes)
	if f > 1 {
		f = 1
	}
	return f
}

func (p Progress) String() string {
	s := fmt.Sprintf("%s %s %s %.1f%% (%d/%d bytes", p.Name, p.Status, p.Phase, p.Fraction()*100, p.ScannedBytes, p.TotalBytes)
	if p.TotalLevels > 0 {
		s += fmt.Sprintf(", level %d/%d", p.LevelsDone, p.TotalLevels)
	}
	return s + fmt.Sprintf(", %s)", p.Elapsed.Round(time.Millisecond))
}

// Task runs one scan on its own goroutine.
type Task struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	scanned     atomic.Uint64
	total       atomic.Uint64
	levels      atomic.Int32
	totalLevels atomic.Int32
	phase       atomic.Int32
	status      atomic.Int32
	finished    atomic.Int64

	// err is written once before done is closed.
	err error
}

// Go starts fn on a new goroutine and returns immediately. fn should return
// ctx.Err() when it stops early on cancellation; that ends the task as Cancelled.
func Go(parent context.Context, name string, fn func(t *Task) error) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		name:    name,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	taskMetrics.started(ctx, name)

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v", name, r)
			}
			t.finish(err)
		}()
		err = fn(t)
	}()
	return t
}

func (t *Task) finish(err error) {
	status := Completed
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = Cancelled
		err = nil
	default:
		status = Failed
	}

	t.err = err
	t.phase.Store(int32(PhaseDone))
	t.finished.Store(int64(time.Since(t.started)))
	t.status.Store(int32(status))
	taskMetrics.finished(context.WithoutCancel(t.ctx), t.name, status)
	t.cancel()
	close(t.done)
}

func (t *Task) Name() string {
	return t.name
}

// Context is cancelled when Cancel is called or the parent context ends.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Cancel asks the task to stop at its next chunk or level boundary. It never blocks.
func (t *Task) Cancel() {
	t.cancel()
}

// Cancelled reports whether cancellation was requested.
func (t *Task) Cancelled() bool {
	return t.ctx.Err() != nil
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task stops and returns its failure, if any.
// A cancelled task returns nil.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// WaitContext is Wait bounded by ctx.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the failure of a finished task, or nil while running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) Status() Status {
	return Status(t.status.Load())
}

func (t *Task) Progress() Progress {
	elapsed := time.Since(t.started)
	if f := t.finished.Load(); f != 0 {
		elapsed = time.Duration(f)
	}
	return Progress{
		Name:         t.name,
		Status:       t.Status(),
		Phase:        Phase(t.phase.Load()),
		ScannedBytes: t.scanned.Load(),
		TotalBytes:   t.total.Load(),
		LevelsDone:   int(t.levels.Load()),
		TotalLevels:  int(t.totalLevels.Load()),
		Elapsed:      elapsed,
	}
}

func (t *Task) SetPhase(p Phase) {
	t.phase.Store(int32(p))
}

func (t *Task) SetTotalBytes(n uint64) {
	t.total.Store(n)
}

func (t *Task) AddScannedBytes(n uint64) {
	t.scanned.Add(n)
	taskMetrics.scanned(t.ctx, t.name, n)
}

// SetLevels records search depth progress.
func (t *Task) SetLevels(done, total int) {
	t.levels.Store(int32(done))
	t.totalLevels.Store(int32(total))
}
