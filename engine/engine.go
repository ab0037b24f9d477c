// Package engine ties one scan session and one pointer scanner to a target and
// exposes the operations a front end drives.
package engine

import (
	"context"
	"fmt"

	"memscan/process"
	"memscan/scan_session"
	"memscan/scan_task"
	"memscan/search"
	"memscan/value_codec"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type config struct {
	session []scan_session.Option
	search  []search.Option
}

// Option is a function that configures an Engine
type Option func(*config)

func WithSessionOptions(opts ...scan_session.Option) Option {
	return func(c *config) {
		c.session = append(c.session, opts...)
	}
}

func WithSearchOptions(opts ...search.Option) Option {
	return func(c *config) {
		c.search = append(c.search, opts...)
	}
}

// Engine is the scan core for one attached target.
type Engine struct {
	proc     process.Process
	session  *scan_session.Session
	pointers *search.PointerScanner
	log      *logger.Logger
}

func New(proc process.Process, opts ...Option) *Engine {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		proc:     proc,
		session:  scan_session.New(proc, cfg.session...),
		pointers: search.NewPointerScanner(proc, cfg.search...),
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("engine-%d", proc.GetPID()))),
	}
}

func (e *Engine) Process() process.Process {
	return e.proc
}

func (e *Engine) Session() *scan_session.Session {
	return e.session
}

func (e *Engine) PointerScanner() *search.PointerScanner {
	return e.pointers
}

// CurrentResults is a snapshot of the scan result set.
func (e *Engine) CurrentResults() []scan_session.Entry {
	return e.session.Results()
}

func (e *Engine) ResultsPage(offset, limit int) []scan_session.Entry {
	return e.session.Page(offset, limit)
}

func (e *Engine) StartInitialScan(ctx context.Context, t value_codec.ValueType, f value_codec.Filter, alignment int) (*scan_task.Task, error) {
	return e.session.StartInitialScan(ctx, t, f, alignment)
}

func (e *Engine) StartNextScan(ctx context.Context, f value_codec.Filter) (*scan_task.Task, error) {
	return e.session.StartNextScan(ctx, f)
}

// Cancel requests cancellation of a task started by this engine. A nil or
// finished task is ignored.
func (e *Engine) Cancel(task *scan_task.Task) {
	if task == nil || task.Status().Terminal() {
		return
	}
	e.log.Infoln("cancelling", task.Name())
	task.Cancel()
}

func (e *Engine) WriteValue(addr process.ProcessMemoryAddress, data []byte) error {
	return e.session.WriteValue(addr, data)
}

// WriteValues writes data to each address; see scan_session.PartialWriteError.
func (e *Engine) WriteValues(addrs []process.ProcessMemoryAddress, data []byte) error {
	return e.session.WriteValues(addrs, data)
}

// EncodeValue parses text as the value type of the current results, or as t
// when there are none.
func (e *Engine) EncodeValue(t value_codec.ValueType, text string) ([]byte, error) {
	if vt, ok := e.session.ValueType(); ok {
		t = vt
	}
	v, err := value_codec.ParseValue(t, text)
	if err != nil {
		return nil, err
	}
	return value_codec.Codec{Type: t}.Encode(v)
}

// StartPointerScan looks for chains of at most maxDepth dereferences, each
// offset within [-maxOffset, maxOffset], that end at target.
func (e *Engine) StartPointerScan(ctx context.Context, target process.ProcessMemoryAddress, maxDepth int, maxOffset uint32, opts ...search.Option) (*scan_task.Task, error) {
	opts = append(opts, search.WithMaxDepth(maxDepth), search.WithMaxOffset(maxOffset))
	return e.pointers.Start(ctx, target, opts...)
}

func (e *Engine) PointerResults() []search.PointerChain {
	return e.pointers.Results()
}

func (e *Engine) PointerCount() int {
	return e.pointers.Count()
}

func (e *Engine) PointerResultsPage(offset, limit int) []search.PointerChain {
	return e.pointers.Page(offset, limit)
}

// FindPaths walks forward from the structure at base looking for fields that
// match f as type t.
func (e *Engine) FindPaths(ctx context.Context, base process.ProcessMemoryAddress, t value_codec.ValueType, f value_codec.Filter, opts ...search.Option) ([]search.PointerChain, error) {
	codec := value_codec.Codec{Type: t, Epsilon: e.session.Settings().FloatEpsilon}
	width, err := codec.Width(f)
	if err != nil {
		return nil, err
	}
	match, err := codec.Matcher(f)
	if err != nil {
		return nil, err
	}
	return search.FindPaths(ctx, e.proc, base, match, width, opts...)
}

// Read returns size bytes at addr with unreadable bytes flagged rather than zero-filled silently.
func (e *Engine) Read(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (process.ReadView, error) {
	return process.ReadRange(e.proc, addr, size)
}

// Reset clears the scan results. It fails while a scan is running.
func (e *Engine) Reset() error {
	return e.session.Reset()
}
