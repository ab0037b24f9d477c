package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"memscan/engine"
	"memscan/hexdump"
	"memscan/process"
	"memscan/process_blob"
	"memscan/regions"
	"memscan/scan_session"
	"memscan/scan_task"
	"memscan/search"
	"memscan/table"
	"memscan/value_codec"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

const usage = `commands:
  type <t>                      set the value type for the next first scan
  align <n>                     set the scan alignment, 0 for natural
  first <filter> [args]         initial scan: exact <v>, unknown, range <lo> <hi>, pattern <aob>
  next <filter> [args]          refine: exact, changed, unchanged, inc, dec, range
  list [offset] [limit]         show results
  write <value> <addr|all>      write to one address, or to every result
  view <addr> [size]            hexdump
  regions                       show readable regions
  ptr <addr> [depth] [offset]   pointer scan toward addr
  chains [offset] [limit]       show pointer scan results
  paths <base> <filter> [args]  walk forward from base for matching fields
  save <dir>                    save the target's memory to a dump directory
  status | cancel | reset | help | quit`

type cli struct {
	eng *engine.Engine
	out io.Writer

	valueType value_codec.ValueType
	alignment int
	depth     int
	maxOffset uint32
	name      string
	pageSize  int
	color     bool

	// progressEvery is how often a running task's progress is printed, 0 for never.
	progressEvery time.Duration

	mu      sync.Mutex
	running *scan_task.Task
	last    *scan_task.Task
}

func newCLI(eng *engine.Engine, out io.Writer) *cli {
	return &cli{
		eng:           eng,
		out:           out,
		valueType:     value_codec.Int32,
		depth:         search.DefaultSettings().MaxDepth,
		maxOffset:     search.DefaultSettings().MaxOffset,
		pageSize:      20,
		color:         true,
		progressEvery: 500 * time.Millisecond,
	}
}

func (c *cli) loop(ctx context.Context, in *bufio.Scanner) error {
	fmt.Fprint(c.out, "> ")
	for in.Scan() {
		quit, err := c.execute(ctx, in.Text())
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(c.out, "> ")
	}
	return in.Err()
}

func (c *cli) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, usage)
		return false, nil
	case "type":
		return false, c.setType(args)
	case "align":
		return false, c.setAlignment(args)
	case "first":
		return false, c.first(ctx, args)
	case "next":
		return false, c.next(ctx, args)
	case "list", "ls":
		return false, c.list(args)
	case "write":
		return false, c.write(args)
	case "view", "x":
		return false, c.view(args)
	case "regions":
		return false, c.regions()
	case "ptr":
		return false, c.pointerScan(ctx, args)
	case "chains":
		return false, c.chains(args)
	case "paths":
		return false, c.paths(ctx, args)
	case "save":
		return false, c.save(args)
	case "status":
		c.status()
		return false, nil
	case "cancel":
		if !c.cancelRunning() {
			fmt.Fprintln(c.out, "no scan running")
		}
		return false, nil
	case "reset":
		if err := c.eng.Reset(); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "results cleared")
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (c *cli) setType(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: type <t>")
	}
	vt, err := value_codec.ParseValueType(args[0])
	if err != nil {
		return err
	}
	c.valueType = vt
	fmt.Fprintln(c.out, "type", vt)
	return nil
}

func (c *cli) setAlignment(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: align <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	if n != 0 && !regions.IsPowerOfTwo(n) {
		return fmt.Errorf("alignment %d: %w", n, scan_session.ErrInvalidAlignment)
	}
	c.alignment = n
	return nil
}

// parseFilter joins the operands of a pattern filter, or of an exact filter on
// a variable width type, so "first pattern D2 04 ?? 00" keeps its spaces.
func parseFilter(vt value_codec.ValueType, args []string) (value_codec.Filter, error) {
	if len(args) == 0 {
		return value_codec.Filter{}, errors.New("missing filter")
	}
	kind, operands := args[0], args[1:]
	joined := vt.IsVariableWidth() && !isRangeKind(kind)
	switch strings.ToLower(kind) {
	case "pattern", "aob":
		joined = true
	}
	if joined && len(operands) > 1 {
		operands = []string{strings.Join(operands, " ")}
	}
	return value_codec.ParseFilter(vt, kind, operands...)
}

func isRangeKind(kind string) bool {
	switch strings.ToLower(kind) {
	case "range", "between":
		return true
	}
	return false
}

func (c *cli) first(ctx context.Context, args []string) error {
	f, err := parseFilter(c.valueType, args)
	if err != nil {
		return err
	}
	task, err := c.eng.StartInitialScan(ctx, c.valueType, f, c.alignment)
	if err != nil {
		return err
	}
	return c.finishScan(task)
}

func (c *cli) next(ctx context.Context, args []string) error {
	vt, ok := c.eng.Session().ValueType()
	if !ok {
		vt = c.valueType
	}
	f, err := parseFilter(vt, args)
	if err != nil {
		return err
	}
	task, err := c.eng.StartNextScan(ctx, f)
	if err != nil {
		return err
	}
	return c.finishScan(task)
}

func (c *cli) finishScan(task *scan_task.Task) error {
	if err := c.watch(task); err != nil {
		return err
	}
	s := c.eng.Session()
	fmt.Fprintf(c.out, "%d results after %d pass(es)\n", s.Count(), s.Passes())
	if task.Status() == scan_task.Cancelled {
		fmt.Fprintln(c.out, "scan cancelled")
	}
	if s.Count() > 0 && s.Count() <= c.pageSize {
		return c.list(nil)
	}
	return nil
}

// watch blocks until task ends, printing its progress, and returns the task error.
func (c *cli) watch(task *scan_task.Task) error {
	c.mu.Lock()
	c.running = task
	c.last = task
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = nil
		c.mu.Unlock()
	}()

	if c.progressEvery > 0 {
		ticker := time.NewTicker(c.progressEvery)
		defer ticker.Stop()
	wait:
		for {
			select {
			case <-task.Done():
				break wait
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s", task.Progress())
			}
		}
		fmt.Fprintf(c.out, "\r%s\n", task.Progress())
	}
	return task.Wait()
}

func (c *cli) cancelRunning() bool {
	c.mu.Lock()
	task := c.running
	c.mu.Unlock()
	if task == nil {
		return false
	}
	c.eng.Cancel(task)
	return true
}

func (c *cli) paint(code coloransi.ColorCode) table.FormatFunc {
	if !c.color {
		return nil
	}
	return func(s string) string {
		return coloransi.Foreground(code, s)
	}
}

func (c *cli) list(args []string) error {
	offset, limit := 0, c.pageSize
	var err error
	if len(args) > 0 {
		if offset, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}

	s := c.eng.Session()
	codec := s.Codec()
	tab := table.New(
		table.Column{Header: "Address", Format: c.paint(coloransi.Cyan)},
		table.Column{Header: "Value", AlignRight: true, Format: c.paint(coloransi.Green)},
		table.Column{Header: "Previous", AlignRight: true},
	)
	for _, e := range c.eng.ResultsPage(offset, limit) {
		prev := ""
		if e.Previous != nil {
			prev = codec.Format(e.Previous)
		}
		tab.AddRow(fmt.Sprintf("0x%x", uint64(e.Address)), codec.Format(e.Current), prev)
	}
	if err := tab.Render(c.out); err != nil {
		return err
	}
	if rest := s.Count() - offset - tab.Len(); rest > 0 {
		fmt.Fprintf(c.out, "... %d more\n", rest)
	}
	return nil
}

func (c *cli) write(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: write <value> <addr|all>")
	}
	text := strings.Join(args[:len(args)-1], " ")
	var target []process.ProcessMemoryAddress
	if dest := args[len(args)-1]; strings.EqualFold(dest, "all") {
		target = c.eng.Session().Addresses()
		if len(target) == 0 {
			return errors.New("no results to write to")
		}
	} else {
		addr, err := parseAddress(dest)
		if err != nil {
			return err
		}
		target = []process.ProcessMemoryAddress{addr}
	}

	data, err := c.eng.EncodeValue(c.valueType, text)
	if err != nil {
		return err
	}

	err = c.eng.WriteValues(target, data)
	var partial *scan_session.PartialWriteError
	if errors.As(err, &partial) {
		tab := table.New(table.Column{Header: "Address"}, table.Column{Header: "Error", Format: c.paint(coloransi.Red)})
		for _, addr := range partial.Addresses() {
			tab.AddRow(fmt.Sprintf("0x%x", uint64(addr)), partial.Failed[addr].Error())
		}
		fmt.Fprintf(c.out, "wrote %d of %d\n", partial.Attempted-len(partial.Failed), partial.Attempted)
		return tab.Render(c.out)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "wrote %d\n", len(target))
	return nil
}

func (c *cli) view(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: view <addr> [size]")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	size := 256
	if len(args) > 1 {
		if size, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}

	view, err := c.eng.Read(addr, process.ProcessMemorySize(size))
	if err != nil {
		return err
	}

	opts := hexdump.DefaultOptions()
	opts.Color = c.color
	if mm, err := c.eng.Process().GetMemoryMap(); err == nil {
		opts.ShowPointers = true
		opts.MemoryMap = mm
	}
	if vt, ok := c.eng.Session().ValueType(); ok {
		width := vt.Width()
		for _, e := range c.eng.Session().Results() {
			if vt.IsVariableWidth() {
				width = len(e.Current)
			}
			if e.Address+process.ProcessMemoryAddress(width) > addr && e.Address < addr+process.ProcessMemoryAddress(size) {
				opts.Highlight = append(opts.Highlight, hexdump.Span{Address: e.Address, Size: width})
			}
		}
	}
	hexdump.DumpToWriter(c.out, view, opts)
	return nil
}

func (c *cli) regions() error {
	index, err := regions.Snapshot(c.eng.Process())
	if err != nil {
		return err
	}
	tab := table.New(
		table.Column{Header: "Start", Format: c.paint(coloransi.Cyan)},
		table.Column{Header: "End"},
		table.Column{Header: "Perms"},
		table.Column{Header: "Size", AlignRight: true},
		table.Column{Header: "Path"},
	)
	for _, r := range index.Regions() {
		perms := []byte("r---")
		if r.Writable {
			perms[1] = 'w'
		}
		if r.Executable {
			perms[2] = 'x'
		}
		if r.Shared {
			perms[3] = 's'
		} else {
			perms[3] = 'p'
		}
		tab.AddRow(fmt.Sprintf("0x%x", uint64(r.Base)), fmt.Sprintf("0x%x", uint64(r.End())), string(perms), strconv.FormatUint(r.Size, 10), r.Pathname)
	}
	if err := tab.Render(c.out); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d regions, %d bytes\n", index.Len(), index.TotalBytes())
	return nil
}

func (c *cli) pointerScan(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ptr <addr> [depth] [offset]")
	}
	target, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	depth, maxOffset := c.depth, c.maxOffset
	if len(args) > 1 {
		if depth, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}
	if len(args) > 2 {
		off, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return err
		}
		maxOffset = uint32(off)
	}

	task, err := c.eng.StartPointerScan(ctx, target, depth, maxOffset)
	if err != nil {
		return err
	}
	if err := c.watch(task); err != nil {
		return err
	}
	found := c.eng.PointerCount()
	fmt.Fprintf(c.out, "%d chains\n", found)
	if c.eng.PointerScanner().Truncated() {
		fmt.Fprintln(c.out, "result limit reached, output truncated")
	}
	if found > 0 && found <= c.pageSize {
		return c.chains(nil)
	}
	return nil
}

func (c *cli) chains(args []string) error {
	offset, limit := 0, c.pageSize
	var err error
	if len(args) > 0 {
		if offset, err = strconv.Atoi(args[0]); err != nil {
			return err
		}
	}
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil {
			return err
		}
	}
	total := c.eng.PointerCount()
	return c.renderChains(c.eng.PointerResultsPage(offset, limit), offset, total)
}

// renderChains prints page, whose first chain is number offset of total.
func (c *cli) renderChains(page []search.PointerChain, offset, total int) error {
	tab := table.New(
		table.Column{Header: "#", AlignRight: true},
		table.Column{Header: "Chain", Format: c.paint(coloransi.Green)},
		table.Column{Header: "Resolves To", Format: c.paint(coloransi.Cyan)},
	)
	for i, chain := range page {
		tab.AddRow(strconv.Itoa(offset+i), chain.String(), fmt.Sprintf("0x%x", uint64(chain.ResolvedAddress)))
	}
	if err := tab.Render(c.out); err != nil {
		return err
	}
	if rest := total - offset - tab.Len(); rest > 0 {
		fmt.Fprintf(c.out, "... %d more\n", rest)
	}
	return nil
}

func (c *cli) paths(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: paths <base> <filter> [args]")
	}
	base, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	f, err := parseFilter(c.valueType, args[1:])
	if err != nil {
		return err
	}
	chains, err := c.eng.FindPaths(ctx, base, c.valueType, f, search.WithMaxDepth(c.depth), search.WithMaxOffset(c.maxOffset))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d paths\n", len(chains))
	return c.renderChains(chains[:min(len(chains), c.pageSize)], 0, len(chains))
}

func (c *cli) save(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: save <dir>")
	}
	stats, err := process_blob.Save(c.eng.Process(), c.name, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "saved %d regions (%d unreadable, %d too large, %d read errors)\n",
		stats.Saved, stats.NotReadable, stats.TooLarge, stats.ReadErrors)
	return nil
}

func (c *cli) status() {
	s := c.eng.Session()
	vt := "-"
	if t, ok := s.ValueType(); ok {
		vt = t.String()
	}
	fmt.Fprintf(c.out, "session %s, type %s, %d results, %d pass(es)\n", s.State(), vt, s.Count(), s.Passes())

	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last != nil {
		fmt.Fprintln(c.out, last.Progress())
		if err := last.Err(); err != nil {
			fmt.Fprintf(c.out, "last error: %v\n", err)
		}
	}
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return process.ProcessMemoryAddress(v), nil
}
