package search

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"memscan/process"
	"memscan/regions"
	"memscan/scan_task"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Accessor is what the pointer scanner needs from the target.
type Accessor interface {
	process.MemoryReader
	regions.Source
	GetModules() ([]process.Module, error)
}

// cancelCheckInterval is how many nodes are expanded between cancellation checks.
const cancelCheckInterval = 4096

// PointerScanner runs one pointer scan at a time and keeps the chains of the latest one.
type PointerScanner struct {
	proc     Accessor
	settings Settings
	log      *logger.Logger
	gate     scan_task.Gate

	mu        sync.RWMutex
	target    process.ProcessMemoryAddress
	results   []PointerChain
	truncated bool
}

func NewPointerScanner(proc Accessor, opts ...Option) *PointerScanner {
	return &PointerScanner{
		proc:     proc,
		settings: DefaultSettings().apply(opts),
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "pointer-scan")),
	}
}

func (ps *PointerScanner) Settings() Settings {
	return ps.settings
}

// Results returns the chains of the latest scan, shallowest first.
func (ps *PointerScanner) Results() []PointerChain {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return slices.Clone(ps.results)
}

func (ps *PointerScanner) Target() process.ProcessMemoryAddress {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.target
}

// Truncated reports whether the latest scan stopped at MaxResults.
func (ps *PointerScanner) Truncated() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.truncated
}

func (ps *PointerScanner) Busy() bool {
	return ps.gate.Busy()
}

// node is one address on the way to the target. Following its stored pointer
// and adding offset lands on next.addr, or on the target when next is nil.
type node struct {
	addr   process.ProcessMemoryAddress
	offset int32
	next   *node
}

func (n *node) onPath(addr process.ProcessMemoryAddress) bool {
	for p := n; p != nil; p = p.next {
		if p.addr == addr {
			return true
		}
	}
	return false
}

func (n *node) offsets() []int32 {
	var out []int32
	for p := n; p != nil; p = p.next {
		out = append(out, p.offset)
	}
	return out
}

// Start launches a pointer scan for target. opts override the scanner's
// settings for this scan only. The previous results are discarded.
func (ps *PointerScanner) Start(ctx context.Context, target process.ProcessMemoryAddress, opts ...Option) (*scan_task.Task, error) {
	settings := ps.settings.apply(opts)
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if !ps.gate.TryAcquire() {
		return nil, scan_task.ErrScanAlreadyRunning
	}

	ps.mu.Lock()
	ps.target = target
	ps.results = nil
	ps.truncated = false
	ps.mu.Unlock()

	return scan_task.Go(ctx, "pointer_scan", func(task *scan_task.Task) error {
		defer ps.gate.Release()
		return ps.run(task, target, settings)
	}), nil
}

func (ps *PointerScanner) run(task *scan_task.Task, target process.ProcessMemoryAddress, settings Settings) error {
	ctx := task.Context()
	task.SetLevels(0, settings.MaxDepth)

	task.SetPhase(scan_task.PhaseRegions)
	index, err := regions.Snapshot(ps.proc, regions.ExcludeSpecial())
	if err != nil {
		return err
	}

	modules, err := ps.proc.GetModules()
	if err != nil {
		if process.IsUnavailable(err) {
			return err
		}
		ps.log.Warn("module table unavailable, using absolute bases:", err)
		modules = nil
	}
	absolute := settings.AbsoluteBases || len(modules) == 0

	task.SetTotalBytes(index.TotalBytes())
	task.SetPhase(scan_task.PhaseIndexing)
	ps.log.Infoln("pointer scan for", target.ToString(), "depth", settings.MaxDepth, "offset", fmt.Sprintf("%#x", settings.MaxOffset), "over", index.Len(), "regions")

	ri, err := ps.buildReverseIndex(ctx, task, index, settings)
	if err != nil {
		return err
	}
	ps.log.Infoln("reverse index holds", ri.len(), "pointers,", ri.capped, "regions capped")

	task.SetPhase(scan_task.PhaseSearching)
	return ps.search(ctx, task, ri, modules, absolute, target, settings)
}

// search expands the frontier one level at a time, backwards from target.
// Nodes are emitted at every level; an address is expanded at most once per level.
func (ps *PointerScanner) search(ctx context.Context, task *scan_task.Task, ri *reverseIndex, modules []process.Module, absolute bool, target process.ProcessMemoryAddress, settings Settings) error {
	window := process.ProcessMemoryAddress(settings.MaxOffset)
	frontier := []*node{{addr: target}}
	emitted := 0

	for depth := 1; depth <= settings.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []*node
		var found []PointerChain
		expanded := make(map[process.ProcessMemoryAddress]bool)

		for i, n := range frontier {
			if i%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					slices.SortFunc(found, compareChains)
					ps.publish(found, false)
					return err
				}
			}

			lo := n.addr - window
			if lo > n.addr {
				lo = 0
			}
			hi := n.addr + window
			if hi < n.addr {
				hi = ^process.ProcessMemoryAddress(0)
			}

			for _, sp := range ri.within(lo, hi) {
				parent := n
				if depth == 1 {
					parent = nil
				}
				if parent != nil && parent.onPath(sp.addr) {
					continue
				}

				child := &node{addr: sp.addr, offset: int32(int64(n.addr) - int64(sp.value)), next: parent}
				chain, ok, err := ps.chainFor(child, modules, absolute, target, settings.PointerSize)
				if err != nil {
					slices.SortFunc(found, compareChains)
					ps.publish(found, false)
					ps.log.Warn("pointer scan aborted at level", depth, ":", err)
					return err
				}
				if ok {
					found = append(found, chain)
				}

				if depth < settings.MaxDepth && !expanded[sp.addr] && len(next) < settings.MaxNodesPerLevel {
					expanded[sp.addr] = true
					next = append(next, child)
				}
			}
		}

		slices.SortFunc(found, compareChains)
		if err := ctx.Err(); err != nil {
			ps.publish(found, false)
			return err
		}
		if room := settings.MaxResults - emitted; len(found) > room {
			found = found[:room]
			ps.publish(found, true)
			task.SetLevels(depth, settings.MaxDepth)
			ps.log.Infoln("pointer scan stopped at", settings.MaxResults, "results")
			return nil
		}
		ps.publish(found, false)
		emitted += len(found)

		if len(next) == settings.MaxNodesPerLevel {
			ps.log.Debugln("level", depth, "frontier capped at", settings.MaxNodesPerLevel, "nodes")
		}

		task.SetLevels(depth, settings.MaxDepth)
		frontier = next
	}

	ps.log.Infoln("pointer scan complete,", emitted, "chains")
	return nil
}

// chainFor turns a node into a chain if its root is an acceptable base and the
// chain still resolves to target right now. A chain that no longer reads is
// dropped; an error is returned only when the target itself is gone.
func (ps *PointerScanner) chainFor(n *node, modules []process.Module, absolute bool, target process.ProcessMemoryAddress, pointerSize int) (PointerChain, bool, error) {
	chain := PointerChain{Base: n.addr, Offsets: n.offsets()}

	if mod, ok := process.FindModule(n.addr, modules); ok {
		chain.Module = mod.Name
		chain.ModuleOffset = uint64(n.addr - mod.Base)
	} else if !absolute {
		return PointerChain{}, false, nil
	}

	resolved, err := chain.Resolve(ps.proc, pointerSize)
	if err != nil {
		if process.IsUnavailable(err) {
			return PointerChain{}, false, fmt.Errorf("verifying %s: %w", chain, err)
		}
		return PointerChain{}, false, nil
	}
	if resolved != target {
		return PointerChain{}, false, nil
	}
	chain.ResolvedAddress = resolved
	return chain, true, nil
}

// Count is the number of chains of the latest scan.
func (ps *PointerScanner) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.results)
}

// Page returns up to limit chains starting at offset. A limit of zero means no limit.
func (ps *PointerScanner) Page(offset, limit int) []PointerChain {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if offset < 0 || offset >= len(ps.results) {
		return nil
	}
	end := len(ps.results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(ps.results[offset:end])
}

func (ps *PointerScanner) publish(chains []PointerChain, truncated bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.results = append(ps.results, chains...)
	ps.truncated = ps.truncated || truncated
}
