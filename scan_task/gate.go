package scan_task

import "sync/atomic"

// Gate admits at most one scan at a time. A second caller is rejected, not queued.
type Gate struct {
	busy atomic.Bool
}

func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Gate) Release() {
	g.busy.Store(false)
}

func (g *Gate) Busy() bool {
	return g.busy.Load()
}
