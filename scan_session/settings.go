package scan_session

import (
	"memscan/process"
	"memscan/regions"
	"memscan/value_codec"
)

const (
	KiB = 1024
	MiB = 1024 * KiB

	DefaultChunkSize = 2048 * KiB
	MinChunkSize     = 1 * KiB
	MaxChunkSize     = 16 * MiB
)

// Settings are the knobs of a session. Alignment 0 selects the natural
// alignment of the value type (1 for strings and byte arrays).
type Settings struct {
	Alignment     int
	ChunkSize     int
	FloatEpsilon  float64
	Start         process.ProcessMemoryAddress
	End           process.ProcessMemoryAddress
	WritableOnly  bool
	ExcludeShared bool
	Workers       int
}

// Option is a function that configures a Session
type Option func(*Settings)

func WithAlignment(align int) Option {
	return func(s *Settings) {
		s.Alignment = align
	}
}

// WithChunkSize sets the read unit in bytes, clamped to [MinChunkSize, MaxChunkSize].
func WithChunkSize(size int) Option {
	return func(s *Settings) {
		s.ChunkSize = clampChunk(size)
	}
}

func WithFloatEpsilon(eps float64) Option {
	return func(s *Settings) {
		s.FloatEpsilon = eps
	}
}

// WithAddressRange limits scans to [start, end). An end of zero means no upper bound.
func WithAddressRange(start, end process.ProcessMemoryAddress) Option {
	return func(s *Settings) {
		s.Start = start
		s.End = end
	}
}

func WithWritableOnly(on bool) Option {
	return func(s *Settings) {
		s.WritableOnly = on
	}
}

func WithExcludeShared(on bool) Option {
	return func(s *Settings) {
		s.ExcludeShared = on
	}
}

func DefaultSettings() Settings {
	return Settings{
		ChunkSize:    DefaultChunkSize,
		FloatEpsilon: value_codec.DefaultEpsilon,
		Workers:      1,
	}
}

func clampChunk(size int) int {
	switch {
	case size < MinChunkSize:
		return MinChunkSize
	case size > MaxChunkSize:
		return MaxChunkSize
	}
	return size
}

func (s Settings) predicates() []regions.Predicate {
	preds := []regions.Predicate{regions.ExcludeSpecial()}
	if s.WritableOnly {
		preds = append(preds, regions.Writable())
	}
	if s.ExcludeShared {
		preds = append(preds, regions.ExcludeShared())
	}
	if s.Start != 0 || s.End != 0 {
		preds = append(preds, regions.InRange(s.Start, s.End))
	}
	return preds
}

// clip bounds a region to the configured address range.
func (s Settings) clip(r regions.MemoryRegion) (lo, hi process.ProcessMemoryAddress) {
	lo, hi = r.Base, r.End()
	if lo < s.Start {
		lo = s.Start
	}
	if s.End != 0 && hi > s.End {
		hi = s.End
	}
	return lo, hi
}

// WithWorkers sets how many regions an initial scan reads concurrently,
// capped at the number of CPUs. The default of one keeps reads in address order.
func WithWorkers(n int) Option {
	return func(s *Settings) {
		s.Workers = n
	}
}
