// Package search finds pointer paths in a target: backward from an address to
// static bases (the pointer scan), and forward from a structure to a value.
package search

import (
	"errors"
	"fmt"
)

var ErrInvalidSettings = errors.New("invalid search settings")

// Settings holds configuration for pointer searches
type Settings struct {
	MaxDepth               int
	MaxOffset              uint32
	PointerSize            int
	MaxCandidatesPerRegion int
	MaxNodesPerLevel       int
	MaxResults             int
	ChunkSize              int
	AbsoluteBases          bool
}

// Option is a function that configures a search
type Option func(*Settings)

func DefaultSettings() Settings {
	return Settings{
		MaxDepth:               3,
		MaxOffset:              0x1000,
		PointerSize:            8,
		MaxCandidatesPerRegion: 4 << 20,
		MaxNodesPerLevel:       1 << 20,
		MaxResults:             250_000,
		ChunkSize:              2 << 20,
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Settings) {
		s.MaxDepth = depth
	}
}

// WithMaxOffset bounds every offset of a chain to [-offset, +offset].
func WithMaxOffset(offset uint32) Option {
	return func(s *Settings) {
		s.MaxOffset = offset
	}
}

// WithPointerSize selects 4 or 8 byte pointers.
func WithPointerSize(size int) Option {
	return func(s *Settings) {
		s.PointerSize = size
	}
}

// WithMaxCandidatesPerRegion caps how many stored pointers one region may
// contribute to the reverse index. Regions past the cap are truncated, not dropped.
func WithMaxCandidatesPerRegion(n int) Option {
	return func(s *Settings) {
		s.MaxCandidatesPerRegion = n
	}
}

func WithMaxNodesPerLevel(n int) Option {
	return func(s *Settings) {
		s.MaxNodesPerLevel = n
	}
}

func WithMaxResults(n int) Option {
	return func(s *Settings) {
		s.MaxResults = n
	}
}

func WithChunkSize(size int) Option {
	return func(s *Settings) {
		s.ChunkSize = size
	}
}

// WithAbsoluteBases reports chains from any committed address instead of only module images.
func WithAbsoluteBases(on bool) Option {
	return func(s *Settings) {
		s.AbsoluteBases = on
	}
}

func (s Settings) apply(opts []Option) Settings {
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Settings) validate() error {
	switch {
	case s.MaxDepth < 1:
		return fmt.Errorf("%w: max depth %d", ErrInvalidSettings, s.MaxDepth)
	case s.PointerSize != 4 && s.PointerSize != 8:
		return fmt.Errorf("%w: pointer size %d", ErrInvalidSettings, s.PointerSize)
	case s.MaxOffset > 1<<30:
		return fmt.Errorf("%w: max offset %#x", ErrInvalidSettings, s.MaxOffset)
	case s.ChunkSize < s.PointerSize:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidSettings, s.ChunkSize)
	}
	return nil
}
