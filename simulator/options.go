package simulator

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slog"
)

const (
	// DefaultMemorySize is the size of the region allocator's address range when none is provided
	DefaultMemorySize int = 256
	// DefaultBuddySize is the size of the buddy allocator's address range when none is provided
	DefaultBuddySize int = 256
)

// CacheOptions describes the geometry of a single cache level
type CacheOptions struct {
	Size          int
	BlockSize     int
	Associativity int
}

// Options contains the settings used to build a Simulator
type Options struct {
	// MemorySize is the number of bytes managed by the region (first/best/worst fit) allocator
	MemorySize int
	// BuddySize is the number of bytes managed by the buddy allocator. It must be a power of two.
	BuddySize int

	// L1 and L2 describe the two levels of the cache simulator
	L1 CacheOptions
	L2 CacheOptions

	// CompactPassBytes and CompactPassAllocations limit how much the compact command relocates in a
	// single pass. Zero means no limit.
	CompactPassBytes       int
	CompactPassAllocations int

	// JSON renders dump and stats commands as JSON objects instead of text
	JSON bool

	// Logger receives debug logging for every command. If nil, logging is discarded.
	Logger *slog.Logger
}

// DefaultOptions returns the layout used by the interactive simulator: 256 bytes of region memory,
// 256 bytes of buddy memory, a 4-byte direct-mapped L1 and a 16-byte direct-mapped L2.
func DefaultOptions() Options {
	return Options{
		MemorySize: DefaultMemorySize,
		BuddySize:  DefaultBuddySize,
		L1: CacheOptions{
			Size:          4,
			BlockSize:     4,
			Associativity: 1,
		},
		L2: CacheOptions{
			Size:          16,
			BlockSize:     4,
			Associativity: 1,
		},
	}
}

func (o Options) validate() error {
	if o.MemorySize <= 0 {
		return errors.Wrapf(memutils.ErrInvalidConfiguration, "memory size must be positive but was %d", o.MemorySize)
	}

	if o.CompactPassBytes < 0 || o.CompactPassAllocations < 0 {
		return errors.Wrapf(memutils.ErrInvalidConfiguration, "compaction pass limits must not be negative but were %d bytes and %d allocations", o.CompactPassBytes, o.CompactPassAllocations)
	}

	err := memutils.CheckPow2(o.BuddySize, "buddy size")
	if err != nil {
		return errors.Mark(err, memutils.ErrInvalidConfiguration)
	}

	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
