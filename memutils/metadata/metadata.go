package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slog"
)

// BlockMetadata represents a single simulated address range. It tracks which parts of the range
// are allocated and which are free, and exposes the reporting methods shared by every allocator
// in this package. Allocation and free methods differ between implementations and are not part
// of the interface.
type BlockMetadata interface {
	// Size retrieves the size in bytes that the block was created with
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks walk every record
	// and may be expensive. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// AllocationCount returns the number of allocations currently live in the implementation. This number
	// should generally be the number of successful allocations minus the number of successful frees.
	AllocationCount() int
	// FreeRegionsCount returns the number of unique regions of free memory in the block.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes of memory in the block.
	SumFreeSize() int

	// IsEmpty will return true if this block has no live allocations
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each allocation and free region in
	// the block, in offset order. Iteration stops at the first error returned by the callback.
	VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error

	// AddDetailedStatistics sums this block's allocation statistics into the statistics currently present
	// in the provided memutils.DetailedStatistics object.
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's allocation statistics into the statistics currently present in the
	// provided memutils.Statistics object.
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations and resets request counters
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json jwriter.ObjectState)

	// DebugLogAllAllocations calls logFunc once for every live allocation in the block
	DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int))
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in this package.
type BlockMetadataBase struct {
	size int
}

// NewBlockMetadata creates a new BlockMetadataBase managing size bytes
func NewBlockMetadata(size int) BlockMetadataBase {
	return BlockMetadataBase{
		size: size,
	}
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

// writeBlockJsonData populates a json object with the fields every implementation reports
func (m *BlockMetadataBase) writeBlockJsonData(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
