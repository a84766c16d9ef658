package defrag

import (
	"fmt"
	"math"
)

// PassContext is an object used to track data for the current defragmentation
// pass across multiple relocations
type PassContext struct {
	// MaxPassBytes is the maximum number of bytes to relocate in each pass. There is no guarantee that
	// this many bytes will actually be relocated in any given pass, based on how easy it is to find additional
	// relocations to fit within the budget. Zero or less means no limit.
	MaxPassBytes int
	// MaxPassAllocations is the maximum number of relocations to perform in each pass. Zero or less
	// means no limit.
	MaxPassAllocations int
	// Stats contains statistics for the current pass, such as bytes moved,
	// allocations moved, etc.
	Stats         DefragmentationStats
	ignoredAllocs int
}

const defragMaxAllocsToIgnore = 16

func (p *PassContext) begin() {
	if p.MaxPassBytes <= 0 {
		p.MaxPassBytes = math.MaxInt
	}
	if p.MaxPassAllocations <= 0 {
		p.MaxPassAllocations = math.MaxInt
	}

	p.Stats = DefragmentationStats{}
	p.ignoredAllocs = 0
}

func (p *PassContext) checkCounters(bytes int) defragCounterStatus {
	// Ignore allocation if it will exceed max size for copy
	if p.Stats.BytesMoved+bytes > p.MaxPassBytes {
		p.ignoredAllocs++
		if p.ignoredAllocs < defragMaxAllocsToIgnore {
			return defragCounterIgnore
		} else {
			return defragCounterEnd
		}
	} else {
		p.ignoredAllocs = 0
	}

	return defragCounterPass
}

func (p *PassContext) incrementCounters(bytes int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++

	// Early return when max found
	if p.Stats.AllocationsMoved >= p.MaxPassAllocations || p.Stats.BytesMoved >= p.MaxPassBytes {
		if p.Stats.AllocationsMoved > p.MaxPassAllocations || p.Stats.BytesMoved > p.MaxPassBytes {
			panic(fmt.Sprintf("somehow passed maximum pass thresholds: bytes %d, allocs %d", p.Stats.BytesMoved, p.Stats.AllocationsMoved))
		}

		return true
	}

	return false
}

func (p *PassContext) revertMove(bytes int) {
	p.Stats.BytesMoved -= bytes
	p.Stats.AllocationsMoved--
}
