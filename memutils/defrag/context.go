package defrag

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

//go:generate mockgen -source context.go -destination ./mocks/metadata.go -package mock_defrag

// RelocatableMetadata is a block of memory whose allocations can be relocated. It is satisfied by
// metadata.RegionBlockMetadata.
type RelocatableMetadata interface {
	Regions() []metadata.RegionInfo
	Move(srcOffset, dstOffset int) error
	Free(offset int) error
}

var _ RelocatableMetadata = &metadata.RegionBlockMetadata{}

// MetadataDefragContext is the core of the defragmentation logic for memutils. One of these must be created
// and initialized for each defragmentation run, which will then consist of multiple passes
type MetadataDefragContext struct {
	// Algorithm is the defragmentation algorithm that should be used
	Algorithm Algorithm
	// Handler is called for each relocation as part of CompletePass. If nil, every move is performed.
	Handler DefragmentOperationHandler
	// Metadata is the memory object this context exists to defragment
	Metadata RelocatableMetadata

	moves []DefragmentationMove
}

// Init sets up this MetadataDefragContext to be used in a fresh defragmentation run. MetadataDefragContext can
// be reused for multiple runs, as long as this method is called prior to beginning each run, including the first
func (c *MetadataDefragContext) Init() error {
	if c.Metadata == nil {
		return errors.Wrap(memutils.ErrInvalidConfiguration, "attempted to init defragmentation context without metadata")
	}

	if c.Algorithm == 0 {
		c.Algorithm = AlgorithmFull
	}

	if c.Algorithm != AlgorithmFast && c.Algorithm != AlgorithmFull {
		return errors.Wrapf(memutils.ErrInvalidConfiguration, "unknown defragmentation algorithm %d", uint32(c.Algorithm))
	}

	c.moves = c.moves[:0]
	return nil
}

// Moves returns the list of relocation operations most recently collected with CollectMoves
func (c *MetadataDefragContext) Moves() []DefragmentationMove {
	return c.moves
}

// CollectMoves retrieves a single pass's worth of DefragmentationMove operations to be completed.
// Those operations can be retrieved from MetadataDefragContext.Moves. Moves are collected in
// address order and each one is valid once the moves before it have been performed. It returns
// true if the pass budget ran out before every allocation was considered.
func (c *MetadataDefragContext) CollectMoves(pass *PassContext) bool {
	pass.begin()
	c.moves = c.moves[:0]

	l := newLayout(c.Metadata.Regions())
	for offset := 0; offset < l.size(); {
		current := l.spans[l.index(offset)]
		offset = current.end()

		if current.free {
			continue
		}

		dst := c.findDestination(l, current)
		if dst == metadata.NoOffset {
			continue
		}

		counter := pass.checkCounters(current.size)
		switch counter {
		case defragCounterIgnore:
			continue
		case defragCounterEnd:
			return true
		case defragCounterPass:
			break
		default:
			panic(fmt.Sprintf("unexpected defrag counter status: %s", counter.String()))
		}

		l.move(current.start, dst)
		c.moves = append(c.moves, DefragmentationMove{
			Size:      current.size,
			SrcOffset: current.start,
			DstOffset: dst,
		})

		// Have we crossed our threshold for this pass?
		if pass.incrementCounters(current.size) {
			return true
		}
	}

	return false
}

func (c *MetadataDefragContext) findDestination(l *layout, current span) int {
	dst := l.lowestFit(current.size, current.start)
	if dst != metadata.NoOffset || c.Algorithm != AlgorithmFull {
		return dst
	}

	// If no room found then slide down into the free space directly below
	i := l.index(current.start)
	if i > 0 && l.spans[i-1].free {
		return l.spans[i-1].start
	}

	return metadata.NoOffset
}

// CompletePass should be called after CollectMoves. It calls MetadataDefragContext.Handler for
// each collected move and then performs, skips or frees the allocation accordingly, updating the
// pass statistics to match. Once an allocation has been skipped, later moves in the same pass that
// depended on the space it would have vacated are skipped as well.
func (c *MetadataDefragContext) CompletePass(pass *PassContext) error {
	defer func() {
		c.moves = c.moves[:0]
	}()

	for _, move := range c.moves {
		operation := DefragmentationMoveCopy
		if c.Handler != nil {
			operation = c.Handler(move)
		}

		switch operation {
		case DefragmentationMoveCopy:
			err := c.Metadata.Move(move.SrcOffset, move.DstOffset)
			if errors.Is(err, memutils.ErrInvalidMove) {
				pass.revertMove(move.Size)
			} else if err != nil {
				return errors.Wrapf(err, "could not move allocation at offset %d to offset %d", move.SrcOffset, move.DstOffset)
			}

		case DefragmentationMoveIgnore:
			pass.revertMove(move.Size)

		case DefragmentationMoveDestroy:
			err := c.Metadata.Free(move.SrcOffset)
			if err != nil {
				return errors.Wrapf(err, "could not free allocation at offset %d", move.SrcOffset)
			}
			pass.revertMove(move.Size)
			pass.Stats.BytesFreed += move.Size
			pass.Stats.AllocationsFreed++

		default:
			return errors.Newf("unknown move operation %d", uint32(operation))
		}
	}

	if pass.Stats.AllocationsMoved > 0 || pass.Stats.AllocationsFreed > 0 {
		pass.Stats.Passes = 1
	}

	return nil
}

// Run performs passes until a pass relocates and frees nothing, and returns the totals across all
// passes. pass supplies the per-pass budget.
func (c *MetadataDefragContext) Run(pass *PassContext) (DefragmentationStats, error) {
	var total DefragmentationStats

	err := c.Init()
	if err != nil {
		return total, err
	}

	for {
		c.CollectMoves(pass)
		if len(c.moves) == 0 {
			return total, nil
		}

		err = c.CompletePass(pass)
		total.Add(pass.Stats)
		if err != nil {
			return total, err
		}

		if pass.Stats.Passes == 0 {
			return total, nil
		}
	}
}
