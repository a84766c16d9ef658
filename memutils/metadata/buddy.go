package metadata

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slog"
)

var chunkAllocator = sync.Pool{
	New: func() any {
		return &buddyChunk{}
	},
}

type buddyChunk struct {
	offset    int
	order     int
	free      bool
	requested int

	prevFree *buddyChunk
	nextFree *buddyChunk
}

func (c *buddyChunk) size() int {
	return 1 << c.order
}

// BuddyBlockMetadata is a BlockMetadata implementation of a binary buddy allocator. The managed
// range must be a power of two in size. Allocations are rounded up to the next power of two and
// carved out of larger chunks by repeatedly halving them. When a chunk is freed, it is merged
// with its buddy (the other half of the chunk it was split from) for as long as that buddy is
// also free.
//
// Chunks are addressed by their offset from the start of the range, so a chunk's buddy is always
// at offset ^ size.
//
// BuddyBlockMetadata is not safe for concurrent use.
type BuddyBlockMetadata struct {
	BlockMetadataBase

	maxOrder       int
	allocCount     int
	freeChunkCount int
	sumFreeSize    int
	requestedSize  int
	counters       memutils.RequestCounters

	freeList []*buddyChunk
	chunkKey *swiss.Map[int, *buddyChunk]
}

var _ BlockMetadata = &BuddyBlockMetadata{}

// NewBuddyBlockMetadata creates a BuddyBlockMetadata managing the range [0, size) as a single
// free chunk. It returns an error wrapping memutils.ErrInvalidConfiguration if size is not a
// positive power of two.
func NewBuddyBlockMetadata(size int) (*BuddyBlockMetadata, error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidConfiguration, "buddy allocator size must be positive but was %d", size)
	}

	err := memutils.CheckPow2(size, "buddy allocator size")
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrInvalidConfiguration)
	}

	m := &BuddyBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(size),
		maxOrder:          memutils.Log2Floor(size),
	}
	m.init()

	return m, nil
}

func (m *BuddyBlockMetadata) init() {
	m.freeList = make([]*buddyChunk, m.maxOrder+1)
	m.chunkKey = swiss.NewMap[int, *buddyChunk](uint32(m.maxOrder + 1))

	root := m.allocateChunk(0, m.maxOrder)
	m.insertFreeChunk(root)
}

// MaxOrder is the order of the chunk that covers the entire range
func (m *BuddyBlockMetadata) MaxOrder() int {
	return m.maxOrder
}

func (m *BuddyBlockMetadata) allocateChunk(offset, order int) *buddyChunk {
	c := chunkAllocator.Get().(*buddyChunk)
	c.offset = offset
	c.order = order
	c.free = false
	c.requested = 0
	c.prevFree = nil
	c.nextFree = nil
	m.chunkKey.Put(offset, c)
	return c
}

func (m *BuddyBlockMetadata) releaseChunk(c *buddyChunk) {
	if current, ok := m.chunkKey.Get(c.offset); ok && current == c {
		m.chunkKey.Delete(c.offset)
	}
	c.prevFree = nil
	c.nextFree = nil
	chunkAllocator.Put(c)
}

// Allocate rounds size up to the next power of two and returns a handle to a chunk of that size.
// If no chunk of that order (or larger) is free, it returns NoBuddyHandle and an error wrapping
// memutils.ErrAllocationFailure.
func (m *BuddyBlockMetadata) Allocate(size int) (BuddyHandle, error) {
	if size <= 0 {
		return NoBuddyHandle, errors.Wrapf(memutils.ErrInvalidAllocationSize, "requested %d bytes", size)
	}

	memutils.DebugValidate(m)

	order := memutils.Log2Ceil(size)
	available := order
	for available <= m.maxOrder && m.freeList[available] == nil {
		available++
	}

	if available > m.maxOrder {
		m.counters.Record(false)
		return NoBuddyHandle, errors.Wrapf(memutils.ErrAllocationFailure, "out of memory: no free chunk of order %d or higher for %d bytes", order, size)
	}

	for ; available > order; available-- {
		m.split(available)
	}

	chunk := m.freeList[order]
	m.removeFreeChunk(chunk)
	chunk.requested = size

	m.allocCount++
	m.requestedSize += size
	m.counters.Record(true)

	return BuddyHandle{Offset: chunk.offset, Order: chunk.order}, nil
}

// split halves the chunk at the head of the free list for order, placing both halves in the
// free list for order-1
func (m *BuddyBlockMetadata) split(order int) {
	chunk := m.freeList[order]
	if chunk == nil {
		panic("attempted to split an empty free list")
	}
	m.removeFreeChunk(chunk)

	lowerOrder := order - 1
	chunk.order = lowerOrder
	buddy := m.allocateChunk(chunk.offset+(1<<lowerOrder), lowerOrder)

	// Insert the upper half first so that the lower half ends up at the head of the list and is
	// the one handed out by further splits
	m.insertFreeChunk(buddy)
	m.insertFreeChunk(chunk)
}

// Free releases the chunk identified by handle and coalesces it with its buddies. It returns an
// error wrapping memutils.ErrInvalidFreeTarget, without changing anything, if handle does not
// identify a live allocation.
func (m *BuddyBlockMetadata) Free(handle BuddyHandle) error {
	chunk, ok := m.chunkKey.Get(handle.Offset)
	if !ok {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "no chunk starts at offset %d", handle.Offset)
	}
	if chunk.order != handle.Order {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "chunk at offset %d has order %d, but the handle has order %d", handle.Offset, chunk.order, handle.Order)
	}

	return m.freeChunk(chunk)
}

// FreeOffset releases whichever allocated chunk begins at offset, regardless of its order
func (m *BuddyBlockMetadata) FreeOffset(offset int) error {
	chunk, ok := m.chunkKey.Get(offset)
	if !ok {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "no chunk starts at offset %d", offset)
	}

	return m.freeChunk(chunk)
}

func (m *BuddyBlockMetadata) freeChunk(chunk *buddyChunk) error {
	if chunk.free {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "chunk at offset %d is already free", chunk.offset)
	}

	m.allocCount--
	m.requestedSize -= chunk.requested
	chunk.requested = 0

	for chunk.order < m.maxOrder {
		buddy, ok := m.chunkKey.Get(chunk.offset ^ chunk.size())
		if !ok || !buddy.free || buddy.order != chunk.order {
			break
		}

		m.removeFreeChunk(buddy)
		if buddy.offset < chunk.offset {
			chunk, buddy = buddy, chunk
		}
		m.releaseChunk(buddy)
		chunk.order++
	}

	m.insertFreeChunk(chunk)
	return nil
}

func (m *BuddyBlockMetadata) insertFreeChunk(chunk *buddyChunk) {
	if chunk.free {
		panic("chunk is already free")
	}
	memutils.DebugCheckPow2(chunk.size(), "free chunk size")

	chunk.free = true
	chunk.prevFree = nil
	chunk.nextFree = m.freeList[chunk.order]
	if chunk.nextFree != nil {
		chunk.nextFree.prevFree = chunk
	}
	m.freeList[chunk.order] = chunk

	m.freeChunkCount++
	m.sumFreeSize += chunk.size()
}

func (m *BuddyBlockMetadata) removeFreeChunk(chunk *buddyChunk) {
	if !chunk.free {
		panic("provided chunk is not free")
	}

	if chunk.nextFree != nil {
		chunk.nextFree.prevFree = chunk.prevFree
	}
	if chunk.prevFree != nil {
		chunk.prevFree.nextFree = chunk.nextFree
	} else {
		if m.freeList[chunk.order] != chunk {
			panic("chunk was not in the free list at the expected location")
		}
		m.freeList[chunk.order] = chunk.nextFree
	}

	chunk.free = false
	chunk.prevFree = nil
	chunk.nextFree = nil

	m.freeChunkCount--
	m.sumFreeSize -= chunk.size()
}

// Chunks returns an offset-ordered snapshot of every chunk, free and allocated
func (m *BuddyBlockMetadata) Chunks() []ChunkInfo {
	chunks := make([]ChunkInfo, 0, m.allocCount+m.freeChunkCount)
	_ = m.walkChunks(func(c *buddyChunk) error {
		chunks = append(chunks, ChunkInfo{
			Offset:    c.offset,
			Order:     c.order,
			Size:      c.size(),
			Free:      c.free,
			Requested: c.requested,
		})
		return nil
	})

	return chunks
}

// FreeListLengths returns the number of free chunks of each order, indexed by order
func (m *BuddyBlockMetadata) FreeListLengths() []int {
	lengths := make([]int, m.maxOrder+1)
	for order, head := range m.freeList {
		for chunk := head; chunk != nil; chunk = chunk.nextFree {
			lengths[order]++
		}
	}

	return lengths
}

// walkChunks visits every live chunk in offset order. Live chunks always tile the range, so the
// next chunk begins where the current one ends.
func (m *BuddyBlockMetadata) walkChunks(visit func(c *buddyChunk) error) error {
	for offset := 0; offset < m.size; {
		chunk, ok := m.chunkKey.Get(offset)
		if !ok {
			return errors.Errorf("no chunk starts at offset %d, but the previous chunk ended there", offset)
		}

		err := visit(chunk)
		if err != nil {
			return err
		}
		offset += chunk.size()
	}

	return nil
}

// Stats calculates free space, fragmentation and request outcome rates
func (m *BuddyBlockMetadata) Stats() memutils.BuddyStats {
	largestFree := 0
	for order := m.maxOrder; order >= 0; order-- {
		if m.freeList[order] != nil {
			largestFree = 1 << order
			break
		}
	}

	allocated := m.size - m.sumFreeSize

	return memutils.BuddyStats{
		RequestCounters:       m.counters,
		TotalBytes:            m.size,
		FreeBytes:             m.sumFreeSize,
		AllocatedBytes:        allocated,
		RequestedBytes:        m.requestedSize,
		InternalFragmentation: allocated - m.requestedSize,
		LargestFreeChunk:      largestFree,
		ExternalFragmentation: memutils.ExternalFragmentation(largestFree, m.sumFreeSize),
		Utilization:           memutils.Ratio(allocated, m.size),
		SuccessRate:           m.counters.SuccessRate(),
		FailureRate:           m.counters.FailureRate(),
	}
}

// Counters returns the request outcome counters accumulated since creation or the last Clear
func (m *BuddyBlockMetadata) Counters() memutils.RequestCounters {
	return m.counters
}

func (m *BuddyBlockMetadata) Validate() error {
	if len(m.freeList) != m.maxOrder+1 {
		return errors.Errorf("expected %d free lists but found %d", m.maxOrder+1, len(m.freeList))
	}

	// Check integrity of free lists
	var freeListCount int
	for order, chunk := range m.freeList {
		if chunk != nil && chunk.prevFree != nil {
			return errors.Errorf("chunk at offset %d is the head of a free list but has a previous chunk", chunk.offset)
		}

		for ; chunk != nil; chunk = chunk.nextFree {
			if !chunk.free {
				return errors.Errorf("chunk at offset %d is in the free list but is not free", chunk.offset)
			}
			if chunk.order != order {
				return errors.Errorf("chunk at offset %d has order %d but is in the free list for order %d", chunk.offset, chunk.order, order)
			}
			if chunk.nextFree != nil && chunk.nextFree.prevFree != chunk {
				return errors.Errorf("chunk at offset %d lists the chunk at offset %d as its next chunk, but the reverse reference is broken", chunk.offset, chunk.nextFree.offset)
			}
			indexed, ok := m.chunkKey.Get(chunk.offset)
			if !ok || indexed != chunk {
				return errors.Errorf("free chunk at offset %d is missing from the offset index", chunk.offset)
			}

			freeListCount++
		}
	}

	var allocCount, freeCount, freeSize, chunkCount, requested int
	err := m.walkChunks(func(c *buddyChunk) error {
		if c.order < 0 || c.order > m.maxOrder {
			return errors.Errorf("chunk at offset %d has invalid order %d", c.offset, c.order)
		}
		if c.offset&(c.size()-1) != 0 {
			return errors.Errorf("chunk at offset %d is not aligned to its size %d", c.offset, c.size())
		}

		chunkCount++
		if c.free {
			freeCount++
			freeSize += c.size()

			if c.order < m.maxOrder {
				buddy, ok := m.chunkKey.Get(c.offset ^ c.size())
				if ok && buddy.free && buddy.order == c.order {
					return errors.Errorf("free buddies at offsets %d and %d of order %d were not merged", c.offset, buddy.offset, c.order)
				}
			}
		} else {
			allocCount++
			requested += c.requested
			if c.requested <= 0 || c.requested > c.size() {
				return errors.Errorf("chunk at offset %d has size %d but records a request of %d bytes", c.offset, c.size(), c.requested)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if chunkCount != m.chunkKey.Count() {
		return errors.Errorf("the offset index holds %d chunks, but only %d tile the range", m.chunkKey.Count(), chunkCount)
	}

	if freeListCount != freeCount {
		return errors.Errorf("the number of free chunks in the range and the number of chunks in the free lists do not match! free lists: %d, range: %d", freeListCount, freeCount)
	}

	if freeCount != m.freeChunkCount {
		return errors.Errorf("the free chunk count of the metadata is %d, but there were %d free chunks", m.freeChunkCount, freeCount)
	}

	if freeSize != m.sumFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free chunks added up to %d", m.sumFreeSize, freeSize)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken chunks added up to %d", m.allocCount, allocCount)
	}

	if requested != m.requestedSize {
		return errors.Errorf("the requested size of the metadata is %d, but the taken chunks added up to %d", m.requestedSize, requested)
	}

	return nil
}

func (m *BuddyBlockMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *BuddyBlockMetadata) FreeRegionsCount() int {
	return m.freeChunkCount
}

func (m *BuddyBlockMetadata) SumFreeSize() int {
	return m.sumFreeSize
}

func (m *BuddyBlockMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

func (m *BuddyBlockMetadata) VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error {
	return m.walkChunks(func(c *buddyChunk) error {
		return handleBlock(c.offset, c.size(), c.free)
	})
}

func (m *BuddyBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	_ = m.walkChunks(func(c *buddyChunk) error {
		if c.free {
			stats.AddUnusedRange(c.size())
		} else {
			stats.AddAllocation(c.size())
		}
		return nil
	})
}

func (m *BuddyBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.SumFreeSize()
}

func (m *BuddyBlockMetadata) Clear() {
	m.chunkKey.Iter(func(offset int, chunk *buddyChunk) bool {
		chunk.prevFree = nil
		chunk.nextFree = nil
		chunkAllocator.Put(chunk)
		return false
	})

	m.allocCount = 0
	m.freeChunkCount = 0
	m.sumFreeSize = 0
	m.requestedSize = 0
	m.counters = memutils.RequestCounters{}
	m.init()
}

func (m *BuddyBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.writeBlockJsonData(&json, m.SumFreeSize(), m.allocCount, m.freeChunkCount)

	stats := m.Stats()
	json.Name("MaxOrder").Int(m.maxOrder)
	json.Name("InternalFragmentation").Int(stats.InternalFragmentation)
	json.Name("ExternalFragmentation").Float64(stats.ExternalFragmentation)
	json.Name("Requests").Int(stats.Requests)
	json.Name("SuccessRate").Float64(stats.SuccessRate)

	freeLists := json.Name("FreeLists").Array()
	for _, length := range m.FreeListLengths() {
		freeLists.Int(length)
	}
	freeLists.End()

	chunks := json.Name("Chunks").Array()
	_ = m.walkChunks(func(c *buddyChunk) error {
		obj := chunks.Object()
		obj.Name("Offset").Int(c.offset)
		obj.Name("Order").Int(c.order)
		obj.Name("Size").Int(c.size())
		obj.Name("Free").Bool(c.free)
		if !c.free {
			obj.Name("Requested").Int(c.requested)
		}
		obj.End()
		return nil
	})
	chunks.End()
}

func (m *BuddyBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	_ = m.walkChunks(func(c *buddyChunk) error {
		if !c.free {
			logFunc(logger, c.offset, c.size())
		}
		return nil
	})
}
