package metadata

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/memutils"
	"golang.org/x/exp/slog"
)

var regionAllocator = sync.Pool{
	New: func() any {
		return &region{}
	},
}

type region struct {
	start int
	size  int
	free  bool

	prev *region
	next *region
}

// RegionBlockMetadata is a BlockMetadata implementation that manages its address range as an ordered,
// gapless list of variable-sized regions. Allocations are placed with a FitStrategy and split the
// chosen free region into an allocated prefix and a free remainder. Frees coalesce with free
// neighbors, so two adjacent regions are never both free.
//
// RegionBlockMetadata is not safe for concurrent use.
type RegionBlockMetadata struct {
	BlockMetadataBase

	allocCount      int
	blocksFreeCount int
	blocksFreeSize  int
	counters        memutils.RequestCounters

	head      *region
	regionKey *swiss.Map[int, *region]
}

var _ BlockMetadata = &RegionBlockMetadata{}

// NewRegionBlockMetadata creates a RegionBlockMetadata managing the range [0, size) as a single
// free region. It returns an error wrapping memutils.ErrInvalidConfiguration if size is not positive.
func NewRegionBlockMetadata(size int) (*RegionBlockMetadata, error) {
	if size <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidConfiguration, "region allocator size must be positive but was %d", size)
	}

	m := &RegionBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(size),
	}
	m.init()

	return m, nil
}

func (m *RegionBlockMetadata) init() {
	m.regionKey = swiss.NewMap[int, *region](42)
	m.head = m.allocateRegion(0, m.size)
	m.head.free = true
	m.blocksFreeCount = 1
	m.blocksFreeSize = m.size
}

func (m *RegionBlockMetadata) allocateRegion(start, size int) *region {
	r := regionAllocator.Get().(*region)
	r.start = start
	r.size = size
	r.free = false
	r.prev = nil
	r.next = nil
	m.regionKey.Put(start, r)
	return r
}

func (m *RegionBlockMetadata) freeRegion(r *region) {
	if current, ok := m.regionKey.Get(r.start); ok && current == r {
		m.regionKey.Delete(r.start)
	}
	r.prev = nil
	r.next = nil
	regionAllocator.Put(r)
}

// Allocate places size bytes according to strategy and returns the offset of the new allocation.
// If no free region is large enough, it returns NoOffset and an error wrapping
// memutils.ErrAllocationFailure; the region list is left untouched, but the request is counted as
// a failure in Stats.
func (m *RegionBlockMetadata) Allocate(size int, strategy FitStrategy) (int, error) {
	if size <= 0 {
		return NoOffset, errors.Wrapf(memutils.ErrInvalidAllocationSize, "requested %d bytes", size)
	}

	memutils.DebugValidate(m)

	var found *region
	switch strategy {
	case FitFirst:
		found = m.findFirstFit(size)
	case FitBest:
		found = m.findBestFit(size)
	case FitWorst:
		found = m.findWorstFit(size)
	default:
		return NoOffset, errors.Wrapf(memutils.ErrInvalidStrategy, "strategy %d", uint32(strategy))
	}

	if found == nil {
		m.counters.Record(false)
		return NoOffset, errors.Wrapf(memutils.ErrAllocationFailure, "no free region of at least %d bytes (%s fit, %d bytes free)", size, strategy, m.blocksFreeSize)
	}

	m.counters.Record(true)
	m.takeRegion(found, size)
	return found.start, nil
}

func (m *RegionBlockMetadata) findFirstFit(size int) *region {
	for r := m.head; r != nil; r = r.next {
		if r.free && r.size >= size {
			return r
		}
	}

	return nil
}

func (m *RegionBlockMetadata) findBestFit(size int) *region {
	var best *region
	for r := m.head; r != nil; r = r.next {
		// Strict comparison keeps the earliest region on ties
		if r.free && r.size >= size && (best == nil || r.size < best.size) {
			best = r
		}
	}

	return best
}

func (m *RegionBlockMetadata) findWorstFit(size int) *region {
	var worst *region
	for r := m.head; r != nil; r = r.next {
		if r.free && r.size >= size && (worst == nil || r.size > worst.size) {
			worst = r
		}
	}

	return worst
}

func (m *RegionBlockMetadata) takeRegion(r *region, size int) {
	if !r.free {
		panic("attempted to allocate from a region that is already taken")
	}

	m.blocksFreeCount--
	m.blocksFreeSize -= r.size

	if r.size > size {
		// Split the remainder off into a new free region
		remainder := m.allocateRegion(r.start+size, r.size-size)
		remainder.free = true
		remainder.prev = r
		remainder.next = r.next
		if r.next != nil {
			r.next.prev = remainder
		}
		r.next = remainder
		r.size = size

		m.blocksFreeCount++
		m.blocksFreeSize += remainder.size
	}

	r.free = false
	m.allocCount++
}

// Free releases the allocation that starts at offset and merges it with any free neighbors.
// It returns an error wrapping memutils.ErrInvalidFreeTarget, without changing anything, if no
// live allocation starts at offset.
func (m *RegionBlockMetadata) Free(offset int) error {
	r, ok := m.regionKey.Get(offset)
	if !ok {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "no region starts at offset %d", offset)
	}
	if r.free {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "region at offset %d is already free", offset)
	}

	r.free = true
	m.allocCount--
	m.blocksFreeCount++
	m.blocksFreeSize += r.size

	if next := r.next; next != nil && next.free {
		m.mergeRegion(r, next)
	}

	if prev := r.prev; prev != nil && prev.free {
		m.mergeRegion(prev, r)
	}

	return nil
}

// mergeRegion absorbs next into r. Both must be free and adjacent.
func (m *RegionBlockMetadata) mergeRegion(r *region, next *region) {
	if r.next != next {
		panic("cannot merge separate physical regions")
	}
	if !r.free || !next.free {
		panic("cannot merge a region that is still allocated")
	}

	r.size += next.size
	r.next = next.next
	if r.next != nil {
		r.next.prev = r
	}

	// The free byte total is unchanged, but there is one fewer free region
	m.blocksFreeCount--
	m.freeRegion(next)
}

// Move relocates the allocation starting at srcOffset so that it starts at dstOffset, keeping its
// size. The destination may overlap the allocation itself, but every other byte it covers must be
// free. Request counters are not affected. It returns an error wrapping
// memutils.ErrInvalidFreeTarget if no allocation starts at srcOffset, or memutils.ErrInvalidMove
// if the destination cannot hold it; in both cases nothing is changed.
func (m *RegionBlockMetadata) Move(srcOffset, dstOffset int) error {
	r, ok := m.regionKey.Get(srcOffset)
	if !ok || r.free {
		return errors.Wrapf(memutils.ErrInvalidFreeTarget, "no allocation starts at offset %d", srcOffset)
	}
	if srcOffset == dstOffset {
		return nil
	}

	size := r.size
	if dstOffset < 0 || dstOffset+size > m.size {
		return errors.Wrapf(memutils.ErrInvalidMove, "destination [%d, %d) is outside [0, %d)", dstOffset, dstOffset+size, m.size)
	}

	// After r is released, it merges with its free neighbors into one span
	spanStart, spanEnd := r.start, r.start+r.size
	if r.prev != nil && r.prev.free {
		spanStart = r.prev.start
	}
	if r.next != nil && r.next.free {
		spanEnd = r.next.start + r.next.size
	}

	if dstOffset < spanStart || dstOffset+size > spanEnd {
		target := m.regionAt(dstOffset)
		if target == nil || !target.free || dstOffset+size > target.start+target.size {
			return errors.Wrapf(memutils.ErrInvalidMove, "destination [%d, %d) is not free", dstOffset, dstOffset+size)
		}
	}

	memutils.DebugValidate(m)

	err := m.Free(srcOffset)
	if err != nil {
		return err
	}

	target := m.regionAt(dstOffset)
	if target.start < dstOffset {
		// Split the free prefix off so the allocation can start at dstOffset
		rest := m.allocateRegion(dstOffset, target.start+target.size-dstOffset)
		rest.free = true
		rest.prev = target
		rest.next = target.next
		if target.next != nil {
			target.next.prev = rest
		}
		target.next = rest
		target.size = dstOffset - target.start

		m.blocksFreeCount++
		target = rest
	}

	m.takeRegion(target, size)
	return nil
}

// regionAt returns the region containing offset, or nil if offset is out of range
func (m *RegionBlockMetadata) regionAt(offset int) *region {
	for r := m.head; r != nil; r = r.next {
		if offset >= r.start && offset < r.start+r.size {
			return r
		}
	}

	return nil
}

// Regions returns an offset-ordered snapshot of every region, free and allocated
func (m *RegionBlockMetadata) Regions() []RegionInfo {
	regions := make([]RegionInfo, 0, m.allocCount+m.blocksFreeCount)
	for r := m.head; r != nil; r = r.next {
		regions = append(regions, RegionInfo{
			Start: r.start,
			End:   r.start + r.size - 1,
			Free:  r.free,
			Size:  r.size,
		})
	}

	return regions
}

// Stats calculates free space, fragmentation, utilization and request outcome rates from a
// single walk of the region list.
func (m *RegionBlockMetadata) Stats() memutils.RegionStats {
	var totalFree, largestFree, allocated int
	for r := m.head; r != nil; r = r.next {
		if r.free {
			totalFree += r.size
			if r.size > largestFree {
				largestFree = r.size
			}
		} else {
			allocated += r.size
		}
	}

	return memutils.RegionStats{
		RequestCounters:       m.counters,
		TotalBytes:            m.size,
		FreeBytes:             totalFree,
		AllocatedBytes:        allocated,
		LargestFreeBlock:      largestFree,
		ExternalFragmentation: memutils.ExternalFragmentation(largestFree, totalFree),
		InternalFragmentation: 0,
		Utilization:           memutils.Ratio(allocated, m.size),
		SuccessRate:           m.counters.SuccessRate(),
		FailureRate:           m.counters.FailureRate(),
	}
}

// Counters returns the request outcome counters accumulated since creation or the last Clear
func (m *RegionBlockMetadata) Counters() memutils.RequestCounters {
	return m.counters
}

func (m *RegionBlockMetadata) Validate() error {
	if m.head == nil {
		return errors.New("region list has no head")
	}
	if m.head.prev != nil {
		return errors.New("the head region has a previous region")
	}

	var allocCount, freeCount, freeSize, regionCount int
	nextOffset := 0
	var prev *region

	for r := m.head; r != nil; r = r.next {
		if r.start != nextOffset {
			return errors.Errorf("region at offset %d does not begin where the previous region ended (%d)", r.start, nextOffset)
		}
		if r.size <= 0 {
			return errors.Errorf("region at offset %d has non-positive size %d", r.start, r.size)
		}
		if r.prev != prev {
			return errors.Errorf("region at offset %d has a previous region, but the reverse reference is broken", r.start)
		}

		indexed, ok := m.regionKey.Get(r.start)
		if !ok || indexed != r {
			return errors.Errorf("region at offset %d is missing from the offset index", r.start)
		}

		if r.free {
			if prev != nil && prev.free {
				return errors.Errorf("free regions at offsets %d and %d are adjacent but were not merged", prev.start, r.start)
			}
			freeCount++
			freeSize += r.size
		} else {
			allocCount++
		}

		regionCount++
		nextOffset = r.start + r.size
		prev = r
	}

	if nextOffset != m.size {
		return errors.Errorf("the full size of the metadata is %d, but the regions only added up to %d", m.size, nextOffset)
	}

	if regionCount != m.regionKey.Count() {
		return errors.Errorf("the offset index holds %d regions, but the region list holds %d", m.regionKey.Count(), regionCount)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("the allocation count of the metadata is %d, but the taken regions only added up to %d", m.allocCount, allocCount)
	}

	if freeCount != m.blocksFreeCount {
		return errors.Errorf("the free region count of the metadata is %d, but there were %d free regions", m.blocksFreeCount, freeCount)
	}

	if freeSize != m.blocksFreeSize {
		return errors.Errorf("the free size of the metadata is %d, but the free regions added up to %d", m.blocksFreeSize, freeSize)
	}

	if m.counters.Requests != m.counters.Successes+m.counters.Failures {
		return errors.Errorf("%d requests were recorded, but %d succeeded and %d failed", m.counters.Requests, m.counters.Successes, m.counters.Failures)
	}

	return nil
}

func (m *RegionBlockMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *RegionBlockMetadata) FreeRegionsCount() int {
	return m.blocksFreeCount
}

func (m *RegionBlockMetadata) SumFreeSize() int {
	return m.blocksFreeSize
}

func (m *RegionBlockMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

func (m *RegionBlockMetadata) VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error {
	for r := m.head; r != nil; r = r.next {
		err := handleBlock(r.start, r.size, r.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *RegionBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += m.size

	for r := m.head; r != nil; r = r.next {
		if r.free {
			stats.AddUnusedRange(r.size)
		} else {
			stats.AddAllocation(r.size)
		}
	}
}

func (m *RegionBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.AllocationCount += m.allocCount
	stats.BlockBytes += m.size
	stats.AllocationBytes += m.size - m.SumFreeSize()
}

func (m *RegionBlockMetadata) Clear() {
	r := m.head
	for r != nil {
		next := r.next
		m.freeRegion(r)
		r = next
	}

	m.allocCount = 0
	m.counters = memutils.RequestCounters{}
	m.init()
}

func (m *RegionBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.writeBlockJsonData(&json, m.SumFreeSize(), m.allocCount, m.blocksFreeCount)

	stats := m.Stats()
	json.Name("LargestFreeBlock").Int(stats.LargestFreeBlock)
	json.Name("ExternalFragmentation").Float64(stats.ExternalFragmentation)
	json.Name("Utilization").Float64(stats.Utilization)
	json.Name("Requests").Int(stats.Requests)
	json.Name("SuccessRate").Float64(stats.SuccessRate)
	json.Name("FailureRate").Float64(stats.FailureRate)

	regions := json.Name("Regions").Array()
	for r := m.head; r != nil; r = r.next {
		obj := regions.Object()
		obj.Name("Start").Int(r.start)
		obj.Name("End").Int(r.start + r.size - 1)
		obj.Name("Size").Int(r.size)
		obj.Name("Free").Bool(r.free)
		obj.End()
	}
	regions.End()
}

func (m *RegionBlockMetadata) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	for r := m.head; r != nil; r = r.next {
		if !r.free {
			logFunc(logger, r.start, r.size)
		}
	}
}
