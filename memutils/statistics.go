package memutils

import "math"

type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.BlockBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// RequestCounters tracks the outcome of every allocation request an allocator has received
type RequestCounters struct {
	Requests  int
	Successes int
	Failures  int
}

// Record counts a single request as either a success or a failure
func (c *RequestCounters) Record(success bool) {
	c.Requests++
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
}

// SuccessRate is the fraction of requests that succeeded, or 0 if there have been no requests
func (c RequestCounters) SuccessRate() float64 {
	return Ratio(c.Successes, c.Requests)
}

// FailureRate is 1 - SuccessRate, or 0 if there have been no requests
func (c RequestCounters) FailureRate() float64 {
	if c.Requests == 0 {
		return 0
	}
	return 1 - c.SuccessRate()
}

// ExternalFragmentation reports the share of free memory that lies outside the largest free range.
// It is 0 when there is no free memory at all.
func ExternalFragmentation(largestFree, totalFree int) float64 {
	if totalFree == 0 {
		return 0
	}

	return 1 - float64(largestFree)/float64(totalFree)
}

// RegionStats is the snapshot produced by a region allocator's Stats method
type RegionStats struct {
	RequestCounters

	TotalBytes            int
	FreeBytes             int
	AllocatedBytes        int
	LargestFreeBlock      int
	ExternalFragmentation float64
	// InternalFragmentation is always 0: the region allocator hands out exactly the requested size
	InternalFragmentation float64
	Utilization           float64
	SuccessRate           float64
	FailureRate           float64
}

// BuddyStats is the snapshot produced by a buddy allocator's Stats method
type BuddyStats struct {
	RequestCounters

	TotalBytes     int
	FreeBytes      int
	AllocatedBytes int
	// RequestedBytes is the sum of the sizes callers asked for, before rounding
	RequestedBytes int
	// InternalFragmentation is AllocatedBytes - RequestedBytes
	InternalFragmentation int
	LargestFreeChunk      int
	ExternalFragmentation float64
	Utilization           float64
	SuccessRate           float64
	FailureRate           float64
}
