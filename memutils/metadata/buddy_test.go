package metadata_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func TestBuddyInvalidConfiguration(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(0)
	require.Nil(t, m)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))

	m, err = metadata.NewBuddyBlockMetadata(96)
	require.Nil(t, m)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	m, err = metadata.NewBuddyBlockMetadata(1)
	require.NoError(t, err)
	require.Equal(t, 0, m.MaxOrder())
}

func TestBuddySplitAndMerge(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(64)
	require.NoError(t, err)
	require.Equal(t, 6, m.MaxOrder())
	require.Equal(t, []int{0, 0, 0, 0, 0, 0, 1}, m.FreeListLengths())

	handle, err := m.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, metadata.BuddyHandle{Offset: 0, Order: 4}, handle)
	require.Equal(t, 16, handle.Size())
	require.NoError(t, m.Validate())

	require.Equal(t, []int{0, 0, 0, 0, 1, 1, 0}, m.FreeListLengths())
	require.Equal(t, []metadata.ChunkInfo{
		{Offset: 0, Order: 4, Size: 16, Free: false, Requested: 10},
		{Offset: 16, Order: 4, Size: 16, Free: true},
		{Offset: 32, Order: 5, Size: 32, Free: true},
	}, m.Chunks())

	err = m.Free(handle)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	require.Equal(t, []int{0, 0, 0, 0, 0, 0, 1}, m.FreeListLengths())
	require.Equal(t, []metadata.ChunkInfo{
		{Offset: 0, Order: 6, Size: 64, Free: true},
	}, m.Chunks())
	require.True(t, m.IsEmpty())
}

func TestBuddyBasicStatistics(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(1024)
	require.NoError(t, err)

	handle, err := m.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, 7, handle.Order)

	var stats memutils.DetailedStatistics
	stats.Clear()
	m.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1024,
			AllocationCount: 1,
			AllocationBytes: 128,
		},
		UnusedRangeCount:   3,
		AllocationSizeMin:  128,
		AllocationSizeMax:  128,
		UnusedRangeSizeMin: 128,
		UnusedRangeSizeMax: 512,
	}, stats)

	buddyStats := m.Stats()
	require.Equal(t, 896, buddyStats.FreeBytes)
	require.Equal(t, 128, buddyStats.AllocatedBytes)
	require.Equal(t, 100, buddyStats.RequestedBytes)
	require.Equal(t, 28, buddyStats.InternalFragmentation)
	require.Equal(t, 512, buddyStats.LargestFreeChunk)
	require.InDelta(t, 1-512.0/896.0, buddyStats.ExternalFragmentation, 1e-9)
	require.InDelta(t, 0.125, buddyStats.Utilization, 1e-9)

	require.NoError(t, m.Free(handle))

	stats.Clear()
	m.AddDetailedStatistics(&stats)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlockCount:      1,
			BlockBytes:      1024,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxInt,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 1024,
		UnusedRangeSizeMax: 1024,
	}, stats)
}

func TestBuddyExhaustion(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(64)
	require.NoError(t, err)

	handle, err := m.Allocate(65)
	require.Equal(t, metadata.NoBuddyHandle, handle)
	require.True(t, errors.Is(err, memutils.ErrAllocationFailure))

	first, err := m.Allocate(33)
	require.NoError(t, err)
	require.Equal(t, metadata.BuddyHandle{Offset: 0, Order: 6}, first)

	before := m.Chunks()
	handle, err = m.Allocate(1)
	require.Equal(t, metadata.NoBuddyHandle, handle)
	require.True(t, errors.Is(err, memutils.ErrAllocationFailure))
	require.Equal(t, before, m.Chunks())
	require.NoError(t, m.Validate())

	require.Equal(t, memutils.RequestCounters{Requests: 3, Successes: 1, Failures: 2}, m.Counters())

	handle, err = m.Allocate(-1)
	require.Equal(t, metadata.NoBuddyHandle, handle)
	require.True(t, errors.Is(err, memutils.ErrInvalidAllocationSize))
	require.Equal(t, 3, m.Counters().Requests)
}

func TestBuddyInvalidFree(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(128)
	require.NoError(t, err)

	handle, err := m.Allocate(16)
	require.NoError(t, err)
	before := m.Chunks()

	err = m.Free(metadata.BuddyHandle{Offset: 3, Order: 4})
	require.True(t, errors.Is(err, memutils.ErrInvalidFreeTarget))

	err = m.Free(metadata.BuddyHandle{Offset: handle.Offset, Order: handle.Order + 1})
	require.True(t, errors.Is(err, memutils.ErrInvalidFreeTarget))

	// The buddy of the allocation is free
	err = m.Free(metadata.BuddyHandle{Offset: 16, Order: 4})
	require.True(t, errors.Is(err, memutils.ErrInvalidFreeTarget))

	err = m.FreeOffset(64)
	require.True(t, errors.Is(err, memutils.ErrInvalidFreeTarget))

	require.Equal(t, before, m.Chunks())
	require.NoError(t, m.Validate())

	require.NoError(t, m.Free(handle))
	err = m.Free(handle)
	require.True(t, errors.Is(err, memutils.ErrInvalidFreeTarget))
	require.NoError(t, m.Validate())
}

func TestBuddyPartialCoalescing(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(64)
	require.NoError(t, err)

	a, err := m.Allocate(16)
	require.NoError(t, err)
	b, err := m.Allocate(16)
	require.NoError(t, err)
	c, err := m.Allocate(32)
	require.NoError(t, err)

	require.Equal(t, 0, a.Offset)
	require.Equal(t, 16, b.Offset)
	require.Equal(t, 32, c.Offset)
	require.Equal(t, 0, m.SumFreeSize())

	// b's buddy a is still allocated, so nothing merges
	require.NoError(t, m.Free(b))
	require.Equal(t, []int{0, 0, 0, 0, 1, 0, 0}, m.FreeListLengths())

	// a merges with b into order 5, but c is still allocated
	require.NoError(t, m.FreeOffset(a.Offset))
	require.Equal(t, []int{0, 0, 0, 0, 0, 1, 0}, m.FreeListLengths())
	require.NoError(t, m.Validate())

	require.NoError(t, m.Free(c))
	require.Equal(t, []int{0, 0, 0, 0, 0, 0, 1}, m.FreeListLengths())
	require.NoError(t, m.Validate())
}

func TestBuddyRoundTrip(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(256)
	require.NoError(t, err)

	_, err = m.Allocate(20)
	require.NoError(t, err)
	_, err = m.Allocate(70)
	require.NoError(t, err)

	for _, size := range []int{1, 3, 8, 9, 32, 64} {
		before := m.Chunks()
		beforeLists := m.FreeListLengths()

		handle, err := m.Allocate(size)
		require.NoError(t, err)
		require.NoError(t, m.Free(handle))

		require.Equal(t, before, m.Chunks())
		require.Equal(t, beforeLists, m.FreeListLengths())
		require.NoError(t, m.Validate())
	}
}

func TestBuddyIdempotentReports(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(256)
	require.NoError(t, err)

	_, err = m.Allocate(5)
	require.NoError(t, err)
	_, err = m.Allocate(100)
	require.NoError(t, err)

	require.Equal(t, m.Chunks(), m.Chunks())
	require.Equal(t, m.Stats(), m.Stats())
	require.Equal(t, m.FreeListLengths(), m.FreeListLengths())
}

func TestBuddyClear(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(128)
	require.NoError(t, err)

	_, err = m.Allocate(3)
	require.NoError(t, err)
	_, err = m.Allocate(40)
	require.NoError(t, err)

	m.Clear()
	require.NoError(t, m.Validate())
	require.Equal(t, []metadata.ChunkInfo{
		{Offset: 0, Order: 7, Size: 128, Free: true},
	}, m.Chunks())
	require.Equal(t, memutils.RequestCounters{}, m.Counters())

	handle, err := m.Allocate(128)
	require.NoError(t, err)
	require.Equal(t, metadata.BuddyHandle{Offset: 0, Order: 7}, handle)
}

func TestBuddyRandomOperations(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(4096)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	var live []metadata.BuddyHandle

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			index := rng.Intn(len(live))
			require.NoError(t, m.Free(live[index]))
			live = append(live[:index], live[index+1:]...)
		} else {
			handle, err := m.Allocate(rng.Intn(300) + 1)
			if err != nil {
				require.True(t, errors.Is(err, memutils.ErrAllocationFailure))
			} else {
				require.Zero(t, handle.Offset%handle.Size())
				live = append(live, handle)
			}
		}

		require.NoError(t, m.Validate())
		require.Equal(t, len(live), m.AllocationCount())
	}

	for _, handle := range live {
		require.NoError(t, m.Free(handle))
	}

	require.NoError(t, m.Validate())
	require.Equal(t, []metadata.ChunkInfo{
		{Offset: 0, Order: 12, Size: 4096, Free: true},
	}, m.Chunks())
}
