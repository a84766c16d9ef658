package cache_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/cache"
	mock_cache "github.com/vkngwrapper/memsim/cache/mocks"
	"github.com/vkngwrapper/memsim/memutils"
	"go.uber.org/mock/gomock"
)

func TestCacheInvalidConfiguration(t *testing.T) {
	_, err := cache.NewCache(0, 4, 1)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))

	_, err = cache.NewCache(16, 4, -1)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))

	_, err = cache.NewCache(18, 4, 2)
	require.True(t, errors.Is(err, memutils.ErrInvalidConfiguration))

	c, err := cache.NewCache(16, 4, 2)
	require.NoError(t, err)
	require.Equal(t, 2, c.SetCount())
}

func TestCacheHitsWithinBlock(t *testing.T) {
	c, err := cache.NewCache(16, 4, 1)
	require.NoError(t, err)

	require.False(t, c.Access(0))
	require.True(t, c.Access(1))
	require.True(t, c.Access(3))
	require.False(t, c.Access(4))
	require.True(t, c.Contains(2))
	require.False(t, c.Contains(100))

	require.Equal(t, cache.LevelStats{Hits: 2, Misses: 2, HitRatio: 0.5}, c.Stats())
}

func TestCacheDirectMappedConflict(t *testing.T) {
	// 4 sets of 1 line each: blocks 0 and 4 map to the same set
	c, err := cache.NewCache(16, 4, 1)
	require.NoError(t, err)

	require.False(t, c.Access(0))
	require.False(t, c.Access(16))
	require.False(t, c.Access(0))
	require.False(t, c.Access(16))

	require.Equal(t, 4, c.Stats().Misses)
	require.Equal(t, 0.0, c.Stats().HitRatio)
}

func TestCacheFIFOReplacement(t *testing.T) {
	// A single fully-associative set with two ways
	c, err := cache.NewCache(8, 4, 2)
	require.NoError(t, err)
	require.Equal(t, 1, c.SetCount())

	require.False(t, c.Access(0)) // A
	require.False(t, c.Access(4)) // B
	require.True(t, c.Access(0))  // A hit does not refresh its fill time

	require.False(t, c.Access(8)) // C evicts A, the oldest fill
	require.False(t, c.Contains(0))
	require.True(t, c.Contains(4))
	require.True(t, c.Contains(8))

	require.False(t, c.Access(0)) // A evicts B
	require.False(t, c.Contains(4))
	require.True(t, c.Contains(8))

	require.Equal(t, cache.LevelStats{Hits: 1, Misses: 4, HitRatio: 0.2}, c.Stats())
}

func TestCacheEmptyStats(t *testing.T) {
	c, err := cache.NewCache(64, 4, 4)
	require.NoError(t, err)

	require.Equal(t, cache.LevelStats{}, c.Stats())
}

func TestMultilevelFallthrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	l1 := mock_cache.NewMockLevel(ctrl)
	l2 := mock_cache.NewMockLevel(ctrl)

	gomock.InOrder(
		l1.EXPECT().Access(10).Return(true),
		l1.EXPECT().Access(20).Return(false),
		l2.EXPECT().Access(20).Return(true),
		l1.EXPECT().Access(30).Return(false),
		l2.EXPECT().Access(30).Return(false),
	)

	m := cache.NewMultilevel(l1, l2)
	require.Equal(t, cache.HitL1, m.Access(10))
	require.Equal(t, cache.HitL2, m.Access(20))
	require.Equal(t, cache.Miss, m.Access(30))

	require.Equal(t, cache.MultilevelStats{
		L1Hits:   1,
		L1Misses: 2,
		L2Hits:   1,
		L2Misses: 1,
	}, m.Stats())
}

func TestMultilevelRealCaches(t *testing.T) {
	l1, err := cache.NewCache(4, 4, 1)
	require.NoError(t, err)
	l2, err := cache.NewCache(16, 4, 1)
	require.NoError(t, err)

	m := cache.NewMultilevel(l1, l2)

	require.Equal(t, cache.Miss, m.Access(0))
	require.Equal(t, cache.HitL1, m.Access(2))
	// Block 1 evicts block 0 from the single-line L1, but both stay in L2
	require.Equal(t, cache.Miss, m.Access(4))
	require.Equal(t, cache.HitL2, m.Access(0))

	require.Equal(t, cache.MultilevelStats{
		L1Hits:   1,
		L1Misses: 3,
		L2Hits:   1,
		L2Misses: 2,
	}, m.Stats())
	require.Equal(t, "HitL2", cache.HitL2.String())
	require.Same(t, l1, m.L1())
	require.Same(t, l2, m.L2())
}
