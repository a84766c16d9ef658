package cache

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/memsim/memutils"
)

type cacheLine struct {
	valid    bool
	tag      int
	fillTime int64
}

type cacheSet struct {
	lines []cacheLine
	// tagKey maps the tag of every valid line to its way
	tagKey *swiss.Map[int, int]
}

// LevelStats reports the hit and miss counts of a single cache
type LevelStats struct {
	Hits     int
	Misses   int
	HitRatio float64
}

// Cache is a set-associative cache simulator with FIFO replacement. It only tracks which
// addresses are resident, not their contents.
type Cache struct {
	size          int
	blockSize     int
	associativity int
	setCount      int

	time   int64
	hits   int
	misses int

	sets []cacheSet
}

var _ Level = &Cache{}

// NewCache creates a cache holding size bytes split into lines of blockSize bytes, with
// associativity lines per set. size must be a multiple of blockSize*associativity.
func NewCache(size, blockSize, associativity int) (*Cache, error) {
	if size <= 0 || blockSize <= 0 || associativity <= 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidConfiguration,
			"cache size (%d), block size (%d) and associativity (%d) must all be positive", size, blockSize, associativity)
	}

	setBytes := blockSize * associativity
	if size%setBytes != 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidConfiguration,
			"cache size %d is not a multiple of block size * associativity (%d)", size, setBytes)
	}

	c := &Cache{
		size:          size,
		blockSize:     blockSize,
		associativity: associativity,
		setCount:      size / setBytes,
	}

	c.sets = make([]cacheSet, c.setCount)
	for i := range c.sets {
		c.sets[i] = cacheSet{
			lines:  make([]cacheLine, associativity),
			tagKey: swiss.NewMap[int, int](uint32(associativity)),
		}
	}

	return c, nil
}

// SetCount is the number of sets in the cache. It is an inspection helper for callers checking
// the derived geometry and is not part of the access path.
func (c *Cache) SetCount() int {
	return c.setCount
}

// Access looks up addr and returns true on a hit. On a miss, the block containing addr is loaded,
// into an empty line if the set has one, or else over the line that was filled the longest time ago.
func (c *Cache) Access(addr int) bool {
	c.time++

	blockAddr := addr / c.blockSize
	set := &c.sets[blockAddr%c.setCount]
	tag := blockAddr / c.setCount

	if _, ok := set.tagKey.Get(tag); ok {
		c.hits++
		return true
	}

	c.misses++

	victim := -1
	for way := range set.lines {
		if !set.lines[way].valid {
			victim = way
			break
		}

		if victim < 0 || set.lines[way].fillTime < set.lines[victim].fillTime {
			victim = way
		}
	}

	line := &set.lines[victim]
	if line.valid {
		set.tagKey.Delete(line.tag)
	}

	line.valid = true
	line.tag = tag
	line.fillTime = c.time
	set.tagKey.Put(tag, victim)

	return false
}

// Contains reports whether addr is currently resident, without counting an access. It is an
// inspection helper and leaves the cache state untouched.
func (c *Cache) Contains(addr int) bool {
	blockAddr := addr / c.blockSize
	_, ok := c.sets[blockAddr%c.setCount].tagKey.Get(blockAddr / c.setCount)
	return ok
}

func (c *Cache) Stats() LevelStats {
	return LevelStats{
		Hits:     c.hits,
		Misses:   c.misses,
		HitRatio: memutils.Ratio(c.hits, c.hits+c.misses),
	}
}
