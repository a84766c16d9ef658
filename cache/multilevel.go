package cache

//go:generate mockgen -source multilevel.go -destination ./mocks/level.go -package mock_cache

// Level is a single cache level that can be placed in front of, or behind, another
type Level interface {
	// Access looks up addr, returning true on a hit. A miss loads addr into the level.
	Access(addr int) bool
	Stats() LevelStats
}

// AccessResult reports which level of a Multilevel satisfied an access
type AccessResult uint32

const (
	HitL1 AccessResult = iota
	HitL2
	Miss
)

var accessResultMapping = map[AccessResult]string{
	HitL1: "HitL1",
	HitL2: "HitL2",
	Miss:  "Miss",
}

func (r AccessResult) String() string {
	return accessResultMapping[r]
}

// MultilevelStats holds the hit and miss counts for each level of a Multilevel, as seen by
// the Multilevel itself
type MultilevelStats struct {
	L1Hits   int
	L1Misses int
	L2Hits   int
	L2Misses int
}

// Multilevel is a two-level cache hierarchy. L2 is only consulted when L1 misses.
type Multilevel struct {
	l1 Level
	l2 Level

	stats MultilevelStats
}

func NewMultilevel(l1, l2 Level) *Multilevel {
	return &Multilevel{
		l1: l1,
		l2: l2,
	}
}

func (m *Multilevel) Access(addr int) AccessResult {
	if m.l1.Access(addr) {
		m.stats.L1Hits++
		return HitL1
	}

	m.stats.L1Misses++
	if m.l2.Access(addr) {
		m.stats.L2Hits++
		return HitL2
	}

	m.stats.L2Misses++
	return Miss
}

func (m *Multilevel) Stats() MultilevelStats {
	return m.stats
}

// L1 returns the first level of the hierarchy
func (m *Multilevel) L1() Level {
	return m.l1
}

// L2 returns the second level of the hierarchy
func (m *Multilevel) L2() Level {
	return m.l2
}
