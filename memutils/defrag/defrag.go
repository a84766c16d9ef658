package defrag

// Algorithm identifies which compaction algorithm will be used for defrag passes
type Algorithm uint32

const (
	// AlgorithmFast moves an allocation only when it fits entirely inside a free region at a lower
	// offset. It never slides an allocation into the free space directly in front of it, so some
	// gaps may remain once the run completes.
	AlgorithmFast Algorithm = iota + 1
	// AlgorithmFull behaves like AlgorithmFast but also slides allocations down into the free
	// region directly in front of them. A completed run leaves every allocation packed at the
	// start of the address range with a single free region after them.
	//
	// This is the default algorithm if none is specified.
	AlgorithmFull
)

var algorithmMapping = map[Algorithm]string{
	AlgorithmFast: "AlgorithmFast",
	AlgorithmFull: "AlgorithmFull",
}

func (a Algorithm) String() string {
	return algorithmMapping[a]
}

// DefragmentationStats contains basic metrics for defragmentation over time
type DefragmentationStats struct {
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// BytesFreed is the number of bytes released because a handler chose DefragmentationMoveDestroy
	BytesFreed int
	// AllocationsFreed is the number of allocations released because a handler chose
	// DefragmentationMoveDestroy
	AllocationsFreed int
	// Passes is the number of passes that relocated or released at least one allocation
	Passes int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.AllocationsMoved += stats.AllocationsMoved
	s.BytesFreed += stats.BytesFreed
	s.AllocationsFreed += stats.AllocationsFreed
	s.Passes += stats.Passes
}

type defragCounterStatus uint32

const (
	defragCounterPass defragCounterStatus = iota
	defragCounterIgnore
	defragCounterEnd
)

var defragCounterStatusMapping = map[defragCounterStatus]string{
	defragCounterPass:   "defragCounterPass",
	defragCounterIgnore: "defragCounterIgnore",
	defragCounterEnd:    "defragCounterEnd",
}

func (s defragCounterStatus) String() string {
	return defragCounterStatusMapping[s]
}
