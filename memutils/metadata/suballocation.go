package metadata

const (
	// NoOffset is returned in place of an offset by allocation methods that fail
	NoOffset int = -1
)

// RegionInfo is a read-only copy of a single region of a RegionBlockMetadata
type RegionInfo struct {
	Start int
	// End is the last address covered by the region, Start+Size-1
	End  int
	Free bool
	Size int
}

// BuddyHandle identifies a chunk handed out by BuddyBlockMetadata.Allocate
type BuddyHandle struct {
	Offset int
	Order  int
}

// Size is the number of bytes covered by the chunk, 2^Order
func (h BuddyHandle) Size() int {
	return 1 << h.Order
}

// NoBuddyHandle is returned from BuddyBlockMetadata.Allocate when the allocation fails
var NoBuddyHandle = BuddyHandle{Offset: NoOffset, Order: -1}

// ChunkInfo is a read-only copy of a single chunk of a BuddyBlockMetadata
type ChunkInfo struct {
	Offset int
	Order  int
	Size   int
	Free   bool
	// Requested is the size the caller asked for when the chunk was allocated. It is 0 for free chunks.
	Requested int
}
