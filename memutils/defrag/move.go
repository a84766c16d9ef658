package defrag

// DefragmentationMoveOperation is chosen by a DefragmentOperationHandler to decide what happens to
// a single collected relocation
type DefragmentationMoveOperation uint32

const (
	// DefragmentationMoveCopy relocates the allocation to its destination
	DefragmentationMoveCopy DefragmentationMoveOperation = iota
	// DefragmentationMoveIgnore leaves the allocation where it is
	DefragmentationMoveIgnore
	// DefragmentationMoveDestroy frees the allocation instead of relocating it
	DefragmentationMoveDestroy
)

var moveOperationMapping = map[DefragmentationMoveOperation]string{
	DefragmentationMoveCopy:    "DefragmentationMoveCopy",
	DefragmentationMoveIgnore:  "DefragmentationMoveIgnore",
	DefragmentationMoveDestroy: "DefragmentationMoveDestroy",
}

func (o DefragmentationMoveOperation) String() string {
	return moveOperationMapping[o]
}

// DefragmentOperationHandler is called once per collected move during CompletePass. The allocation
// has not been moved yet when it is called.
type DefragmentOperationHandler func(move DefragmentationMove) DefragmentationMoveOperation

// DefragmentationMove is a single relocation collected during a pass
type DefragmentationMove struct {
	Size      int
	SrcOffset int
	DstOffset int
}
