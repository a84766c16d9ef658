package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrAllocationFailure is returned when no free region or chunk can satisfy a request. The allocator
	// is unchanged apart from its request counters, and the caller may retry after freeing memory or with
	// a different size or strategy.
	ErrAllocationFailure = errors.New("allocation failure")

	// ErrInvalidFreeTarget is returned when an address or handle passed to a free method does not
	// correspond to a currently-allocated block. No mutation is performed.
	ErrInvalidFreeTarget = errors.New("invalid free target")

	// ErrInvalidConfiguration is returned from constructors when the requested layout cannot be built,
	// such as a non-positive size or a buddy arena that is not a power of two.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidAllocationSize is returned when an allocation of zero or negative bytes is requested
	ErrInvalidAllocationSize = errors.New("allocation size must be positive")

	// ErrInvalidStrategy is returned when an unknown fit strategy is requested
	ErrInvalidStrategy = errors.New("unknown fit strategy")

	// ErrInvalidMove is returned when an allocation cannot be relocated to the requested offset
	// because the destination is not free. No mutation is performed.
	ErrInvalidMove = errors.New("invalid move")
)
