package metadata

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memsim/memutils"
)

// FitStrategy selects which free region a RegionBlockMetadata uses to satisfy an allocation
type FitStrategy uint32

const (
	// FitFirst selects the free region closest to offset 0 that is large enough for the allocation.
	FitFirst FitStrategy = iota
	// FitBest selects the smallest free region that is large enough for the allocation. Ties go to
	// the region with the lowest offset.
	FitBest
	// FitWorst selects the largest free region. Ties go to the region with the lowest offset.
	FitWorst
)

var fitStrategyMapping = map[FitStrategy]string{
	FitFirst: "first",
	FitBest:  "best",
	FitWorst: "worst",
}

func (s FitStrategy) String() string {
	str, ok := fitStrategyMapping[s]
	if !ok {
		return "unknown"
	}
	return str
}

// ParseFitStrategy converts "first", "best" or "worst" (in any case) into a FitStrategy
func ParseFitStrategy(name string) (FitStrategy, error) {
	lowered := strings.ToLower(name)
	for strategy, str := range fitStrategyMapping {
		if str == lowered {
			return strategy, nil
		}
	}

	return FitFirst, errors.Wrapf(memutils.ErrInvalidStrategy, "%q", name)
}
