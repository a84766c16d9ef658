package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// Log2Ceil returns the smallest order such that 1<<order >= value. Values of 1 or less
// return 0.
func Log2Ceil(value int) int {
	if value <= 1 {
		return 0
	}

	return bits.Len64(uint64(value - 1))
}

// Log2Floor returns the index of the most significant set bit in value. It must only be
// called with positive values.
func Log2Floor(value int) int {
	return 63 - bits.LeadingZeros64(uint64(value))
}

// Ratio divides numerator by denominator, returning 0 rather than NaN when the denominator is 0
func Ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}

	return float64(numerator) / float64(denominator)
}
