package calc

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ValidateDistribution checks that |delta| stays within maxRatio of supply.
// maxRatio is 1e18-scaled.
func ValidateDistribution(delta, supply, maxRatio *uint256.Int) (bool, error) {
	bound, err := MulDiv(supply, maxRatio, Scale)
	if err != nil {
		return false, fmt.Errorf("distribution bound: %w", err)
	}
	return !delta.Gt(bound), nil
}

// IntervalElapsed reports whether at least minInterval seconds separate last
// from now. A zero last means nothing has been distributed yet.
func IntervalElapsed(last, now, minInterval uint64) bool {
	if last == 0 {
		return true
	}
	if now < last {
		return false
	}
	return now-last >= minInterval
}
