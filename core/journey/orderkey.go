package journey

import (
	"sort"

	"github.com/pkg/errors"
)

const (
	// OrderKeySeed is the key an empty stage starts from.
	OrderKeySeed = 1000.0
	// OrderKeyIncrement separates a course appended after the last one from its predecessor.
	OrderKeyIncrement = 1000.0
)

var (
	ErrInvalidPosition   = errors.New("invalid position")
	ErrOrderKeyExhausted = errors.New("no order key left between the neighbouring courses; rebalance the stage")
)

// AllocateOrderKey returns the order key of a course inserted among siblings with the given keys.
// Position 0 inserts before the first sibling, position i (1 <= i <= len(keys)) right after the i-th.
// The new key lies strictly between its neighbours and no sibling key needs rewriting.
func AllocateOrderKey(keys []float64, position int) (float64, error) {
	n := len(keys)
	if position < 0 || position > n {
		return 0, ErrInvalidPosition
	}
	if n == 0 {
		return OrderKeySeed / 2, nil
	}

	sorted := make([]float64, n)
	copy(sorted, keys)
	sort.Float64s(sorted)

	var key float64
	switch position {
	case 0:
		first := sorted[0]
		if first > 0 {
			key = first / 2
		} else {
			key = first - OrderKeyIncrement
		}
		if !(key < first) {
			return 0, ErrOrderKeyExhausted
		}
	case n:
		last := sorted[n-1]
		key = last + OrderKeyIncrement
		if !(key > last) {
			return 0, ErrOrderKeyExhausted
		}
	default:
		lo, hi := sorted[position-1], sorted[position]
		key = lo + (hi-lo)/2
		if !(lo < key && key < hi) {
			return 0, ErrOrderKeyExhausted
		}
	}
	return key, nil
}

func courseKeys(courses []Course) []float64 {
	keys := make([]float64, 0, len(courses))
	for _, c := range courses {
		keys = append(keys, c.OrderKey)
	}
	return keys
}

// NeedsRebalance reports whether two neighbouring courses have keys closer than minGap.
func NeedsRebalance(courses []Course, minGap float64) bool {
	sorted := SortCourses(courses)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].OrderKey-sorted[i-1].OrderKey < minGap {
			return true
		}
	}
	return false
}

// RebalancedKeys spreads the courses evenly from OrderKeySeed, keeping their display order.
func RebalancedKeys(courses []Course) map[int]float64 {
	keys := make(map[int]float64, len(courses))
	for i, c := range SortCourses(courses) {
		keys[c.ID] = OrderKeySeed + float64(i)*OrderKeyIncrement
	}
	return keys
}
