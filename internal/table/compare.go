package table

import (
	"math"
	"strings"
	"time"
)

// Compare orders two non-nil values of compatible types. Mixed int64 and
// float64 compare numerically; NaN is not comparable.
func Compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return compareOrdered(av, bv), true
		case float64:
			if math.IsNaN(bv) {
				return 0, false
			}
			return compareOrdered(float64(av), bv), true
		}
	case float64:
		if math.IsNaN(av) {
			return 0, false
		}
		switch bv := b.(type) {
		case float64:
			if math.IsNaN(bv) {
				return 0, false
			}
			return compareOrdered(av, bv), true
		case int64:
			return compareOrdered(av, float64(bv)), true
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
