package query

import (
	"math"
	"sort"

	"github.com/duckmesh/tableagent/internal/table"
)

func aggregateType(kind AggKind, input table.Type) table.Type {
	switch kind {
	case AggCount:
		return table.TypeInt
	case AggMean, AggMedian, AggStd:
		return table.TypeFloat
	default:
		return input
	}
}

func requiresNumeric(kind AggKind) bool {
	switch kind {
	case AggSum, AggMean, AggStd, AggMedian:
		return true
	default:
		return false
	}
}

// aggregate folds the non-null values of one column. Standard deviation is
// the sample estimate (n-1 denominator); sums of an all-null group are zero.
func aggregate(kind AggKind, input table.Type, values []any) any {
	switch kind {
	case AggCount:
		var n int64
		for _, v := range values {
			if v != nil {
				n++
			}
		}
		return n
	case AggSum:
		if input == table.TypeInt {
			var sum int64
			for _, v := range values {
				if i, ok := v.(int64); ok {
					sum += i
				}
			}
			return sum
		}
		sum := 0.0
		for _, f := range floats(values) {
			sum += f
		}
		return sum
	case AggMean:
		nums := floats(values)
		if len(nums) == 0 {
			return nil
		}
		return mean(nums)
	case AggMedian:
		nums := floats(values)
		if len(nums) == 0 {
			return nil
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid]
		}
		return (nums[mid-1] + nums[mid]) / 2
	case AggStd:
		nums := floats(values)
		if len(nums) < 2 {
			return nil
		}
		m := mean(nums)
		var squares float64
		for _, f := range nums {
			d := f - m
			squares += d * d
		}
		return math.Sqrt(squares / float64(len(nums)-1))
	case AggMin, AggMax:
		var best any
		for _, v := range values {
			if isMissing(v) {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, ok := table.Compare(v, best)
			if !ok {
				continue
			}
			if (kind == AggMin && cmp < 0) || (kind == AggMax && cmp > 0) {
				best = v
			}
		}
		return best
	}
	return nil
}

func floats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case int64:
			out = append(out, float64(n))
		case float64:
			if !math.IsNaN(n) {
				out = append(out, n)
			}
		}
	}
	return out
}

func mean(nums []float64) float64 {
	sum := 0.0
	for _, f := range nums {
		sum += f
	}
	return sum / float64(len(nums))
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}
