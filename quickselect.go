package scouter

import (
	"math/rand/v2"
	"time"
)

func partition(times []time.Time, left, right, pivotIndex int) int {
	pivotValue := times[pivotIndex]
	times[pivotIndex], times[right] = times[right], times[pivotIndex]
	storeIndex := left
	for i := left; i < right; i++ {
		if times[i].Before(pivotValue) {
			times[storeIndex], times[i] = times[i], times[storeIndex]
			storeIndex++
		}
	}
	times[right], times[storeIndex] = times[storeIndex], times[right]
	return storeIndex
}

func quickSelect(times []time.Time, left, right, k int) time.Time {
	for left < right {
		pivotIndex := left + rand.IntN(right-left+1)
		pivotIndex = partition(times, left, right, pivotIndex)
		switch {
		case k == pivotIndex:
			return times[k]
		case k < pivotIndex:
			right = pivotIndex - 1
		default:
			left = pivotIndex + 1
		}
	}
	return times[left]
}

// FindCutoff returns the time at the given percentile (0 to 1) of the
// values. The slice is reordered in place. It returns the zero time if the
// arguments are invalid.
func FindCutoff(times []time.Time, percentile float64) time.Time {
	if len(times) == 0 || percentile < 0 || percentile > 1 {
		return time.Time{}
	}

	k := int(percentile * float64(len(times)))
	if k >= len(times) {
		k = len(times) - 1
	}
	return quickSelect(times, 0, len(times)-1, k)
}
