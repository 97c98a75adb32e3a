package callstack

import (
	"math"
	"strconv"
)

// FormatBytes rounds v to a whole unit. Values strictly between 0 and 1 are
// shown as "< 1" so a small allocation never reads as zero.
func FormatBytes(v float64) string {
	if v > 0 && v < 1 {
		return "< 1"
	}
	r := math.RoundToEven(v)
	if r == 0 {
		r = 0 // no "-0"
	}
	return strconv.FormatFloat(r, 'f', 0, 64)
}

// FormatCount renders an optional count, "-" when unset.
func FormatCount(n int) string {
	if n < 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

// FormatRate renders an optional per-frame value, "-" when unset.
func FormatRate(v float64) string {
	if v < 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
