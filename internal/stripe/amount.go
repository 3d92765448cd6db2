package stripe

import "math"

// MinorUnits converts a decimal amount into the processor's integer
// minor-unit representation, rounding half up at the cent boundary:
// 19.999 becomes 2000, not 1999.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
