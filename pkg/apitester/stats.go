package apitester

import "math"

// Percentile returns the p-th percentile (0..100) of ascending-sorted
// samples using linear interpolation between adjacent ranks. When the
// computed rank lands exactly on a sample, that sample is returned.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	frac := rank - float64(lower)
	if frac == 0 {
		return sorted[lower]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}
