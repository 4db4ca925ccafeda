package gapfill

import "math"

// InclusionMask marks the stations that satisfy the distance and altitude cutoffs.
// A cutoff <= 0 is disabled. The target always passes.
func InclusionMask(dist, altDiff []float64, distCutoff, altCutoff float64, target int) []bool {
	mask := make([]bool, len(dist))
	for s := range dist {
		if s == target {
			mask[s] = true
			continue
		}
		okDist := distCutoff <= 0 || dist[s] < distCutoff
		okAlt := altCutoff <= 0 || math.Abs(altDiff[s]) < altCutoff
		mask[s] = okDist && okAlt
	}
	return mask
}
