package gapfill

import (
	"sort"

	"github.com/chrissnell/wxgapfill/internal/weather"
)

// RankStations orders station indices for one variable: the target first, then every
// other station with a usable coefficient by descending correlation. Stations whose
// coefficient is missing are dropped. Equal coefficients keep their index order.
func RankStations(corr []float64, target int) []int {
	ranked := make([]int, 0, len(corr))
	for s, r := range corr {
		if s == target || weather.IsMissing(r) {
			continue
		}
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return corr[ranked[i]] > corr[ranked[j]]
	})
	return append([]int{target}, ranked...)
}

// usableStations counts non-missing coefficients in one correlation row, target included.
func usableStations(corr []float64) int {
	n := 0
	for _, r := range corr {
		if !weather.IsMissing(r) {
			n++
		}
	}
	return n
}
