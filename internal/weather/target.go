package weather

import (
	"fmt"
	"math"

	"github.com/chrissnell/wxgapfill/pkg/geo"
	"gonum.org/v1/gonum/stat"
)

// DefaultMinPairs is the minimum number of paired observations (half a year) needed
// before a correlation coefficient is computed between two stations.
const DefaultMinPairs = 182

// Target identifies the station to fill and how every station of the dataset relates to it.
type Target struct {
	Index int
	Name  string

	// CorrCoef is indexed [variable][station]; missing when too few pairs exist.
	CorrCoef [][]float64
	// HorDist is the horizontal distance to the target in km.
	HorDist []float64
	// AltDiff is the altitude of each station minus the target's, in m.
	AltDiff []float64
}

// Clone returns a deep copy of the target.
func (t *Target) Clone() *Target {
	c := &Target{
		Index:    t.Index,
		Name:     t.Name,
		CorrCoef: make([][]float64, len(t.CorrCoef)),
		HorDist:  append([]float64(nil), t.HorDist...),
		AltDiff:  append([]float64(nil), t.AltDiff...),
	}
	for v := range t.CorrCoef {
		c.CorrCoef[v] = append([]float64(nil), t.CorrCoef[v]...)
	}
	return c
}

// SelectTarget builds the correlation matrix and the distance and altitude arrays
// for the station at index. minPairs <= 0 selects DefaultMinPairs.
func SelectTarget(ds *Dataset, index int, minPairs int) (*Target, error) {
	if index < 0 || index >= len(ds.Stations) {
		return nil, fmt.Errorf("station index %d out of range [0, %d)", index, len(ds.Stations))
	}
	if minPairs <= 0 {
		minPairs = DefaultMinPairs
	}

	target := &Target{
		Index:    index,
		Name:     ds.Stations[index].Name,
		CorrCoef: make([][]float64, len(ds.Variables)),
	}

	for v := range ds.Variables {
		row := make([]float64, len(ds.Stations))
		ys := ds.Series(index, v)
		for s := range ds.Stations {
			row[s] = pairCorrelation(ys, ds.Series(s, v), minPairs, !IsTemperature(v))
		}
		target.CorrCoef[v] = row
	}

	target.HorDist, target.AltDiff = Distances(ds.Stations, index)
	return target, nil
}

// Distances returns the horizontal distance and the altitude difference of every
// station relative to the station at index.
func Distances(stations []Station, index int) ([]float64, []float64) {
	ref := stations[index]
	dist := make([]float64, len(stations))
	alt := make([]float64, len(stations))
	for s, st := range stations {
		dist[s] = geo.HorizontalDistance(ref.Latitude, ref.Longitude, st.Latitude, st.Longitude)
		alt[s] = geo.AltitudeDifference(ref.Altitude, st.Altitude)
	}
	return dist, alt
}

// pairCorrelation computes the Pearson coefficient over rows where both series hold
// a value. For precipitation, only pairs with at least one non-zero value count
// toward minPairs.
func pairCorrelation(a, b []float64, minPairs int, precip bool) float64 {
	xs := make([]float64, 0, len(a))
	ys := make([]float64, 0, len(a))
	counted := 0
	for i := range a {
		if IsMissing(a[i]) || IsMissing(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
		if !precip || a[i] != 0 || b[i] != 0 {
			counted++
		}
	}
	if counted < minPairs {
		return Missing()
	}

	r := stat.Correlation(xs, ys, nil)
	if math.IsInf(r, 0) {
		return Missing()
	}
	return r
}
