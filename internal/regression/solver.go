// Package regression fits the linear models used to estimate missing observations.
//
// Both solvers take a design matrix X (one row per observation, one column per
// predictor) and a target vector y with no missing entries. No intercept column is
// added implicitly; callers append a constant column when the model needs one.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// ConvergenceTolerance is the max absolute coefficient change that ends IRLS.
	ConvergenceTolerance = 1e-6
	// MaxIterations caps the number of IRLS re-weighting passes.
	MaxIterations = 500

	residualFloor = 1e-6
	maxCondition  = 1e10
)

// ErrEmptySample is returned when there is no observation to fit.
var ErrEmptySample = errors.New("regression sample is empty")

// Mode selects the fitting strategy.
type Mode int

const (
	OLS Mode = iota
	LAD
)

func (m Mode) String() string {
	switch m {
	case OLS:
		return "OLS"
	case LAD:
		return "LAD"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "ols", "OLS", "lad", "LAD", "l1" or "L1".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ols", "OLS", "":
		return OLS, nil
	case "lad", "LAD", "l1", "L1":
		return LAD, nil
	}
	return OLS, fmt.Errorf("unknown regression mode %q", s)
}

// Fit dispatches to the solver selected by mode.
func Fit(mode Mode, x [][]float64, y []float64) ([]float64, error) {
	if mode == LAD {
		return LeastAbsoluteDeviations(x, y)
	}
	return OrdinaryLeastSquares(x, y)
}

// OrdinaryLeastSquares returns the coefficients minimizing the squared residuals.
// Rank-deficient or under-determined systems get the minimum-norm solution.
func OrdinaryLeastSquares(x [][]float64, y []float64) ([]float64, error) {
	a, b, err := dense(x, y)
	if err != nil {
		return nil, err
	}
	return lstsq(a, b), nil
}

// LeastAbsoluteDeviations fits an L1 regression by iteratively reweighted least
// squares, starting from the OLS solution.
func LeastAbsoluteDeviations(x [][]float64, y []float64) ([]float64, error) {
	a, b, err := dense(x, y)
	if err != nil {
		return nil, err
	}
	rows, cols := a.Dims()

	coef := lstsq(a, b)
	prev := make([]float64, cols)
	copy(prev, coef)
	prev[0] += 1e-5

	wa := mat.NewDense(rows, cols, nil)
	wb := mat.NewVecDense(rows, nil)
	for iter := 0; iter < MaxIterations && maxAbsDiff(coef, prev) >= ConvergenceTolerance; iter++ {
		copy(prev, coef)
		for i := 0; i < rows; i++ {
			pred := 0.0
			for j := 0; j < cols; j++ {
				pred += a.At(i, j) * coef[j]
			}
			r := math.Max(math.Abs(b.AtVec(i)-pred), residualFloor)
			scale := math.Pow(r, -0.5)
			for j := 0; j < cols; j++ {
				wa.Set(i, j, a.At(i, j)*scale)
			}
			wb.SetVec(i, b.AtVec(i)*scale)
		}
		coef = lstsq(wa, wb)
	}
	return coef, nil
}

// Predict returns the dot product of one predictor row with the coefficients.
func Predict(row, coef []float64) float64 {
	return floats.Dot(row, coef)
}

// RMSE is the root mean square of the non-zero residuals of the model over the
// sample. Residuals that are exactly zero do not count toward the mean. When
// every residual is zero the result is 0 rather than the NaN of an empty mean,
// so a perfect fit reports no error and averages cleanly into the fill report.
func RMSE(x [][]float64, y, coef []float64) float64 {
	sum := 0.0
	n := 0
	for i := range x {
		r := Predict(x[i], coef) - y[i]
		if r == 0 {
			continue
		}
		sum += r * r
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func dense(x [][]float64, y []float64) (*mat.Dense, *mat.VecDense, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, nil, ErrEmptySample
	}
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("design matrix has %d rows but target has %d", len(x), len(y))
	}
	cols := len(x[0])
	a := mat.NewDense(len(x), cols, nil)
	for i, row := range x {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("design matrix row %d has %d columns, expected %d", i, len(row), cols)
		}
		a.SetRow(i, row)
	}
	b := mat.NewVecDense(len(y), append([]float64(nil), y...))
	return a, b, nil
}

// lstsq solves min ||a·c - b||. Well-conditioned over-determined systems go through
// QR; anything else falls back to the truncated SVD minimum-norm solution.
func lstsq(a *mat.Dense, b *mat.VecDense) []float64 {
	rows, cols := a.Dims()
	dst := mat.NewVecDense(cols, nil)

	if rows >= cols {
		var qr mat.QR
		qr.Factorize(a)
		if qr.Cond() < maxCondition {
			if err := qr.SolveVecTo(dst, false, b); err == nil {
				return dst.RawVector().Data
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return make([]float64, cols)
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(rows, cols)))
	if rank == 0 {
		return make([]float64, cols)
	}
	dst = mat.NewVecDense(cols, nil)
	svd.SolveVecTo(dst, b, rank)
	return dst.RawVector().Data
}

func maxAbsDiff(a, b []float64) float64 {
	m := 0.0
	for i := range a {
		m = math.Max(m, math.Abs(a[i]-b[i]))
	}
	return m
}
