package regression

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withIntercept(xs []float64) [][]float64 {
	x := make([][]float64, len(xs))
	for i, v := range xs {
		x[i] = []float64{1, v}
	}
	return x
}

func TestOrdinaryLeastSquaresExactFit(t *testing.T) {
	// y = 2 + 3x
	x := withIntercept([]float64{0, 1, 2, 3, 4})
	y := []float64{2, 5, 8, 11, 14}

	coef, err := OrdinaryLeastSquares(x, y)
	require.NoError(t, err)
	require.Len(t, coef, 2)
	assert.InDelta(t, 2.0, coef[0], 1e-9)
	assert.InDelta(t, 3.0, coef[1], 1e-9)
	assert.InDelta(t, 0.0, RMSE(x, y, coef), 1e-9)
}

func TestOrdinaryLeastSquaresRankDeficient(t *testing.T) {
	// Two identical predictor columns: minimum-norm solution splits the weight.
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}}
	y := []float64{2, 4, 6}

	coef, err := OrdinaryLeastSquares(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, coef[0], 1e-9)
	assert.InDelta(t, 1.0, coef[1], 1e-9)
}

func TestOrdinaryLeastSquaresUnderdetermined(t *testing.T) {
	x := [][]float64{{1, 9}}
	y := []float64{10}

	coef, err := OrdinaryLeastSquares(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, Predict(x[0], coef), 1e-9)
}

func TestEmptySample(t *testing.T) {
	_, err := OrdinaryLeastSquares(nil, nil)
	assert.ErrorIs(t, err, ErrEmptySample)

	_, err = LeastAbsoluteDeviations([][]float64{}, []float64{})
	assert.ErrorIs(t, err, ErrEmptySample)
}

func TestShapeMismatch(t *testing.T) {
	_, err := OrdinaryLeastSquares([][]float64{{1}, {2}}, []float64{1})
	assert.Error(t, err)
}

func TestLeastAbsoluteDeviationsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	xs := make([]float64, 60)
	y := make([]float64, 60)
	for i := range xs {
		xs[i] = float64(i)
		y[i] = 1.5 + 0.8*xs[i] + rng.NormFloat64()
	}
	x := withIntercept(xs)

	first, err := LeastAbsoluteDeviations(x, y)
	require.NoError(t, err)
	second, err := LeastAbsoluteDeviations(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, first, second, 1e-6)
}

func TestOLSAndLADAgreeOnGaussianNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 500
	xs := make([]float64, n)
	y := make([]float64, n)
	for i := range xs {
		xs[i] = rng.Float64() * 20
		y[i] = -3 + 1.2*xs[i] + 0.5*rng.NormFloat64()
	}
	x := withIntercept(xs)

	ols, err := OrdinaryLeastSquares(x, y)
	require.NoError(t, err)
	lad, err := LeastAbsoluteDeviations(x, y)
	require.NoError(t, err)

	assert.InDelta(t, ols[0], lad[0], 0.2)
	assert.InDelta(t, ols[1], lad[1], 0.02)
}

func TestLeastAbsoluteDeviationsResistsOutlier(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := make([]float64, len(xs))
	for i, v := range xs {
		y[i] = 1 + 2*v
	}
	y[9] = 100

	x := withIntercept(xs)
	ols, err := OrdinaryLeastSquares(x, y)
	require.NoError(t, err)
	lad, err := LeastAbsoluteDeviations(x, y)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, lad[1], 0.05)
	assert.Greater(t, math.Abs(ols[1]-2.0), math.Abs(lad[1]-2.0))
}

func TestRMSEExcludesExactZeroResiduals(t *testing.T) {
	x := [][]float64{{1}, {1}, {1}, {1}}
	y := []float64{2, 2, 4, 0}
	coef := []float64{2}

	// residuals: 0, 0, -2, 2 -> only the two non-zero ones count
	assert.InDelta(t, 2.0, RMSE(x, y, coef), 1e-12)
}

func TestRMSEAllZeroResiduals(t *testing.T) {
	x := [][]float64{{1}, {2}}
	y := []float64{3, 6}
	assert.Equal(t, 0.0, RMSE(x, y, []float64{3}))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"ols", OLS, false},
		{"", OLS, false},
		{"LAD", LAD, false},
		{"l1", LAD, false},
		{"median", OLS, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
