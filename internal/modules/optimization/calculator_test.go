package optimization

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func returnTable(tickers []string, columns ...[]float64) *domain.ReturnTable {
	rows := len(columns[0])
	dates := make([]time.Time, rows)
	values := make([][]float64, rows)
	for i := range values {
		dates[i] = time.Date(2023, 1, 3+i, 0, 0, 0, 0, time.UTC)
		values[i] = make([]float64, len(columns))
		for j, col := range columns {
			values[i][j] = col[i]
		}
	}
	return domain.NewReturnTable(dates, tickers, values)
}

// twoAssets has mean daily returns 0.001 and 0.002.
func twoAssets() *domain.ReturnTable {
	return returnTable([]string{"GC=F", "CL=F"},
		[]float64{0.000, 0.002, 0.001, 0.001},
		[]float64{0.003, 0.002, 0.001, 0.002},
	)
}

func TestPortfolioStats_AnnualizedReturn(t *testing.T) {
	calc := NewCalculator(0.02)

	stats, err := calc.PortfolioStats(twoAssets(), []float64{0.5, 0.5}, 252)
	require.NoError(t, err)

	assert.InDelta(t, 0.378, stats.Return, 1e-12)
}

func TestPortfolioStats_VolatilityAndSharpe(t *testing.T) {
	calc := NewCalculator(0.02)

	stats, err := calc.PortfolioStats(twoAssets(), []float64{0.5, 0.5}, 252)
	require.NoError(t, err)

	// var(A) = var(B) = 2e-6/3, cov(A,B) = -1e-6/3
	expectedVol := math.Sqrt(0.5e-6/3) * math.Sqrt(252)
	assert.InDelta(t, expectedVol, stats.Volatility, 1e-10)
	assert.InDelta(t, (0.378-0.02)/expectedVol, stats.Sharpe, 1e-6)
}

func TestPortfolioStats_DefaultTradingDays(t *testing.T) {
	calc := NewCalculator(0)

	withDefault, err := calc.PortfolioStats(twoAssets(), []float64{0.5, 0.5}, 0)
	require.NoError(t, err)
	explicit, err := calc.PortfolioStats(twoAssets(), []float64{0.5, 0.5}, domain.DefaultTradingDays)
	require.NoError(t, err)

	assert.Equal(t, explicit, withDefault)
}

func TestPortfolioStats_WeightsMustSumToOne(t *testing.T) {
	calc := NewCalculator(0.02)

	_, err := calc.PortfolioStats(twoAssets(), []float64{0.5, 0.3}, 252)
	assert.ErrorIs(t, err, ErrWeightsSum)
}

func TestPortfolioStats_SumTolerance(t *testing.T) {
	calc := NewCalculator(0.02)

	_, err := calc.PortfolioStats(twoAssets(), []float64{0.505, 0.5}, 252)
	assert.NoError(t, err, "1.005 is within 1%")

	_, err = calc.PortfolioStats(twoAssets(), []float64{0.52, 0.5}, 252)
	assert.ErrorIs(t, err, ErrWeightsSum)

	_, err = calc.PortfolioStats(twoAssets(), []float64{1.5, -0.5}, 252)
	assert.NoError(t, err, "short positions are allowed")
}

func TestPortfolioStats_DimensionMismatch(t *testing.T) {
	calc := NewCalculator(0.02)

	_, err := calc.PortfolioStats(twoAssets(), []float64{0.2, 0.3, 0.5}, 252)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPortfolioStats_SumCheckedBeforeDimension(t *testing.T) {
	calc := NewCalculator(0.02)

	_, err := calc.PortfolioStats(twoAssets(), []float64{0.2, 0.3, 0.1}, 252)
	assert.ErrorIs(t, err, ErrWeightsSum)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)
}

func TestPortfolioStats_Idempotent(t *testing.T) {
	calc := NewCalculator(0.02)
	returns := twoAssets()

	first, err := calc.PortfolioStats(returns, []float64{0.3, 0.7}, 252)
	require.NoError(t, err)
	second, err := calc.PortfolioStats(returns, []float64{0.3, 0.7}, 252)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(first.Return), math.Float64bits(second.Return))
	assert.Equal(t, math.Float64bits(first.Volatility), math.Float64bits(second.Volatility))
	assert.Equal(t, math.Float64bits(first.Sharpe), math.Float64bits(second.Sharpe))
}

func TestPortfolioStats_ZeroVolatility(t *testing.T) {
	flat := returnTable([]string{"FLAT"}, []float64{0, 0, 0, 0, 0})

	stats, err := NewCalculator(0.02).PortfolioStats(flat, []float64{1}, 252)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stats.Volatility)
	assert.True(t, math.IsInf(stats.Sharpe, -1), "negative excess return over zero volatility")

	stats, err = NewCalculator(0).PortfolioStats(flat, []float64{1}, 252)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(stats.Sharpe), "zero over zero")
}

func TestPortfolioStats_EmptyReturns(t *testing.T) {
	empty := domain.NewReturnTable(nil, []string{"A", "B"}, nil)

	_, err := NewCalculator(0.02).PortfolioStats(empty, []float64{0.5, 0.5}, 252)
	assert.ErrorIs(t, err, ErrEmptyReturns)
}

func TestPortfolioStats_NilReturns(t *testing.T) {
	var rets *domain.ReturnTable

	assert.NotPanics(t, func() {
		_, err := NewCalculator(0).PortfolioStats(rets, []float64{1}, 252)
		assert.ErrorIs(t, err, ErrEmptyReturns)
	})
}

func TestEstimateMoments(t *testing.T) {
	moments, err := EstimateMoments(twoAssets())
	require.NoError(t, err)

	assert.Equal(t, 2, moments.Assets())
	assert.InDelta(t, 0.001, moments.Mean[0], 1e-15)
	assert.InDelta(t, 0.002, moments.Mean[1], 1e-15)

	cov := moments.CovarianceRows()
	assert.InDelta(t, 2e-6/3, cov[0][0], 1e-15)
	assert.InDelta(t, 2e-6/3, cov[1][1], 1e-15)
	assert.InDelta(t, -1e-6/3, cov[0][1], 1e-15)
	assert.Equal(t, cov[0][1], cov[1][0])
}

func TestEstimateMoments_SingleObservation(t *testing.T) {
	moments, err := EstimateMoments(returnTable([]string{"A"}, []float64{0.01}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(moments.Cov.At(0, 0)))
}

func TestValidateWeights(t *testing.T) {
	assert.NoError(t, ValidateWeights(EqualWeights(5), 5))
	assert.ErrorIs(t, ValidateWeights(nil, 2), ErrWeightsSum)
	assert.ErrorIs(t, ValidateWeights([]float64{math.NaN(), 1}, 2), ErrWeightsSum)
	assert.ErrorIs(t, ValidateWeights([]float64{1}, 2), ErrDimensionMismatch)
}

func TestEqualWeights(t *testing.T) {
	w := EqualWeights(4)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, w)
}
