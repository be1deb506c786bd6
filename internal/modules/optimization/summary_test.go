package optimization

import (
	"math"
	"testing"

	"github.com/aristath/frontier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	samples := &domain.PortfolioSamples{
		Returns:      []float64{0.10, 0.20, 0.05, 0.15},
		Volatilities: []float64{0.20, 0.25, 0.10, math.NaN()},
		Weights:      [][]float64{{0.5, 0.5}, {0.1, 0.9}, {0.9, 0.1}, {0.3, 0.7}},
		Sharpe:       []float64{0.4, 0.72, 0.3, math.Inf(1)},
	}

	summary := Summarize(samples)

	assert.Equal(t, 4, summary.Samples)
	require.NotNil(t, summary.MaxSharpe)
	assert.Equal(t, 1, summary.MaxSharpe.Index, "infinite ratio is skipped")
	assert.Equal(t, []float64{0.1, 0.9}, summary.MaxSharpe.Weights)
	assert.Equal(t, 0.20, summary.MaxSharpe.Stats.Return)

	require.NotNil(t, summary.MinVolatility)
	assert.Equal(t, 2, summary.MinVolatility.Index)
}

func TestSummarize_CopiesWeights(t *testing.T) {
	samples := &domain.PortfolioSamples{
		Returns:      []float64{0.1},
		Volatilities: []float64{0.2},
		Weights:      [][]float64{{1}},
		Sharpe:       []float64{0.5},
	}

	summary := Summarize(samples)
	summary.MaxSharpe.Weights[0] = 42

	assert.Equal(t, 1.0, samples.Weights[0][0])
}

func TestSummarize_NothingFinite(t *testing.T) {
	samples := &domain.PortfolioSamples{
		Returns:      []float64{0},
		Volatilities: []float64{math.NaN()},
		Weights:      [][]float64{{1}},
		Sharpe:       []float64{math.NaN()},
	}

	summary := Summarize(samples)
	assert.Nil(t, summary.MaxSharpe)
	assert.Nil(t, summary.MinVolatility)
}

func TestCorrelations(t *testing.T) {
	returns := returnTable([]string{"GC=F", "SI=F", "NG=F"},
		[]float64{0.01, -0.02, 0.03, 0.00, 0.01},
		[]float64{0.02, -0.04, 0.06, 0.00, 0.02},
		[]float64{0.05, 0.05, -0.02, 0.01, -0.06},
	)

	pairs, err := Correlations(returns, HighCorrelationThreshold)
	require.NoError(t, err)

	require.Len(t, pairs, 1)
	assert.Equal(t, "GC=F", pairs[0].Ticker1)
	assert.Equal(t, "SI=F", pairs[0].Ticker2)
	assert.InDelta(t, 1.0, pairs[0].Correlation, 1e-12)
}

func TestCorrelations_SkipsZeroVariance(t *testing.T) {
	returns := returnTable([]string{"A", "FLAT"},
		[]float64{0.01, -0.02, 0.03},
		[]float64{0, 0, 0},
	)

	pairs, err := Correlations(returns, 0)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestCorrelationMatrix(t *testing.T) {
	corr, err := CorrelationMatrix(twoAssets())
	require.NoError(t, err)

	require.Len(t, corr, 2)
	assert.Equal(t, 1.0, corr[0][0])
	assert.Equal(t, 1.0, corr[1][1])
	assert.InDelta(t, -0.5, corr[0][1], 1e-12)
	assert.Equal(t, corr[0][1], corr[1][0])
}
