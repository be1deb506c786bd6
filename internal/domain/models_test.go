package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioStats_JSONNonFiniteAsNull(t *testing.T) {
	stats := PortfolioStats{Return: 0.1, Volatility: 0, Sharpe: math.Inf(1)}

	data, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.JSONEq(t, `{"return":0.1,"volatility":0,"sharpe_ratio":null}`, string(data))

	var decoded PortfolioStats
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 0.1, decoded.Return)
	assert.True(t, math.IsNaN(decoded.Sharpe))
}

func TestPortfolioSamples_LenAndAt(t *testing.T) {
	samples := NewPortfolioSamples(3)
	samples.Returns[1] = 0.2
	samples.Volatilities[1] = 0.3
	samples.Sharpe[1] = 0.6
	samples.Weights[1] = []float64{0.5, 0.5}

	assert.Equal(t, 3, samples.Len())
	assert.Equal(t, PortfolioStats{Return: 0.2, Volatility: 0.3, Sharpe: 0.6}, samples.At(1))

	data, err := json.Marshal(samples)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sharpe_ratios":[0,0.6,0]`)
}

func TestSimulationResult_FinalValues(t *testing.T) {
	result := &SimulationResult{PortfolioPaths: [][]float64{{1, 1}, {1.1, 0.9}}}

	final := result.FinalValues()
	assert.Equal(t, []float64{1.1, 0.9}, final)

	final[0] = 42
	assert.Equal(t, 1.1, result.PortfolioPaths[1][0], "FinalValues must copy")

	assert.Nil(t, (&SimulationResult{}).FinalValues())
}

func TestRiskMetrics_JSONRoundTrip(t *testing.T) {
	metrics := RiskMetrics{Mean: 101.5, Median: 100, VaR95: 88.2, CVaR95: math.NaN()}

	data, err := json.Marshal(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"var_95":88.2`)
	assert.Contains(t, string(data), `"cvar_95":null`)

	var decoded RiskMetrics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 101.5, decoded.Mean)
	assert.True(t, math.IsNaN(decoded.CVaR95))
}

func TestAssetSummary_JSONNullRollingVolatility(t *testing.T) {
	summary := AssetSummary{Ticker: "NG=F", AnnualReturn: 0.12, RollingVolatility: math.NaN(), Observations: 3}

	data, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rolling_volatility":null`)
	assert.Contains(t, string(data), `"ticker":"NG=F"`)

	var decoded AssetSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.Observations)
	assert.True(t, math.IsNaN(decoded.RollingVolatility))
}
