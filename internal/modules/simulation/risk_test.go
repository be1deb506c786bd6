package simulation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func oneToTen() [][]float64 {
	// two days, final day holds 10..1 in reverse to exercise sorting
	return [][]float64{
		{5, 5, 5, 5, 5, 5, 5, 5, 5, 5},
		{10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	assert.InDelta(t, 1.45, Percentile(values, 5), 1e-12)
	assert.InDelta(t, 5.5, Percentile(values, 50), 1e-12)
	assert.InDelta(t, 9.55, Percentile(values, 95), 1e-12)
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 10.0, Percentile(values, 100))
	assert.True(t, math.IsNaN(Percentile(nil, 50)))

	// input is left untouched
	assert.Equal(t, 10.0, values[0])
}

func TestValueAtRisk(t *testing.T) {
	assert.InDelta(t, 1.45, ValueAtRisk(oneToTen(), 0.95), 1e-12)
	assert.InDelta(t, 1.9, ValueAtRisk(oneToTen(), 0.90), 1e-12)
}

func TestExpectedShortfall(t *testing.T) {
	assert.Equal(t, 1.0, ExpectedShortfall(oneToTen(), 0.95))
	assert.Equal(t, 1.0, ExpectedShortfall(oneToTen(), 0.90))
	assert.InDelta(t, 2.0, ExpectedShortfall(oneToTen(), 0.75), 1e-12) // VaR 3.25, tail {1,2,3}
	assert.True(t, math.IsNaN(ExpectedShortfall(nil, 0.95)))
}

func TestAnalyze(t *testing.T) {
	metrics := Analyze(oneToTen())

	assert.InDelta(t, 5.5, metrics.Mean, 1e-12)
	assert.InDelta(t, 5.5, metrics.Median, 1e-12)
	assert.InDelta(t, math.Sqrt(8.25), metrics.StdDev, 1e-12)
	assert.Equal(t, 1.0, metrics.Min)
	assert.Equal(t, 10.0, metrics.Max)
	assert.InDelta(t, 1.45, metrics.VaR95, 1e-12)
	assert.Equal(t, 1.0, metrics.CVaR95)
	assert.InDelta(t, 1.45, metrics.Percentile5, 1e-12)
	assert.InDelta(t, 3.25, metrics.Percentile25, 1e-12)
	assert.InDelta(t, 7.75, metrics.Percentile75, 1e-12)
	assert.InDelta(t, 9.55, metrics.Percentile95, 1e-12)
}

func TestAnalyze_Empty(t *testing.T) {
	metrics := Analyze(nil)
	assert.True(t, math.IsNaN(metrics.Mean))
	assert.True(t, math.IsNaN(metrics.VaR95))
}
