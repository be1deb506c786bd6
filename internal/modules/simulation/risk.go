package simulation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/internal/domain"
)

// DefaultConfidence is the confidence level of the reported VaR and CVaR.
const DefaultConfidence = 0.95

// Percentile returns the p-th percentile (0-100) of values using linear interpolation
// between closest ranks, the numpy default. Empty input yields NaN.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func finalValues(portfolioPaths [][]float64) []float64 {
	if len(portfolioPaths) == 0 {
		return nil
	}
	return portfolioPaths[len(portfolioPaths)-1]
}

// ValueAtRisk returns the (1-confidence) percentile of the final portfolio values.
func ValueAtRisk(portfolioPaths [][]float64, confidence float64) float64 {
	return Percentile(finalValues(portfolioPaths), 100*(1-confidence))
}

// ExpectedShortfall returns the mean of the final values at or below the VaR.
func ExpectedShortfall(portfolioPaths [][]float64, confidence float64) float64 {
	final := finalValues(portfolioPaths)
	if len(final) == 0 {
		return math.NaN()
	}
	threshold := ValueAtRisk(portfolioPaths, confidence)

	tail := make([]float64, 0, len(final)/10+1)
	for _, v := range final {
		if v <= threshold {
			tail = append(tail, v)
		}
	}
	if len(tail) == 0 {
		return math.NaN()
	}
	return stat.Mean(tail, nil)
}

// Analyze summarises the distribution of final portfolio values.
// StdDev is the population standard deviation.
func Analyze(portfolioPaths [][]float64) domain.RiskMetrics {
	final := finalValues(portfolioPaths)
	if len(final) == 0 {
		nan := math.NaN()
		return domain.RiskMetrics{
			Mean: nan, Median: nan, StdDev: nan, Min: nan, Max: nan,
			VaR95: nan, CVaR95: nan,
			Percentile5: nan, Percentile25: nan, Percentile75: nan, Percentile95: nan,
		}
	}

	sorted := append([]float64(nil), final...)
	sort.Float64s(sorted)
	mean, std := stat.PopMeanStdDev(final, nil)

	return domain.RiskMetrics{
		Mean:         mean,
		Median:       percentileSorted(sorted, 50),
		StdDev:       std,
		Min:          floats.Min(final),
		Max:          floats.Max(final),
		VaR95:        ValueAtRisk(portfolioPaths, DefaultConfidence),
		CVaR95:       ExpectedShortfall(portfolioPaths, DefaultConfidence),
		Percentile5:  percentileSorted(sorted, 5),
		Percentile25: percentileSorted(sorted, 25),
		Percentile75: percentileSorted(sorted, 75),
		Percentile95: percentileSorted(sorted, 95),
	}
}
