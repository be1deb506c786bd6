package optimization

import (
	"math"

	"github.com/aristath/frontier/internal/domain"
)

// HighCorrelationThreshold is the absolute correlation reported by default.
const HighCorrelationThreshold = 0.80

// Summarize picks the sample with the highest Sharpe ratio and the one with the lowest
// volatility. Samples whose value is not finite are skipped; a pick is nil when every
// sample was skipped.
func Summarize(samples *domain.PortfolioSamples) domain.FrontierSummary {
	summary := domain.FrontierSummary{Samples: samples.Len()}

	best, safest := -1, -1
	for i := 0; i < samples.Len(); i++ {
		if isFinite(samples.Sharpe[i]) && (best < 0 || samples.Sharpe[i] > samples.Sharpe[best]) {
			best = i
		}
		if isFinite(samples.Volatilities[i]) && (safest < 0 || samples.Volatilities[i] < samples.Volatilities[safest]) {
			safest = i
		}
	}

	if best >= 0 {
		summary.MaxSharpe = samplePoint(samples, best)
	}
	if safest >= 0 {
		summary.MinVolatility = samplePoint(samples, safest)
	}
	return summary
}

func samplePoint(samples *domain.PortfolioSamples, i int) *domain.SamplePoint {
	return &domain.SamplePoint{
		Index:   i,
		Stats:   samples.At(i),
		Weights: append([]float64(nil), samples.Weights[i]...),
	}
}

// CorrelationMatrix returns the Pearson correlation matrix of the return columns.
func CorrelationMatrix(returns *domain.ReturnTable) ([][]float64, error) {
	moments, err := EstimateMoments(returns)
	if err != nil {
		return nil, err
	}

	cov := moments.CovarianceRows()
	n := len(cov)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		for j := range corr[i] {
			corr[i][j] = cov[i][j] / math.Sqrt(cov[i][i]*cov[j][j])
		}
		corr[i][i] = 1
	}
	return corr, nil
}

// Correlations lists asset pairs whose absolute return correlation is at least threshold.
// Pairs involving a zero-variance asset are skipped.
func Correlations(returns *domain.ReturnTable, threshold float64) ([]domain.CorrelationPair, error) {
	moments, err := EstimateMoments(returns)
	if err != nil {
		return nil, err
	}

	pairs := make([]domain.CorrelationPair, 0)
	if returns.Rows() < 2 {
		return pairs, nil
	}

	cov := moments.Cov
	n := moments.Assets()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := cov.At(i, i), cov.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			correlation := cov.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(correlation) >= threshold {
				pairs = append(pairs, domain.CorrelationPair{
					Ticker1:     moments.Tickers[i],
					Ticker2:     moments.Tickers[j],
					Correlation: correlation,
				})
			}
		}
	}
	return pairs, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
