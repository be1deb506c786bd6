// Package assets computes per-asset diagnostics from a return table.
package assets

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/internal/domain"
)

// DefaultRollingWindow is one trading month.
const DefaultRollingWindow = 21

// Summarize returns one summary per ticker, in column order.
// tradingDays <= 0 means domain.DefaultTradingDays and window <= 1 means DefaultRollingWindow.
func Summarize(returns *domain.ReturnTable, tradingDays, window int) []domain.AssetSummary {
	if tradingDays <= 0 {
		tradingDays = domain.DefaultTradingDays
	}
	if window <= 1 {
		window = DefaultRollingWindow
	}
	if returns == nil {
		return []domain.AssetSummary{}
	}

	annualizer := math.Sqrt(float64(tradingDays))
	summaries := make([]domain.AssetSummary, 0, returns.Assets())

	for j, ticker := range returns.Tickers {
		series := returns.Column(j)
		summary := domain.AssetSummary{
			Ticker:            ticker,
			AnnualReturn:      math.NaN(),
			AnnualVolatility:  math.NaN(),
			RollingVolatility: math.NaN(),
			MinDailyReturn:    math.NaN(),
			MaxDailyReturn:    math.NaN(),
			Observations:      len(series),
		}

		if len(series) > 0 {
			summary.AnnualReturn = stat.Mean(series, nil) * float64(tradingDays)
			summary.MinDailyReturn = floats.Min(series)
			summary.MaxDailyReturn = floats.Max(series)
		}
		if len(series) > 1 {
			summary.AnnualVolatility = stat.StdDev(series, nil) * annualizer
		}
		if rolling := RollingVolatility(series, window); len(rolling) > 0 {
			summary.RollingVolatility = rolling[len(rolling)-1] * annualizer
		}

		summaries = append(summaries, summary)
	}

	return summaries
}

// RollingVolatility returns the population standard deviation of each trailing window of
// daily returns, not annualized. The result starts at the first full window, so it has
// len(series)-window+1 entries, or none when the series is shorter than the window.
func RollingVolatility(series []float64, window int) []float64 {
	if window < 2 || len(series) < window {
		return nil
	}
	out := talib.StdDev(series, window, 1.0)
	return out[window-1:]
}
