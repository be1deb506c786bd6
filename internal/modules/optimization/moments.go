// Package optimization computes portfolio statistics and samples random portfolios
// to approximate the efficient frontier.
package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/internal/domain"
)

// ErrEmptyReturns means the return table has no assets or no observations.
var ErrEmptyReturns = errors.New("return table is empty")

// Moments holds the per-asset mean daily return and the sample covariance of a return table.
// Both are computed once and shared read-only by every statistics computation.
type Moments struct {
	Tickers []string
	Mean    []float64
	Cov     *mat.SymDense
}

// EstimateMoments computes the mean vector and sample covariance (N-1 denominator).
// A single observation yields a NaN covariance, as there is no spread to estimate.
func EstimateMoments(returns *domain.ReturnTable) (*Moments, error) {
	if returns == nil || returns.Empty() {
		return nil, ErrEmptyReturns
	}
	if err := returns.Validate(); err != nil {
		return nil, fmt.Errorf("malformed return table: %w", err)
	}

	rows, assets := returns.Rows(), returns.Assets()
	data := mat.NewDense(rows, assets, returns.Flatten())

	mean := make([]float64, assets)
	col := make([]float64, rows)
	for j := 0; j < assets; j++ {
		mat.Col(col, j, data)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(assets, nil)
	if rows < 2 {
		for i := 0; i < assets; i++ {
			for j := i; j < assets; j++ {
				cov.SetSym(i, j, math.NaN())
			}
		}
	} else {
		stat.CovarianceMatrix(cov, data, nil)
	}

	return &Moments{
		Tickers: append([]string(nil), returns.Tickers...),
		Mean:    mean,
		Cov:     cov,
	}, nil
}

// Assets returns the number of assets the moments describe.
func (m *Moments) Assets() int {
	return len(m.Mean)
}

// CovarianceRows copies the covariance matrix into a slice of rows.
func (m *Moments) CovarianceRows() [][]float64 {
	n := m.Assets()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.Cov.At(i, j)
		}
	}
	return out
}

// Stats annualizes the weighted mean and variance.
// A zero volatility propagates IEEE semantics into the ratio: ±Inf, or NaN when the
// excess return is also zero.
func (m *Moments) Stats(weights []float64, tradingDays int, riskFreeRate float64) domain.PortfolioStats {
	days := float64(tradingDays)
	w := mat.NewVecDense(len(weights), weights)

	ret := floats.Dot(m.Mean, weights) * days
	vol := math.Sqrt(mat.Inner(w, m.Cov, w)) * math.Sqrt(days)

	return domain.PortfolioStats{
		Return:     ret,
		Volatility: vol,
		Sharpe:     (ret - riskFreeRate) / vol,
	}
}
