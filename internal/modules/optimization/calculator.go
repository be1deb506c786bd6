package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/frontier/internal/domain"
)

var (
	// ErrWeightsSum means the weights do not sum to one within WeightSumTolerance.
	ErrWeightsSum = errors.New("weights must sum to one")
	// ErrDimensionMismatch means there is not exactly one weight per asset.
	ErrDimensionMismatch = errors.New("weight count does not match asset count")
	// ErrInvalidSampleCount means a negative number of random portfolios was requested.
	ErrInvalidSampleCount = errors.New("invalid number of portfolios")
)

const (
	// WeightSumTolerance is the relative tolerance on the weight sum.
	WeightSumTolerance = 1e-2
	// weightSumAbsTolerance matches the absolute term of numpy.isclose.
	weightSumAbsTolerance = 1e-8
)

// Calculator computes annualized portfolio statistics.
// RiskFreeRate is the annual rate subtracted from the return in the Sharpe ratio.
type Calculator struct {
	RiskFreeRate float64
}

// NewCalculator creates a calculator using riskFreeRate for every ratio it computes.
func NewCalculator(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// PortfolioStats returns the annualized return, volatility and Sharpe ratio of weights
// held against returns. tradingDays <= 0 means domain.DefaultTradingDays.
//
// Weights are checked before anything is computed: first the sum, then the length.
func (c *Calculator) PortfolioStats(returns *domain.ReturnTable, weights []float64, tradingDays int) (domain.PortfolioStats, error) {
	if returns == nil {
		return domain.PortfolioStats{}, ErrEmptyReturns
	}
	if err := ValidateWeights(weights, returns.Assets()); err != nil {
		return domain.PortfolioStats{}, err
	}

	moments, err := EstimateMoments(returns)
	if err != nil {
		return domain.PortfolioStats{}, err
	}

	return moments.Stats(weights, normalizeTradingDays(tradingDays), c.RiskFreeRate), nil
}

// ValidateWeights checks the sum first, then the length against assets.
func ValidateWeights(weights []float64, assets int) error {
	sum := floats.Sum(weights)
	if !(math.Abs(sum-1) <= weightSumAbsTolerance+WeightSumTolerance) {
		return fmt.Errorf("%w: got %.6f", ErrWeightsSum, sum)
	}
	if len(weights) != assets {
		return fmt.Errorf("%w: %d weights for %d assets", ErrDimensionMismatch, len(weights), assets)
	}
	return nil
}

// EqualWeights returns n weights of 1/n.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func normalizeTradingDays(days int) int {
	if days <= 0 {
		return domain.DefaultTradingDays
	}
	return days
}
