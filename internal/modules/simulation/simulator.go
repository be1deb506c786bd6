// Package simulation runs correlated Monte Carlo price paths for a weighted basket
// and summarises the distribution of final portfolio values.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/returns"
)

const (
	// DefaultSimulations is the number of paths drawn when Options.Sims is zero.
	DefaultSimulations = 1000
	// DefaultHorizon is the path length in trading days when Options.Horizon is zero.
	DefaultHorizon = 252

	// choleskyJitter is added to the diagonal of a repaired covariance matrix.
	choleskyJitter = 1e-12
)

var (
	// ErrInvalidOptions means the simulation count or horizon is out of range.
	ErrInvalidOptions = errors.New("invalid simulation options")
	// ErrCovariance means the return covariance could not be factorized, even after repair.
	ErrCovariance = errors.New("covariance matrix cannot be factorized")
)

// Options configures Simulate.
type Options struct {
	Sims     int
	Horizon  int
	Rand     *rand.Rand
	Progress func(done, total int)
}

// Simulate draws correlated daily log returns from the historical mean and covariance
// and compounds them from the last observed prices.
//
// Day 0 of every path is the last observed price. For t >= 1,
// price[t] = price[t-1] * exp(mu + L*z) where L is the Cholesky factor of the covariance
// and z is a standard normal vector. The portfolio value is the weighted sum of prices.
func Simulate(prices *domain.PriceTable, weights []float64, opts Options) (*domain.SimulationResult, error) {
	started := time.Now()

	if prices == nil || prices.Empty() {
		return nil, optimization.ErrEmptyReturns
	}
	if len(weights) != prices.Assets() {
		return nil, fmt.Errorf("%w: %d weights for %d assets", optimization.ErrDimensionMismatch, len(weights), prices.Assets())
	}
	if err := optimization.ValidateWeights(weights, prices.Assets()); err != nil {
		return nil, err
	}

	if opts.Sims == 0 {
		opts.Sims = DefaultSimulations
	}
	if opts.Horizon == 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.Sims < 0 || opts.Horizon < 0 {
		return nil, fmt.Errorf("%w: sims=%d horizon=%d", ErrInvalidOptions, opts.Sims, opts.Horizon)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	daily, err := returns.CalculateDailyReturns(prices)
	if err != nil {
		return nil, err
	}
	moments, err := optimization.EstimateMoments(daily)
	if err != nil {
		return nil, err
	}
	chol, err := choleskyFactor(moments.Cov)
	if err != nil {
		return nil, err
	}

	n, horizon, sims := prices.Assets(), opts.Horizon, opts.Sims
	last := prices.Last()

	pricePaths := make([][][]float64, n)
	for a := range pricePaths {
		pricePaths[a] = make([][]float64, horizon)
		for t := range pricePaths[a] {
			pricePaths[a][t] = make([]float64, sims)
		}
	}
	portfolioPaths := make([][]float64, horizon)
	for t := range portfolioPaths {
		portfolioPaths[t] = make([]float64, sims)
	}

	z := mat.NewVecDense(n, nil)
	shock := mat.NewVecDense(n, nil)
	current := make([]float64, n)
	step := max(1, sims/100)

	for s := 0; s < sims; s++ {
		copy(current, last)
		for t := 0; t < horizon; t++ {
			if t > 0 {
				for a := 0; a < n; a++ {
					z.SetVec(a, rng.NormFloat64())
				}
				shock.MulVec(chol, z)
				for a := 0; a < n; a++ {
					current[a] *= math.Exp(moments.Mean[a] + shock.AtVec(a))
				}
			}

			var value float64
			for a := 0; a < n; a++ {
				pricePaths[a][t][s] = current[a]
				value += weights[a] * current[a]
			}
			portfolioPaths[t][s] = value
		}

		if opts.Progress != nil && ((s+1)%step == 0 || s+1 == sims) {
			opts.Progress(s+1, sims)
		}
	}

	return &domain.SimulationResult{
		Tickers:        append([]string(nil), prices.Tickers...),
		PortfolioPaths: portfolioPaths,
		PricePaths:     pricePaths,
		Elapsed:        time.Since(started),
	}, nil
}

// choleskyFactor returns the lower triangular L with L*Lᵀ = cov. A covariance that is
// not positive definite is repaired by clamping negative eigenvalues to zero and adding
// a small diagonal jitter before factorizing again.
func choleskyFactor(cov *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		repaired, err := nearestPSD(cov)
		if err != nil {
			return nil, err
		}
		if !chol.Factorize(repaired) {
			return nil, fmt.Errorf("%w: not positive semi-definite after repair", ErrCovariance)
		}
	}

	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}

func nearestPSD(cov *mat.SymDense) (*mat.SymDense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("%w: eigen decomposition failed", ErrCovariance)
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	n := len(values)
	for i, v := range values {
		if v < 0 || math.IsNaN(v) {
			values[i] = 0
		}
	}

	var scaled mat.Dense
	scaled.Mul(&vectors, mat.NewDiagDense(n, values))
	var rebuilt mat.Dense
	rebuilt.Mul(&scaled, vectors.T())

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (rebuilt.At(i, j) + rebuilt.At(j, i)) / 2
			if i == j {
				v += choleskyJitter
			}
			out.SetSym(i, j, v)
		}
	}
	return out, nil
}
