package optimization

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomPortfolios_Lengths(t *testing.T) {
	calc := NewCalculator(0.02)

	samples, err := calc.GenerateRandomPortfolios(context.Background(), twoAssets(), 500, 252, WithSeed(7))
	require.NoError(t, err)

	assert.Equal(t, 500, samples.Len())
	assert.Len(t, samples.Returns, 500)
	assert.Len(t, samples.Volatilities, 500)
	assert.Len(t, samples.Weights, 500)
	assert.Len(t, samples.Sharpe, 500)
}

func TestGenerateRandomPortfolios_WeightsSumToOne(t *testing.T) {
	calc := NewCalculator(0.02)
	returns := returnTable([]string{"GC=F", "SI=F", "CL=F"},
		[]float64{0.010, -0.004, 0.002, 0.007, -0.001},
		[]float64{0.012, -0.006, 0.001, 0.009, 0.000},
		[]float64{-0.020, 0.015, 0.004, -0.003, 0.011},
	)

	samples, err := calc.GenerateRandomPortfolios(context.Background(), returns, 1000, 252, WithSeed(42))
	require.NoError(t, err)

	for i, w := range samples.Weights {
		require.Len(t, w, 3)
		var sum float64
		for _, v := range w {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "sample %d", i)
	}
}

func TestGenerateRandomPortfolios_MatchesPortfolioStats(t *testing.T) {
	calc := NewCalculator(0.02)
	returns := twoAssets()

	samples, err := calc.GenerateRandomPortfolios(context.Background(), returns, 50, 252, WithSeed(3))
	require.NoError(t, err)

	for i := 0; i < samples.Len(); i++ {
		expected, err := calc.PortfolioStats(returns, samples.Weights[i], 252)
		require.NoError(t, err)
		assert.InDelta(t, expected.Return, samples.Returns[i], 1e-12)
		assert.InDelta(t, expected.Volatility, samples.Volatilities[i], 1e-12)
	}
}

func TestGenerateRandomPortfolios_SeedIsReproducible(t *testing.T) {
	calc := NewCalculator(0.02)
	ctx := context.Background()

	a, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), 200, 252, WithSeed(99))
	require.NoError(t, err)
	b, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), 200, 252, WithRand(NewSeededRand(99)))
	require.NoError(t, err)
	c, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), 200, 252, WithSeed(100))
	require.NoError(t, err)

	assert.Equal(t, a.Weights, b.Weights)
	assert.Equal(t, a.Returns, b.Returns)
	assert.NotEqual(t, a.Weights, c.Weights)
}

func TestGenerateRandomPortfolios_WorkersAreReproducible(t *testing.T) {
	calc := NewCalculator(0.02)
	ctx := context.Background()

	a, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), 1000, 252, WithSeed(5), WithWorkers(4))
	require.NoError(t, err)
	b, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), 1000, 252, WithSeed(5), WithWorkers(4))
	require.NoError(t, err)

	assert.Equal(t, a.Weights, b.Weights)
	for i, w := range a.Weights {
		require.NotNil(t, w, "slot %d filled", i)
	}
}

func TestGenerateRandomPortfolios_MoreWorkersThanSamples(t *testing.T) {
	samples, err := NewCalculator(0).GenerateRandomPortfolios(context.Background(), twoAssets(), 3, 252, WithSeed(1), WithWorkers(16))
	require.NoError(t, err)
	assert.Equal(t, 3, samples.Len())
	for _, w := range samples.Weights {
		assert.Len(t, w, 2)
	}
}

func TestGenerateRandomPortfolios_Progress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][2]int
	)
	progress := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{done, total})
	}

	_, err := NewCalculator(0).GenerateRandomPortfolios(context.Background(), twoAssets(), 400, 252,
		WithSeed(1), WithWorkers(2), WithProgress(progress))
	require.NoError(t, err)

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{400, 400}, calls[len(calls)-1])
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i][0], calls[i-1][0])
	}
}

func TestGenerateRandomPortfolios_Defaults(t *testing.T) {
	samples, err := NewCalculator(0).GenerateRandomPortfolios(context.Background(), twoAssets(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultNumPortfolios, samples.Len())
}

func TestGenerateRandomPortfolios_Errors(t *testing.T) {
	calc := NewCalculator(0)
	ctx := context.Background()

	_, err := calc.GenerateRandomPortfolios(ctx, twoAssets(), -1, 252)
	assert.ErrorIs(t, err, ErrInvalidSampleCount)

	_, err = calc.GenerateRandomPortfolios(ctx, returnTable([]string{"A"}, []float64{}), 10, 252)
	assert.ErrorIs(t, err, ErrEmptyReturns)

	_, err = calc.GenerateRandomPortfolios(ctx, nil, 10, 252)
	assert.ErrorIs(t, err, ErrEmptyReturns)
}

func TestGenerateRandomPortfolios_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCalculator(0).GenerateRandomPortfolios(ctx, twoAssets(), 1000, 252, WithSeed(1))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewCalculator(0).GenerateRandomPortfolios(ctx, twoAssets(), 1000, 252, WithSeed(1), WithWorkers(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateRandomPortfolios_ZeroVolatilityAsset(t *testing.T) {
	flat := returnTable([]string{"FLAT"}, []float64{0, 0, 0})

	samples, err := NewCalculator(0.02).GenerateRandomPortfolios(context.Background(), flat, 5, 252, WithSeed(1))
	require.NoError(t, err)
	for _, s := range samples.Sharpe {
		assert.True(t, math.IsInf(s, -1))
	}
}
