package optimization

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontier/internal/domain"
)

// DefaultNumPortfolios is the sample count used when callers pass zero.
const DefaultNumPortfolios = 10000

// cancelCheckInterval is how many samples a worker draws between context checks.
const cancelCheckInterval = 256

// ProgressFunc receives the number of finished samples out of total.
// Calls are serialized but may come from any goroutine.
type ProgressFunc func(done, total int)

type generateConfig struct {
	rng      *rand.Rand
	workers  int
	progress ProgressFunc
}

// GenerateOption customises GenerateRandomPortfolios.
type GenerateOption func(*generateConfig)

// WithRand draws weights from rng. The generator is not safe for concurrent use,
// so it must not be shared with other goroutines during generation.
func WithRand(rng *rand.Rand) GenerateOption {
	return func(c *generateConfig) { c.rng = rng }
}

// WithSeed draws weights from a PCG generator seeded with seed.
func WithSeed(seed uint64) GenerateOption {
	return func(c *generateConfig) { c.rng = NewSeededRand(seed) }
}

// WithWorkers spreads the samples over k goroutines. Each worker owns a child generator
// seeded from the parent, so a given seed and worker count always give the same samples.
func WithWorkers(k int) GenerateOption {
	return func(c *generateConfig) { c.workers = k }
}

// WithProgress reports progress roughly every percent.
func WithProgress(fn ProgressFunc) GenerateOption {
	return func(c *generateConfig) { c.progress = fn }
}

// NewSeededRand returns a deterministic PCG-backed generator.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// GenerateRandomPortfolios draws numPortfolios random long-only weightings and records
// the statistics of each. numPortfolios == 0 means DefaultNumPortfolios and
// tradingDays <= 0 means domain.DefaultTradingDays.
//
// Moments are estimated once. Each sample draws one uniform [0,1) value per asset,
// divides by their sum and evaluates the same formulas as PortfolioStats. Sample i
// is stored at index i; nothing is sorted or filtered.
func (c *Calculator) GenerateRandomPortfolios(
	ctx context.Context,
	returns *domain.ReturnTable,
	numPortfolios int,
	tradingDays int,
	opts ...GenerateOption,
) (*domain.PortfolioSamples, error) {
	if numPortfolios < 0 {
		return nil, fmt.Errorf("%w: must not be negative, got %d", ErrInvalidSampleCount, numPortfolios)
	}
	if numPortfolios == 0 {
		numPortfolios = DefaultNumPortfolios
	}
	tradingDays = normalizeTradingDays(tradingDays)

	cfg := generateConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	if cfg.workers > numPortfolios {
		cfg.workers = numPortfolios
	}

	moments, err := EstimateMoments(returns)
	if err != nil {
		return nil, err
	}

	samples := domain.NewPortfolioSamples(numPortfolios)
	tracker := newProgressTracker(numPortfolios, cfg.progress)

	fill := func(ctx context.Context, rng *rand.Rand, from, to int) error {
		assets := moments.Assets()
		for i := from; i < to; i++ {
			if (i-from)%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			weights := randomWeights(rng, assets)
			stats := moments.Stats(weights, tradingDays, c.RiskFreeRate)

			samples.Returns[i] = stats.Return
			samples.Volatilities[i] = stats.Volatility
			samples.Weights[i] = weights
			samples.Sharpe[i] = stats.Sharpe
			tracker.add(1)
		}
		return nil
	}

	if cfg.workers == 1 {
		if err := fill(ctx, cfg.rng, 0, numPortfolios); err != nil {
			return nil, err
		}
		tracker.finish()
		return samples, nil
	}

	// Children are seeded up front so the partition does not depend on scheduling.
	children := make([]*rand.Rand, cfg.workers)
	for w := range children {
		children[w] = rand.New(rand.NewPCG(cfg.rng.Uint64(), cfg.rng.Uint64()))
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (numPortfolios + cfg.workers - 1) / cfg.workers
	for w := 0; w < cfg.workers; w++ {
		from := w * chunk
		to := min(from+chunk, numPortfolios)
		if from >= to {
			break
		}
		rng := children[w]
		g.Go(func() error {
			return fill(gctx, rng, from, to)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracker.finish()
	return samples, nil
}

// randomWeights draws n uniforms and normalizes them to sum to one.
func randomWeights(rng *rand.Rand, n int) []float64 {
	weights := make([]float64, n)
	for {
		var sum float64
		for j := range weights {
			weights[j] = rng.Float64()
			sum += weights[j]
		}
		if sum > 0 {
			for j := range weights {
				weights[j] /= sum
			}
			return weights
		}
	}
}

type progressTracker struct {
	mu       sync.Mutex
	done     int
	total    int
	step     int
	reported int
	fn       ProgressFunc
}

func newProgressTracker(total int, fn ProgressFunc) *progressTracker {
	return &progressTracker{total: total, step: max(1, total/100), fn: fn}
}

func (p *progressTracker) add(n int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	if p.done-p.reported >= p.step && p.done < p.total {
		p.reported = p.done
		p.fn(p.done, p.total)
	}
}

func (p *progressTracker) finish() {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(p.total, p.total)
}
