// Package analysis chains price retrieval, portfolio statistics, frontier sampling and
// Monte Carlo risk into one persisted run.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/assets"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/internal/modules/simulation"
)

// PriceFetcher retrieves a cleaned price table. *prices.Fetcher satisfies it.
type PriceFetcher interface {
	Fetch(ctx context.Context, tickers []string, start, end string, maxRetries int) (*domain.PriceTable, error)
}

// Defaults fills in whatever a request leaves unset.
type Defaults struct {
	Tickers              []string
	StartDate            string
	EndDate              string
	NumPortfolios        int
	Simulations          int
	TimeHorizon          int
	TradingDays          int
	RiskFreeRate         float64
	FetchRetries         int
	Seed                 *uint64
	Workers              int
	RollingWindow        int
	CorrelationThreshold float64
}

// Report is a finished run together with the data it was computed from.
// Only Run is persisted; the rest feeds exports.
type Report struct {
	Run        *domain.AnalysisRun
	Prices     *domain.PriceTable
	Returns    *domain.ReturnTable
	Samples    *domain.PortfolioSamples
	Simulation *domain.SimulationResult
}

// Service runs analyses.
type Service struct {
	fetcher  PriceFetcher
	repo     *Repository
	defaults Defaults
	log      zerolog.Logger
}

// NewService creates an analysis service. repo may be nil, in which case runs are not stored.
func NewService(fetcher PriceFetcher, repo *Repository, defaults Defaults, log zerolog.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		repo:     repo,
		defaults: defaults,
		log:      log.With().Str("service", "analysis").Logger(),
	}
}

// Resolve returns req with every unset field taken from the service defaults.
func (s *Service) Resolve(req domain.AnalysisRequest) domain.AnalysisRequest {
	d := s.defaults
	if len(req.Tickers) == 0 {
		req.Tickers = append([]string(nil), d.Tickers...)
	}
	if req.StartDate == "" {
		req.StartDate = d.StartDate
	}
	if req.EndDate == "" {
		req.EndDate = d.EndDate
	}
	if req.NumPortfolios == 0 {
		req.NumPortfolios = d.NumPortfolios
	}
	if req.Simulations == 0 {
		req.Simulations = d.Simulations
	}
	if req.TimeHorizon == 0 {
		req.TimeHorizon = d.TimeHorizon
	}
	if req.TradingDays == 0 {
		req.TradingDays = d.TradingDays
	}
	if req.TradingDays <= 0 {
		req.TradingDays = domain.DefaultTradingDays
	}
	if req.RiskFreeRate == nil {
		rf := d.RiskFreeRate
		req.RiskFreeRate = &rf
	}
	if req.Seed == nil && d.Seed != nil {
		seed := *d.Seed
		req.Seed = &seed
	}
	if len(req.Weights) == 0 && len(req.Tickers) > 0 {
		req.Weights = optimization.EqualWeights(len(req.Tickers))
	}
	return req
}

// Prices fetches the cleaned price table for a resolved request.
func (s *Service) Prices(ctx context.Context, req domain.AnalysisRequest) (*domain.PriceTable, error) {
	req = s.Resolve(req)
	table, err := s.fetcher.Fetch(ctx, req.Tickers, req.StartDate, req.EndDate, s.defaults.FetchRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	return table, nil
}

// Returns fetches prices and converts them to daily log returns.
func (s *Service) Returns(ctx context.Context, req domain.AnalysisRequest) (*domain.ReturnTable, error) {
	table, err := s.Prices(ctx, req)
	if err != nil {
		return nil, err
	}
	rets, err := returns.CalculateDailyReturns(table)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate returns: %w", err)
	}
	return rets, nil
}

// Stats computes the statistics triple for the request weights (equal weights when unset).
func (s *Service) Stats(ctx context.Context, req domain.AnalysisRequest) (domain.PortfolioStats, error) {
	req = s.Resolve(req)
	rets, err := s.Returns(ctx, req)
	if err != nil {
		return domain.PortfolioStats{}, err
	}
	stats, err := optimization.NewCalculator(*req.RiskFreeRate).PortfolioStats(rets, req.Weights, req.TradingDays)
	if err != nil {
		return domain.PortfolioStats{}, fmt.Errorf("failed to calculate portfolio statistics: %w", err)
	}
	return stats, nil
}

// Frontier samples random portfolios for the request and summarises them.
func (s *Service) Frontier(ctx context.Context, req domain.AnalysisRequest, progress optimization.ProgressFunc) (*domain.PortfolioSamples, domain.FrontierSummary, error) {
	req = s.Resolve(req)
	rets, err := s.Returns(ctx, req)
	if err != nil {
		return nil, domain.FrontierSummary{}, err
	}
	samples, err := s.generate(ctx, req, rets, progress)
	if err != nil {
		return nil, domain.FrontierSummary{}, err
	}
	return samples, optimization.Summarize(samples), nil
}

func (s *Service) generate(ctx context.Context, req domain.AnalysisRequest, rets *domain.ReturnTable, progress optimization.ProgressFunc) (*domain.PortfolioSamples, error) {
	opts := []optimization.GenerateOption{optimization.WithWorkers(s.defaults.Workers)}
	if req.Seed != nil {
		opts = append(opts, optimization.WithSeed(*req.Seed))
	}
	if progress != nil {
		opts = append(opts, optimization.WithProgress(progress))
	}

	calc := optimization.NewCalculator(*req.RiskFreeRate)
	samples, err := calc.GenerateRandomPortfolios(ctx, rets, req.NumPortfolios, req.TradingDays, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random portfolios: %w", err)
	}
	return samples, nil
}

// Run executes the full pipeline and stores the resulting run.
func (s *Service) Run(ctx context.Context, req domain.AnalysisRequest) (*Report, error) {
	started := time.Now()
	req = s.Resolve(req)
	timings := make(map[string]string)
	lap := started

	mark := func(stage string) {
		now := time.Now()
		timings[stage] = now.Sub(lap).Round(time.Microsecond).String()
		lap = now
	}

	s.log.Info().
		Strs("tickers", req.Tickers).
		Str("start", req.StartDate).
		Str("end", req.EndDate).
		Msg("Starting portfolio analysis")

	priceTable, err := s.Prices(ctx, req)
	if err != nil {
		return nil, err
	}
	rets, err := returns.CalculateDailyReturns(priceTable)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate returns: %w", err)
	}
	mark("fetch")

	calc := optimization.NewCalculator(*req.RiskFreeRate)
	stats, err := calc.PortfolioStats(rets, req.Weights, req.TradingDays)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate portfolio statistics: %w", err)
	}
	correlations, err := optimization.Correlations(rets, s.correlationThreshold())
	if err != nil {
		return nil, fmt.Errorf("failed to calculate correlations: %w", err)
	}
	assetSummaries := assets.Summarize(rets, req.TradingDays, s.defaults.RollingWindow)
	mark("statistics")

	s.log.Info().
		Float64("return", stats.Return).
		Float64("volatility", stats.Volatility).
		Float64("sharpe", stats.Sharpe).
		Msg("Portfolio statistics")

	samples, err := s.generate(ctx, req, rets, nil)
	if err != nil {
		return nil, err
	}
	frontier := optimization.Summarize(samples)
	mark("frontier")

	report := &Report{
		Prices:  priceTable,
		Returns: rets,
		Samples: samples,
	}

	run := &domain.AnalysisRun{
		Request:      req,
		Observations: priceTable.Rows(),
		Weights:      req.Weights,
		Stats:        stats,
		Frontier:     frontier,
		Assets:       assetSummaries,
		Correlations: correlations,
		Timings:      timings,
	}
	if priceTable.Rows() > 0 {
		run.FirstDate = priceTable.Dates[0].Format(domain.DateLayout)
		run.LastDate = priceTable.Dates[priceTable.Rows()-1].Format(domain.DateLayout)
	}

	if !req.SkipSimulation {
		simOpts := simulation.Options{Sims: req.Simulations, Horizon: req.TimeHorizon}
		if req.Seed != nil {
			simOpts.Rand = optimization.NewSeededRand(*req.Seed + 1)
		}
		sim, err := simulation.Simulate(priceTable, req.Weights, simOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to run simulation: %w", err)
		}
		risk := simulation.Analyze(sim.PortfolioPaths)
		run.Risk = &risk
		report.Simulation = sim
		mark("simulation")

		s.log.Info().
			Float64("var_95", risk.VaR95).
			Float64("cvar_95", risk.CVaR95).
			Dur("elapsed", sim.Elapsed).
			Msg("Monte Carlo simulation completed")
	}

	timings["total"] = time.Since(started).Round(time.Microsecond).String()

	if s.repo != nil {
		if _, err := s.repo.Save(run); err != nil {
			return nil, fmt.Errorf("failed to store analysis run: %w", err)
		}
	}
	report.Run = run

	s.log.Info().
		Str("id", run.ID).
		Int("observations", run.Observations).
		Int("samples", frontier.Samples).
		Str("total", timings["total"]).
		Msg("Portfolio analysis completed")

	return report, nil
}

// GetRun returns a stored run, or nil when it does not exist.
func (s *Service) GetRun(id string) (*domain.AnalysisRun, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.Get(id)
}

// ListRuns returns the most recent stored runs.
func (s *Service) ListRuns(limit int) ([]RunSummary, error) {
	if s.repo == nil {
		return []RunSummary{}, nil
	}
	return s.repo.List(limit)
}

// DefaultRequest returns the request the scheduler runs: every field from the defaults.
func (s *Service) DefaultRequest() domain.AnalysisRequest {
	return s.Resolve(domain.AnalysisRequest{})
}

func (s *Service) correlationThreshold() float64 {
	if s.defaults.CorrelationThreshold > 0 {
		return s.defaults.CorrelationThreshold
	}
	return optimization.HighCorrelationThreshold
}
