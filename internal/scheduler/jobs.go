package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/analysis"
)

// PriceRefresher re-downloads prices and overwrites the cached copy.
// *prices.CachedSource satisfies it.
type PriceRefresher interface {
	Refresh(ctx context.Context, tickers []string, start, end string) (*domain.PriceTable, error)
}

// AnalysisRunner runs the analysis pipeline. *analysis.Service satisfies it.
type AnalysisRunner interface {
	DefaultRequest() domain.AnalysisRequest
	Run(ctx context.Context, req domain.AnalysisRequest) (*analysis.Report, error)
}

// ReportWriter writes a report bundle to disk. *export.Writer satisfies it.
type ReportWriter interface {
	Write(run *domain.AnalysisRun, prices *domain.PriceTable, samples *domain.PortfolioSamples, sim *domain.SimulationResult) (string, error)
}

// ReportPublisher uploads report bundles and prunes old ones. *export.Publisher satisfies it.
type ReportPublisher interface {
	Publish(ctx context.Context, dir, runID string) (string, error)
	Rotate(ctx context.Context, retentionDays int) (int, error)
}

// RefreshPricesJob re-downloads the default price window so requests hit a warm cache.
type RefreshPricesJob struct {
	refresher PriceRefresher
	request   func() domain.AnalysisRequest
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRefreshPricesJob creates a refresh job. request supplies the tickers and dates on every run.
func NewRefreshPricesJob(refresher PriceRefresher, request func() domain.AnalysisRequest, timeout time.Duration, log zerolog.Logger) *RefreshPricesJob {
	return &RefreshPricesJob{
		refresher: refresher,
		request:   request,
		timeout:   timeout,
		log:       log.With().Str("job", "refresh_prices").Logger(),
	}
}

// Name returns the job name
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run executes the refresh
func (j *RefreshPricesJob) Run() error {
	ctx, cancel := withOptionalTimeout(j.timeout)
	defer cancel()

	req := j.request()
	table, err := j.refresher.Refresh(ctx, req.Tickers, req.StartDate, req.EndDate)
	if err != nil {
		return fmt.Errorf("failed to refresh prices: %w", err)
	}

	rows := 0
	if table != nil {
		rows = table.Rows()
	}
	j.log.Info().
		Strs("tickers", req.Tickers).
		Int("rows", rows).
		Msg("Price cache refreshed")
	return nil
}

// AnalysisJob runs the default analysis, exports it and optionally publishes the bundle.
type AnalysisJob struct {
	runner        AnalysisRunner
	writer        ReportWriter
	publisher     ReportPublisher
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// AnalysisJobConfig holds the dependencies of an AnalysisJob. Writer and Publisher are optional.
type AnalysisJobConfig struct {
	Runner        AnalysisRunner
	Writer        ReportWriter
	Publisher     ReportPublisher
	RetentionDays int
	Timeout       time.Duration
	Log           zerolog.Logger
}

// NewAnalysisJob creates a scheduled analysis job
func NewAnalysisJob(cfg AnalysisJobConfig) *AnalysisJob {
	return &AnalysisJob{
		runner:        cfg.Runner,
		writer:        cfg.Writer,
		publisher:     cfg.Publisher,
		retentionDays: cfg.RetentionDays,
		timeout:       cfg.Timeout,
		log:           cfg.Log.With().Str("job", "analysis").Logger(),
	}
}

// Name returns the job name
func (j *AnalysisJob) Name() string {
	return "analysis"
}

// Run executes the analysis
func (j *AnalysisJob) Run() error {
	ctx, cancel := withOptionalTimeout(j.timeout)
	defer cancel()

	report, err := j.runner.Run(ctx, j.runner.DefaultRequest())
	if err != nil {
		return fmt.Errorf("failed to run analysis: %w", err)
	}

	if j.writer == nil {
		return nil
	}

	dir, err := j.writer.Write(report.Run, report.Prices, report.Samples, report.Simulation)
	if err != nil {
		return fmt.Errorf("failed to export analysis: %w", err)
	}

	if j.publisher == nil {
		return nil
	}

	key, err := j.publisher.Publish(ctx, dir, report.Run.ID)
	if err != nil {
		return fmt.Errorf("failed to publish analysis: %w", err)
	}

	// Rotation failures do not fail a run that was already published.
	if _, err := j.publisher.Rotate(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Failed to rotate published exports")
	}

	j.log.Info().
		Str("run_id", report.Run.ID).
		Str("dir", dir).
		Str("key", key).
		Msg("Scheduled analysis published")
	return nil
}

func withOptionalTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
