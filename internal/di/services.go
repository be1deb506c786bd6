package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/export"
	"github.com/aristath/frontier/internal/modules/analysis"
	analysishandlers "github.com/aristath/frontier/internal/modules/analysis/handlers"
	"github.com/aristath/frontier/internal/modules/prices"
)

// InitializeRepositories creates the repositories over the container database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	conn := container.DB.Conn()
	container.PriceRepo = prices.NewRepository(conn)
	container.AnalysisRepo = analysis.NewRepository(conn, log)
	return nil
}

// InitializeServices creates the price pipeline, analysis service and exporters
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.YahooClient = yahoo.NewClient(log,
		yahoo.WithTimeout(cfg.Fetch.Timeout),
		yahoo.WithInterval(cfg.Fetch.Interval),
		yahoo.WithRateLimit(cfg.Fetch.RatePerSec),
	)
	container.CachedSource = prices.NewCachedSource(container.YahooClient, container.PriceRepo, cfg.Fetch.CacheTTL, log)
	container.Fetcher = prices.NewFetcher(container.CachedSource, log)

	a := cfg.Analysis
	container.AnalysisService = analysis.NewService(container.Fetcher, container.AnalysisRepo, analysis.Defaults{
		Tickers:       a.Commodities,
		StartDate:     a.StartDate,
		EndDate:       a.EndDate,
		NumPortfolios: a.FrontierPoints,
		Simulations:   a.Simulations,
		TimeHorizon:   a.TimeHorizon,
		TradingDays:   a.TradingDays,
		RiskFreeRate:  a.RiskFreeRate,
		FetchRetries:  cfg.Fetch.Retries,
		Seed:          a.Seed,
		Workers:       a.Workers,
		RollingWindow: a.RollingWindow,
	}, log)
	container.AnalysisHandler = analysishandlers.NewHandler(container.AnalysisService, log)

	container.ReportWriter = export.NewWriter(cfg.OutputDir, log)

	if cfg.Export.S3Enabled() {
		uploader, err := export.NewS3Uploader(ctx, export.S3Config{
			Bucket:          cfg.Export.S3Bucket,
			Region:          cfg.Export.S3Region,
			Endpoint:        cfg.Export.S3Endpoint,
			AccessKeyID:     cfg.Export.S3AccessKeyID,
			SecretAccessKey: cfg.Export.S3SecretKey,
			Prefix:          cfg.Export.S3Prefix,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create s3 uploader: %w", err)
		}
		container.Publisher = export.NewPublisher(uploader, log)
		log.Info().Str("bucket", cfg.Export.S3Bucket).Msg("Export uploads enabled")
	}

	return nil
}
