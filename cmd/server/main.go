// Package main is the entry point for the commodity portfolio frontier service.
// It serves the analysis API, keeps the price cache warm and runs scheduled analyses.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Strs("commodities", cfg.Analysis.Commodities).
		Str("start", cfg.Analysis.StartDate).
		Str("end", cfg.Analysis.EndDate).
		Float64("risk_free_rate", cfg.Analysis.RiskFreeRate).
		Int("simulations", cfg.Analysis.Simulations).
		Int("time_horizon", cfg.Analysis.TimeHorizon).
		Str("output_dir", cfg.OutputDir).
		Msg("Starting frontier service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:              log,
		DB:               container.DB,
		DataDir:          cfg.DataDir,
		OutputDir:        cfg.OutputDir,
		Port:             cfg.Port,
		DevMode:          cfg.DevMode,
		AnalysisHandler:  container.AnalysisHandler,
		CachedPriceCount: container.PriceRepo.Count,
	})
	for _, job := range jobs.All() {
		srv.RegisterJob(container.Scheduler, job)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	// Let running jobs finish before the database goes away.
	container.Scheduler.Stop()

	// In-flight requests get up to 10 seconds to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}

	log.Info().Msg("Server stopped")
}
