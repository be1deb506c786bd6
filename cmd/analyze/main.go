// Analyze runs the portfolio analysis once from the command line, exports the report
// bundle and prints the headline numbers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/pkg/logger"
)

var (
	tickers        = flag.String("tickers", "", "Comma-separated tickers (defaults to COMMODITIES)")
	startDate      = flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate        = flag.String("end", "", "End date (YYYY-MM-DD)")
	weights        = flag.String("weights", "", "Comma-separated portfolio weights (defaults to equal weights)")
	portfolios     = flag.Int("portfolios", 0, "Random portfolios to generate")
	simulations    = flag.Int("sims", 0, "Monte Carlo simulations")
	horizon        = flag.Int("horizon", 0, "Simulation horizon in trading days")
	seed           = flag.Int64("seed", -1, "Random seed (negative draws a fresh one)")
	skipSimulation = flag.Bool("skip-sim", false, "Skip the Monte Carlo simulation")
	noExport       = flag.Bool("no-export", false, "Do not write the CSV report bundle")
	publish        = flag.Bool("publish", false, "Upload the report bundle when EXPORT_S3_BUCKET is set")
	jsonOutput     = flag.Bool("json", false, "Print the full run as JSON")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	req, err := buildRequest()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	report, err := container.AnalysisService.Run(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if !*noExport {
		dir, err := container.ReportWriter.Write(report.Run, report.Prices, report.Samples, report.Simulation)
		if err != nil {
			log.Fatal().Err(err).Msg("Export failed")
		}
		log.Info().Str("dir", dir).Msg("Report written")

		if *publish && container.Publisher != nil {
			key, err := container.Publisher.Publish(ctx, dir, report.Run.ID)
			if err != nil {
				log.Fatal().Err(err).Msg("Publish failed")
			}
			log.Info().Str("key", key).Msg("Report published")
		}
	}

	if *jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report.Run); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode run")
		}
		return
	}
	printSummary(report.Run)
}

func buildRequest() (domain.AnalysisRequest, error) {
	req := domain.AnalysisRequest{
		StartDate:      *startDate,
		EndDate:        *endDate,
		NumPortfolios:  *portfolios,
		Simulations:    *simulations,
		TimeHorizon:    *horizon,
		SkipSimulation: *skipSimulation,
	}
	if *tickers != "" {
		req.Tickers = splitList(*tickers)
	}
	if *weights != "" {
		for _, raw := range splitList(*weights) {
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, fmt.Errorf("invalid weight %q: %w", raw, err)
			}
			req.Weights = append(req.Weights, w)
		}
	}
	if *seed >= 0 {
		s := uint64(*seed)
		req.Seed = &s
	}
	return req, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printSummary(run *domain.AnalysisRun) {
	fmt.Printf("Run %s: %d observations (%s to %s)\n", run.ID, run.Observations, run.FirstDate, run.LastDate)
	fmt.Printf("Tickers: %s\n", strings.Join(run.Request.Tickers, ", "))
	fmt.Println()
	fmt.Printf("Expected annual return: %8.2f%%\n", run.Stats.Return*100)
	fmt.Printf("Annual volatility:      %8.2f%%\n", run.Stats.Volatility*100)
	fmt.Printf("Sharpe ratio:           %8.3f\n", run.Stats.Sharpe)

	if p := run.Frontier.MaxSharpe; p != nil {
		fmt.Printf("\nBest of %d random portfolios (Sharpe %.3f):\n", run.Frontier.Samples, p.Stats.Sharpe)
		for i, t := range run.Request.Tickers {
			fmt.Printf("  %-8s %6.2f%%\n", t, p.Weights[i]*100)
		}
	}

	if r := run.Risk; r != nil {
		fmt.Printf("\nSimulated final value (start = current portfolio value):\n")
		fmt.Printf("  mean %.2f  median %.2f  std %.2f\n", r.Mean, r.Median, r.StdDev)
		fmt.Printf("  VaR 95%% %.2f  CVaR 95%% %.2f\n", r.VaR95, r.CVaR95)
	}

	if len(run.Correlations) > 0 {
		fmt.Println("\nHighly correlated pairs:")
		for _, c := range run.Correlations {
			fmt.Printf("  %s / %s: %.2f\n", c.Ticker1, c.Ticker2, c.Correlation)
		}
	}
}
