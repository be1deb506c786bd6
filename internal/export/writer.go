// Package export writes analysis reports to disk and publishes them to object storage.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/returns"
)

// Report file names inside an export directory.
const (
	HistoricalPricesFile = "historical_prices.csv"
	SummaryResultsFile   = "summary_results.csv"
	DetailedAnalysisFile = "detailed_analysis.csv"
	FrontierFile         = "frontier.csv"
	SimulationPathsFile  = "simulation_paths.csv"
	CorrelationFile      = "correlation_matrix.csv"

	dirPrefix       = "portfolio_analysis_"
	timestampLayout = "20060102_150405"
)

// Writer writes CSV report bundles under an output directory.
type Writer struct {
	outputDir string
	now       func() time.Time
	log       zerolog.Logger
}

// NewWriter creates a writer rooted at outputDir.
func NewWriter(outputDir string, log zerolog.Logger) *Writer {
	return &Writer{
		outputDir: outputDir,
		now:       time.Now,
		log:       log.With().Str("component", "export").Logger(),
	}
}

// Write creates <outputDir>/portfolio_analysis_<timestamp>/ and fills it with the report files.
// samples and sim may be nil; the corresponding files are then written with headers only.
// Returns the directory path.
func (w *Writer) Write(run *domain.AnalysisRun, prices *domain.PriceTable, samples *domain.PortfolioSamples, sim *domain.SimulationResult) (string, error) {
	if run == nil || prices == nil {
		return "", fmt.Errorf("run and prices are required for export")
	}

	dir := filepath.Join(w.outputDir, dirPrefix+w.now().Format(timestampLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	files := []struct {
		name string
		rows [][]string
	}{
		{HistoricalPricesFile, priceRows(prices)},
		{SummaryResultsFile, summaryRows(run)},
		{DetailedAnalysisFile, assetRows(run.Assets)},
		{FrontierFile, frontierRows(prices.Tickers, samples)},
		{SimulationPathsFile, pathRows(sim)},
		{CorrelationFile, w.correlationRows(prices)},
	}

	for _, f := range files {
		if err := writeCSV(filepath.Join(dir, f.name), f.rows); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	w.log.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Msg("Exported analysis report")

	return dir, nil
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}

func priceRows(prices *domain.PriceTable) [][]string {
	rows := make([][]string, 0, prices.Rows()+1)
	rows = append(rows, append([]string{"Date"}, prices.Tickers...))
	for i, d := range prices.Dates {
		row := make([]string, 0, prices.Assets()+1)
		row = append(row, d.Format(domain.DateLayout))
		for _, v := range prices.Values[i] {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return rows
}

func summaryRows(run *domain.AnalysisRun) [][]string {
	rows := [][]string{
		{"Metric", "Value"},
		{"Expected Annual Return", formatFloat(run.Stats.Return)},
		{"Annual Volatility", formatFloat(run.Stats.Volatility)},
		{"Sharpe Ratio", formatFloat(run.Stats.Sharpe)},
	}
	if r := run.Risk; r != nil {
		rows = append(rows,
			[]string{"Mean", formatFloat(r.Mean)},
			[]string{"Median", formatFloat(r.Median)},
			[]string{"Std Dev", formatFloat(r.StdDev)},
			[]string{"Min", formatFloat(r.Min)},
			[]string{"Max", formatFloat(r.Max)},
			[]string{"5% Percentile", formatFloat(r.Percentile5)},
			[]string{"95% Percentile", formatFloat(r.Percentile95)},
			[]string{"VaR (95%)", formatFloat(r.VaR95)},
			[]string{"CVaR (95%)", formatFloat(r.CVaR95)},
		)
	}
	return rows
}

func assetRows(assets []domain.AssetSummary) [][]string {
	rows := [][]string{{
		"Ticker", "Annual Return", "Annual Volatility", "Rolling Volatility",
		"Min Daily Return", "Max Daily Return", "Observations",
	}}
	for _, a := range assets {
		rows = append(rows, []string{
			a.Ticker,
			formatFloat(a.AnnualReturn),
			formatFloat(a.AnnualVolatility),
			formatFloat(a.RollingVolatility),
			formatFloat(a.MinDailyReturn),
			formatFloat(a.MaxDailyReturn),
			strconv.Itoa(a.Observations),
		})
	}
	return rows
}

func frontierRows(tickers []string, samples *domain.PortfolioSamples) [][]string {
	header := []string{"Index", "Return", "Volatility", "Sharpe Ratio"}
	for _, t := range tickers {
		header = append(header, "Weight "+t)
	}
	rows := [][]string{header}
	if samples == nil {
		return rows
	}

	for i := 0; i < samples.Len(); i++ {
		row := []string{
			strconv.Itoa(i),
			formatFloat(samples.Returns[i]),
			formatFloat(samples.Volatilities[i]),
			formatFloat(samples.Sharpe[i]),
		}
		for _, wt := range samples.Weights[i] {
			row = append(row, formatFloat(wt))
		}
		rows = append(rows, row)
	}
	return rows
}

// correlationRows writes the return correlation matrix of prices. When the returns cannot
// be estimated only the header row is written.
func (w *Writer) correlationRows(prices *domain.PriceTable) [][]string {
	rows := [][]string{append([]string{""}, prices.Tickers...)}

	rets, err := returns.CalculateDailyReturns(prices)
	if err != nil {
		w.log.Debug().Err(err).Msg("Skipping correlation matrix")
		return rows
	}
	corr, err := optimization.CorrelationMatrix(rets)
	if err != nil {
		w.log.Debug().Err(err).Msg("Skipping correlation matrix")
		return rows
	}

	for i, ticker := range rets.Tickers {
		row := make([]string, 0, len(corr[i])+1)
		row = append(row, ticker)
		for _, v := range corr[i] {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return rows
}

// pathRows writes one row per day and one column per simulation.
func pathRows(sim *domain.SimulationResult) [][]string {
	header := []string{"Day"}
	if sim == nil || len(sim.PortfolioPaths) == 0 {
		return [][]string{header}
	}

	sims := len(sim.PortfolioPaths[0])
	for s := 0; s < sims; s++ {
		header = append(header, "Sim "+strconv.Itoa(s))
	}
	rows := [][]string{header}
	for day, values := range sim.PortfolioPaths {
		row := make([]string, 0, sims+1)
		row = append(row, strconv.Itoa(day))
		for _, v := range values {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return rows
}

// formatFloat renders non-finite values as empty cells.
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
