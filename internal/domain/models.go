// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// DefaultTradingDays is the number of trading days used to annualize daily statistics.
const DefaultTradingDays = 252

// PortfolioStats is the annualized statistics triple of one weighting.
type PortfolioStats struct {
	Return     float64
	Volatility float64
	Sharpe     float64
}

// MarshalJSON writes non-finite values (zero-volatility ratios) as null.
func (s PortfolioStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Return     *float64 `json:"return"`
		Volatility *float64 `json:"volatility"`
		Sharpe     *float64 `json:"sharpe_ratio"`
	}{Finite(s.Return), Finite(s.Volatility), Finite(s.Sharpe)})
}

// UnmarshalJSON reads null values back as NaN.
func (s *PortfolioStats) UnmarshalJSON(data []byte) error {
	var in struct {
		Return     *float64 `json:"return"`
		Volatility *float64 `json:"volatility"`
		Sharpe     *float64 `json:"sharpe_ratio"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Return = orNaN(in.Return)
	s.Volatility = orNaN(in.Volatility)
	s.Sharpe = orNaN(in.Sharpe)
	return nil
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// PortfolioSamples holds randomly generated portfolios as parallel sequences.
// Index i of every slice describes the i-th generated portfolio.
type PortfolioSamples struct {
	Returns      []float64
	Volatilities []float64
	Weights      [][]float64
	Sharpe       []float64
}

// NewPortfolioSamples allocates a collection for n samples.
func NewPortfolioSamples(n int) *PortfolioSamples {
	return &PortfolioSamples{
		Returns:      make([]float64, n),
		Volatilities: make([]float64, n),
		Weights:      make([][]float64, n),
		Sharpe:       make([]float64, n),
	}
}

// Len returns the number of samples.
func (s *PortfolioSamples) Len() int {
	return len(s.Returns)
}

// At returns the statistics triple of sample i.
func (s *PortfolioSamples) At(i int) PortfolioStats {
	return PortfolioStats{Return: s.Returns[i], Volatility: s.Volatilities[i], Sharpe: s.Sharpe[i]}
}

// MarshalJSON encodes the collection with null in place of non-finite values.
func (s PortfolioSamples) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Returns      []*float64  `json:"returns"`
		Volatilities []*float64  `json:"volatilities"`
		Weights      [][]float64 `json:"weights"`
		Sharpe       []*float64  `json:"sharpe_ratios"`
	}{FiniteSlice(s.Returns), FiniteSlice(s.Volatilities), s.Weights, FiniteSlice(s.Sharpe)})
}

// SamplePoint is a single generated portfolio.
type SamplePoint struct {
	Index   int            `json:"index"`
	Stats   PortfolioStats `json:"stats"`
	Weights []float64      `json:"weights"`
}

// FrontierSummary picks the notable portfolios out of a sample collection.
type FrontierSummary struct {
	Samples       int          `json:"samples"`
	MaxSharpe     *SamplePoint `json:"max_sharpe,omitempty"`
	MinVolatility *SamplePoint `json:"min_volatility,omitempty"`
}

// SimulationResult holds simulated paths.
// PortfolioPaths is indexed [day][simulation]; PricePaths is [asset][day][simulation].
type SimulationResult struct {
	Tickers        []string
	PortfolioPaths [][]float64
	PricePaths     [][][]float64
	Elapsed        time.Duration
}

// FinalValues returns the portfolio value of every simulation on the last day.
func (r *SimulationResult) FinalValues() []float64 {
	if len(r.PortfolioPaths) == 0 {
		return nil
	}
	last := r.PortfolioPaths[len(r.PortfolioPaths)-1]
	return append([]float64(nil), last...)
}

// RiskMetrics summarises the distribution of simulated final portfolio values.
type RiskMetrics struct {
	Mean         float64
	Median       float64
	StdDev       float64
	Min          float64
	Max          float64
	VaR95        float64
	CVaR95       float64
	Percentile5  float64
	Percentile25 float64
	Percentile75 float64
	Percentile95 float64
}

type riskMetricsJSON struct {
	Mean         *float64 `json:"mean"`
	Median       *float64 `json:"median"`
	StdDev       *float64 `json:"std_dev"`
	Min          *float64 `json:"min"`
	Max          *float64 `json:"max"`
	VaR95        *float64 `json:"var_95"`
	CVaR95       *float64 `json:"cvar_95"`
	Percentile5  *float64 `json:"percentile_5"`
	Percentile25 *float64 `json:"percentile_25"`
	Percentile75 *float64 `json:"percentile_75"`
	Percentile95 *float64 `json:"percentile_95"`
}

// MarshalJSON writes non-finite metrics (no simulations) as null.
func (m RiskMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(riskMetricsJSON{
		Mean:         Finite(m.Mean),
		Median:       Finite(m.Median),
		StdDev:       Finite(m.StdDev),
		Min:          Finite(m.Min),
		Max:          Finite(m.Max),
		VaR95:        Finite(m.VaR95),
		CVaR95:       Finite(m.CVaR95),
		Percentile5:  Finite(m.Percentile5),
		Percentile25: Finite(m.Percentile25),
		Percentile75: Finite(m.Percentile75),
		Percentile95: Finite(m.Percentile95),
	})
}

// UnmarshalJSON reads null metrics back as NaN.
func (m *RiskMetrics) UnmarshalJSON(data []byte) error {
	var in riskMetricsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = RiskMetrics{
		Mean:         orNaN(in.Mean),
		Median:       orNaN(in.Median),
		StdDev:       orNaN(in.StdDev),
		Min:          orNaN(in.Min),
		Max:          orNaN(in.Max),
		VaR95:        orNaN(in.VaR95),
		CVaR95:       orNaN(in.CVaR95),
		Percentile5:  orNaN(in.Percentile5),
		Percentile25: orNaN(in.Percentile25),
		Percentile75: orNaN(in.Percentile75),
		Percentile95: orNaN(in.Percentile95),
	}
	return nil
}

// AssetSummary describes one asset's return series.
// RollingVolatility is NaN when the series is shorter than the rolling window.
type AssetSummary struct {
	Ticker            string
	AnnualReturn      float64
	AnnualVolatility  float64
	RollingVolatility float64
	MinDailyReturn    float64
	MaxDailyReturn    float64
	Observations      int
}

type assetSummaryJSON struct {
	Ticker            string   `json:"ticker"`
	AnnualReturn      *float64 `json:"annual_return"`
	AnnualVolatility  *float64 `json:"annual_volatility"`
	RollingVolatility *float64 `json:"rolling_volatility"`
	MinDailyReturn    *float64 `json:"min_daily_return"`
	MaxDailyReturn    *float64 `json:"max_daily_return"`
	Observations      int      `json:"observations"`
}

// MarshalJSON writes non-finite values as null.
func (a AssetSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(assetSummaryJSON{
		Ticker:            a.Ticker,
		AnnualReturn:      Finite(a.AnnualReturn),
		AnnualVolatility:  Finite(a.AnnualVolatility),
		RollingVolatility: Finite(a.RollingVolatility),
		MinDailyReturn:    Finite(a.MinDailyReturn),
		MaxDailyReturn:    Finite(a.MaxDailyReturn),
		Observations:      a.Observations,
	})
}

// UnmarshalJSON reads null values back as NaN.
func (a *AssetSummary) UnmarshalJSON(data []byte) error {
	var in assetSummaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*a = AssetSummary{
		Ticker:            in.Ticker,
		AnnualReturn:      orNaN(in.AnnualReturn),
		AnnualVolatility:  orNaN(in.AnnualVolatility),
		RollingVolatility: orNaN(in.RollingVolatility),
		MinDailyReturn:    orNaN(in.MinDailyReturn),
		MaxDailyReturn:    orNaN(in.MaxDailyReturn),
		Observations:      in.Observations,
	}
	return nil
}

// CorrelationPair is a pair of assets whose return correlation crossed a threshold.
type CorrelationPair struct {
	Ticker1     string  `json:"ticker1"`
	Ticker2     string  `json:"ticker2"`
	Correlation float64 `json:"correlation"`
}

// AnalysisRequest parameterises one pipeline run.
type AnalysisRequest struct {
	Tickers        []string  `json:"tickers"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	Weights        []float64 `json:"weights,omitempty"`
	NumPortfolios  int       `json:"num_portfolios"`
	Simulations    int       `json:"simulations"`
	TimeHorizon    int       `json:"time_horizon"`
	TradingDays    int       `json:"trading_days"`
	RiskFreeRate   *float64  `json:"risk_free_rate,omitempty"`
	Seed           *uint64   `json:"seed,omitempty"`
	SkipSimulation bool      `json:"skip_simulation,omitempty"`
}

// AnalysisRun is the persisted outcome of one pipeline run.
type AnalysisRun struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	Request      AnalysisRequest   `json:"request"`
	Observations int               `json:"observations"`
	FirstDate    string            `json:"first_date"`
	LastDate     string            `json:"last_date"`
	Weights      []float64         `json:"weights"`
	Stats        PortfolioStats    `json:"stats"`
	Frontier     FrontierSummary   `json:"frontier"`
	Risk         *RiskMetrics      `json:"risk,omitempty"`
	Assets       []AssetSummary    `json:"assets"`
	Correlations []CorrelationPair `json:"correlations"`
	Timings      map[string]string `json:"timings"`
}
