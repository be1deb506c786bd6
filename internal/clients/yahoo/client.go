// Package yahoo provides a Yahoo Finance chart API client used as the price transport.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://query1.finance.yahoo.com"
	defaultInterval = "1d"
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Client is a Yahoo Finance API client
type Client struct {
	baseURL  string
	interval string
	client   *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.client.Timeout = timeout }
}

// WithInterval sets the bar interval ("1d", "1wk", "1mo").
func WithInterval(interval string) Option {
	return func(c *Client) {
		if interval != "" {
			c.interval = interval
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		interval: defaultInterval,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		log:     log.With().Str("client", "yahoo").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetHistoricalPrices fetches daily closes and adjusted closes for symbol in [start, end).
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]HistoricalPrice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("period1", strconv.FormatInt(start.Unix(), 10))
	params.Add("period2", strconv.FormatInt(end.Unix(), 10))
	params.Add("interval", c.interval)
	params.Add("events", "div,split")
	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical data for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		// Unknown or delisted symbol; the chart API still answers with a JSON error.
		c.log.Warn().Str("symbol", symbol).Msg("Symbol not found")
		return []HistoricalPrice{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Yahoo Finance API returned status %d for %s: %s", resp.StatusCode, symbol, truncate(string(body), 200))
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error for %s: %s: %s", symbol, result.Chart.Error.Code, result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No historical data returned")
		return []HistoricalPrice{}, nil
	}

	chart := result.Chart.Result[0]
	var closes, adjCloses []*float64
	if len(chart.Indicators.Quote) > 0 {
		closes = chart.Indicators.Quote[0].Close
	}
	if len(chart.Indicators.AdjClose) > 0 {
		adjCloses = chart.Indicators.AdjClose[0].AdjClose
	}

	prices := make([]HistoricalPrice, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		closeVal := valueAt(closes, i)
		adjClose := valueAt(adjCloses, i)
		if math.IsNaN(adjClose) {
			// Intervals without corporate actions sometimes omit adjclose
			adjClose = closeVal
		}
		prices = append(prices, HistoricalPrice{
			Date:     tradingDay(ts, chart.Meta.GMTOffset),
			Close:    closeVal,
			AdjClose: adjClose,
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Fetched historical prices")

	return prices, nil
}

// Download fetches every ticker and outer-joins the adjusted closes on trading date.
// Dates a ticker did not trade on are NaN in that ticker's column.
func (c *Client) Download(ctx context.Context, tickers []string, start, end string) (*domain.PriceTable, error) {
	startDate, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endDate, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}

	byTicker := make([]map[time.Time]float64, len(tickers))
	dateSet := make(map[time.Time]struct{})

	for j, ticker := range tickers {
		history, err := c.GetHistoricalPrices(ctx, ticker, startDate, endDate)
		if err != nil {
			return nil, err
		}
		series := make(map[time.Time]float64, len(history))
		for _, p := range history {
			series[p.Date] = p.AdjClose
			dateSet[p.Date] = struct{}{}
		}
		byTicker[j] = series
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	values := make([][]float64, len(dates))
	for i, d := range dates {
		row := make([]float64, len(tickers))
		for j := range tickers {
			if v, ok := byTicker[j][d]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		values[i] = row
	}

	c.log.Info().
		Strs("tickers", tickers).
		Str("start", start).
		Str("end", end).
		Int("rows", len(dates)).
		Msg("Downloaded price table")

	return domain.NewPriceTable(dates, append([]string(nil), tickers...), values), nil
}

// tradingDay maps a bar timestamp to its exchange-local calendar day at UTC midnight.
func tradingDay(ts, gmtOffset int64) time.Time {
	local := time.Unix(ts+gmtOffset, 0).UTC()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
