package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/internal/modules/simulation"
)

type stubFetcher struct {
	err error
}

func (f stubFetcher) Fetch(_ context.Context, tickers []string, _, _ string, _ int) (*domain.PriceTable, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := 30
	dates := make([]time.Time, rows)
	values := make([][]float64, rows)
	for i := range dates {
		dates[i] = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		values[i] = make([]float64, len(tickers))
		for j := range tickers {
			values[i][j] = 100 * float64(j+1) * (1 + 0.03*math.Sin(float64(i*(j+2))))
		}
	}
	return domain.NewPriceTable(dates, tickers, values), nil
}

func setupHandler(fetcher analysis.PriceFetcher) (*Handler, chi.Router) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	seed := uint64(11)
	service := analysis.NewService(fetcher, nil, analysis.Defaults{
		Tickers:       []string{"GC=F", "SI=F"},
		StartDate:     "2023-01-01",
		EndDate:       "2023-03-01",
		NumPortfolios: 120,
		Simulations:   50,
		TimeHorizon:   10,
		TradingDays:   252,
		RiskFreeRate:  0.02,
		FetchRetries:  1,
		Seed:          &seed,
	}, logger)

	handler := NewHandler(service, logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return handler, router
}

func postJSON(router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest("POST", path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleRun(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	w := postJSON(router, "/analysis/run", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response struct {
		Data     domain.AnalysisRun     `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.Equal(t, 30, response.Data.Observations)
	assert.Equal(t, 120, response.Data.Frontier.Samples)
	require.NotNil(t, response.Data.Risk)
	assert.Contains(t, response.Metadata, "timestamp")
}

func TestHandleStats(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	w := postJSON(router, "/analysis/stats", map[string]interface{}{"weights": []float64{0.25, 0.75}})
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, []interface{}{0.25, 0.75}, response["data"]["weights"])
	assert.Contains(t, response["data"]["stats"], "sharpe_ratio")
}

func TestHandleStats_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		fetcher stubFetcher
		body    interface{}
		status  int
	}{
		{"weights sum", stubFetcher{}, map[string]interface{}{"weights": []float64{0.2, 0.2}}, http.StatusBadRequest},
		{"dimension", stubFetcher{}, map[string]interface{}{"weights": []float64{0.2, 0.3, 0.5}}, http.StatusBadRequest},
		{"no data", stubFetcher{err: fmt.Errorf("%w for X", prices.ErrNoData)}, nil, http.StatusBadGateway},
		{"connection", stubFetcher{err: fmt.Errorf("%w: timeout", prices.ErrConnection)}, nil, http.StatusBadGateway},
		{"other", stubFetcher{err: fmt.Errorf("disk on fire")}, nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router := setupHandler(tt.fetcher)
			w := postJSON(router, "/analysis/stats", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Contains(t, response, "error")
		})
	}
}

func TestHandleStats_InvalidBody(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	req := httptest.NewRequest("POST", "/analysis/stats", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReturns(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	w := postJSON(router, "/analysis/returns", map[string]interface{}{"tickers": []string{"CL=F"}})
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data domain.ReturnTable `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, []string{"CL=F"}, response.Data.Tickers)
	assert.Equal(t, 29, response.Data.Rows())
}

func TestHandleRuns_WithoutStore(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	req := httptest.NewRequest("GET", "/analysis/runs?limit=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/analysis/runs?limit=abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest("GET", "/analysis/runs/unknown", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", returns.ErrNonPositivePrice)))
	assert.Equal(t, http.StatusBadRequest, statusFor(prices.ErrInvalidRequest))
	assert.Equal(t, http.StatusBadRequest, statusFor(optimization.ErrEmptyReturns))
	assert.Equal(t, http.StatusBadRequest, statusFor(simulation.ErrInvalidOptions))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", optimization.ErrInvalidSampleCount)))
	assert.Equal(t, http.StatusBadRequest, statusFor(simulation.ErrCovariance))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
}

func TestParseStreamQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/x?tickers=GC=F,CL=F&num_portfolios=50&trading_days=260&seed=3&risk_free_rate=0.01", nil)

	parsed, err := parseStreamQuery(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"GC=F", "CL=F"}, parsed.Tickers)
	assert.Equal(t, 50, parsed.NumPortfolios)
	require.NotNil(t, parsed.Seed)
	assert.Equal(t, uint64(3), *parsed.Seed)
	assert.Equal(t, 0.01, *parsed.RiskFreeRate)
	assert.Equal(t, 260, parsed.TradingDays)

	_, err = parseStreamQuery(httptest.NewRequest("GET", "/x?num_portfolios=-1", nil))
	assert.Error(t, err)
}

func TestHandleFrontierStream(t *testing.T) {
	handler, router := setupHandler(stubFetcher{})
	handler.progressInterval = time.Nanosecond

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/analysis/frontier/stream?num_portfolios=500&include_samples=true"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	var final StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == "progress" {
			assert.Equal(t, 500, msg.Total)
			assert.Less(t, msg.Done, 500)
			continue
		}
		final = msg
		break
	}

	require.Equal(t, "summary", final.Type)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 500, final.Summary.Samples)
	assert.NotNil(t, final.Summary.MaxSharpe)
	assert.Equal(t, 500, final.Done)
}

func TestHandleFrontierStream_Error(t *testing.T) {
	_, router := setupHandler(stubFetcher{err: fmt.Errorf("%w for GC=F", prices.ErrNoData)})

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http")+"/analysis/frontier/stream", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "no data")
}

func TestHandleFrontierStream_BadQuery(t *testing.T) {
	_, router := setupHandler(stubFetcher{})

	req := httptest.NewRequest("GET", "/analysis/frontier/stream?seed=-4", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
