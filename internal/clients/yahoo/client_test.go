package yahoo

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2023-01-03, 2023-01-04, 2023-01-05 at 05:00 UTC (US futures session open)
const (
	ts1 = 1672722000
	ts2 = 1672808400
	ts3 = 1672894800
)

var chartFixtures = map[string]string{
	"GC=F": `{"chart":{"result":[{"meta":{"symbol":"GC=F","currency":"USD","gmtoffset":-18000},
		"timestamp":[1672722000,1672808400,1672894800],
		"indicators":{"quote":[{"close":[1839.7,1852.8,1833.3]}],
		"adjclose":[{"adjclose":[1839.7,1852.8,1833.3]}]}}],"error":null}}`,
	"CL=F": `{"chart":{"result":[{"meta":{"symbol":"CL=F","currency":"USD","gmtoffset":-18000},
		"timestamp":[1672722000,1672894800],
		"indicators":{"quote":[{"close":[76.93,73.67]}],
		"adjclose":[{"adjclose":[76.93,null]}]}}],"error":null}}`,
	"BAD": `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`,
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))

		switch symbol {
		case "DOWN=F":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
			return
		case "GONE=F":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found"}}}`))
			return
		}

		body, ok := chartFixtures[symbol]
		if !ok {
			t.Errorf("unexpected symbol %q", symbol)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(zerolog.Nop(), WithBaseURL(server.URL), WithRateLimit(0), WithTimeout(2*time.Second))
}

func TestGetHistoricalPrices(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	client := newTestClient(server)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)

	prices, err := client.GetHistoricalPrices(context.Background(), "GC=F", start, end)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), prices[0].Date)
	assert.Equal(t, 1852.8, prices[1].AdjClose)
}

func TestGetHistoricalPrices_NullAdjCloseFallsBackToClose(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	client := newTestClient(server)

	prices, err := client.GetHistoricalPrices(context.Background(), "CL=F", time.Unix(ts1, 0), time.Unix(ts3+86400, 0))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 73.67, prices[1].AdjClose)
}

func TestGetHistoricalPrices_Errors(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	client := newTestClient(server)
	ctx := context.Background()

	_, err := client.GetHistoricalPrices(ctx, "DOWN=F", time.Unix(ts1, 0), time.Unix(ts3, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	_, err = client.GetHistoricalPrices(ctx, "BAD", time.Unix(ts1, 0), time.Unix(ts3, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid input")

	prices, err := client.GetHistoricalPrices(ctx, "GONE=F", time.Unix(ts1, 0), time.Unix(ts3, 0))
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestDownload_OuterJoinsOnDate(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	client := newTestClient(server)

	table, err := client.Download(context.Background(), []string{"GC=F", "CL=F"}, "2023-01-01", "2023-01-06")
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	assert.Equal(t, []string{"GC=F", "CL=F"}, table.Tickers)
	require.Equal(t, 3, table.Rows())
	assert.Equal(t, 1839.7, table.Values[0][0])
	assert.Equal(t, 76.93, table.Values[0][1])
	assert.True(t, math.IsNaN(table.Values[1][1]), "CL=F has no bar on 2023-01-04")
	assert.Equal(t, 73.67, table.Values[2][1])
}

func TestDownload_PropagatesTransportError(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	client := newTestClient(server)

	_, err := client.Download(context.Background(), []string{"GC=F", "DOWN=F"}, "2023-01-01", "2023-01-06")
	assert.Error(t, err)
}

func TestDownload_InvalidDates(t *testing.T) {
	client := NewClient(zerolog.Nop())

	_, err := client.Download(context.Background(), []string{"GC=F"}, "01/01/2023", "2023-01-06")
	assert.Error(t, err)
}

func TestTradingDay(t *testing.T) {
	// 23:30 UTC on Jan 2 is Jan 3 in a UTC+8 exchange
	ts := time.Date(2023, 1, 2, 23, 30, 0, 0, time.UTC).Unix()
	assert.Equal(t, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), tradingDay(ts, 8*3600))
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), tradingDay(ts, 0))
}
