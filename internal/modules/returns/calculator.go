// Package returns derives daily log returns from price tables.
package returns

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// ErrNonPositivePrice means a price was zero or negative, so its logarithm is undefined.
var ErrNonPositivePrice = errors.New("prices must be positive")

// CalculateDailyReturns computes ln(p[t]/p[t-1]) for every column and every row after the first.
// The first observation has no predecessor and is dropped, so the result has one row fewer
// than the input. Rows whose return is undefined because a price is missing (NaN) are
// dropped as well. A table with fewer than two rows yields an empty result.
// The input is never modified.
func CalculateDailyReturns(prices *domain.PriceTable) (*domain.ReturnTable, error) {
	if prices == nil {
		return nil, fmt.Errorf("price table is nil")
	}
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("malformed price table: %w", err)
	}

	for i, row := range prices.Values {
		for j, p := range row {
			if p <= 0 {
				return nil, fmt.Errorf("%w: %s on %s is %v",
					ErrNonPositivePrice, prices.Tickers[j], prices.Dates[i].Format(domain.DateLayout), p)
			}
		}
	}

	tickers := append([]string(nil), prices.Tickers...)
	rows := prices.Rows()
	if rows < 2 {
		return domain.NewReturnTable([]time.Time{}, tickers, [][]float64{}), nil
	}

	dates := make([]time.Time, 0, rows-1)
	values := make([][]float64, 0, rows-1)
rowLoop:
	for t := 1; t < rows; t++ {
		prev, cur := prices.Values[t-1], prices.Values[t]
		out := make([]float64, len(cur))
		for j := range cur {
			out[j] = math.Log(cur[j] / prev[j])
			if math.IsNaN(out[j]) {
				continue rowLoop
			}
		}
		dates = append(dates, prices.Dates[t])
		values = append(values, out)
	}

	return domain.NewReturnTable(dates, tickers, values), nil
}
