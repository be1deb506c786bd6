package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DateLayout is the ISO calendar date format used for requests and table rows.
const DateLayout = "2006-01-02"

// Table is a date-indexed, ticker-columned matrix of observations.
// Values is row-major: Values[row][col] belongs to Dates[row] and Tickers[col].
type Table struct {
	Dates   []time.Time
	Tickers []string
	Values  [][]float64
}

// PriceTable holds adjusted closing prices, rows in chronological order.
type PriceTable struct {
	Table
}

// ReturnTable holds per-asset daily log returns derived from a PriceTable.
type ReturnTable struct {
	Table
}

// NewPriceTable creates a price table from its parts.
func NewPriceTable(dates []time.Time, tickers []string, values [][]float64) *PriceTable {
	return &PriceTable{Table{Dates: dates, Tickers: tickers, Values: values}}
}

// NewReturnTable creates a return table from its parts.
func NewReturnTable(dates []time.Time, tickers []string, values [][]float64) *ReturnTable {
	return &ReturnTable{Table{Dates: dates, Tickers: tickers, Values: values}}
}

// Rows returns the number of observations.
func (t *Table) Rows() int {
	if t == nil {
		return 0
	}
	return len(t.Values)
}

// Assets returns the number of asset columns.
func (t *Table) Assets() int {
	if t == nil {
		return 0
	}
	return len(t.Tickers)
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t.Rows() == 0 || t.Assets() == 0
}

// Rows returns the number of observations. A nil table has none.
func (p *PriceTable) Rows() int {
	if p == nil {
		return 0
	}
	return p.Table.Rows()
}

// Assets returns the number of asset columns. A nil table has none.
func (p *PriceTable) Assets() int {
	if p == nil {
		return 0
	}
	return p.Table.Assets()
}

// Empty reports whether the table is nil or has no rows or columns.
func (p *PriceTable) Empty() bool {
	return p == nil || p.Table.Empty()
}

// Rows returns the number of observations. A nil table has none.
func (r *ReturnTable) Rows() int {
	if r == nil {
		return 0
	}
	return r.Table.Rows()
}

// Assets returns the number of asset columns. A nil table has none.
func (r *ReturnTable) Assets() int {
	if r == nil {
		return 0
	}
	return r.Table.Assets()
}

// Empty reports whether the table is nil or has no rows or columns.
func (r *ReturnTable) Empty() bool {
	return r == nil || r.Table.Empty()
}

// Column copies the series for asset column j.
func (t *Table) Column(j int) []float64 {
	col := make([]float64, len(t.Values))
	for i, row := range t.Values {
		col[i] = row[j]
	}
	return col
}

// Row returns observation i. The slice is shared with the table and must not be modified.
func (t *Table) Row(i int) []float64 {
	return t.Values[i]
}

// Last returns the final observation, or nil when the table is empty.
func (t *Table) Last() []float64 {
	if t.Rows() == 0 {
		return nil
	}
	return t.Values[len(t.Values)-1]
}

// Flatten returns the values as a single row-major slice, suitable for gonum matrices.
func (t *Table) Flatten() []float64 {
	out := make([]float64, 0, t.Rows()*t.Assets())
	for _, row := range t.Values {
		out = append(out, row...)
	}
	return out
}

// Validate checks that dates, tickers and values agree in shape.
func (t *Table) Validate() error {
	if len(t.Dates) != len(t.Values) {
		return fmt.Errorf("table has %d dates but %d rows", len(t.Dates), len(t.Values))
	}
	for i, row := range t.Values {
		if len(row) != len(t.Tickers) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(t.Tickers))
		}
	}
	return nil
}

// HasMissing reports whether any cell is NaN.
func (t *Table) HasMissing() bool {
	for _, row := range t.Values {
		for _, v := range row {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// DropIncomplete returns a copy keeping only rows where every asset has a value.
func (p *PriceTable) DropIncomplete() *PriceTable {
	dates := make([]time.Time, 0, len(p.Dates))
	values := make([][]float64, 0, len(p.Values))

	for i, row := range p.Values {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		dates = append(dates, p.Dates[i])
		values = append(values, append([]float64(nil), row...))
	}

	tickers := append([]string(nil), p.Tickers...)
	return NewPriceTable(dates, tickers, values)
}

type tableJSON struct {
	Dates   []string     `json:"dates"`
	Tickers []string     `json:"tickers"`
	Values  [][]*float64 `json:"values"`
}

// MarshalJSON encodes dates as ISO days and missing or non-finite cells as null.
func (t Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Dates:   make([]string, len(t.Dates)),
		Tickers: t.Tickers,
		Values:  make([][]*float64, len(t.Values)),
	}
	for i, d := range t.Dates {
		out.Dates[i] = d.Format(DateLayout)
	}
	for i, row := range t.Values {
		out.Values[i] = FiniteSlice(row)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON; null cells decode as NaN.
func (t *Table) UnmarshalJSON(data []byte) error {
	var in tableJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	t.Tickers = in.Tickers
	t.Dates = make([]time.Time, len(in.Dates))
	for i, s := range in.Dates {
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", s, err)
		}
		t.Dates[i] = d
	}
	t.Values = make([][]float64, len(in.Values))
	for i, row := range in.Values {
		t.Values[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				t.Values[i][j] = math.NaN()
			} else {
				t.Values[i][j] = *v
			}
		}
	}
	return nil
}

// Finite returns a pointer to v, or nil when v is NaN or infinite.
// encoding/json rejects non-finite floats, so every API value goes through here.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FiniteSlice applies Finite element-wise.
func FiniteSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = Finite(v)
	}
	return out
}
