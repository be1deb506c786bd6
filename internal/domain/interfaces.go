package domain

import "context"

// PriceSource downloads adjusted closing prices for a basket of tickers.
// Implementations return a table keyed by trading date and ticker; cells an
// asset has no quote for are NaN. An empty table is not an error at this level.
type PriceSource interface {
	Download(ctx context.Context, tickers []string, start, end string) (*PriceTable, error)
}

// PriceSourceFunc adapts a plain function to PriceSource.
type PriceSourceFunc func(ctx context.Context, tickers []string, start, end string) (*PriceTable, error)

// Download calls f.
func (f PriceSourceFunc) Download(ctx context.Context, tickers []string, start, end string) (*PriceTable, error) {
	return f(ctx, tickers, start, end)
}
