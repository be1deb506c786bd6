// Package prices retrieves adjusted closing price tables with bounded retry and caching.
package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultMaxRetries is the attempt bound used when callers pass zero.
const DefaultMaxRetries = 3

var (
	// ErrNoData means every attempt returned an empty table.
	ErrNoData = errors.New("no data returned")
	// ErrConnection means the final attempt failed at the transport.
	ErrConnection = errors.New("price source unavailable")
	// ErrInvalidRequest means the tickers or dates were rejected before any I/O.
	ErrInvalidRequest = errors.New("invalid price request")
)

// Source is anything that can download a price table.
type Source = domain.PriceSource

// Fetcher wraps a Source with bounded retry and missing-row cleanup.
type Fetcher struct {
	source  Source
	backoff time.Duration
	log     zerolog.Logger
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithBackoff waits base<<attempt between attempts. Zero disables waiting.
func WithBackoff(base time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = base }
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source Source, log zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source: source,
		log:    log.With().Str("component", "price_fetcher").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads adjusted closes for tickers in [start, end], trying up to maxRetries times.
// An empty table counts as a failed attempt. Only the last attempt decides the error:
// a transport failure yields ErrConnection, an empty table yields ErrNoData.
// Rows with a missing value for any ticker are dropped from the result.
func (f *Fetcher) Fetch(ctx context.Context, tickers []string, start, end string, maxRetries int) (*domain.PriceTable, error) {
	if err := validateRequest(tickers, start, end); err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := f.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		table, err := f.source.Download(ctx, tickers, start, end)
		lastErr = err

		if err == nil && table != nil && !table.Empty() {
			cleaned := table.DropIncomplete()
			if dropped := table.Rows() - cleaned.Rows(); dropped > 0 {
				f.log.Debug().Int("dropped_rows", dropped).Msg("Dropped rows with missing prices")
			}
			return cleaned, nil
		}

		event := f.log.Warn().
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries).
			Strs("tickers", tickers)
		if err != nil {
			event.Err(err).Msg("Price download failed")
		} else {
			event.Msg("Price download returned no data")
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: failed to fetch data after %d attempts: %w", ErrConnection, maxRetries, lastErr)
	}
	return nil, fmt.Errorf("%w for %s after %d attempts", ErrNoData, strings.Join(tickers, ","), maxRetries)
}

func (f *Fetcher) wait(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.backoff <= 0 {
		return nil
	}

	timer := time.NewTimer(f.backoff << (attempt - 1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func validateRequest(tickers []string, start, end string) error {
	if len(tickers) == 0 {
		return fmt.Errorf("%w: no tickers given", ErrInvalidRequest)
	}
	for _, t := range tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: blank ticker", ErrInvalidRequest)
		}
	}
	startDate, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidRequest, start)
	}
	endDate, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end date %q is not YYYY-MM-DD", ErrInvalidRequest, end)
	}
	if endDate.Before(startDate) {
		return fmt.Errorf("%w: end date %s precedes start date %s", ErrInvalidRequest, end, start)
	}
	return nil
}
