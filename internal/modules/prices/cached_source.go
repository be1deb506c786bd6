package prices

import (
	"context"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/rs/zerolog"
)

// CachedSource serves price tables from the repository before asking the upstream source.
// When the upstream fails, an expired cached table is served if one exists.
type CachedSource struct {
	inner Source
	repo  *Repository
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedSource wraps inner with a read-through cache. ttl <= 0 uses DefaultCacheTTL.
func NewCachedSource(inner Source, repo *Repository, ttl time.Duration, log zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		inner: inner,
		repo:  repo,
		ttl:   ttl,
		log:   log.With().Str("component", "price_cache").Logger(),
	}
}

// Download implements Source.
func (s *CachedSource) Download(ctx context.Context, tickers []string, start, end string) (*domain.PriceTable, error) {
	entry, err := s.repo.GetIfFresh(tickers, start, end)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read price cache")
	}
	if entry != nil && !entry.Table.Empty() {
		s.log.Debug().Str("key", entry.Key).Msg("Price cache hit")
		return alignColumns(entry.Table, tickers), nil
	}

	table, err := s.inner.Download(ctx, tickers, start, end)
	if err != nil {
		stale, staleErr := s.repo.Get(tickers, start, end)
		if staleErr == nil && stale != nil && !stale.Table.Empty() {
			s.log.Warn().
				Err(err).
				Time("fetched_at", stale.FetchedAt).
				Msg("Price source failed, serving stale cache entry")
			return alignColumns(stale.Table, tickers), nil
		}
		return nil, err
	}

	if table != nil && !table.Empty() {
		if err := s.repo.Store(tickers, start, end, table, s.ttl); err != nil {
			s.log.Warn().Err(err).Msg("Failed to store price table")
		}
	}
	return table, nil
}

// Refresh downloads from the upstream source unconditionally and replaces the cache entry.
func (s *CachedSource) Refresh(ctx context.Context, tickers []string, start, end string) (*domain.PriceTable, error) {
	table, err := s.inner.Download(ctx, tickers, start, end)
	if err != nil {
		return nil, err
	}
	if table == nil || table.Empty() {
		return table, nil
	}
	if err := s.repo.Store(tickers, start, end, table, s.ttl); err != nil {
		return nil, err
	}
	return table, nil
}

// alignColumns reorders the cached columns to match the requested ticker order.
// The cache key ignores order, so the same entry serves any permutation.
func alignColumns(table *domain.PriceTable, tickers []string) *domain.PriceTable {
	if len(table.Tickers) != len(tickers) {
		return table
	}
	index := make(map[string]int, len(table.Tickers))
	for j, t := range table.Tickers {
		index[t] = j
	}
	order := make([]int, len(tickers))
	same := true
	for j, t := range tickers {
		src, ok := index[t]
		if !ok {
			return table
		}
		order[j] = src
		same = same && src == j
	}
	if same {
		return table
	}

	values := make([][]float64, len(table.Values))
	for i, row := range table.Values {
		out := make([]float64, len(order))
		for j, src := range order {
			out[j] = row[src]
		}
		values[i] = out
	}
	return domain.NewPriceTable(table.Dates, append([]string(nil), tickers...), values)
}
