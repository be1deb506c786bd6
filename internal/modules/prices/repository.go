package prices

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCacheTTL is how long a downloaded table is served without refetching.
const DefaultCacheTTL = 12 * time.Hour

// cachedTable is the msgpack payload stored in price_tables.data.
// Dates are unix seconds; NaN cells survive the float64 encoding unchanged.
type cachedTable struct {
	Dates   []int64     `msgpack:"d"`
	Tickers []string    `msgpack:"t"`
	Values  [][]float64 `msgpack:"v"`
}

// CacheEntry is a stored table together with its bookkeeping.
type CacheEntry struct {
	Key       string
	Table     *domain.PriceTable
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry has not yet expired.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Repository persists downloaded price tables in the price_tables table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new price cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CacheKey identifies a request independently of ticker order.
// The column order of the stored table is kept as requested.
func CacheKey(tickers []string, start, end string) string {
	sorted := append([]string(nil), tickers...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",") + "|" + start + "|" + end))
	return hex.EncodeToString(sum[:16])
}

// Store saves table under the request key with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert.
func (r *Repository) Store(tickers []string, start, end string, table *domain.PriceTable, ttl time.Duration) error {
	payload := cachedTable{
		Dates:   make([]int64, len(table.Dates)),
		Tickers: table.Tickers,
		Values:  table.Values,
	}
	for i, d := range table.Dates {
		payload.Dates[i] = d.Unix()
	}

	data, err := msgpack.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("failed to marshal price table: %w", err)
	}

	now := time.Now()
	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO price_tables
			(cache_key, tickers, start_date, end_date, rows, data, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		CacheKey(tickers, start, end),
		strings.Join(tickers, ","),
		start,
		end,
		table.Rows(),
		data,
		now.Unix(),
		now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store price table: %w", err)
	}
	return nil
}

// GetIfFresh returns the cached entry only if it has not expired.
// Returns nil, nil if the key doesn't exist or the entry is expired.
func (r *Repository) GetIfFresh(tickers []string, start, end string) (*CacheEntry, error) {
	return r.get(CacheKey(tickers, start, end), true)
}

// Get returns the cached entry regardless of expiration.
// Stale data is served when the upstream source fails.
func (r *Repository) Get(tickers []string, start, end string) (*CacheEntry, error) {
	return r.get(CacheKey(tickers, start, end), false)
}

func (r *Repository) get(key string, freshOnly bool) (*CacheEntry, error) {
	query := "SELECT data, fetched_at, expires_at FROM price_tables WHERE cache_key = ?"
	args := []interface{}{key}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, time.Now().Unix())
	}

	var (
		data      []byte
		fetchedAt int64
		expiresAt int64
	)
	err := r.db.QueryRow(query, args...).Scan(&data, &fetchedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price table: %w", err)
	}

	var payload cachedTable
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price table %s: %w", key, err)
	}

	dates := make([]time.Time, len(payload.Dates))
	for i, s := range payload.Dates {
		dates[i] = time.Unix(s, 0).UTC()
	}

	return &CacheEntry{
		Key:       key,
		Table:     domain.NewPriceTable(dates, payload.Tickers, payload.Values),
		FetchedAt: time.Unix(fetchedAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

// Delete removes the entry for a request.
func (r *Repository) Delete(tickers []string, start, end string) error {
	_, err := r.db.Exec("DELETE FROM price_tables WHERE cache_key = ?", CacheKey(tickers, start, end))
	if err != nil {
		return fmt.Errorf("failed to delete price table: %w", err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM price_tables WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired price tables: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of cached tables, expired ones included.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM price_tables").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count price tables: %w", err)
	}
	return n, nil
}
