package analysis

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Tickers     []string  `json:"tickers"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	SharpeRatio *float64  `json:"sharpe_ratio"`
}

// Repository persists analysis runs in the analysis_runs table.
// The full run is stored as JSON; the listing columns are denormalized for queries.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new analysis run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "analysis_runs").Logger(),
	}
}

// Save stores run, assigning a new UUID and creation time when they are unset.
// Returns the run ID.
func (r *Repository) Save(run *domain.AnalysisRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis run: %w", err)
	}

	var sharpe interface{}
	if v := domain.Finite(run.Stats.Sharpe); v != nil {
		sharpe = *v
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO analysis_runs
			(id, created_at, tickers, start_date, end_date, sharpe_ratio, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CreatedAt.Unix(),
		strings.Join(run.Request.Tickers, ","),
		run.Request.StartDate,
		run.Request.EndDate,
		sharpe,
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert analysis run: %w", err)
	}

	r.log.Debug().Str("id", run.ID).Msg("Stored analysis run")
	return run.ID, nil
}

// Get returns the run with id, or nil, nil when it does not exist.
func (r *Repository) Get(id string) (*domain.AnalysisRun, error) {
	var data string
	err := r.db.QueryRow("SELECT data FROM analysis_runs WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis run %s: %w", id, err)
	}

	var run domain.AnalysisRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis run %s: %w", id, err)
	}
	return &run, nil
}

// List returns the most recent runs first. limit <= 0 means 50.
func (r *Repository) List(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, created_at, tickers, start_date, end_date, sharpe_ratio
		FROM analysis_runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var (
			s         RunSummary
			createdAt int64
			tickers   string
			sharpe    sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &createdAt, &tickers, &s.StartDate, &s.EndDate, &sharpe); err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		if tickers != "" {
			s.Tickers = strings.Split(tickers, ",")
		}
		if sharpe.Valid {
			v := sharpe.Float64
			s.SharpeRatio = &v
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis runs: %w", err)
	}
	return summaries, nil
}

// DeleteOlderThan removes runs created before cutoff and returns how many were removed.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM analysis_runs WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old analysis runs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
