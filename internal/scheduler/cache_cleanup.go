package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExpiredPriceDeleter removes expired price cache rows. *prices.Repository satisfies it.
type ExpiredPriceDeleter interface {
	DeleteExpired() (int64, error)
}

// RunPruner removes stored runs older than a cutoff. *analysis.Repository satisfies it.
type RunPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// Checkpointer checkpoints the write-ahead log. *database.DB satisfies it.
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// CacheCleanupJob removes expired cache entries and old runs, then truncates the WAL.
// It should be scheduled to run daily.
type CacheCleanupJob struct {
	prices       ExpiredPriceDeleter
	runs         RunPruner
	db           Checkpointer
	runRetention time.Duration
	log          zerolog.Logger
}

// NewCacheCleanupJob creates a cleanup job. runs and db may be nil; runRetention <= 0
// keeps runs forever.
func NewCacheCleanupJob(prices ExpiredPriceDeleter, runs RunPruner, db Checkpointer, runRetention time.Duration, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		prices:       prices,
		runs:         runs,
		db:           db,
		runRetention: runRetention,
		log:          log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Run executes the cleanup job
func (j *CacheCleanupJob) Run() error {
	deletedPrices, err := j.prices.DeleteExpired()
	if err != nil {
		return fmt.Errorf("failed to delete expired prices: %w", err)
	}

	var deletedRuns int64
	if j.runs != nil && j.runRetention > 0 {
		deletedRuns, err = j.runs.DeleteOlderThan(time.Now().Add(-j.runRetention))
		if err != nil {
			return fmt.Errorf("failed to delete old runs: %w", err)
		}
	}

	if j.db != nil && deletedPrices+deletedRuns > 0 {
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Msg("Failed to checkpoint WAL after cleanup")
		}
	}

	if deletedPrices+deletedRuns > 0 {
		j.log.Info().
			Int64("prices_deleted", deletedPrices).
			Int64("runs_deleted", deletedRuns).
			Msg("Cache cleanup completed")
	}
	return nil
}
