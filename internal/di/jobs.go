package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
)

const (
	refreshTimeout  = 5 * time.Minute
	analysisTimeout = 30 * time.Minute
)

// RegisterJobs creates the background jobs and schedules those with a non-empty cron expression
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	jobs := &JobInstances{
		RefreshPrices: scheduler.NewRefreshPricesJob(
			container.CachedSource,
			container.AnalysisService.DefaultRequest,
			refreshTimeout,
			log,
		),
		CacheCleanup: scheduler.NewCacheCleanupJob(
			container.PriceRepo,
			container.AnalysisRepo,
			container.DB,
			cfg.Schedule.RunRetention,
			log,
		),
	}

	analysisCfg := scheduler.AnalysisJobConfig{
		Runner:        container.AnalysisService,
		Writer:        container.ReportWriter,
		RetentionDays: cfg.Export.RetentionDays,
		Timeout:       analysisTimeout,
		Log:           log,
	}
	// A nil *export.Publisher must stay a nil interface.
	if container.Publisher != nil {
		analysisCfg.Publisher = container.Publisher
	}
	jobs.Analysis = scheduler.NewAnalysisJob(analysisCfg)

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.Schedule.Refresh, jobs.RefreshPrices},
		{cfg.Schedule.Analysis, jobs.Analysis},
		{cfg.Schedule.Cleanup, jobs.CacheCleanup},
	}
	for _, s := range schedules {
		if s.spec == "" {
			log.Info().Str("job", s.job.Name()).Msg("Job has no schedule, manual trigger only")
			continue
		}
		if err := container.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
	}

	return jobs, nil
}
