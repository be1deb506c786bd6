// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/export"
	"github.com/aristath/frontier/internal/modules/analysis"
	analysishandlers "github.com/aristath/frontier/internal/modules/analysis/handlers"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds every long-lived dependency of the service
type Container struct {
	// Database
	DB *database.DB

	// Repositories
	PriceRepo    *prices.Repository
	AnalysisRepo *analysis.Repository

	// Clients and services
	YahooClient     *yahoo.Client
	CachedSource    *prices.CachedSource
	Fetcher         *prices.Fetcher
	AnalysisService *analysis.Service
	AnalysisHandler *analysishandlers.Handler
	ReportWriter    *export.Writer
	Publisher       *export.Publisher // nil when uploads are not configured

	// Scheduling
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	RefreshPrices *scheduler.RefreshPricesJob
	Analysis      *scheduler.AnalysisJob
	CacheCleanup  *scheduler.CacheCleanupJob
}

// All returns the non-nil jobs
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	if j.RefreshPrices != nil {
		jobs = append(jobs, j.RefreshPrices)
	}
	if j.Analysis != nil {
		jobs = append(jobs, j.Analysis)
	}
	if j.CacheCleanup != nil {
		jobs = append(jobs, j.CacheCleanup)
	}
	return jobs
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
