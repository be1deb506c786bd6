package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/scheduler"
)

// Version is the service version reported by /health and /api/system/status.
var Version = "dev"

// JobRunner executes a job outside its schedule. *scheduler.Scheduler satisfies it.
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemHandlers serves system status and manual job triggers
type SystemHandlers struct {
	log              zerolog.Logger
	db               *database.DB
	dataDir          string
	outputDir        string
	cachedPriceCount func() (int, error)
	startedAt        time.Time

	mu      sync.RWMutex
	jobs    map[string]scheduler.Job
	runners map[string]JobRunner
}

// NewSystemHandlers creates system handlers. db and cachedPriceCount may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	dataDir string,
	outputDir string,
	cachedPriceCount func() (int, error),
) *SystemHandlers {
	return &SystemHandlers{
		log:              log.With().Str("handler", "system").Logger(),
		db:               db,
		dataDir:          dataDir,
		outputDir:        outputDir,
		cachedPriceCount: cachedPriceCount,
		startedAt:        time.Now(),
		jobs:             make(map[string]scheduler.Job),
		runners:          make(map[string]JobRunner),
	}
}

// RegisterJob makes job triggerable by name
func (h *SystemHandlers) RegisterJob(runner JobRunner, job scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs[job.Name()] = job
	h.runners[job.Name()] = runner
}

// SystemStatusResponse represents the system status
type SystemStatusResponse struct {
	Status           string          `json:"status"`
	Version          string          `json:"version"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	Goroutines       int             `json:"goroutines"`
	CPUPercent       float64         `json:"cpu_percent"`
	MemoryPercent    float64         `json:"memory_percent"`
	DataDirSizeMB    float64         `json:"data_dir_size_mb"`
	OutputDirSizeMB  float64         `json:"output_dir_size_mb"`
	Database         *database.Stats `json:"database,omitempty"`
	DatabaseHealthy  bool            `json:"database_healthy"`
	CachedPriceSets  int             `json:"cached_price_sets"`
	RegisteredJobs   []string        `json:"registered_jobs"`
	LastStatusUpdate string          `json:"last_status_update"`
}

// HandleSystemStatus returns comprehensive system status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:           "healthy",
		Version:          Version,
		UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
		Goroutines:       runtime.NumGoroutine(),
		CPUPercent:       cpuPercent,
		MemoryPercent:    memPercent,
		DataDirSizeMB:    h.getDirSize(h.dataDir),
		OutputDirSizeMB:  h.getDirSize(h.outputDir),
		RegisteredJobs:   h.jobNames(),
		LastStatusUpdate: time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.QuickCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			response.Status = "degraded"
		} else {
			response.DatabaseHealthy = true
		}

		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
		} else {
			response.Database = stats
		}
	}

	if h.cachedPriceCount != nil {
		count, err := h.cachedPriceCount()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count cached price sets")
		} else {
			response.CachedPriceSets = count
		}
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// HandleListJobs lists the jobs that can be triggered manually
// GET /api/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(h.log, w, http.StatusOK, map[string]interface{}{
		"jobs": h.jobNames(),
	})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	runner := h.runners[name]
	h.mu.RUnlock()

	if !ok {
		h.log.Warn().Str("job", name).Msg("Job not registered")
		writeJSON(h.log, w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "Job not registered",
		})
		return
	}

	started := time.Now()
	if err := runner.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		writeJSON(h.log, w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	writeJSON(h.log, w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"job":         name,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (h *SystemHandlers) jobNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getDirSize returns the total size of regular files under dirPath in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
