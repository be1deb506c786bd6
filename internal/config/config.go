// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/frontier/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the database (always absolute)
	OutputDir string // Directory for exported reports (always absolute)
	LogLevel  string
	Port      int
	DevMode   bool

	Analysis AnalysisConfig
	Fetch    FetchConfig
	Schedule ScheduleConfig
	Export   ExportConfig
}

// AnalysisConfig holds the default analysis parameters
type AnalysisConfig struct {
	Commodities    []string
	StartDate      string
	EndDate        string
	RiskFreeRate   float64
	TradingDays    int
	FrontierPoints int
	Simulations    int
	TimeHorizon    int
	Seed           *uint64 // nil draws a fresh seed on every run
	Workers        int
	RollingWindow  int
}

// FetchConfig holds price download settings
type FetchConfig struct {
	Retries    int
	Timeout    time.Duration
	Interval   string // "1d", "1wk" or "1mo"
	RatePerSec float64
	CacheTTL   time.Duration
}

// ScheduleConfig holds cron expressions for background jobs. Empty disables a job.
type ScheduleConfig struct {
	Refresh      string
	Analysis     string
	Cleanup      string
	RunRetention time.Duration
}

// ExportConfig holds S3-compatible upload settings. Uploads are off without a bucket.
type ExportConfig struct {
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKeyID string
	S3SecretKey   string
	S3Prefix      string
	RetentionDays int
}

// S3Enabled reports whether exports should be uploaded
func (e ExportConfig) S3Enabled() bool {
	return e.S3Bucket != ""
}

// Default commodity tickers (Yahoo Finance format): gold, silver, WTI crude, natural gas, corn.
var defaultCommodities = []string{"GC=F", "SI=F", "CL=F", "NG=F", "ZC=F"}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := ensureDir(getEnv("FRONTIER_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	outputDir, err := ensureDir(getEnv("OUTPUT_DIR", "outputs"))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare output directory: %w", err)
	}

	cfg := &Config{
		DataDir:   dataDir,
		OutputDir: outputDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Port:      getEnvAsInt("PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Analysis: AnalysisConfig{
			Commodities:    getEnvAsList("COMMODITIES", defaultCommodities),
			StartDate:      getEnv("START_DATE", "2015-01-01"),
			EndDate:        getEnv("END_DATE", "2023-01-01"),
			RiskFreeRate:   getEnvAsFloat("RISK_FREE_RATE", 0.02),
			TradingDays:    getEnvAsInt("TRADING_DAYS", domain.DefaultTradingDays),
			FrontierPoints: getEnvAsInt("FRONTIER_POINTS", 10000),
			Simulations:    getEnvAsInt("MONTE_CARLO_SIMS", 1000),
			TimeHorizon:    getEnvAsInt("TIME_HORIZON", 252),
			Seed:           getEnvAsUint64Ptr("RANDOM_SEED"),
			Workers:        getEnvAsInt("FRONTIER_WORKERS", 1),
			RollingWindow:  getEnvAsInt("ROLLING_WINDOW", 21),
		},
		Fetch: FetchConfig{
			Retries:    getEnvAsInt("FETCH_RETRIES", 3),
			Timeout:    getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
			Interval:   getEnv("FETCH_INTERVAL", "1d"),
			RatePerSec: getEnvAsFloat("FETCH_RATE_PER_SEC", 2),
			CacheTTL:   getEnvAsDuration("PRICE_CACHE_TTL", 12*time.Hour),
		},
		Schedule: ScheduleConfig{
			Refresh:      getEnv("REFRESH_SCHEDULE", "0 0 6 * * *"),
			Analysis:     getEnv("ANALYSIS_SCHEDULE", ""),
			Cleanup:      getEnv("CLEANUP_SCHEDULE", "0 30 3 * * *"),
			RunRetention: getEnvAsDuration("RUN_RETENTION", 90*24*time.Hour),
		},
		Export: ExportConfig{
			S3Bucket:      getEnv("EXPORT_S3_BUCKET", ""),
			S3Region:      getEnv("EXPORT_S3_REGION", "auto"),
			S3Endpoint:    getEnv("EXPORT_S3_ENDPOINT", ""),
			S3AccessKeyID: getEnv("EXPORT_S3_ACCESS_KEY_ID", ""),
			S3SecretKey:   getEnv("EXPORT_S3_SECRET_ACCESS_KEY", ""),
			S3Prefix:      getEnv("EXPORT_S3_PREFIX", ""),
			RetentionDays: getEnvAsInt("EXPORT_S3_RETENTION_DAYS", 30),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the analysis parameters
func (c *Config) Validate() error {
	a := c.Analysis
	if len(a.Commodities) < 2 {
		return fmt.Errorf("at least 2 commodities required, got %d", len(a.Commodities))
	}
	if a.RiskFreeRate < 0 || a.RiskFreeRate > 0.1 {
		return fmt.Errorf("risk-free rate should be between 0%% and 10%%, got %g", a.RiskFreeRate)
	}
	if a.Simulations < 100 {
		return fmt.Errorf("minimum 100 simulations required, got %d", a.Simulations)
	}
	if a.TimeHorizon < 30 {
		return fmt.Errorf("minimum 30 day horizon required, got %d", a.TimeHorizon)
	}
	if a.FrontierPoints < 1 {
		return fmt.Errorf("frontier points must be positive, got %d", a.FrontierPoints)
	}
	if a.TradingDays < 1 {
		return fmt.Errorf("trading days must be positive, got %d", a.TradingDays)
	}
	for _, d := range []string{a.StartDate, a.EndDate} {
		if _, err := time.Parse(domain.DateLayout, d); err != nil {
			return fmt.Errorf("dates must be in YYYY-MM-DD format: %q", d)
		}
	}
	switch c.Fetch.Interval {
	case "1d", "1wk", "1mo":
	default:
		return fmt.Errorf("fetch interval must be one of 1d, 1wk, 1mo, got %q", c.Fetch.Interval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// DatabasePath returns the path of the SQLite database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "frontier.db")
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", err
	}
	return abs, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsUint64Ptr(key string) *uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return &v
		}
	}
	return nil
}

// getEnvAsList splits a comma-separated value, dropping blank entries
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
