package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix = "portfolio-analysis-"
	archiveSuffix = ".tar.gz"
	archiveLayout = "2006-01-02-150405"

	// minArchivesToKeep survive rotation regardless of age.
	minArchivesToKeep = 3
)

// ArchiveInfo represents an archive stored in the bucket.
type ArchiveInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// Publisher archives export directories and uploads them to object storage.
type Publisher struct {
	store ObjectStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewPublisher creates a publisher over store.
func NewPublisher(store ObjectStore, log zerolog.Logger) *Publisher {
	return &Publisher{
		store: store,
		now:   time.Now,
		log:   log.With().Str("service", "export_publisher").Logger(),
	}
}

// Publish packs dir into a tar.gz and uploads it. Returns the object key.
func (p *Publisher) Publish(ctx context.Context, dir, runID string) (string, error) {
	startTime := time.Now()

	stagingDir, err := os.MkdirTemp("", "frontier-export-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	key := archivePrefix + p.now().UTC().Format(archiveLayout) + archiveSuffix
	archivePath := filepath.Join(stagingDir, key)

	manifest, err := Archive(dir, archivePath, runID)
	if err != nil {
		return "", err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := p.store.Upload(ctx, key, file, info.Size()); err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	p.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Int("files", len(manifest.Files)).
		Int64("size_bytes", info.Size()).
		Msg("Export published")

	return key, nil
}

// ListArchives returns the published archives, newest first.
func (p *Publisher) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := p.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	now := p.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), archiveSuffix)
		timestamp, err := time.Parse(archiveLayout, stamp)
		if err != nil {
			p.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from key")
			continue
		}
		archives = append(archives, ArchiveInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// Rotate deletes archives older than retentionDays, always keeping the newest few.
// retentionDays <= 0 keeps everything. Returns the number deleted.
func (p *Publisher) Rotate(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	archives, err := p.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, a := range archives[minArchivesToKeep:] {
		if !a.Timestamp.Before(cutoff) {
			continue
		}
		if err := p.store.Delete(ctx, a.Key); err != nil {
			p.log.Error().Err(err).Str("key", a.Key).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	p.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Export rotation completed")
	return deleted, nil
}
