package contracts

import (
	"context"
	"time"

	"github.com/morler/repomuse/code_analyzer/models"
)

// ICodeAnalyzer is the scan entry point used by the CLI and the HTTP API
type ICodeAnalyzer interface {
	Scan(ctx context.Context, root string, opts models.ScanOptions) (*models.RepoAnalysis, error)
	ScanMany(ctx context.Context, roots []string, opts models.ScanOptions) []*models.RepoAnalysis
	Cancel(root string) error
	Progress(root string) (models.ProgressSnapshot, bool)
	ClearCache(ctx context.Context) error
	GetCacheStats(ctx context.Context) (map[string]interface{}, error)
}

// IProgressSink receives progress telemetry. Delivery is best-effort.
type IProgressSink interface {
	PublishProgress(snapshot models.ProgressSnapshot)
	PublishBatch(progress models.BatchProgress)
}

// IDigestCache stores whole digests keyed by normalized root
type IDigestCache interface {
	GetDigest(ctx context.Context, root string) (*models.RepoAnalysis, time.Time, bool, error)
	PutDigest(ctx context.Context, root string, digest *models.RepoAnalysis, ttl time.Duration, favorite bool) error
	InvalidateDigest(ctx context.Context, root string) error
	ClearDigests(ctx context.Context) error
}

// IProjectStore keeps project identity, favorites and scan statistics
type IProjectStore interface {
	IsFavorite(ctx context.Context, root string) (bool, error)
	TouchProject(ctx context.Context, root string, isGitRepo bool) error
	RecordScan(ctx context.Context, root string, digest *models.RepoAnalysis) error
}

// NopSink drops everything
type NopSink struct{}

// PublishProgress implements IProgressSink
func (NopSink) PublishProgress(models.ProgressSnapshot) {}

// PublishBatch implements IProgressSink
func (NopSink) PublishBatch(models.BatchProgress) {}
