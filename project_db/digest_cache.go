package project_db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/metrics"
)

// DigestCache is the analysis_cache table seen as a whole-digest cache
type DigestCache struct {
	store *Store
	codec cache_store.Codec
	stats *cache_store.CacheStats
}

// NewDigestCache stores digests gob+lz4 encoded. m may be nil.
func NewDigestCache(store *Store, m *metrics.Metrics) *DigestCache {
	return &DigestCache{
		store: store,
		codec: cache_store.BinaryCodec{},
		stats: cache_store.NewCacheStats("digests_sqlite", m),
	}
}

// Stats returns the hit and miss counters
func (c *DigestCache) Stats() *cache_store.CacheStats { return c.stats }

// GetDigest implements contracts.IDigestCache
func (c *DigestCache) GetDigest(ctx context.Context, root string) (*models.RepoAnalysis, time.Time, bool, error) {
	conn, err := c.store.conn(ctx, "project_db.GetDigest")
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer conn.Close()

	var (
		blob     []byte
		cachedAt int64
	)
	err = conn.QueryRowContext(ctx,
		`SELECT a.analysis_data, a.cached_at FROM analysis_cache a
		 JOIN projects p ON p.id = a.project_id
		 WHERE p.path = ? AND a.expires_at > ?`, root, time.Now().UnixMilli()).Scan(&blob, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		c.stats.Record(false)
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, app_errors.Wrap(err, app_errors.ErrorCodeIo, "project_db.GetDigest", "failed to read cached digest")
	}

	var digest models.RepoAnalysis
	if err := cache_store.DecodeAny(blob, &digest); err != nil {
		c.store.log.Warn().
			Err(app_errors.Wrap(err, app_errors.ErrorCodeCacheCorrupt, "project_db.GetDigest", "undecodable digest")).
			Str("root", root).
			Msg("cache corrupt, treating as miss")
		c.stats.Record(false)
		return nil, time.Time{}, false, nil
	}
	c.stats.Record(true)
	return &digest, time.UnixMilli(cachedAt), true, nil
}

// PutDigest implements contracts.IDigestCache
func (c *DigestCache) PutDigest(ctx context.Context, root string, digest *models.RepoAnalysis, ttl time.Duration, favorite bool) error {
	blob, err := c.codec.Encode(digest)
	if err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeInternal, "project_db.PutDigest", "failed to encode digest")
	}
	metricsJSON, err := json.Marshal(digest.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	conn, err := c.store.conn(ctx, "project_db.PutDigest")
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx,
		`INSERT INTO projects (path, name) VALUES (?, ?)
		 ON CONFLICT(path) DO NOTHING`, root, filepath.Base(root))
	if err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}

	now := time.Now()
	_, err = conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO analysis_cache
		 (project_id, analysis_data, technologies, metrics, cached_at, expires_at)
		 VALUES ((SELECT id FROM projects WHERE path = ?), ?, ?, ?, ?, ?)`,
		root, blob, strings.Join(digest.Technologies, ","), string(metricsJSON),
		now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache analysis: %w", err)
	}

	c.store.log.Debug().Str("root", root).Dur("ttl", ttl).Bool("favorite", favorite).Int("bytes", len(blob)).Msg("digest cached")
	return nil
}

// InvalidateDigest implements contracts.IDigestCache
func (c *DigestCache) InvalidateDigest(ctx context.Context, root string) error {
	_, err := c.store.db.ExecContext(ctx,
		`DELETE FROM analysis_cache WHERE project_id = (SELECT id FROM projects WHERE path = ?)`, root)
	if err != nil {
		return fmt.Errorf("invalidate digest: %w", err)
	}
	return nil
}

// ClearDigests implements contracts.IDigestCache
func (c *DigestCache) ClearDigests(ctx context.Context) error {
	if _, err := c.store.db.ExecContext(ctx, `DELETE FROM analysis_cache`); err != nil {
		return fmt.Errorf("clear digests: %w", err)
	}
	return nil
}
