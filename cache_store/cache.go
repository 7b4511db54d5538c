package cache_store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/metrics"
)

// CacheManager owns the backend and the cache tiers built on it
type CacheManager struct {
	backend      Backend
	codec        Codec
	FileMetadata *FileMetadataCache
	Directories  *DirectoryMetaCache
	Digests      *BlobDigestCache
}

// NewCacheManager opens the configured backend under cfg.CacheDir. m may be nil.
func NewCacheManager(cfg *config.Config, m *metrics.Metrics) (*CacheManager, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Cache.Backend {
	case "badger":
		backend, err = NewBadgerBackend(filepath.Join(cfg.CacheDir, "badger"))
	default:
		backend, err = NewFileBackend(cfg.CacheDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache backend: %w", err)
	}
	return NewCacheManagerWithBackend(backend, CodecByName(cfg.Cache.Encoding), cfg.Cache, m), nil
}

// NewCacheManagerWithBackend builds the tiers on an already opened backend
func NewCacheManagerWithBackend(backend Backend, codec Codec, cc config.CacheConfig, m *metrics.Metrics) *CacheManager {
	return &CacheManager{
		backend:      backend,
		codec:        codec,
		FileMetadata: NewFileMetadataCache(backend, codec, cc.FileMetadataRetention, NewCacheStats(fileMetadataStore, m)),
		Directories:  NewDirectoryMetaCache(backend, codec, cc.DirectoryMetaTTL, NewCacheStats(directoryMetaStore, m)),
		Digests:      NewBlobDigestCache(backend, codec, NewCacheStats(digestStore, m)),
	}
}

// Close releases the backend
func (cm *CacheManager) Close() error {
	return cm.backend.Close()
}

// ClearCache completely removes all cache entries
func (cm *CacheManager) ClearCache(ctx context.Context) error {
	if err := cm.FileMetadata.Clear(ctx); err != nil {
		return err
	}
	if err := cm.Directories.Clear(ctx); err != nil {
		return err
	}
	return cm.Digests.ClearDigests(ctx)
}

// GetCacheStats returns storage and per-tier performance statistics
func (cm *CacheManager) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	blobs, err := cm.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, b := range blobs {
		totalSize += b.Size
	}

	stats := map[string]interface{}{
		"cache_files":   len(blobs),
		"total_size":    totalSize,
		"total_size_mb": float64(totalSize) / (1024 * 1024),
		"total_human":   humanize.Bytes(uint64(totalSize)),
		"encoding":      cm.codec.Name(),
		"performance": map[string]interface{}{
			fileMetadataStore:  cm.FileMetadata.Stats().GetPerformanceStats(),
			directoryMetaStore: cm.Directories.Stats().GetPerformanceStats(),
			digestStore:        cm.Digests.Stats().GetPerformanceStats(),
		},
	}
	if fb, ok := cm.backend.(*FileBackend); ok {
		stats["cache_dir"] = fb.Dir()
	}

	entries := map[string]int{}
	if snap, err := cm.FileMetadata.Load(ctx); err == nil {
		entries[fileMetadataStore] = snap.Len()
	}
	if snap, err := cm.Directories.Load(ctx); err == nil {
		entries[directoryMetaStore] = snap.Len()
	}
	if snap, err := cm.Digests.store.Load(ctx); err == nil {
		entries[digestStore] = snap.Len()
	}
	stats["entries"] = entries

	return stats, nil
}

// CacheCleanupOptions defines options for file metadata cleanup
type CacheCleanupOptions struct {
	MaxAge     time.Duration // Remove entries older than this
	MaxEntries int           // Remove oldest entries beyond this count
	DryRun     bool          // If true, only report what would be cleaned
}

// SmartCleanupCache trims the file metadata tier by age, then by count, oldest first
func (cm *CacheManager) SmartCleanupCache(ctx context.Context, options CacheCleanupOptions) (map[string]interface{}, error) {
	snap, err := cm.FileMetadata.Load(ctx)
	if err != nil {
		return nil, err
	}

	type aged struct {
		path     string
		cachedAt time.Time
	}
	var all []aged
	snap.Range(func(path string, e FileMetadataEntry) bool {
		all = append(all, aged{path: path, cachedAt: e.CachedAt})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].cachedAt.Before(all[j].cachedAt) })

	var toDelete []string
	var deletedByAge, deletedByCount int

	// Phase 1: Remove by age
	remaining := all
	if options.MaxAge > 0 {
		cutoff := time.Now().Add(-options.MaxAge)
		remaining = remaining[:0:0]
		for _, a := range all {
			if a.cachedAt.Before(cutoff) {
				toDelete = append(toDelete, a.path)
				deletedByAge++
				continue
			}
			remaining = append(remaining, a)
		}
	}

	// Phase 2: Remove by count (oldest first)
	if options.MaxEntries > 0 && len(remaining) > options.MaxEntries {
		excess := len(remaining) - options.MaxEntries
		for _, a := range remaining[:excess] {
			toDelete = append(toDelete, a.path)
			deletedByCount++
		}
	}

	if !options.DryRun {
		for _, p := range toDelete {
			snap.Delete(p)
		}
		if err := snap.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{
		"entries_before_cleanup":    len(all),
		"entries_marked_for_delete": len(toDelete),
		"deleted_by_age":            deletedByAge,
		"deleted_by_count":          deletedByCount,
		"entries_after_cleanup":     len(all) - len(toDelete),
		"dry_run":                   options.DryRun,
	}, nil
}
