package cache_store

import (
	"context"
	"os"
	"time"

	"github.com/morler/repomuse/code_analyzer/models"
)

const fileMetadataStore = "file_metadata"

// FileMetadataEntry remembers what a file looked like when it was last processed
type FileMetadataEntry struct {
	Path         string
	Language     string
	Size         int64
	LastModified time.Time
	CachedAt     time.Time
	ShortHash    string
}

// FileMetadataCache is the per-file tier used to detect changed files
type FileMetadataCache struct {
	store *Store[string, FileMetadataEntry]
}

// NewFileMetadataCache prunes entries older than retention and entries whose
// file no longer matches on disk
func NewFileMetadataCache(backend Backend, codec Codec, retention time.Duration, stats *CacheStats) *FileMetadataCache {
	return &FileMetadataCache{store: NewStore(backend, codec, Policy[string, FileMetadataEntry]{
		Name:     fileMetadataStore,
		TTL:      retention,
		CachedAt: func(e FileMetadataEntry) time.Time { return e.CachedAt },
		Valid: func(path string, e FileMetadataEntry) bool {
			info, err := os.Stat(path)
			return err == nil && info.ModTime().Equal(e.LastModified)
		},
	}, stats)}
}

// Load returns a snapshot for one scan
func (c *FileMetadataCache) Load(ctx context.Context) (*FileMetadataSnapshot, error) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &FileMetadataSnapshot{Snapshot: snap}, nil
}

// Invalidate drops the entries for paths right away
func (c *FileMetadataCache) Invalidate(ctx context.Context, paths ...string) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		snap.Delete(p)
	}
	return snap.Commit(ctx)
}

// Clear removes every entry
func (c *FileMetadataCache) Clear(ctx context.Context) error { return c.store.Clear(ctx) }

// Stats returns the tier counters
func (c *FileMetadataCache) Stats() *CacheStats { return c.store.Stats() }

// FileMetadataSnapshot adds file-specific helpers to a snapshot
type FileMetadataSnapshot struct {
	*Snapshot[string, FileMetadataEntry]
}

// IsUnchanged reports whether path was processed before at exactly mtime
func (s *FileMetadataSnapshot) IsUnchanged(path string, mtime time.Time) bool {
	e, ok := s.Peek(path)
	hit := ok && e.LastModified.Equal(mtime)
	s.store.stats.Record(hit)
	return hit
}

// Record stores the metadata of a processed file
func (s *FileMetadataSnapshot) Record(r models.FileSampleResult) {
	if r.Err != nil {
		return
	}
	d := r.Descriptor
	s.Put(d.Path, FileMetadataEntry{
		Path:         d.Path,
		Language:     d.Language,
		Size:         d.SizeBytes,
		LastModified: d.ModTime,
		CachedAt:     time.Now(),
		ShortHash:    r.ShortHash,
	})
}
