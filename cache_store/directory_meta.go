package cache_store

import (
	"context"
	"os"
	"time"
)

const directoryMetaStore = "directory_meta"

// DirectoryMetaEntry caches what the project picker learns about a directory
type DirectoryMetaEntry struct {
	Path         string
	Description  string
	IsGitRepo    bool
	FileCount    int
	IsCounting   bool
	LastModified time.Time
	CachedAt     time.Time
}

// DirectoryMetaCache is the directory listing tier
type DirectoryMetaCache struct {
	store *Store[string, DirectoryMetaEntry]
}

// NewDirectoryMetaCache keeps entries for ttl and while the directory has
// not been modified after the entry was taken
func NewDirectoryMetaCache(backend Backend, codec Codec, ttl time.Duration, stats *CacheStats) *DirectoryMetaCache {
	return &DirectoryMetaCache{store: NewStore(backend, codec, Policy[string, DirectoryMetaEntry]{
		Name:     directoryMetaStore,
		TTL:      ttl,
		CachedAt: func(e DirectoryMetaEntry) time.Time { return e.CachedAt },
		Valid: func(path string, e DirectoryMetaEntry) bool {
			info, err := os.Stat(path)
			return err == nil && !info.ModTime().After(e.LastModified)
		},
	}, stats)}
}

// Load returns a snapshot; invalid entries are already pruned
func (c *DirectoryMetaCache) Load(ctx context.Context) (*Snapshot[string, DirectoryMetaEntry], error) {
	return c.store.Load(ctx)
}

// Touch refreshes the entry for dir with its current mtime
func (c *DirectoryMetaCache) Touch(ctx context.Context, dir string, isGitRepo bool) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	e, _ := snap.Peek(dir)
	e.Path = dir
	e.IsGitRepo = isGitRepo
	e.LastModified = info.ModTime()
	e.CachedAt = time.Now()
	snap.Put(dir, e)
	return snap.Commit(ctx)
}

// Clear removes every entry
func (c *DirectoryMetaCache) Clear(ctx context.Context) error { return c.store.Clear(ctx) }

// Stats returns the tier counters
func (c *DirectoryMetaCache) Stats() *CacheStats { return c.store.Stats() }
