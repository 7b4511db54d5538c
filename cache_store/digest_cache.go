package cache_store

import (
	"context"
	"os"
	"time"

	"github.com/morler/repomuse/code_analyzer/models"
)

const digestStore = "digests"

// DigestEntry is one cached whole-repository digest
type DigestEntry struct {
	RootPath    string
	RootModTime time.Time
	CachedAt    time.Time
	TTL         time.Duration
	Favorite    bool
	Digest      *models.RepoAnalysis
}

// BlobDigestCache is the whole-digest tier kept in a cache blob rather than SQLite
type BlobDigestCache struct {
	store *Store[string, DigestEntry]
}

// NewBlobDigestCache expires each entry after its own TTL
func NewBlobDigestCache(backend Backend, codec Codec, stats *CacheStats) *BlobDigestCache {
	return &BlobDigestCache{store: NewStore(backend, codec, Policy[string, DigestEntry]{
		Name:     digestStore,
		CachedAt: func(e DigestEntry) time.Time { return e.CachedAt },
		Valid: func(_ string, e DigestEntry) bool {
			return e.Digest != nil && time.Since(e.CachedAt) <= e.TTL
		},
	}, stats)}
}

// GetDigest implements contracts.IDigestCache
func (c *BlobDigestCache) GetDigest(ctx context.Context, root string) (*models.RepoAnalysis, time.Time, bool, error) {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	e, ok := snap.Get(root)
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return e.Digest, e.CachedAt, true, nil
}

// PutDigest implements contracts.IDigestCache
func (c *BlobDigestCache) PutDigest(ctx context.Context, root string, digest *models.RepoAnalysis, ttl time.Duration, favorite bool) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	e := DigestEntry{
		RootPath: root,
		CachedAt: time.Now(),
		TTL:      ttl,
		Favorite: favorite,
		Digest:   digest,
	}
	if info, err := os.Stat(root); err == nil {
		e.RootModTime = info.ModTime()
	}
	snap.Put(root, e)
	return snap.Commit(ctx)
}

// InvalidateDigest implements contracts.IDigestCache
func (c *BlobDigestCache) InvalidateDigest(ctx context.Context, root string) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	snap.Delete(root)
	return snap.Commit(ctx)
}

// ClearDigests implements contracts.IDigestCache
func (c *BlobDigestCache) ClearDigests(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats returns the tier counters
func (c *BlobDigestCache) Stats() *CacheStats { return c.store.Stats() }
