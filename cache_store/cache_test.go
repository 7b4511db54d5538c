package cache_store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/metrics"
)

type sample struct {
	Name     string
	CachedAt time.Time
}

func newTestStore(t *testing.T, backend Backend, codec Codec, ttl time.Duration) *Store[string, sample] {
	t.Helper()
	return NewStore(backend, codec, Policy[string, sample]{
		Name:     "samples",
		TTL:      ttl,
		CachedAt: func(s sample) time.Time { return s.CachedAt },
	}, NewCacheStats("samples", nil))
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestCodec_RoundTripAutoDetect(t *testing.T) {
	in := envelope[string, sample]{Version: envelopeVersion, Entries: map[string]sample{
		"a": {Name: "alpha", CachedAt: time.Unix(1700000000, 0).UTC()},
	}}

	for _, codec := range []Codec{BinaryCodec{}, YAMLCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(in)
			require.NoError(t, err)

			var out envelope[string, sample]
			require.NoError(t, DecodeAny(data, &out))
			assert.Equal(t, in.Version, out.Version)
			assert.Equal(t, "alpha", out.Entries["a"].Name)
			assert.True(t, in.Entries["a"].CachedAt.Equal(out.Entries["a"].CachedAt))
		})
	}
}

func TestCodec_BinaryHasLZ4Magic(t *testing.T) {
	data, err := BinaryCodec{}.Encode(envelope[string, sample]{Version: 1})
	require.NoError(t, err)
	assert.Equal(t, lz4FrameMagic, data[:4])
}

func TestStore_PutCommitLoad(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := newTestStore(t, backend, BinaryCodec{}, time.Hour)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	snap.Put("k", sample{Name: "v", CachedAt: time.Now()})
	require.NoError(t, snap.Commit(ctx))

	again, err := store.Load(ctx)
	require.NoError(t, err)
	got, ok := again.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Name)
}

func TestStore_PrunesExpiredOnLoad(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := newTestStore(t, backend, YAMLCodec{}, time.Minute)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	snap.Put("old", sample{Name: "old", CachedAt: time.Now().Add(-2 * time.Minute)})
	snap.Put("new", sample{Name: "new", CachedAt: time.Now()})
	require.NoError(t, snap.Commit(ctx))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	_, ok := loaded.Get("old")
	assert.False(t, ok)
	_, ok = loaded.Get("new")
	assert.True(t, ok)

	// pruning is persisted by the next commit
	require.NoError(t, loaded.Commit(ctx))
	raw, err := store.read(ctx)
	require.NoError(t, err)
	assert.NotContains(t, raw, "old")
}

func TestStore_CorruptBlobIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, backend.Write(ctx, "samples", []byte{0x04, 0x22, 0x4D, 0x18, 0xff, 0x00, 0x13}))

	store := newTestStore(t, backend, BinaryCodec{}, time.Hour)
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	_, ok := snap.Get("anything")
	assert.False(t, ok)
}

func TestStore_CommitMergeKeepsOtherWriters(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := newTestStore(t, backend, BinaryCodec{}, time.Hour)

	a, err := store.Load(ctx)
	require.NoError(t, err)
	b, err := store.Load(ctx)
	require.NoError(t, err)

	a.Put("from-a", sample{Name: "a", CachedAt: time.Now()})
	a.Put("shared", sample{Name: "a", CachedAt: time.Now()})
	b.Put("from-b", sample{Name: "b", CachedAt: time.Now()})
	b.Put("shared", sample{Name: "b", CachedAt: time.Now()})

	require.NoError(t, a.Commit(ctx))
	require.NoError(t, b.Commit(ctx))

	final, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Len())
	shared, _ := final.Peek("shared")
	assert.Equal(t, "b", shared.Name)
}

func TestStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := newTestStore(t, backend, BinaryCodec{}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := store.Load(ctx)
			if !assert.NoError(t, err) {
				return
			}
			snap.Put(string(rune('a'+i)), sample{Name: "x", CachedAt: time.Now()})
			assert.NoError(t, snap.Commit(ctx))
		}(i)
	}
	wg.Wait()

	final, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, final.Len())
}

func TestBadgerBackend_InMemory(t *testing.T) {
	ctx := context.Background()
	backend, err := NewBadgerBackend("")
	require.NoError(t, err)
	defer backend.Close()

	data, err := backend.Read(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	store := newTestStore(t, backend, BinaryCodec{}, time.Hour)
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	snap.Put("k", sample{Name: "v", CachedAt: time.Now()})
	require.NoError(t, snap.Commit(ctx))

	blobs, err := backend.List(ctx)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "samples", blobs[0].Name)

	require.NoError(t, store.Clear(ctx))
	data, err = backend.Read(ctx, "samples")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileMetadataCache_ChangeDetection(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	backend, err := NewFileBackend(filepath.Join(root, ".cachedir"))
	require.NoError(t, err)
	cache := NewFileMetadataCache(backend, BinaryCodec{}, 7*24*time.Hour, NewCacheStats("file_metadata", nil))

	path := filepath.Join(root, "main.go")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeFile(t, path, "package main\n", mtime)

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.False(t, snap.IsUnchanged(path, mtime))

	snap.Record(models.FileSampleResult{Descriptor: models.FileDescriptor{
		Path: path, SizeBytes: 13, Language: "Go", ModTime: mtime,
	}, ShortHash: "abc"})
	require.NoError(t, snap.Commit(ctx))

	snap, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsUnchanged(path, mtime))
	assert.False(t, snap.IsUnchanged(path, mtime.Add(time.Second)))

	// touching the file drops the entry at load time
	writeFile(t, path, "package main\n", mtime.Add(time.Minute))
	snap, err = cache.Load(ctx)
	require.NoError(t, err)
	_, ok := snap.Peek(path)
	assert.False(t, ok)
}

func TestFileMetadataCache_ErroredResultNotRecorded(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	cache := NewFileMetadataCache(backend, BinaryCodec{}, time.Hour, nil)

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	snap.Record(models.FileSampleResult{
		Descriptor: models.FileDescriptor{Path: "/x"},
		Err:        os.ErrPermission,
	})
	assert.False(t, snap.Dirty())
}

func TestDirectoryMetaCache_InvalidatedWhenDirChanges(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	cache := NewDirectoryMetaCache(backend, YAMLCodec{}, time.Hour, nil)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(root, past, past))
	require.NoError(t, cache.Touch(ctx, root, true))

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	e, ok := snap.Get(root)
	require.True(t, ok)
	assert.True(t, e.IsGitRepo)

	later := time.Now()
	require.NoError(t, os.Chtimes(root, later, later))
	snap, err = cache.Load(ctx)
	require.NoError(t, err)
	_, ok = snap.Get(root)
	assert.False(t, ok)
}

func TestBlobDigestCache_TTL(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	cache := NewBlobDigestCache(backend, BinaryCodec{}, nil)
	root := t.TempDir()

	digest := &models.RepoAnalysis{Root: root, Technologies: []string{"Go"}}
	require.NoError(t, cache.PutDigest(ctx, root, digest, time.Hour, false))

	got, cachedAt, ok, err := cache.GetDigest(ctx, root)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Go"}, got.Technologies)
	assert.WithinDuration(t, time.Now(), cachedAt, time.Minute)

	require.NoError(t, cache.PutDigest(ctx, root, digest, time.Nanosecond, false))
	time.Sleep(time.Millisecond)
	_, _, ok, err = cache.GetDigest(ctx, root)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.PutDigest(ctx, root, digest, time.Hour, true))
	require.NoError(t, cache.InvalidateDigest(ctx, root))
	_, _, ok, err = cache.GetDigest(ctx, root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheManager_StatsAndCleanup(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.NewDefault(t.TempDir())
	require.NoError(t, err)

	cm, err := NewCacheManager(cfg, metrics.New())
	require.NoError(t, err)
	defer cm.Close()

	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	snap, err := cm.FileMetadata.Load(ctx)
	require.NoError(t, err)
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		p := filepath.Join(root, name)
		writeFile(t, p, "x", mtime)
		snap.Record(models.FileSampleResult{Descriptor: models.FileDescriptor{Path: p, ModTime: mtime}})
	}
	require.NoError(t, snap.Commit(ctx))

	stats, err := cm.GetCacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["entries"].(map[string]int)["file_metadata"])
	assert.Equal(t, cfg.CacheDir, stats["cache_dir"])

	report, err := cm.SmartCleanupCache(ctx, CacheCleanupOptions{MaxEntries: 1, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report["entries_marked_for_delete"])

	_, err = cm.SmartCleanupCache(ctx, CacheCleanupOptions{MaxEntries: 1})
	require.NoError(t, err)
	after, err := cm.FileMetadata.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Len())

	require.NoError(t, cm.ClearCache(ctx))
	after, err = cm.FileMetadata.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Len())
}

func TestCacheStats_HitRate(t *testing.T) {
	s := NewCacheStats("x", nil)
	s.recordCacheHit()
	s.recordCacheHit()
	s.recordCacheMiss()

	perf := s.GetPerformanceStats()
	assert.Equal(t, int64(3), perf["total_requests"])
	assert.InDelta(t, 66.66, perf["hit_rate_percent"].(float64), 0.1)

	s.ResetPerformanceStats()
	assert.Equal(t, int64(0), s.GetPerformanceStats()["total_requests"])
}
