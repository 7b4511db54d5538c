package project_db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/code_analyzer/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.UpsertProject(ctx, "/src/alpha", "", "first", true)
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := store.UpsertProject(ctx, "/src/alpha", "alpha", "", true)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	p, err := store.GetProjectByPath(ctx, "/src/alpha")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alpha", p.Name)
	// an empty description does not erase the stored one
	assert.Equal(t, "first", p.Description)
	assert.True(t, p.IsGitRepo)
	assert.Nil(t, p.LastAnalyzedAt)

	missing, err := store.GetProjectByPath(ctx, "/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Favorites(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.UpsertProject(ctx, "/src/alpha", "", "", true)
	require.NoError(t, err)
	require.NoError(t, store.SetFavorite(ctx, "/src/alpha", true))
	require.NoError(t, store.SetFavorite(ctx, "/src/beta", true))

	fav, err := store.IsFavorite(ctx, "/src/alpha")
	require.NoError(t, err)
	assert.True(t, fav)

	fav, err = store.IsFavorite(ctx, "/unknown")
	require.NoError(t, err)
	assert.False(t, fav)

	favs, err := store.Favorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/alpha", "/src/beta"}, favs)

	// toggling keeps the git flag
	require.NoError(t, store.SetFavorite(ctx, "/src/alpha", false))
	p, err := store.GetProjectByPath(ctx, "/src/alpha")
	require.NoError(t, err)
	assert.False(t, p.IsFavorite)
	assert.True(t, p.IsGitRepo)

	all, err := store.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/src/beta", all[0].Path)
}

func TestStore_RecordScanAndStatistics(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.TouchProject(ctx, "/src/alpha", false))
	require.NoError(t, store.RecordScan(ctx, "/src/alpha", &models.RepoAnalysis{
		Metrics:     models.Metrics{TotalFiles: 12},
		SizeMetrics: models.SizeMetrics{TotalSizeBytes: 4096},
	}))

	p, err := store.GetProjectByPath(ctx, "/src/alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.FileCount)
	assert.Equal(t, int64(4096), p.TotalSizeBytes)
	require.NotNil(t, p.LastAnalyzedAt)

	st, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.ProjectCount)
	assert.Equal(t, int64(12), st.TotalFiles)
	assert.Equal(t, int64(4096), st.TotalSizeBytes)
}

func TestDigestCache_PutGetExpire(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	cache := NewDigestCache(store, nil)

	digest := &models.RepoAnalysis{
		Root:         "/src/alpha",
		Technologies: []string{"Go", "YAML"},
		Metrics:      models.Metrics{TotalFiles: 3, AnalyzedFiles: 2, TotalLines: 40},
		IsLazyScan:   true,
	}
	require.NoError(t, cache.PutDigest(ctx, "/src/alpha", digest, time.Hour, false))

	got, cachedAt, ok, err := cache.GetDigest(ctx, "/src/alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, digest.Technologies, got.Technologies)
	assert.Equal(t, digest.Metrics, got.Metrics)
	assert.True(t, got.IsLazyScan)
	assert.WithinDuration(t, time.Now(), cachedAt, time.Minute)

	// an already expired entry is a miss and is removed by ClearExpiredCache
	require.NoError(t, cache.PutDigest(ctx, "/src/alpha", digest, -time.Second, false))
	_, _, ok, err = cache.GetDigest(ctx, "/src/alpha")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.ClearExpiredCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDigestCache_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	cache := NewDigestCache(store, nil)

	d := &models.RepoAnalysis{Root: "/a"}
	require.NoError(t, cache.PutDigest(ctx, "/a", d, time.Hour, false))
	require.NoError(t, cache.PutDigest(ctx, "/b", d, time.Hour, true))

	require.NoError(t, cache.InvalidateDigest(ctx, "/a"))
	_, _, ok, err := cache.GetDigest(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, ok, err = cache.GetDigest(ctx, "/b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cache.ClearDigests(ctx))
	_, _, ok, err = cache.GetDigest(ctx, "/b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestCache_CorruptBlobIsMiss(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	cache := NewDigestCache(store, nil)

	require.NoError(t, cache.PutDigest(ctx, "/a", &models.RepoAnalysis{}, time.Hour, false))
	_, err := store.db.ExecContext(ctx, `UPDATE analysis_cache SET analysis_data = ?`, []byte{0x04, 0x22, 0x4D, 0x18, 1, 2, 3})
	require.NoError(t, err)

	_, _, ok, err := cache.GetDigest(ctx, "/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestCache_PoolExhausted(t *testing.T) {
	store := openTestStore(t)
	cache := NewDigestCache(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	held, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer held.Close()

	// the only connection is held, so acquisition waits until the deadline
	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer waitCancel()
	_, _, _, err = cache.GetDigest(waitCtx, "/a")
	cancel()

	require.Error(t, err)
	assert.True(t, app_errors.IsCode(err, app_errors.ErrorCodePoolExhausted))
	assert.Equal(t, 503, app_errors.HTTPStatus(err))
}
