package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigs_Defaults(t *testing.T) {
	cwd := t.TempDir()
	t.Setenv("REPOMUSE_CACHE_DIR", filepath.Join(cwd, "cache"))

	cfg, err := LoadConfigs(nil, cwd)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cwd, "cache"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(cwd, "cache", "repomuse.db"), cfg.DatabasePath)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.DigestTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cache.FavoriteDigestTTL)
	assert.Equal(t, 50, cfg.Scan.ChunkSize)
}

func TestLoadConfigs_FileOverrides(t *testing.T) {
	cwd := t.TempDir()
	content := `
cache_dir: ` + filepath.Join(cwd, "c") + `
cache:
  backend: badger
  encoding: yaml
  digest_ttl: 30m
scan:
  initial_scan_limit: 12
  max_content_size: 2KB
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "repomuse-config.yaml"), []byte(content), 0644))

	cfg, err := LoadConfigs(nil, cwd)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, "yaml", cfg.Cache.Encoding)
	assert.Equal(t, 30*time.Minute, cfg.Cache.DigestTTL)
	assert.Equal(t, 12, cfg.Scan.InitialScanLimit)
	assert.Equal(t, "debug", cfg.Log.Level)

	b := cfg.Budgets(false)
	assert.Equal(t, 12, b.InitialScanLimit)
	assert.Equal(t, int64(2000), b.MaxContentSize)
}

func TestLoadConfigs_RejectsInvalidBackend(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "repomuse-config.yaml"), []byte("cache:\n  backend: redis\n"), 0644))

	_, err := LoadConfigs(nil, cwd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadConfigs_RejectsBadSize(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "repomuse-config.yaml"), []byte("scan:\n  max_content_size: lots\n"), 0644))

	_, err := LoadConfigs(nil, cwd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_content_size")
}

func TestLoadConfigs_FlagsOverride(t *testing.T) {
	cwd := t.TempDir()
	cmd := &cobra.Command{Use: "test"}
	InitFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Set("cache_backend", "badger"))
	require.NoError(t, cmd.PersistentFlags().Set("workers", "3"))
	require.NoError(t, cmd.PersistentFlags().Set("cache_dir", filepath.Join(cwd, "flags")))

	cfg, err := LoadConfigs(cmd, cwd)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.Equal(t, 3, cfg.Budgets(false).Workers)
	assert.Equal(t, filepath.Join(cwd, "flags"), cfg.CacheDir)
}

func TestBudgets_FavoriteScaling(t *testing.T) {
	cfg, err := NewDefault(t.TempDir())
	require.NoError(t, err)

	normal := cfg.Budgets(false)
	fav := cfg.Budgets(true)

	assert.Equal(t, 100, normal.InitialScanLimit)
	assert.Equal(t, 150, fav.InitialScanLimit)
	assert.Equal(t, 20, normal.SampleLimit)
	assert.Equal(t, 30, fav.SampleLimit)
	assert.Equal(t, int64(100_000), normal.MaxContentSize)
	assert.Equal(t, int64(150_000), fav.MaxContentSize)
	assert.Equal(t, 5000, normal.ContentPrefix)
	assert.Equal(t, 7500, fav.ContentPrefix)
	assert.Equal(t, time.Hour, normal.DigestTTL)
	assert.Equal(t, 2*time.Hour, fav.DigestTTL)
	assert.Equal(t, normal.ChunkSize, fav.ChunkSize)
}

func TestResolveWorkers(t *testing.T) {
	assert.Equal(t, 5, ResolveWorkers(5))
	auto := ResolveWorkers(0)
	assert.GreaterOrEqual(t, auto, 1)
	assert.LessOrEqual(t, auto, 8)
}

func TestIsFavoritePath(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewDefault(dir)
	require.NoError(t, err)
	cfg.Favorites = []string{dir + string(filepath.Separator)}

	assert.True(t, cfg.IsFavoritePath(filepath.Clean(dir)))
	assert.False(t, cfg.IsFavoritePath(filepath.Join(dir, "other")))
}

func TestGetConfigFileType(t *testing.T) {
	assert.Equal(t, "json", GetConfigFileType("a.json"))
	assert.Equal(t, "yaml", GetConfigFileType("a.yml"))
	assert.Equal(t, "", GetConfigFileType("a.toml"))
}
