package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config represents the structure of the configuration file
type Config struct {
	Version      string       `mapstructure:"version"`
	Theme        string       `mapstructure:"theme"`
	CacheDir     string       `mapstructure:"cache_dir"`
	DatabasePath string       `mapstructure:"database_path"`
	Favorites    []string     `mapstructure:"favorites"`
	Cache        CacheConfig  `mapstructure:"cache"`
	Scan         ScanConfig   `mapstructure:"scan"`
	Log          LogConfig    `mapstructure:"log"`
	Server       ServerConfig `mapstructure:"server"`
}

// CacheConfig selects cache backends and lifetimes
type CacheConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	Backend               string        `mapstructure:"backend" validate:"oneof=file badger"`
	DigestBackend         string        `mapstructure:"digest_backend" validate:"oneof=sqlite blob"`
	Encoding              string        `mapstructure:"encoding" validate:"oneof=binary yaml"`
	DigestTTL             time.Duration `mapstructure:"digest_ttl" validate:"gt=0"`
	FavoriteDigestTTL     time.Duration `mapstructure:"favorite_digest_ttl" validate:"gt=0"`
	FileMetadataRetention time.Duration `mapstructure:"file_metadata_retention" validate:"gt=0"`
	DirectoryMetaTTL      time.Duration `mapstructure:"directory_meta_ttl" validate:"gt=0"`
}

// ScanConfig holds the scan budgets. Favorite-prefixed values replace the
// plain ones when the scanned root is a favorite.
type ScanConfig struct {
	InitialScanLimit         int           `mapstructure:"initial_scan_limit" validate:"gt=0"`
	FavoriteInitialScanLimit int           `mapstructure:"favorite_initial_scan_limit" validate:"gt=0"`
	SampleLimit              int           `mapstructure:"sample_limit" validate:"gt=0"`
	FavoriteSampleLimit      int           `mapstructure:"favorite_sample_limit" validate:"gt=0"`
	MaxContentSize           string        `mapstructure:"max_content_size" validate:"required"`
	FavoriteMaxContentSize   string        `mapstructure:"favorite_max_content_size" validate:"required"`
	ContentPrefix            int           `mapstructure:"content_prefix" validate:"gt=0"`
	FavoriteContentPrefix    int           `mapstructure:"favorite_content_prefix" validate:"gt=0"`
	ChunkSize                int           `mapstructure:"chunk_size" validate:"gt=0"`
	Workers                  int           `mapstructure:"workers" validate:"gte=0,lte=64"`
	QueueSize                int           `mapstructure:"queue_size" validate:"gt=0"`
	LookaheadFactor          int           `mapstructure:"lookahead_factor" validate:"gte=1"`
	ProgressInterval         time.Duration `mapstructure:"progress_interval" validate:"gt=0"`
	ProgressCeiling          time.Duration `mapstructure:"progress_ceiling" validate:"gt=0"`

	maxContentBytes         int64
	favoriteMaxContentBytes int64
}

// LogConfig configures the zerolog root logger
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// ServerConfig configures the serve command
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Budgets is the resolved set of limits for one scan
type Budgets struct {
	InitialScanLimit int
	SampleLimit      int
	MaxContentSize   int64
	ContentPrefix    int
	ChunkSize        int
	Workers          int
	QueueSize        int
	LookaheadFactor  int
	DigestTTL        time.Duration
}

// DefaultConfig values
var DefaultConfig = Config{
	Version: "0.4.0",
	Theme:   "dracula",
	Cache: CacheConfig{
		Enabled:               true,
		Backend:               "file",
		DigestBackend:         "sqlite",
		Encoding:              "binary",
		DigestTTL:             time.Hour,
		FavoriteDigestTTL:     2 * time.Hour,
		FileMetadataRetention: 7 * 24 * time.Hour,
		DirectoryMetaTTL:      time.Hour,
	},
	Scan: ScanConfig{
		InitialScanLimit:         100,
		FavoriteInitialScanLimit: 150,
		SampleLimit:              20,
		FavoriteSampleLimit:      30,
		MaxContentSize:           "100kB",
		FavoriteMaxContentSize:   "150kB",
		ContentPrefix:            5000,
		FavoriteContentPrefix:    7500,
		ChunkSize:                50,
		Workers:                  0,
		QueueSize:                256,
		LookaheadFactor:          4,
		ProgressInterval:         500 * time.Millisecond,
		ProgressCeiling:          5 * time.Minute,
	},
	Log: LogConfig{
		Level:  "warn",
		Format: "console",
	},
	Server: ServerConfig{
		Addr:           "127.0.0.1:7878",
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
	},
}

// cfgFile holds the path to the configuration file (set via CLI)
var cfgFile string

// LoadConfigs initializes the configuration from file, flags, and environment variables, and returns the final config.
func LoadConfigs(rootCmd *cobra.Command, cwd string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("REPOMUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("repomuse-config")
		v.AddConfigPath(cwd)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if rootCmd != nil {
		bindFlags(v, rootCmd)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.finalize(cwd); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewDefault returns the default configuration rooted at cacheDir
func NewDefault(cacheDir string) (*Config, error) {
	cfg := DefaultConfig
	cfg.CacheDir = cacheDir
	cfg.Server.AllowedOrigins = append([]string(nil), DefaultConfig.Server.AllowedOrigins...)
	if err := cfg.finalize(cacheDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize resolves derived paths and sizes and validates the result
func (c *Config) finalize(cwd string) error {
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir(cwd)
	}
	c.CacheDir = expandHome(c.CacheDir)
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.CacheDir, "repomuse.db")
	}
	c.DatabasePath = expandHome(c.DatabasePath)

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	size, err := humanize.ParseBytes(c.Scan.MaxContentSize)
	if err != nil {
		return fmt.Errorf("invalid scan.max_content_size %q: %w", c.Scan.MaxContentSize, err)
	}
	c.Scan.maxContentBytes = int64(size)

	size, err = humanize.ParseBytes(c.Scan.FavoriteMaxContentSize)
	if err != nil {
		return fmt.Errorf("invalid scan.favorite_max_content_size %q: %w", c.Scan.FavoriteMaxContentSize, err)
	}
	c.Scan.favoriteMaxContentBytes = int64(size)

	return nil
}

// Budgets resolves the limits for a scan, scaled up for favorites
func (c *Config) Budgets(favorite bool) Budgets {
	s := c.Scan
	b := Budgets{
		InitialScanLimit: s.InitialScanLimit,
		SampleLimit:      s.SampleLimit,
		MaxContentSize:   s.maxContentBytes,
		ContentPrefix:    s.ContentPrefix,
		ChunkSize:        s.ChunkSize,
		Workers:          ResolveWorkers(s.Workers),
		QueueSize:        s.QueueSize,
		LookaheadFactor:  s.LookaheadFactor,
		DigestTTL:        c.Cache.DigestTTL,
	}
	if favorite {
		b.InitialScanLimit = s.FavoriteInitialScanLimit
		b.SampleLimit = s.FavoriteSampleLimit
		b.MaxContentSize = s.favoriteMaxContentBytes
		b.ContentPrefix = s.FavoriteContentPrefix
		b.DigestTTL = c.Cache.FavoriteDigestTTL
	}
	if b.MaxContentSize == 0 {
		b.MaxContentSize = 100_000
	}
	return b
}

// ResolveWorkers returns n, or min(NumCPU, 8) when n is zero
func ResolveWorkers(n int) int {
	if n > 0 {
		return n
	}
	if cpus := runtime.NumCPU(); cpus < 8 {
		return cpus
	}
	return 8
}

// IsFavoritePath reports whether root is listed in the favorites setting
func (c *Config) IsFavoritePath(root string) bool {
	for _, f := range c.Favorites {
		abs, err := filepath.Abs(expandHome(f))
		if err != nil {
			continue
		}
		if filepath.Clean(abs) == root {
			return true
		}
	}
	return false
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", DefaultConfig.Version)
	v.SetDefault("theme", DefaultConfig.Theme)
	v.SetDefault("cache_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("favorites", []string{})

	v.SetDefault("cache.enabled", DefaultConfig.Cache.Enabled)
	v.SetDefault("cache.backend", DefaultConfig.Cache.Backend)
	v.SetDefault("cache.digest_backend", DefaultConfig.Cache.DigestBackend)
	v.SetDefault("cache.encoding", DefaultConfig.Cache.Encoding)
	v.SetDefault("cache.digest_ttl", DefaultConfig.Cache.DigestTTL)
	v.SetDefault("cache.favorite_digest_ttl", DefaultConfig.Cache.FavoriteDigestTTL)
	v.SetDefault("cache.file_metadata_retention", DefaultConfig.Cache.FileMetadataRetention)
	v.SetDefault("cache.directory_meta_ttl", DefaultConfig.Cache.DirectoryMetaTTL)

	v.SetDefault("scan.initial_scan_limit", DefaultConfig.Scan.InitialScanLimit)
	v.SetDefault("scan.favorite_initial_scan_limit", DefaultConfig.Scan.FavoriteInitialScanLimit)
	v.SetDefault("scan.sample_limit", DefaultConfig.Scan.SampleLimit)
	v.SetDefault("scan.favorite_sample_limit", DefaultConfig.Scan.FavoriteSampleLimit)
	v.SetDefault("scan.max_content_size", DefaultConfig.Scan.MaxContentSize)
	v.SetDefault("scan.favorite_max_content_size", DefaultConfig.Scan.FavoriteMaxContentSize)
	v.SetDefault("scan.content_prefix", DefaultConfig.Scan.ContentPrefix)
	v.SetDefault("scan.favorite_content_prefix", DefaultConfig.Scan.FavoriteContentPrefix)
	v.SetDefault("scan.chunk_size", DefaultConfig.Scan.ChunkSize)
	v.SetDefault("scan.workers", DefaultConfig.Scan.Workers)
	v.SetDefault("scan.queue_size", DefaultConfig.Scan.QueueSize)
	v.SetDefault("scan.lookahead_factor", DefaultConfig.Scan.LookaheadFactor)
	v.SetDefault("scan.progress_interval", DefaultConfig.Scan.ProgressInterval)
	v.SetDefault("scan.progress_ceiling", DefaultConfig.Scan.ProgressCeiling)

	v.SetDefault("log.level", DefaultConfig.Log.Level)
	v.SetDefault("log.format", DefaultConfig.Log.Format)

	v.SetDefault("server.addr", DefaultConfig.Server.Addr)
	v.SetDefault("server.allowed_origins", DefaultConfig.Server.AllowedOrigins)
}

// bindEnv binds the short environment names kept for convenience
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("cache_dir", "REPOMUSE_CACHE_DIR")
	_ = v.BindEnv("log.level", "REPOMUSE_LOG_LEVEL")
	_ = v.BindEnv("log.format", "REPOMUSE_LOG_FORMAT")
	_ = v.BindEnv("scan.workers", "REPOMUSE_WORKERS")
}

// bindFlags binds the CLI flags to configuration values.
func bindFlags(v *viper.Viper, rootCmd *cobra.Command) {
	bind := func(key, flag string) {
		if f := rootCmd.PersistentFlags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	bind("theme", "theme")
	bind("cache_dir", "cache_dir")
	bind("cache.enabled", "enable_cache")
	bind("cache.backend", "cache_backend")
	bind("log.level", "log_level")
	bind("log.format", "log_format")
	bind("scan.workers", "workers")
}

// InitFlags initializes the flags for the root command.
func InitFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to a configuration file (JSON or YAML).")
	rootCmd.PersistentFlags().String("theme", DefaultConfig.Theme, "Syntax highlighting theme used by 'scan --show'.")
	rootCmd.PersistentFlags().String("cache_dir", "", "Directory holding the cache files and the project database.")
	rootCmd.PersistentFlags().Bool("enable_cache", DefaultConfig.Cache.Enabled, "Enable or disable the digest and metadata caches.")
	rootCmd.PersistentFlags().String("cache_backend", DefaultConfig.Cache.Backend, "Blob backend for the metadata caches: 'file' or 'badger'.")
	rootCmd.PersistentFlags().String("log_level", DefaultConfig.Log.Level, "Log level: trace, debug, info, warn, error, disabled.")
	rootCmd.PersistentFlags().String("log_format", DefaultConfig.Log.Format, "Log format: console or json.")
	rootCmd.PersistentFlags().Int("workers", DefaultConfig.Scan.Workers, "Worker pool size for discovery and sampling (0 = min(CPUs, 8)).")

	rootCmd.Flags().BoolP("version", "v", false, "Specifies the version of the application.")
}

// GetConfigFileType returns the type of the configuration file based on its extension
func GetConfigFileType(filename string) string {
	if strings.HasSuffix(filename, ".json") {
		return "json"
	} else if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		return "yaml"
	}
	return ""
}

func defaultCacheDir(cwd string) string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "repomuse")
	}
	return filepath.Join(cwd, ".cache")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
