package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/code_analyzer"
	"github.com/morler/repomuse/code_analyzer/contracts"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/metrics"
	"github.com/morler/repomuse/project_db"
	"github.com/morler/repomuse/project_picker"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "repomuse",
	Short: "Scan project trees into cached, size-bounded digests",
	Long: `repomuse walks a project tree honouring .gitignore rules, samples a bounded
set of files and summarises them into a digest (files, structure, technologies,
size metrics). Digests are cached per project, so repeated scans are instant until
the tree changes or the cache entry expires.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(lipgloss.Info.Render("repomuse " + config.DefaultConfig.Version))
			return
		}
		_ = cmd.Help()
	},
}

// RootDependencies holds everything a subcommand needs
type RootDependencies struct {
	Cwd      string
	Config   *config.Config
	Analyzer *code_analyzer.CodeAnalyzer
	Caches   *cache_store.CacheManager
	Store    *project_db.Store
	Picker   *project_picker.Picker
	Metrics  *metrics.Metrics
	Digests  contracts.IDigestCache
}

// Close releases the cache backend and the database
func (d *RootDependencies) Close() {
	if d.Caches != nil {
		_ = d.Caches.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// handleRootCommand loads the configuration and wires the engine. sink may be
// nil. On failure the error is printed and nil is returned.
func handleRootCommand(cmd *cobra.Command, sink contracts.IProgressSink) *RootDependencies {
	deps, err := newRootDependencies(cmd, sink)
	if err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		return nil
	}
	return deps
}

func newRootDependencies(cmd *cobra.Command, sink contracts.IProgressSink) (*RootDependencies, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("error getting current working directory: %w", err)
	}

	cfg, err := config.LoadConfigs(cmd.Root(), cwd)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logger.Named("cli")

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", cfg.CacheDir, err)
	}

	deps := &RootDependencies{Cwd: cwd, Config: cfg, Metrics: metrics.New()}

	store, err := project_db.Open(cfg.DatabasePath)
	if err != nil {
		// scans still work without favorites or the sqlite digest cache
		log.Warn().Err(err).Str("path", cfg.DatabasePath).Msg("project database unavailable")
	} else {
		deps.Store = store
	}

	if cfg.Cache.Enabled {
		caches, err := cache_store.NewCacheManager(cfg, deps.Metrics)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Caches = caches

		switch {
		case cfg.Cache.DigestBackend == "sqlite" && deps.Store != nil:
			deps.Digests = project_db.NewDigestCache(deps.Store, deps.Metrics)
		default:
			deps.Digests = caches.Digests
		}
	}

	analyzerDeps := code_analyzer.Dependencies{
		Config:  cfg,
		Digests: deps.Digests,
		Caches:  deps.Caches,
		Sink:    sink,
		Metrics: deps.Metrics,
	}
	if deps.Store != nil {
		analyzerDeps.Projects = deps.Store
	}
	deps.Analyzer = code_analyzer.NewCodeAnalyzer(analyzerDeps)

	var dirs *cache_store.DirectoryMetaCache
	if deps.Caches != nil {
		dirs = deps.Caches.Directories
	}
	var registry project_picker.ProjectRegistry
	if deps.Store != nil {
		registry = deps.Store
	}
	deps.Picker = project_picker.New(dirs, registry)

	log.Debug().
		Str("cache_dir", cfg.CacheDir).
		Str("cache_backend", cfg.Cache.Backend).
		Str("digest_backend", cfg.Cache.DigestBackend).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Msg("engine ready")

	return deps, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(lipgloss.Red.Render(fmt.Sprintf("%v", err)))
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd)
}
