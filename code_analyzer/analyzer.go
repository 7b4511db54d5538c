package code_analyzer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/cancellation"
	"github.com/morler/repomuse/code_analyzer/contracts"
	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/metrics"
	"github.com/morler/repomuse/progress_tracker"
	"github.com/morler/repomuse/utils"
)

// Dependencies are the collaborators of a CodeAnalyzer. Everything except
// Config may be nil; a nil cache disables that tier.
type Dependencies struct {
	Config   *config.Config
	Digests  contracts.IDigestCache
	Caches   *cache_store.CacheManager
	Projects contracts.IProjectStore
	Sink     contracts.IProgressSink
	Metrics  *metrics.Metrics
}

// CodeAnalyzer turns a directory tree into a digest, serving it from cache
// when a fresh one exists.
type CodeAnalyzer struct {
	deps     Dependencies
	trackers *progress_tracker.Registry
	cancels  *cancellation.Registry
	log      *logger.Logger

	// beforeProcessing runs between discovery and processing; tests use it
	beforeProcessing func(root string)
}

var _ contracts.ICodeAnalyzer = (*CodeAnalyzer)(nil)

// NewCodeAnalyzer initializes a new CodeAnalyzer.
func NewCodeAnalyzer(deps Dependencies) *CodeAnalyzer {
	if deps.Sink == nil {
		deps.Sink = contracts.NopSink{}
	}
	return &CodeAnalyzer{
		deps:     deps,
		trackers: progress_tracker.NewRegistry(),
		cancels:  cancellation.NewRegistry(),
		log:      logger.Named("analyzer"),
	}
}

// NormalizeRoot makes root absolute and clean and checks it is a directory
func NormalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", app_errors.Wrap(err, app_errors.ErrorCodeInvalidPath, "normalize", "cannot resolve path")
	}
	abs = filepath.Clean(abs)
	info, err := os.Stat(abs)
	if err != nil {
		return "", app_errors.Wrap(err, app_errors.ErrorCodeInvalidPath, "normalize", "path does not exist")
	}
	if !info.IsDir() {
		return "", app_errors.Newf(app_errors.ErrorCodeInvalidPath, "normalize", "%s is not a directory", abs)
	}
	return abs, nil
}

func scanMode(lazy bool) string {
	if lazy {
		return "lazy"
	}
	return "full"
}

// Scan produces the digest of root
func (a *CodeAnalyzer) Scan(ctx context.Context, root string, opts models.ScanOptions) (*models.RepoAnalysis, error) {
	started := time.Now()
	root, err := NormalizeRoot(root)
	if err != nil {
		return nil, err
	}
	lazy := opts.Lazy && !opts.ForceFullRescan
	mode := scanMode(lazy)
	cfg := a.deps.Config

	favorite := cfg.IsFavoritePath(root)
	if a.deps.Projects != nil {
		if fav, err := a.deps.Projects.IsFavorite(ctx, root); err != nil {
			a.log.Warn().Err(err).Str("root", root).Msg("favorite lookup failed")
		} else if fav {
			favorite = true
		}
	}
	isGit := isGitRepo(root)
	if a.deps.Projects != nil {
		if err := a.deps.Projects.TouchProject(ctx, root, isGit); err != nil {
			a.log.Warn().Err(err).Str("root", root).Msg("project registration failed")
		}
	}
	budgets := cfg.Budgets(favorite)

	if cached, err := a.lookup(ctx, root, lazy, opts, favorite); err != nil {
		a.deps.Metrics.ObserveScan(mode, "error", time.Since(started))
		return nil, err
	} else if cached != nil {
		a.deps.Metrics.ObserveScan(mode, "cached", time.Since(started))
		return cached, nil
	}

	tok := a.cancels.Start(ctx, root)
	defer a.cancels.End(root, tok)

	tracker := progress_tracker.New(root, favorite)
	a.trackers.Register(root, tracker)
	defer a.trackers.Unregister(root, tracker)

	// the emitter outlives a cancelled parent so its last snapshot carries the terminal phase
	emitter := progress_tracker.StartEmitter(context.WithoutCancel(ctx), tracker, a.deps.Sink, cfg.Scan.ProgressInterval, cfg.Scan.ProgressCeiling)
	done := a.deps.Metrics.ScanStarted()
	defer done()

	log := a.log.With().Str("root", root).Str("mode", mode).Str("scan_id", tracker.ScanID()).Logger()
	log.Debug().Bool("favorite", favorite).Msg("scan started")

	var meta *cache_store.FileMetadataSnapshot
	if a.cacheEnabled() && a.deps.Caches != nil {
		if meta, err = a.deps.Caches.FileMetadata.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("file metadata unavailable")
			meta = nil
		}
	}

	digest, cancelled, err := a.run(root, lazy, budgets, tok, tracker, meta)
	if err != nil {
		tracker.SetPhase(models.PhaseCancelled)
		emitter.Stop()
		a.deps.Metrics.ObserveScan(mode, "error", time.Since(started))
		return nil, err
	}

	if cancelled {
		tracker.SetPhase(models.PhaseCancelled)
	} else {
		tracker.SetPhase(models.PhaseComplete)
	}
	emitter.Stop()

	a.finalize(ctx, root, isGit, digest, cancelled, meta, &log)

	outcome := "complete"
	if cancelled {
		outcome = "cancelled"
	}
	a.deps.Metrics.ObserveScan(mode, outcome, time.Since(started))
	log.Info().
		Int("files", digest.Metrics.TotalFiles).
		Int("sampled", digest.Metrics.AnalyzedFiles).
		Bool("cancelled", cancelled).
		Dur("took", time.Since(started)).
		Msg("scan finished")

	if err := a.persistDigest(ctx, root, digest, cancelled, budgets.DigestTTL, favorite); err != nil {
		return digest, err
	}
	return digest, nil
}

func (a *CodeAnalyzer) cacheEnabled() bool {
	return a.deps.Config.Cache.Enabled
}

// lookup returns a cached digest that satisfies the request, or nil
func (a *CodeAnalyzer) lookup(ctx context.Context, root string, lazy bool, opts models.ScanOptions, favorite bool) (*models.RepoAnalysis, error) {
	if !a.cacheEnabled() || a.deps.Digests == nil || opts.Force || opts.ForceFullRescan {
		return nil, nil
	}
	cached, cachedAt, ok, err := a.deps.Digests.GetDigest(ctx, root)
	if err != nil {
		if app_errors.IsCode(err, app_errors.ErrorCodePoolExhausted) {
			return nil, err
		}
		a.log.Warn().Err(err).Str("root", root).Msg("digest lookup failed, scanning")
		return nil, nil
	}
	// a lazy digest does not answer a full request
	if !ok || (cached.IsLazyScan && !lazy) {
		return nil, nil
	}
	cached.FromCache = true
	cached.GeneratedAt = cachedAt

	tracker := progress_tracker.New(root, favorite)
	tracker.SetTotals(int64(cached.Metrics.TotalFiles), cached.SizeMetrics.TotalSizeBytes)
	tracker.SetPhase(models.PhaseCached)
	a.deps.Sink.PublishProgress(tracker.Snapshot())
	return cached, nil
}

// run performs discovery and processing under tok
func (a *CodeAnalyzer) run(root string, lazy bool, b config.Budgets, tok *cancellation.Token,
	tracker *progress_tracker.Tracker, meta *cache_store.FileMetadataSnapshot) (*models.RepoAnalysis, bool, error) {

	var (
		files     []models.FileDescriptor
		cancelled bool
		progress  *models.ScanProgress
	)
	if lazy {
		found, err := discoverLazy(root, tok, tracker, meta, b.InitialScanLimit, b.LookaheadFactor, b.Workers, b.QueueSize)
		if err != nil {
			return nil, false, app_errors.Wrap(err, app_errors.ErrorCodeIo, "scan.discover", "discovery failed")
		}
		files, cancelled = found.Selected, found.Cancelled
		estimate := found.Eligible
		progress = &models.ScanProgress{
			FilesScanned:         len(files),
			ScanLimit:            b.InitialScanLimit,
			IsComplete:           found.Exhausted && found.Eligible <= b.InitialScanLimit && !found.Cancelled,
			EstimatedTotalFiles:  &estimate,
			EstimateIsLowerBound: !found.Exhausted,
		}
	} else {
		var err error
		files, cancelled, err = discoverFull(root, tok, tracker)
		if err != nil {
			return nil, false, app_errors.Wrap(err, app_errors.ErrorCodeIo, "scan.discover", "discovery failed")
		}
	}

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.SizeBytes
	}
	tracker.SetTotals(int64(len(files)), totalBytes)
	tracker.SetPhase(models.PhaseProcessing)

	sampleLimit := 0
	if lazy {
		sampleLimit = b.SampleLimit
	}
	if a.beforeProcessing != nil {
		a.beforeProcessing(root)
	}
	results, stopped := processFiles(tok.Context(), files, processorOptions{
		MaxContentSize: b.MaxContentSize,
		ContentPrefix:  b.ContentPrefix,
		SampleLimit:    sampleLimit,
		ChunkSize:      b.ChunkSize,
		Workers:        b.Workers,
	}, tracker, a.deps.Metrics, tok.Cancelled)
	cancelled = cancelled || stopped
	processed := len(results)

	for _, r := range results {
		if r.Err != nil {
			a.log.Debug().Err(r.Err).Str("path", r.Descriptor.Path).Msg("file skipped")
			continue
		}
		if meta != nil {
			meta.Record(r)
		}
	}

	// files collected but never reached still count towards size and shape
	for _, d := range files[processed:] {
		results = append(results, models.FileSampleResult{Descriptor: d})
	}

	digest := aggregate(root, results, b.Workers)
	digest.GeneratedAt = time.Now()
	digest.IsLazyScan = lazy
	digest.ScanProgress = progress
	if cancelled {
		if digest.ScanProgress == nil {
			discovered := len(files)
			digest.ScanProgress = &models.ScanProgress{EstimatedTotalFiles: &discovered, EstimateIsLowerBound: true}
		}
		digest.ScanProgress.FilesScanned = processed
		digest.ScanProgress.IsComplete = false
	}
	return digest, cancelled, nil
}

// finalize updates the per-file and per-directory caches and project stats.
// Failures here only cost a warm start next time, so they are logged.
func (a *CodeAnalyzer) finalize(ctx context.Context, root string, isGit bool, digest *models.RepoAnalysis,
	cancelled bool, meta *cache_store.FileMetadataSnapshot, log *logger.Logger) {

	if meta != nil && meta.Dirty() {
		if err := meta.Commit(ctx); err != nil {
			log.Warn().Err(err).Msg("file metadata commit failed")
		}
	}
	if a.cacheEnabled() && a.deps.Caches != nil {
		if err := a.deps.Caches.Directories.Touch(ctx, root, isGit); err != nil {
			log.Warn().Err(err).Msg("directory metadata update failed")
		}
	}
	if !cancelled && a.deps.Projects != nil {
		if err := a.deps.Projects.RecordScan(ctx, root, digest); err != nil {
			log.Warn().Err(err).Msg("project statistics update failed")
		}
	}
}

// persistDigest stores a completed digest; cancelled digests are never cached
func (a *CodeAnalyzer) persistDigest(ctx context.Context, root string, digest *models.RepoAnalysis, cancelled bool, ttl time.Duration, favorite bool) error {
	if cancelled || !a.cacheEnabled() || a.deps.Digests == nil {
		return nil
	}
	if err := a.deps.Digests.PutDigest(ctx, root, digest, ttl, favorite); err != nil {
		if app_errors.IsCode(err, app_errors.ErrorCodePoolExhausted) {
			return err
		}
		a.log.Warn().Err(err).Str("root", root).Msg("digest store failed")
	}
	return nil
}

// ScanMany scans roots one after another. Failed roots are logged and left out.
func (a *CodeAnalyzer) ScanMany(ctx context.Context, roots []string, opts models.ScanOptions) []*models.RepoAnalysis {
	out := make([]*models.RepoAnalysis, 0, len(roots))
	for i, root := range roots {
		if ctx.Err() != nil {
			break
		}
		a.deps.Sink.PublishBatch(models.BatchProgress{Current: i + 1, Total: len(roots), CurrentProject: root})
		digest, err := a.Scan(ctx, root, opts)
		if err != nil {
			a.log.Warn().Err(err).Str("root", root).Msg("batch scan failed, continuing")
			continue
		}
		out = append(out, digest)
	}
	return out
}

// Cancel asks the scan running on root to stop
func (a *CodeAnalyzer) Cancel(root string) error {
	key, err := NormalizeRoot(root)
	if err != nil {
		// the root may have been removed while its scan runs
		abs, absErr := filepath.Abs(root)
		if absErr != nil || !a.cancels.IsRunning(filepath.Clean(abs)) {
			return err
		}
		key = filepath.Clean(abs)
	}
	return a.cancels.RequestCancel(key)
}

// CancelAll stops every running scan
func (a *CodeAnalyzer) CancelAll() { a.cancels.CancelAll() }

// Progress returns the live progress of the scan running on root
func (a *CodeAnalyzer) Progress(root string) (models.ProgressSnapshot, bool) {
	if abs, err := filepath.Abs(root); err == nil {
		root = filepath.Clean(abs)
	}
	return a.trackers.Snapshot(root)
}

// ClearCache drops every cached digest, file and directory entry
func (a *CodeAnalyzer) ClearCache(ctx context.Context) error {
	if a.deps.Digests != nil {
		if err := a.deps.Digests.ClearDigests(ctx); err != nil {
			return err
		}
	}
	if a.deps.Caches != nil {
		if err := a.deps.Caches.ClearCache(ctx); err != nil {
			return err
		}
	}
	utils.ClearRuleSetCache()
	return nil
}

type statsReporter interface {
	Stats() *cache_store.CacheStats
}

// GetCacheStats reports storage and hit-rate statistics of every tier
func (a *CodeAnalyzer) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}
	if a.deps.Caches != nil {
		s, err := a.deps.Caches.GetCacheStats(ctx)
		if err != nil {
			return nil, err
		}
		stats = s
	}
	if s, ok := a.deps.Digests.(statsReporter); ok {
		perf, _ := stats["performance"].(map[string]interface{})
		if perf == nil {
			perf = map[string]interface{}{}
			stats["performance"] = perf
		}
		perf["digests"] = s.Stats().GetPerformanceStats()
	}
	stats["ignore_rules"] = utils.GetRuleSetCacheStats()
	stats["running_scans"] = len(a.cancels.Running())
	return stats, nil
}

func isGitRepo(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil
}
