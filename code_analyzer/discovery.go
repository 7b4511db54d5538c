package code_analyzer

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/cancellation"
	"github.com/morler/repomuse/code_analyzer/models"
	"github.com/morler/repomuse/file_walker"
	"github.com/morler/repomuse/progress_tracker"
	"github.com/morler/repomuse/utils"
)

var errScanCancelled = errors.New("scan cancelled")

// describe turns a walker entry into a descriptor
func describe(root string, e file_walker.Entry) models.FileDescriptor {
	parent, err := filepath.Rel(root, filepath.Dir(e.Path))
	if err != nil {
		parent = filepath.Dir(e.Path)
	}
	return models.FileDescriptor{
		Path:      e.Path,
		SizeBytes: e.Size,
		Language:  DetectLanguage(e.Path),
		ParentDir: filepath.ToSlash(parent),
		ModTime:   e.ModTime,
	}
}

func walkOptions(tracker *progress_tracker.Tracker, workers, queue int) file_walker.Options {
	return file_walker.Options{
		Workers:   workers,
		QueueSize: queue,
		OnSkip:    func(string, bool) { tracker.IncrementSkipped() },
	}
}

// eligible counts the entry on the tracker and reports whether it is a file to describe
func eligible(root string, e file_walker.Entry, tracker *progress_tracker.Tracker) bool {
	if e.IsDir {
		tracker.IncrementDirs()
		return false
	}
	if !utils.ShouldAnalyzeUnder(root, e.Path) {
		tracker.IncrementSkipped()
		return false
	}
	tracker.IncrementDiscovered()
	return true
}

// discoverFull collects every eligible file in lexical order
func discoverFull(root string, tok *cancellation.Token, tracker *progress_tracker.Tracker) ([]models.FileDescriptor, bool, error) {
	var out []models.FileDescriptor
	_, err := file_walker.WalkSequential(tok.Context(), root, walkOptions(tracker, 0, 0), func(e file_walker.Entry) error {
		if tok.Cancelled() {
			return errScanCancelled
		}
		if eligible(root, e, tracker) {
			out = append(out, describe(root, e))
		}
		return nil
	})
	if errors.Is(err, errScanCancelled) || tok.Cancelled() || errors.Is(err, context.Canceled) {
		return out, true, nil
	}
	return out, false, err
}

// lazyDiscovery is the outcome of a bounded discovery
type lazyDiscovery struct {
	Selected []models.FileDescriptor
	// Eligible counts every eligible file observed, selected or not
	Eligible int
	// Exhausted is true when the walk ran to the end of the tree
	Exhausted bool
	Cancelled bool
}

// discoverLazy streams the parallel walk and selects up to limit files,
// changed files first. It keeps counting up to limit*lookahead eligible files
// to estimate the size of the tree, then stops the walk.
func discoverLazy(root string, tok *cancellation.Token, tracker *progress_tracker.Tracker,
	meta *cache_store.FileMetadataSnapshot, limit, lookahead, workers, queue int) (lazyDiscovery, error) {

	if lookahead < 1 {
		lookahead = 1
	}
	window := limit * lookahead

	walkCtx, stop := context.WithCancel(tok.Context())
	defer stop()

	entries, err := file_walker.WalkParallel(walkCtx, root, walkOptions(tracker, workers, queue))
	if err != nil {
		return lazyDiscovery{}, err
	}

	var (
		res       = lazyDiscovery{Exhausted: true}
		changed   []models.FileDescriptor
		unchanged []models.FileDescriptor
	)
	for e := range entries {
		if tok.Cancelled() || tok.Context().Err() != nil {
			res.Cancelled = true
			res.Exhausted = false
			break
		}
		if e.IsDir {
			tracker.IncrementDirs()
			continue
		}
		if !utils.ShouldAnalyzeUnder(root, e.Path) {
			tracker.IncrementSkipped()
			continue
		}
		if res.Eligible >= window {
			res.Exhausted = false
			break
		}
		res.Eligible++
		tracker.IncrementDiscovered()

		if len(changed) >= limit {
			continue
		}
		if meta != nil && meta.IsUnchanged(e.Path, e.ModTime) {
			if len(unchanged) < limit {
				unchanged = append(unchanged, describe(root, e))
			}
			continue
		}
		changed = append(changed, describe(root, e))
	}
	stop()
	for range entries {
	}

	res.Selected = changed
	for _, d := range unchanged {
		if len(res.Selected) >= limit {
			break
		}
		res.Selected = append(res.Selected, d)
	}
	return res, nil
}
