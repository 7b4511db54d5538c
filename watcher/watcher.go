// Package watcher keeps the caches of a project honest while it is edited:
// settled file-system events drop the project's digest and the metadata of
// the touched files.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/morler/repomuse/code_analyzer/contracts"
	"github.com/morler/repomuse/file_walker"
	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/utils"
)

// DefaultDebounce is the quiet period before a batch of events is handled
const DefaultDebounce = 100 * time.Millisecond

// Change is one settled event
type Change struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// MetadataInvalidator drops per-file cache entries
type MetadataInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// Options configure a Watcher. Every field is optional.
type Options struct {
	Debounce time.Duration
	Digests  contracts.IDigestCache
	Metadata MetadataInvalidator
	// OnChange is called after the caches were invalidated for a batch
	OnChange func(changes []Change)
	// BufferSize bounds the queue between the event reader and the debouncer
	BufferSize int
}

// Watcher watches every non-ignored directory below root
type Watcher struct {
	root    string
	opts    Options
	fsw     *fsnotify.Watcher
	changes chan Change
	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	log     *logger.Logger

	mu      sync.Mutex
	watched map[string]struct{}
}

// New creates a watcher for root. Call Start to begin.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	log := logger.Named("watcher").With().Str("root", root).Logger()
	return &Watcher{
		root:    root,
		opts:    opts,
		fsw:     fsw,
		changes: make(chan Change, opts.BufferSize),
		done:    make(chan struct{}),
		log:     &log,
		watched: make(map[string]struct{}),
	}, nil
}

// Start registers the directory tree and launches the event loops
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(ctx, w.root); err != nil {
		return err
	}
	w.stopped.Add(2)
	go w.readEvents(ctx)
	go w.debounceLoop(ctx)
	w.log.Info().Int("dirs", w.Watched()).Msg("watching")
	return nil
}

// Stop ends the loops, flushing a pending batch, and closes the watcher
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.fsw.Close()
		w.stopped.Wait()
	})
}

// Watched returns the number of watched directories
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// addTree watches dir and every non-ignored directory below it
func (w *Watcher) addTree(ctx context.Context, dir string) error {
	if err := w.add(dir); err != nil {
		return err
	}
	_, err := file_walker.WalkSequential(ctx, dir, file_walker.Options{}, func(e file_walker.Entry) error {
		if e.IsDir {
			if err := w.add(e.Path); err != nil {
				w.log.Debug().Err(err).Str("dir", e.Path).Msg("cannot watch directory")
			}
		}
		return nil
	})
	return err
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.watched[dir] = struct{}{}
	return nil
}

// ignored reports whether path falls under a hidden or deny-listed name
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if utils.IsHidden(part) {
			return true
		}
	}
	return utils.IsDefaultIgnored(rel)
}

func (w *Watcher) readEvents(ctx context.Context) {
	defer w.stopped.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			select {
			case w.changes <- Change{Path: event.Name, Op: event.Op, Time: time.Now()}:
			default:
				w.log.Warn().Str("path", event.Name).Msg("event queue full, dropping event")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(ctx, event.Name); err != nil {
						w.log.Debug().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.stopped.Done()
	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if len(batch) > 0 {
			w.handle(dedupe(batch))
			batch = nil
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// handle invalidates the caches for a settled batch
func (w *Watcher) handle(changes []Change) {
	ctx := context.Background()
	if w.opts.Digests != nil {
		if err := w.opts.Digests.InvalidateDigest(ctx, w.root); err != nil {
			w.log.Warn().Err(err).Msg("digest invalidation failed")
		}
	}
	if w.opts.Metadata != nil {
		paths := make([]string, len(changes))
		for i, c := range changes {
			paths[i] = c.Path
		}
		if err := w.opts.Metadata.Invalidate(ctx, paths...); err != nil {
			w.log.Warn().Err(err).Msg("file metadata invalidation failed")
		}
	}
	w.log.Debug().Int("changes", len(changes)).Msg("caches invalidated")
	if w.opts.OnChange != nil {
		w.opts.OnChange(changes)
	}
}

// dedupe keeps the last change per path, in first-seen order
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
