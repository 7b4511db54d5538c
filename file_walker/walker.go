// Package file_walker enumerates the entries of a project tree while honoring
// ignore files, the heavy-directory deny-list and the binary-extension deny-list.
//
// Two modes are offered. WalkSequential visits entries in lexical order and can
// stop at a depth or entry cap. WalkParallel fans directories out over a bounded
// worker pool and streams entries through a bounded channel, so a consumer that
// stops reading applies backpressure to the workers.
package file_walker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/utils"
)

// Entry is one discovered path
type Entry struct {
	Path  string
	IsDir bool
	// Size and ModTime are only filled for files
	Size    int64
	ModTime time.Time
}

// IsFile reports whether the entry is a regular file
func (e Entry) IsFile() bool { return !e.IsDir }

// Options tune a walk
type Options struct {
	// MaxDepth limits descent below the root; 0 means unlimited
	MaxDepth int
	// MaxEntries stops a sequential walk after that many entries; 0 means unlimited
	MaxEntries int
	// Workers bounds the parallel directory readers
	Workers int
	// QueueSize bounds the parallel output channel
	QueueSize int
	// OnSkip is told about every pruned entry. It may be called concurrently.
	OnSkip func(path string, isDir bool)
}

var errEntryLimit = errors.New("entry limit reached")

func (o Options) skipped(path string, isDir bool) {
	if o.OnSkip != nil {
		o.OnSkip(path, isDir)
	}
}

// WalkSequential calls fn for every entry below root in lexical order.
// It reports capped=true when MaxEntries stopped the walk early.
func WalkSequential(ctx context.Context, root string, opts Options, fn func(Entry) error) (capped bool, err error) {
	rules, err := utils.RulesFor(root)
	if err != nil {
		return false, err
	}
	dirRules := map[string]*utils.DirRules{root: rules.RootRules()}
	count := 0

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Named("walker").Debug().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		parentRules := dirRules[filepath.Dir(path)]
		if parentRules == nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !(d.IsDir() || d.Type().IsRegular()) {
			return nil
		}

		isDir := d.IsDir()
		if parentRules.Ignored(d.Name(), isDir) {
			opts.skipped(path, isDir)
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		entry, ok := toEntry(path, d)
		if !ok {
			return nil
		}
		if opts.MaxEntries > 0 && count >= opts.MaxEntries {
			return errEntryLimit
		}
		count++
		if err := fn(entry); err != nil {
			return err
		}

		if isDir {
			if opts.MaxDepth > 0 && depth(root, path) >= opts.MaxDepth {
				return filepath.SkipDir
			}
			dirRules[path] = parentRules.Child(d.Name())
		}
		return nil
	})

	if errors.Is(err, errEntryLimit) {
		return true, nil
	}
	return false, err
}

// WalkParallel streams the entries below root through a channel that is closed
// once every worker has returned. Cancelling ctx stops the workers promptly;
// the consumer must keep draining or cancel.
func WalkParallel(ctx context.Context, root string, opts Options) (<-chan Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "walk", Path: root, Err: errors.New("not a directory")}
	}
	rules, err := utils.RulesFor(root)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}

	out := make(chan Entry, queue)
	w := &parallelWalk{
		ctx:  ctx,
		root: root,
		opts: opts,
		out:  out,
		log:  logger.Named("walker"),
	}
	w.group.SetLimit(workers)

	go func() {
		defer close(out)
		w.group.Go(func() error {
			w.walkDir(root, rules.RootRules(), 0)
			return nil
		})
		_ = w.group.Wait()
	}()

	return out, nil
}

type parallelWalk struct {
	ctx   context.Context
	root  string
	opts  Options
	out   chan<- Entry
	group errgroup.Group
	log   *logger.Logger
}

func (w *parallelWalk) walkDir(dir string, rules *utils.DirRules, level int) {
	if w.ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.log.Debug().Err(err).Str("path", dir).Msg("skipping unreadable directory")
		return
	}

	for _, d := range entries {
		if w.ctx.Err() != nil {
			return
		}
		if d.Type()&fs.ModeSymlink != 0 || !(d.IsDir() || d.Type().IsRegular()) {
			continue
		}
		path := filepath.Join(dir, d.Name())
		isDir := d.IsDir()
		if rules.Ignored(d.Name(), isDir) {
			w.opts.skipped(path, isDir)
			continue
		}

		entry, ok := toEntry(path, d)
		if !ok {
			continue
		}
		if !w.emit(entry) {
			return
		}

		if isDir && (w.opts.MaxDepth == 0 || level+1 < w.opts.MaxDepth) {
			child := rules.Child(d.Name())
			next := level + 1
			if !w.group.TryGo(func() error {
				w.walkDir(path, child, next)
				return nil
			}) {
				w.walkDir(path, child, next)
			}
		}
	}
}

func (w *parallelWalk) emit(e Entry) bool {
	select {
	case w.out <- e:
		return true
	case <-w.ctx.Done():
		return false
	}
}

func toEntry(path string, d fs.DirEntry) (Entry, bool) {
	if d.IsDir() {
		return Entry{Path: path, IsDir: true}, true
	}
	info, err := d.Info()
	if err != nil {
		return Entry{}, false
	}
	return Entry{Path: path, Size: info.Size(), ModTime: info.ModTime()}, true
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	n := 1
	for _, c := range rel {
		if c == filepath.Separator {
			n++
		}
	}
	return n
}
