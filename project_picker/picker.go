// Package project_picker lists the project directories found directly below a
// workspace root, with a short description and an estimated file count.
package project_picker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/cache_store"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/file_walker"
	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/utils"
)

// MaxCountedEntries caps the walk that estimates a project's file count
const MaxCountedEntries = 2000

const maxDescriptionLength = 200

var projectIndicators = []string{
	"package.json", "Cargo.toml", "go.mod", "pom.xml", "build.gradle", "requirements.txt",
	"Gemfile", "composer.json", "mix.exs", "pubspec.yaml", "CMakeLists.txt", "Makefile",
	"README.md", "README.txt",
}

var readmeNames = []string{"README.md", "README.txt", "readme.md", "readme.txt"}

// Project is one entry of the picker listing
type Project struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsGitRepo   bool   `json:"is_git_repo"`
	IsFavorite  bool   `json:"is_favorite"`
	FileCount   int    `json:"file_count"`
	Description string `json:"description,omitempty"`
	// IsCounting is true when FileCount is a lower bound from a capped walk
	IsCounting bool `json:"is_counting"`
}

// ProjectRegistry is the part of the project database the picker feeds
type ProjectRegistry interface {
	UpsertProject(ctx context.Context, path, name, description string, isGitRepo bool) (int64, error)
	IsFavorite(ctx context.Context, path string) (bool, error)
}

// Picker lists projects. Both collaborators are optional.
type Picker struct {
	dirs     *cache_store.DirectoryMetaCache
	registry ProjectRegistry
	log      *logger.Logger
}

// New creates a picker backed by the directory metadata cache
func New(dirs *cache_store.DirectoryMetaCache, registry ProjectRegistry) *Picker {
	return &Picker{dirs: dirs, registry: registry, log: logger.Named("picker")}
}

// List returns the project directories directly below root, sorted by name
func (p *Picker) List(ctx context.Context, root string) ([]Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, app_errors.Wrap(err, app_errors.ErrorCodeInvalidPath, "picker.list", "cannot resolve path")
	}
	root = filepath.Clean(abs)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, app_errors.Wrap(err, app_errors.ErrorCodeInvalidPath, "picker.list", "cannot read directory")
	}

	var snap *cache_store.Snapshot[string, cache_store.DirectoryMetaEntry]
	if p.dirs != nil {
		if snap, err = p.dirs.Load(ctx); err != nil {
			p.log.Warn().Err(err).Msg("directory metadata unavailable")
			snap = nil
		}
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() || utils.IsHidden(e.Name()) || utils.IsDeniedDir(e.Name()) {
			continue
		}
		candidates = append(candidates, filepath.Join(root, e.Name()))
	}

	found := make([]*Project, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.ResolveWorkers(0))
	for i, dir := range candidates {
		i, dir := i, dir
		g.Go(func() error {
			if !isProjectDirectory(dir) {
				return nil
			}
			found[i] = p.describe(gctx, dir, snap)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(found))
	for _, proj := range found {
		if proj == nil {
			continue
		}
		p.register(ctx, proj)
		projects = append(projects, *proj)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})

	if snap != nil && snap.Dirty() {
		if err := snap.Commit(ctx); err != nil {
			p.log.Warn().Err(err).Msg("directory metadata commit failed")
		}
	}
	return projects, nil
}

// describe builds the entry for dir from the cache or from the disk
func (p *Picker) describe(ctx context.Context, dir string, snap *cache_store.Snapshot[string, cache_store.DirectoryMetaEntry]) *Project {
	proj := &Project{Name: filepath.Base(dir), Path: dir}

	if snap != nil {
		if e, ok := snap.Get(dir); ok && e.FileCount > 0 {
			proj.Description = e.Description
			proj.IsGitRepo = e.IsGitRepo
			proj.FileCount = e.FileCount
			proj.IsCounting = e.IsCounting
			return proj
		}
	}

	proj.IsGitRepo = exists(filepath.Join(dir, ".git"))
	proj.Description = ProjectDescription(dir)
	proj.FileCount, proj.IsCounting = CountFiles(ctx, dir)

	if snap != nil {
		info, err := os.Stat(dir)
		if err == nil {
			snap.Put(dir, cache_store.DirectoryMetaEntry{
				Path:         dir,
				Description:  proj.Description,
				IsGitRepo:    proj.IsGitRepo,
				FileCount:    proj.FileCount,
				IsCounting:   proj.IsCounting,
				LastModified: info.ModTime(),
				CachedAt:     time.Now(),
			})
		}
	}
	return proj
}

func (p *Picker) register(ctx context.Context, proj *Project) {
	if p.registry == nil {
		return
	}
	if _, err := p.registry.UpsertProject(ctx, proj.Path, proj.Name, proj.Description, proj.IsGitRepo); err != nil {
		p.log.Debug().Err(err).Str("path", proj.Path).Msg("project registration failed")
		return
	}
	fav, err := p.registry.IsFavorite(ctx, proj.Path)
	if err == nil {
		proj.IsFavorite = fav
	}
}

func isProjectDirectory(dir string) bool {
	for _, name := range projectIndicators {
		if exists(filepath.Join(dir, name)) {
			return true
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.csproj"))
	return len(matches) > 0
}

// ProjectDescription reads a one-line description from package.json,
// Cargo.toml or the first line of a README
func ProjectDescription(dir string) string {
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(data, &pkg) == nil && pkg.Description != "" {
			return pkg.Description
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(line, "description") {
				continue
			}
			if _, value, ok := strings.Cut(line, "="); ok {
				return strings.Trim(strings.TrimSpace(value), `"`)
			}
		}
	}

	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		first, _, _ := strings.Cut(string(data), "\n")
		first = strings.TrimSpace(first)
		if first == "" || len(first) >= maxDescriptionLength {
			continue
		}
		if cleaned := strings.TrimSpace(strings.TrimLeft(first, "#")); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

// CountFiles counts the eligible files below dir, stopping after
// MaxCountedEntries entries. capped reports whether the count is partial.
func CountFiles(ctx context.Context, dir string) (count int, capped bool) {
	capped, err := file_walker.WalkSequential(ctx, dir, file_walker.Options{MaxEntries: MaxCountedEntries}, func(e file_walker.Entry) error {
		if e.IsFile() && utils.ShouldAnalyzeUnder(dir, e.Path) {
			count++
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Named("picker").Debug().Err(err).Str("dir", dir).Msg("file count incomplete")
	}
	return count, capped
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
