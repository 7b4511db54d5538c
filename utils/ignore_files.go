package utils

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/sync/singleflight"

	"github.com/morler/repomuse/logger"
)

const (
	gitignoreFile    = ".gitignore"
	infoExcludeFile  = ".git/info/exclude"
	maxCachedRuleSet = 100
)

// deniedDirs are never descended into, whatever the ignore files say
var deniedDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, ".svn": {}, ".hg": {}, "dist": {}, "build": {},
	"target": {}, "vendor": {}, "__pycache__": {}, ".next": {}, ".nuxt": {},
	".svelte-kit": {}, ".turbo": {}, ".parcel-cache": {}, ".gradle": {}, ".idea": {},
	".vscode": {}, "coverage": {}, ".venv": {}, "venv": {}, ".tox": {},
	".mypy_cache": {}, ".pytest_cache": {}, "bin": {}, "obj": {}, "out": {}, ".cache": {},
}

// deniedExtensions are binary or media formats that never carry useful text
var deniedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "ico": {}, "webp": {}, "bmp": {},
	"woff": {}, "woff2": {}, "ttf": {}, "eot": {}, "otf": {},
	"pdf": {}, "zip": {}, "tar": {}, "gz": {}, "tgz": {}, "bz2": {}, "xz": {}, "7z": {}, "rar": {},
	"jar": {}, "war": {}, "exe": {}, "dll": {}, "so": {}, "dylib": {}, "a": {}, "o": {},
	"class": {}, "pyc": {},
	"mp3": {}, "wav": {}, "ogg": {}, "flac": {}, "aac": {},
	"mp4": {}, "mkv": {}, "avi": {}, "mov": {}, "wmv": {},
	"lock": {}, "db": {}, "sqlite": {},
}

// IsDeniedDir reports whether a directory name is on the heavy-directory deny-list
func IsDeniedDir(name string) bool {
	_, ok := deniedDirs[strings.ToLower(name)]
	return ok
}

// IsDeniedExtension reports whether a file name carries a deny-listed extension
func IsDeniedExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	_, ok := deniedExtensions[ext]
	return ok
}

// IsHidden reports whether a base name is a dot-entry
func IsHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// IsDefaultIgnored checks every segment of path against the deny-lists
func IsDefaultIgnored(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, part := range parts[:len(parts)-1] {
		if IsDeniedDir(part) {
			return true
		}
	}
	last := parts[len(parts)-1]
	return IsDeniedDir(last) || IsDeniedExtension(last)
}

// ShouldAnalyzeFile reports whether a file path survives the deny-lists.
// Only the parent segments are checked against the directory list.
func ShouldAnalyzeFile(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, part := range parts[:len(parts)-1] {
		if IsDeniedDir(part) {
			return false
		}
	}
	return !IsDeniedExtension(parts[len(parts)-1])
}

// ShouldAnalyzeUnder applies ShouldAnalyzeFile to path relative to root, so
// the directories above the project never count against it.
func ShouldAnalyzeUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ShouldAnalyzeFile(path)
	}
	return ShouldAnalyzeFile(rel)
}

// RuleSet holds the ignore patterns that apply at the root of a tree:
// system and global excludes, .git/info/exclude and the root .gitignore.
type RuleSet struct {
	Root     string
	fs       billy.Filesystem
	patterns []gitignore.Pattern
}

type ruleSetCacheEntry struct {
	rules   *RuleSet
	modTime time.Time
}

var (
	ruleSetCache = make(map[string]*ruleSetCacheEntry)
	cacheMutex   sync.RWMutex
	ruleSetGroup singleflight.Group
)

// RulesFor returns the cached rule set for root, rebuilding it when the
// root .gitignore changed since it was cached.
func RulesFor(root string) (*RuleSet, error) {
	root = filepath.Clean(root)
	modTime := ignoreFileModTime(filepath.Join(root, gitignoreFile))

	cacheMutex.RLock()
	if cached, exists := ruleSetCache[root]; exists && cached.modTime.Equal(modTime) {
		cacheMutex.RUnlock()
		return cached.rules, nil
	}
	cacheMutex.RUnlock()

	v, err, _ := ruleSetGroup.Do(root, func() (interface{}, error) {
		rules := NewRuleSet(root)

		cacheMutex.Lock()
		if len(ruleSetCache) >= maxCachedRuleSet {
			ruleSetCache = make(map[string]*ruleSetCacheEntry)
		}
		ruleSetCache[root] = &ruleSetCacheEntry{rules: rules, modTime: modTime}
		cacheMutex.Unlock()

		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RuleSet), nil
}

// NewRuleSet loads the root-level patterns for root without caching
func NewRuleSet(root string) *RuleSet {
	log := logger.Named("ignore")
	fs := osfs.New(root)
	hostFS := osfs.New("/")

	var patterns []gitignore.Pattern
	if ps, err := gitignore.LoadSystemPatterns(hostFS); err != nil {
		log.Debug().Err(err).Msg("system excludes unreadable")
	} else {
		patterns = append(patterns, ps...)
	}
	if ps, err := gitignore.LoadGlobalPatterns(hostFS); err != nil {
		log.Debug().Err(err).Msg("global excludes unreadable")
	} else {
		patterns = append(patterns, ps...)
	}
	patterns = append(patterns, readPatternFile(fs, infoExcludeFile, nil)...)
	patterns = append(patterns, readPatternFile(fs, gitignoreFile, nil)...)

	return &RuleSet{Root: root, fs: fs, patterns: patterns}
}

// RootRules returns the rules active in the root directory
func (r *RuleSet) RootRules() *DirRules {
	return &DirRules{set: r, patterns: r.patterns, matcher: gitignore.NewMatcher(r.patterns)}
}

// DirRules is the stack of patterns active inside one directory
type DirRules struct {
	set      *RuleSet
	parts    []string
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// Child returns the rules for subdirectory name, adding its .gitignore if present
func (d *DirRules) Child(name string) *DirRules {
	parts := make([]string, len(d.parts)+1)
	copy(parts, d.parts)
	parts[len(d.parts)] = name

	own := readPatternFile(d.set.fs, filepath.Join(filepath.Join(parts...), gitignoreFile), parts)
	if len(own) == 0 {
		return &DirRules{set: d.set, parts: parts, patterns: d.patterns, matcher: d.matcher}
	}

	patterns := make([]gitignore.Pattern, 0, len(d.patterns)+len(own))
	patterns = append(patterns, d.patterns...)
	patterns = append(patterns, own...)
	return &DirRules{set: d.set, parts: parts, patterns: patterns, matcher: gitignore.NewMatcher(patterns)}
}

// Ignored reports whether the entry name inside this directory must be skipped
func (d *DirRules) Ignored(name string, isDir bool) bool {
	if IsHidden(name) {
		return true
	}
	if isDir && IsDeniedDir(name) {
		return true
	}
	if !isDir && IsDeniedExtension(name) {
		return true
	}
	if len(d.patterns) == 0 {
		return false
	}
	path := make([]string, len(d.parts)+1)
	copy(path, d.parts)
	path[len(d.parts)] = name
	return d.matcher.Match(path, isDir)
}

// readPatternFile parses one ignore file relative to the rule set root
func readPatternFile(fs billy.Filesystem, name string, domain []string) []gitignore.Pattern {
	f, err := fs.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()

	var ps []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, domain))
	}
	return ps
}

func ignoreFileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// ClearRuleSetCache clears all cached rule sets
func ClearRuleSetCache() {
	cacheMutex.Lock()
	defer cacheMutex.Unlock()
	ruleSetCache = make(map[string]*ruleSetCacheEntry)
}

// GetRuleSetCacheStats returns statistics about the rule set cache
func GetRuleSetCacheStats() map[string]interface{} {
	cacheMutex.RLock()
	defer cacheMutex.RUnlock()

	entries := make([]string, 0, len(ruleSetCache))
	for path := range ruleSetCache {
		entries = append(entries, path)
	}

	return map[string]interface{}{
		"cached_roots":  len(ruleSetCache),
		"cache_entries": entries,
	}
}
