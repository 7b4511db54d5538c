package cache_store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/xxh3"
)

// BlobInfo describes one stored blob
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Backend stores whole cache blobs by name
type Backend interface {
	// Read returns nil, nil when the blob does not exist
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	// Lock serializes read-modify-write cycles on one blob
	Lock(ctx context.Context, name string) (func(), error)
	List(ctx context.Context) ([]BlobInfo, error)
	Close() error
}

// keyedMutex hands out one mutex per blob name
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(name string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[name]
	if !ok {
		m = &sync.Mutex{}
		k.locks[name] = m
	}
	return m
}

// FileBackend keeps each blob in its own file under cacheDir
type FileBackend struct {
	cacheDir string
	local    keyedMutex
}

// NewFileBackend creates cacheDir if needed
func NewFileBackend(cacheDir string) (*FileBackend, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileBackend{cacheDir: cacheDir}, nil
}

// generateCacheKey maps a blob name to its file name
func generateCacheKey(name string) string {
	return fmt.Sprintf("%s-%016x.cache", name, xxh3.HashString(name))
}

// getCachePath returns the full path to a cache file
func (fb *FileBackend) getCachePath(name string) string {
	return filepath.Join(fb.cacheDir, generateCacheKey(name))
}

// Read implements Backend
func (fb *FileBackend) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(fb.getCachePath(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return data, nil
}

// Write implements Backend with a temp file and rename
func (fb *FileBackend) Write(_ context.Context, name string, data []byte) error {
	return atomicWrite(fb.getCachePath(name), data)
}

// Delete implements Backend
func (fb *FileBackend) Delete(_ context.Context, name string) error {
	if err := os.Remove(fb.getCachePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Lock takes an in-process mutex and a cross-process flock on the blob
func (fb *FileBackend) Lock(ctx context.Context, name string) (func(), error) {
	m := fb.local.get(name)
	m.Lock()

	lock := flock.New(fb.getCachePath(name) + ".lock")
	ok, err := lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil || !ok {
		m.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", name, err)
	}
	return func() {
		_ = lock.Unlock()
		m.Unlock()
	}, nil
}

// List implements Backend
func (fb *FileBackend) List(_ context.Context) ([]BlobInfo, error) {
	entries, err := os.ReadDir(fb.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	var out []BlobInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cache") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BlobInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Dir returns the cache directory
func (fb *FileBackend) Dir() string { return fb.cacheDir }

// Close implements Backend
func (fb *FileBackend) Close() error { return nil }

// atomicWrite writes data so readers never observe a partial file
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	tempFile = nil
	return nil
}
