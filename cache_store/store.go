// Package cache_store holds the on-disk cache tiers: a generic
// load/mutate/commit store over pluggable backends and codecs, and the
// file metadata, directory metadata and digest caches built on it.
package cache_store

import (
	"context"
	"sync"
	"time"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/logger"
)

// envelopeVersion is bumped whenever a stored entry type changes shape
const envelopeVersion = 1

// Policy decides which loaded entries survive
type Policy[K comparable, V any] struct {
	Name string
	// TTL of zero disables age-based pruning
	TTL      time.Duration
	CachedAt func(V) time.Time
	// Valid is consulted at load time; nil keeps every entry
	Valid func(K, V) bool
}

type envelope[K comparable, V any] struct {
	Version int     `yaml:"version"`
	Entries map[K]V `yaml:"entries"`
}

// Store reads and writes one named blob of entries
type Store[K comparable, V any] struct {
	backend Backend
	codec   Codec
	policy  Policy[K, V]
	stats   *CacheStats
	log     *logger.Logger
}

// NewStore binds a policy to a backend and codec
func NewStore[K comparable, V any](backend Backend, codec Codec, policy Policy[K, V], stats *CacheStats) *Store[K, V] {
	if codec == nil {
		codec = BinaryCodec{}
	}
	return &Store[K, V]{
		backend: backend,
		codec:   codec,
		policy:  policy,
		stats:   stats,
		log:     logger.Named("cache." + policy.Name),
	}
}

// Name returns the blob name
func (s *Store[K, V]) Name() string { return s.policy.Name }

// Stats returns the hit and miss counters of the store
func (s *Store[K, V]) Stats() *CacheStats { return s.stats }

// read decodes the current blob; a corrupt blob reads as empty
func (s *Store[K, V]) read(ctx context.Context) (map[K]V, error) {
	data, err := s.backend.Read(ctx, s.policy.Name)
	if err != nil {
		return nil, app_errors.Wrap(err, app_errors.ErrorCodeIo, "cache_store.read", "failed to read "+s.policy.Name)
	}
	entries := make(map[K]V)
	if len(data) == 0 {
		return entries, nil
	}

	var env envelope[K, V]
	if err := DecodeAny(data, &env); err != nil || env.Version != envelopeVersion {
		if err == nil {
			err = app_errors.Newf(app_errors.ErrorCodeCacheCorrupt, "cache_store.read", "unexpected version %d", env.Version)
		}
		s.log.Warn().
			Err(app_errors.Wrap(err, app_errors.ErrorCodeCacheCorrupt, "cache_store.read", "discarding unreadable cache")).
			Str("store", s.policy.Name).
			Msg("cache corrupt, treating as empty")
		return entries, nil
	}
	for k, v := range env.Entries {
		entries[k] = v
	}
	return entries, nil
}

func (s *Store[K, V]) expired(v V, now time.Time) bool {
	if s.policy.TTL <= 0 || s.policy.CachedAt == nil {
		return false
	}
	return now.Sub(s.policy.CachedAt(v)) > s.policy.TTL
}

// Load reads the blob and prunes stale entries. Pruned keys are queued as
// deletes so the next Commit persists the cleanup.
func (s *Store[K, V]) Load(ctx context.Context) (*Snapshot[K, V], error) {
	entries, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(s, entries)
	now := time.Now()
	for k, v := range entries {
		if s.expired(v, now) || (s.policy.Valid != nil && !s.policy.Valid(k, v)) {
			delete(snap.entries, k)
			snap.deletes[k] = struct{}{}
		}
	}
	if len(snap.deletes) > 0 {
		s.log.Debug().Int("pruned", len(snap.deletes)).Msg("pruned stale cache entries")
	}
	return snap, nil
}

// Clear removes the whole blob
func (s *Store[K, V]) Clear(ctx context.Context) error {
	unlock, err := s.backend.Lock(ctx, s.policy.Name)
	if err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeIo, "cache_store.Clear", "failed to lock "+s.policy.Name)
	}
	defer unlock()
	if err := s.backend.Delete(ctx, s.policy.Name); err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeIo, "cache_store.Clear", "failed to clear "+s.policy.Name)
	}
	return nil
}

// Snapshot is an in-memory view of a store plus the changes made to it
type Snapshot[K comparable, V any] struct {
	store   *Store[K, V]
	mu      sync.RWMutex
	entries map[K]V
	upserts map[K]struct{}
	deletes map[K]struct{}
}

func newSnapshot[K comparable, V any](s *Store[K, V], entries map[K]V) *Snapshot[K, V] {
	return &Snapshot[K, V]{
		store:   s,
		entries: entries,
		upserts: make(map[K]struct{}),
		deletes: make(map[K]struct{}),
	}
}

// Get returns the entry for k, counting a hit or miss
func (sn *Snapshot[K, V]) Get(k K) (V, bool) {
	sn.mu.RLock()
	v, ok := sn.entries[k]
	sn.mu.RUnlock()
	if ok && sn.store.expired(v, time.Now()) {
		var zero V
		v, ok = zero, false
	}
	sn.store.stats.Record(ok)
	return v, ok
}

// Peek is Get without touching the counters
func (sn *Snapshot[K, V]) Peek(k K) (V, bool) {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	v, ok := sn.entries[k]
	return v, ok
}

// Put stages an upsert
func (sn *Snapshot[K, V]) Put(k K, v V) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	sn.entries[k] = v
	sn.upserts[k] = struct{}{}
	delete(sn.deletes, k)
}

// Delete stages a removal
func (sn *Snapshot[K, V]) Delete(k K) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	delete(sn.entries, k)
	delete(sn.upserts, k)
	sn.deletes[k] = struct{}{}
}

// Len returns the number of live entries
func (sn *Snapshot[K, V]) Len() int {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	return len(sn.entries)
}

// Range calls fn for each entry until fn returns false
func (sn *Snapshot[K, V]) Range(fn func(K, V) bool) {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	for k, v := range sn.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Dirty reports whether there is anything to commit
func (sn *Snapshot[K, V]) Dirty() bool {
	sn.mu.RLock()
	defer sn.mu.RUnlock()
	return len(sn.upserts) > 0 || len(sn.deletes) > 0
}

// Commit merges this snapshot's changes into the current blob. Keys touched
// by other writers since Load are kept; for keys both touched, this commit wins.
func (sn *Snapshot[K, V]) Commit(ctx context.Context) error {
	if !sn.Dirty() {
		return nil
	}
	s := sn.store

	unlock, err := s.backend.Lock(ctx, s.policy.Name)
	if err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeIo, "cache_store.Commit", "failed to lock "+s.policy.Name)
	}
	defer unlock()

	current, err := s.read(ctx)
	if err != nil {
		return err
	}

	sn.mu.Lock()
	for k := range sn.deletes {
		delete(current, k)
	}
	for k := range sn.upserts {
		current[k] = sn.entries[k]
	}
	sn.upserts = make(map[K]struct{})
	sn.deletes = make(map[K]struct{})
	sn.mu.Unlock()

	data, err := s.codec.Encode(envelope[K, V]{Version: envelopeVersion, Entries: current})
	if err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeInternal, "cache_store.Commit", "failed to encode "+s.policy.Name)
	}
	if err := s.backend.Write(ctx, s.policy.Name, data); err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeIo, "cache_store.Commit", "failed to write "+s.policy.Name)
	}
	return nil
}
