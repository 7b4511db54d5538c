package progress_tracker

import (
	"sync"

	"github.com/morler/repomuse/code_analyzer/models"
)

// Registry maps a scan key to its live tracker so progress can be queried
// out of band.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Register installs t under key, replacing any previous tracker
func (r *Registry) Register(key string, t *Tracker) {
	r.mu.Lock()
	r.trackers[key] = t
	r.mu.Unlock()
}

// Unregister removes key only while it still points at t
func (r *Registry) Unregister(key string, t *Tracker) {
	r.mu.Lock()
	if r.trackers[key] == t {
		delete(r.trackers, key)
	}
	r.mu.Unlock()
}

// Snapshot returns the progress of key, if a scan is running
func (r *Registry) Snapshot(key string) (models.ProgressSnapshot, bool) {
	r.mu.RLock()
	t, ok := r.trackers[key]
	r.mu.RUnlock()
	if !ok {
		return models.ProgressSnapshot{}, false
	}
	return t.Snapshot(), true
}

// Len returns the number of live trackers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}
