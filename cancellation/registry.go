// Package cancellation tracks the running scans by key so a caller that did
// not start a scan can still ask it to stop.
package cancellation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morler/repomuse/app_errors"
)

// Token is the cancellation flag handed to one scan. Discovery and processing
// poll Cancelled at entry and chunk boundaries; blocking calls watch Context.
type Token struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	startedAt time.Time
}

// Cancelled reports whether cancellation was requested
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Context is done once cancellation was requested or the parent ended
func (t *Token) Context() context.Context { return t.ctx }

// StartedAt returns when the scan registered
func (t *Token) StartedAt() time.Time { return t.startedAt }

// Cancel raises the flag. Calling it twice is harmless.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// release frees the context resources without raising the flag
func (t *Token) release() { t.cancel() }

// Registry maps scan keys to their tokens
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Start installs a fresh token for key derived from parent. A stale token
// left under the same key is replaced, not cancelled.
func (r *Registry) Start(parent context.Context, key string) *Token {
	ctx, cancel := context.WithCancel(parent)
	t := &Token{ctx: ctx, cancel: cancel, startedAt: time.Now()}

	r.mu.Lock()
	r.tokens[key] = t
	r.mu.Unlock()
	return t
}

// RequestCancel raises the flag of the scan running under key. The entry
// stays registered until the scan calls End.
func (r *Registry) RequestCancel(key string) error {
	r.mu.Lock()
	t, ok := r.tokens[key]
	r.mu.Unlock()
	if !ok {
		return app_errors.Newf(app_errors.ErrorCodeNoRunningScan, "cancel", "no running scan for %s", key)
	}
	t.Cancel()
	return nil
}

// End removes key if it still maps to t, and releases t
func (r *Registry) End(key string, t *Token) {
	r.mu.Lock()
	if r.tokens[key] == t {
		delete(r.tokens, key)
	}
	r.mu.Unlock()
	t.release()
}

// IsRunning reports whether a scan is registered under key
func (r *Registry) IsRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[key]
	return ok
}

// Running lists the registered keys
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.tokens))
	for k := range r.tokens {
		keys = append(keys, k)
	}
	return keys
}

// CancelAll raises every registered flag, used on shutdown
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		t.Cancel()
	}
}
