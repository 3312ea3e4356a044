// Package syncer drives synchronization of the node cache against the
// remote gateway: a full-tree sync on connect and on refresh, periodic
// syncs while idle, and narrow subtree syncs for lazy expansion. All
// cache writes flow through here, serialized by the cache itself; the
// engine's job is scheduling, coalescing, and failure accounting.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
)

// Status is the engine's connectivity view, exposed so the interface can
// always report "last known state as of <timestamp>" and never present
// stale data as current.
type Status struct {
	Degraded  bool
	LastError string
	LastSync  time.Time
}

// flight is one in-flight sync shared by every caller that coalesced
// into it: a single-slot pending-request structure, not a queue.
type flight struct {
	done chan struct{}
	err  error
}

// Engine coordinates syncs. One engine owns one cache.
type Engine struct {
	gw      gateway.Gateway
	cache   *cache.Cache
	period  time.Duration
	timeout time.Duration

	mu        sync.Mutex
	full      *flight            // in-flight full sync, nil when idle
	subtrees  map[string]*flight // in-flight lazy syncs by root path
	degraded  bool
	lastError string
	lastSync  time.Time
}

// New builds an engine. period is the idle refresh interval; timeout
// bounds every single gateway call.
func New(gw gateway.Gateway, c *cache.Cache, period, timeout time.Duration) *Engine {
	return &Engine{
		gw:       gw,
		cache:    c,
		period:   period,
		timeout:  timeout,
		subtrees: make(map[string]*flight),
	}
}

// Cache returns the cache this engine maintains.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Status reports current connectivity and the last successful sync time.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Degraded: e.degraded, LastError: e.lastError, LastSync: e.lastSync}
}

// FullSync fetches and applies a full-tree snapshot. Concurrent callers
// coalesce into the single in-flight sync and share its result, so two
// back-to-back refresh requests cost one gateway round trip.
func (e *Engine) FullSync(ctx context.Context) error {
	e.mu.Lock()
	if f := e.full; f != nil {
		e.mu.Unlock()
		return e.wait(ctx, f)
	}
	f := &flight{done: make(chan struct{})}
	e.full = f
	e.mu.Unlock()

	f.err = e.fetchAndApply(ctx, gateway.Scope{})

	e.mu.Lock()
	e.full = nil
	e.mu.Unlock()
	close(f.done)
	return f.err
}

// SubtreeSync fetches and applies a snapshot scoped to one subtree. If a
// full sync is already in flight its result supersedes the narrow
// request, so the caller just waits for it. Concurrent requests for the
// same subtree are deduplicated.
func (e *Engine) SubtreeSync(ctx context.Context, path string, depth int) error {
	path = cache.Normalize(path)

	e.mu.Lock()
	if f := e.full; f != nil {
		e.mu.Unlock()
		return e.wait(ctx, f)
	}
	if f, ok := e.subtrees[path]; ok {
		e.mu.Unlock()
		return e.wait(ctx, f)
	}
	f := &flight{done: make(chan struct{})}
	e.subtrees[path] = f
	e.mu.Unlock()

	f.err = e.fetchAndApply(ctx, gateway.Scope{Path: path, Depth: depth})

	e.mu.Lock()
	delete(e.subtrees, path)
	e.mu.Unlock()
	close(f.done)
	return f.err
}

// Expand materializes a node's children on first expansion. Already
// populated nodes are a no-op; use Refresh to force a re-fetch.
func (e *Engine) Expand(ctx context.Context, path string) error {
	if _, populated := e.cache.ChildrenOf(path); populated {
		return nil
	}
	return e.SubtreeSync(ctx, path, 1)
}

// Refresh re-fetches one subtree regardless of its populated state.
func (e *Engine) Refresh(ctx context.Context, path string) error {
	return e.SubtreeSync(ctx, path, 1)
}

// Run performs periodic full syncs until the context is canceled.
// Failures are recorded in Status and retried on the next tick; there is
// no extra backoff beyond the configured period.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = e.FullSync(ctx) // outcome recorded in Status
		}
	}
}

// fetchAndApply performs one bounded gateway fetch and merges the result.
// On any failure the cache is left untouched: stale-but-consistent beats
// partially updated.
func (e *Engine) fetchAndApply(ctx context.Context, scope gateway.Scope) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.gw.FetchSnapshot(callCtx, scope)
	if err != nil {
		e.record(err)
		return err
	}
	if err := e.cache.Apply(snap); err != nil {
		err = fmt.Errorf("apply snapshot: %w", err)
		e.record(err)
		return err
	}
	e.mu.Lock()
	e.degraded = false
	e.lastError = ""
	e.lastSync = snap.TakenAt
	e.mu.Unlock()
	return nil
}

func (e *Engine) record(err error) {
	e.mu.Lock()
	e.degraded = true
	e.lastError = err.Error()
	e.mu.Unlock()
}

func (e *Engine) wait(ctx context.Context, f *flight) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
