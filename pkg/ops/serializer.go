// Package ops issues control operations against the remote server with a
// concurrency discipline: operations on related paths (equal, ancestor,
// descendant) run one at a time, while unrelated paths proceed in
// parallel. On success the mutated subtree is resynchronized so the UI
// only ever shows server-confirmed state.
package ops

import (
	"context"
	"sync"

	"github.com/ectop-dev/ectop/pkg/cache"
)

// OpState is the serializer's view of one path's operation activity,
// surfaced so the interface can mark nodes with work in flight.
type OpState int

const (
	Idle OpState = iota
	InFlight
	Failed
)

func (s OpState) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// conflicts reports whether operations on the two paths must serialize.
// The empty path denotes a server-wide operation and conflicts with
// everything.
func conflicts(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return cache.Related(a, b)
}

// ticket is one admitted operation; done is closed on completion so
// conflicting waiters can re-check admission.
type ticket struct {
	path string
	done chan struct{}
}

// Serializer admits operations path by path. The zero value is not
// usable; call NewSerializer.
type Serializer struct {
	mu      sync.Mutex
	active  []*ticket
	lastErr map[string]error // most recent failure per path, cleared on success
}

// NewSerializer returns an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{lastErr: make(map[string]error)}
}

// Do runs fn once no conflicting operation is in flight. Conflicts are
// decided by path relation: equal paths, or one path enclosing the
// other. Waiting respects ctx; a canceled waiter never runs fn.
func (s *Serializer) Do(ctx context.Context, path string, fn func(context.Context) error) error {
	path = cache.Normalize(path)
	tk, err := s.admit(ctx, path)
	if err != nil {
		return err
	}
	err = fn(ctx)
	s.release(tk, err)
	return err
}

// State reports whether any operation touching path is in flight, or
// whether the most recent one failed.
func (s *Serializer) State(path string) OpState {
	path = cache.Normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tk := range s.active {
		if conflicts(tk.path, path) {
			return InFlight
		}
	}
	if s.lastErr[path] != nil {
		return Failed
	}
	return Idle
}

// LastError returns the most recent failure recorded for path, if any.
func (s *Serializer) LastError(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr[cache.Normalize(path)]
}

func (s *Serializer) admit(ctx context.Context, path string) (*ticket, error) {
	for {
		s.mu.Lock()
		var blocker *ticket
		for _, tk := range s.active {
			if conflicts(tk.path, path) {
				blocker = tk
				break
			}
		}
		if blocker == nil {
			tk := &ticket{path: path, done: make(chan struct{})}
			s.active = append(s.active, tk)
			s.mu.Unlock()
			return tk, nil
		}
		s.mu.Unlock()

		select {
		case <-blocker.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Serializer) release(tk *ticket, err error) {
	s.mu.Lock()
	for i, a := range s.active {
		if a == tk {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	if err != nil {
		s.lastErr[tk.path] = err
	} else {
		delete(s.lastErr, tk.path)
	}
	s.mu.Unlock()
	close(tk.done)
}
