// Package session ties one gateway connection to its cache, sync engine,
// operation controller, and search engine, and provides the read-side
// queries the interfaces share: dependency explanations, inherited
// variables, and artifact fetches.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/ops"
	"github.com/ectop-dev/ectop/pkg/search"
	"github.com/ectop-dev/ectop/pkg/syncer"
)

// Session is the shared context for one server connection. All of ectop's
// frontends (TUI, shell, MCP) operate on a Session.
type Session struct {
	gw      gateway.Gateway
	cache   *cache.Cache
	sync    *syncer.Engine
	ops     *ops.Controller
	search  *search.Engine
	timeout time.Duration
}

// New wires a session over the given gateway. period is the idle refresh
// interval; timeout bounds individual gateway calls.
func New(gw gateway.Gateway, period, timeout time.Duration) *Session {
	c := cache.New()
	eng := syncer.New(gw, c, period, timeout)
	return &Session{
		gw:      gw,
		cache:   c,
		sync:    eng,
		ops:     ops.NewController(gw, eng, timeout),
		search:  search.New(c),
		timeout: timeout,
	}
}

// Cache returns the node cache.
func (s *Session) Cache() *cache.Cache { return s.cache }

// Sync returns the synchronization engine.
func (s *Session) Sync() *syncer.Engine { return s.sync }

// Ops returns the operation controller.
func (s *Session) Ops() *ops.Controller { return s.ops }

// Search returns the search engine.
func (s *Session) Search() *search.Engine { return s.search }

// Connect verifies connectivity and performs the initial full sync.
func (s *Session) Connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.gw.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if err := s.sync.FullSync(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	return nil
}

// Run drives periodic syncs until ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	return s.sync.Run(ctx)
}

// Artifact fetches a task's output, script, or job file starting at
// offset. Offset zero fetches the whole file.
func (s *Session) Artifact(ctx context.Context, path string, kind gateway.ArtifactKind, offset int64) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.gw.FetchArtifact(callCtx, cache.Normalize(path), kind, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch %s for %s: %w", kind, path, err)
	}
	return data, nil
}
