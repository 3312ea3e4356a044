// Package search implements live text search and state filtering over the
// materialized portion of the node cache. Results are ordered by tree
// traversal so "next match" advances predictably; a session token scheme
// lets callers discard superseded in-flight searches.
package search

import (
	"strings"
	"sync/atomic"

	"github.com/ectop-dev/ectop/pkg/cache"
)

// Engine matches queries against the node cache. It holds no state of its
// own beyond the cache reference, so one engine serves any number of
// concurrent sessions.
type Engine struct {
	cache *cache.Cache
}

// New returns a search engine over the given cache.
func New(c *cache.Cache) *Engine {
	return &Engine{cache: c}
}

// Cursor is an ordered result set with a current position. It is only
// meaningful for the duration of one search session; a changed query
// produces a fresh cursor.
type Cursor struct {
	Query   string
	Matches []string

	// Partial reports that unmaterialized subtrees were excluded, so the
	// result set may be incomplete until they are expanded.
	Partial bool

	idx int
}

// Len reports the number of matches.
func (c *Cursor) Len() int { return len(c.Matches) }

// Pos reports the zero-based index of the current match.
func (c *Cursor) Pos() int { return c.idx }

// Current returns the match under the cursor.
func (c *Cursor) Current() (string, bool) {
	if len(c.Matches) == 0 {
		return "", false
	}
	return c.Matches[c.idx], true
}

// Next advances to the following match, wrapping at the end.
func (c *Cursor) Next() (string, bool) {
	if len(c.Matches) == 0 {
		return "", false
	}
	c.idx = (c.idx + 1) % len(c.Matches)
	return c.Matches[c.idx], true
}

// Prev steps back to the previous match, wrapping at the start.
func (c *Cursor) Prev() (string, bool) {
	if len(c.Matches) == 0 {
		return "", false
	}
	c.idx = (c.idx - 1 + len(c.Matches)) % len(c.Matches)
	return c.Matches[c.idx], true
}


// matches reports whether any slash-separated segment of path contains
// the lowercase query.
func matches(path, lowerQuery string) bool {
	for _, seg := range strings.Split(path, "/") {
		if strings.Contains(strings.ToLower(seg), lowerQuery) {
			return true
		}
	}
	return false
}

// Search scans every materialized node in depth-first order and returns a
// cursor over the matching paths.
func (e *Engine) Search(query string) *Cursor {
	cur := &Cursor{Query: query, Partial: e.cache.HasPending()}
	if query == "" {
		return cur
	}
	lower := strings.ToLower(query)
	e.cache.Walk(func(n cache.Node) bool {
		if matches(n.Path, lower) {
			cur.Matches = append(cur.Matches, n.Path)
		}
		return true
	})
	return cur
}

// Refine narrows a previous cursor when the new query strictly extends
// the old one (the old query appears inside the new), reusing the prior
// result set as the candidate pool instead of rescanning the tree. Any
// other change falls back to a full scan.
func (e *Engine) Refine(prev *Cursor, query string) *Cursor {
	if prev == nil || prev.Query == "" || query == "" {
		return e.Search(query)
	}
	lowerPrev := strings.ToLower(prev.Query)
	lower := strings.ToLower(query)
	if !strings.Contains(lower, lowerPrev) {
		return e.Search(query)
	}
	cur := &Cursor{Query: query, Partial: e.cache.HasPending()}
	for _, p := range prev.Matches {
		if matches(p, lower) {
			cur.Matches = append(cur.Matches, p)
		}
	}
	return cur
}

// SeekAfter positions the cursor on the first match strictly after the
// given path in traversal order, so "next match" continues from the
// user's current selection rather than the top of the tree.
func (e *Engine) SeekAfter(cur *Cursor, from string) {
	if cur.Len() == 0 {
		return
	}
	pos := make(map[string]int, len(cur.Matches))
	for i, m := range cur.Matches {
		pos[m] = i
	}
	from = cache.Normalize(from)
	seen := false
	target := -1
	e.cache.Walk(func(n cache.Node) bool {
		if seen {
			if i, ok := pos[n.Path]; ok {
				target = i
				return false
			}
		}
		if n.Path == from {
			seen = true
		}
		return true
	})
	if target >= 0 {
		cur.idx = target
	} else {
		cur.idx = 0 // wrap to the first match
	}
}

// Session serializes one interactive search at a time. Begin invalidates
// every token handed out before it, so results computed for a superseded
// query are dropped on delivery instead of flashing stale matches.
type Session struct {
	seq     atomic.Int64
	current atomic.Pointer[Cursor]
}

// Begin starts a new search generation and returns its token.
func (s *Session) Begin() int64 {
	return s.seq.Add(1)
}

// Deliver installs a cursor computed under token. It reports false — and
// discards the cursor — when a newer Begin has superseded the token.
func (s *Session) Deliver(token int64, cur *Cursor) bool {
	if token != s.seq.Load() {
		return false
	}
	s.current.Store(cur)
	return true
}

// Current returns the most recently delivered cursor, if any.
func (s *Session) Current() *Cursor {
	return s.current.Load()
}

// Reset drops the session state when the search UI closes.
func (s *Session) Reset() {
	s.seq.Add(1)
	s.current.Store(nil)
}
