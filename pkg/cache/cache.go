package cache

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ectop-dev/ectop/pkg/gateway"
)

// Cache mirrors the remote node tree. All mutation happens through Apply;
// readers receive copies keyed by path. Paths are stored in canonical form
// without a leading slash ("suite1/fam1/task1").
type Cache struct {
	mu sync.RWMutex

	nodes  map[string]*Node
	roots  []string          // suite paths in server order
	parent map[string]string // path → parent path ("" for suites)
	limits map[string]gateway.Limit

	lastUpdated   time.Time
	serverStatus  string
	serverVersion string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		nodes:  make(map[string]*Node),
		parent: make(map[string]string),
		limits: make(map[string]gateway.Limit),
	}
}

// Normalize strips a leading slash so server-style absolute paths and the
// cache's canonical form compare equal.
func Normalize(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Apply merges a snapshot into the cache. The whole batch is validated
// before any state changes: a malformed snapshot (duplicate path with a
// conflicting kind, or a populated node listing a child the snapshot does
// not carry) is rejected and the cache is left untouched.
//
// For a full snapshot, previously-known paths absent from the snapshot are
// deleted with their subtrees, except descendants of nodes the snapshot
// left unenumerated (those keep their lazily-fetched children).
func (c *Cache) Apply(snap *gateway.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("apply: nil snapshot")
	}
	if err := validate(snap); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	present := make(map[string]bool, len(snap.Nodes))
	for i := range snap.Nodes {
		present[Normalize(snap.Nodes[i].Path)] = true
	}

	if snap.Full {
		// Paths under an unenumerated snapshot node survive deletion:
		// the snapshot makes no claim about them.
		var unexpanded []string
		for i := range snap.Nodes {
			if !snap.Nodes[i].ChildrenKnown {
				unexpanded = append(unexpanded, Normalize(snap.Nodes[i].Path))
			}
		}
		for path := range c.nodes {
			if present[path] {
				continue
			}
			retained := false
			for _, u := range unexpanded {
				if u != path && Covers(u, path) {
					retained = true
					break
				}
			}
			if !retained {
				c.remove(path)
			}
		}
	}

	for i := range snap.Nodes {
		c.upsert(&snap.Nodes[i])
	}

	if snap.Full {
		var roots []string
		for i := range snap.Nodes {
			p := Normalize(snap.Nodes[i].Path)
			if !strings.Contains(p, "/") {
				roots = append(roots, p)
			}
		}
		c.roots = roots
	} else {
		for i := range snap.Nodes {
			p := Normalize(snap.Nodes[i].Path)
			if !strings.Contains(p, "/") && !slices.Contains(c.roots, p) {
				c.roots = append(c.roots, p)
			}
		}
	}

	c.rebuildLimits()
	c.lastUpdated = snap.TakenAt
	if c.lastUpdated.IsZero() {
		c.lastUpdated = time.Now()
	}
	if snap.ServerStatus != "" {
		c.serverStatus = snap.ServerStatus
	}
	if snap.ServerVersion != "" {
		c.serverVersion = snap.ServerVersion
	}
	return nil
}

// validate rejects batches the cache could only merge partially.
func validate(snap *gateway.Snapshot) error {
	kinds := make(map[string]string, len(snap.Nodes))
	for i := range snap.Nodes {
		d := &snap.Nodes[i]
		p := Normalize(d.Path)
		if p == "" {
			return fmt.Errorf("malformed snapshot: empty node path")
		}
		if prev, ok := kinds[p]; ok && prev != d.Kind {
			return fmt.Errorf("malformed snapshot: %s reported as both %s and %s", p, prev, d.Kind)
		}
		kinds[p] = d.Kind
	}
	for i := range snap.Nodes {
		d := &snap.Nodes[i]
		if !d.ChildrenKnown {
			continue
		}
		base := Normalize(d.Path)
		for _, name := range d.Children {
			if _, ok := kinds[base+"/"+name]; !ok {
				return fmt.Errorf("malformed snapshot: %s lists child %q without node data", base, name)
			}
		}
	}
	return nil
}

// upsert creates or updates one node, bumping its generation only when an
// attribute actually changed. Caller holds the write lock.
func (c *Cache) upsert(d *gateway.NodeData) {
	path := Normalize(d.Path)
	children := make([]string, 0, len(d.Children))
	for _, name := range d.Children {
		child := path + "/" + name
		if !slices.Contains(children, child) {
			children = append(children, child)
		}
	}

	existing, ok := c.nodes[path]
	if !ok {
		n := &Node{
			Path:      path,
			Kind:      Kind(d.Kind),
			State:     State(d.State),
			Trigger:   d.Trigger,
			Reason:    d.Reason,
			Variables: slices.Clone(d.Variables),
			Generated: slices.Clone(d.Generated),
			Limits:    slices.Clone(d.Limits),
			InLimits:  slices.Clone(d.InLimits),
			Events:    slices.Clone(d.Events),
			Times:     slices.Clone(d.Times),
			Dates:     slices.Clone(d.Dates),
			Crons:     slices.Clone(d.Crons),
		}
		if d.ChildrenKnown {
			n.Children = children
			n.Populated = true
		}
		c.nodes[path] = n
		c.parent[path] = ParentPath(path)
		return
	}

	changed := existing.Kind != Kind(d.Kind) ||
		existing.State != State(d.State) ||
		existing.Trigger != d.Trigger ||
		existing.Reason != d.Reason ||
		!slices.Equal(existing.Variables, d.Variables) ||
		!slices.Equal(existing.Generated, d.Generated) ||
		!slices.Equal(existing.Limits, d.Limits) ||
		!slices.Equal(existing.InLimits, d.InLimits) ||
		!slices.Equal(existing.Events, d.Events) ||
		!slices.Equal(existing.Times, d.Times) ||
		!slices.Equal(existing.Dates, d.Dates) ||
		!slices.Equal(existing.Crons, d.Crons)
	if d.ChildrenKnown {
		changed = changed || !existing.Populated || !slices.Equal(existing.Children, children)
	}
	if !changed {
		return
	}

	existing.Kind = Kind(d.Kind)
	existing.State = State(d.State)
	existing.Trigger = d.Trigger
	existing.Reason = d.Reason
	existing.Variables = slices.Clone(d.Variables)
	existing.Generated = slices.Clone(d.Generated)
	existing.Limits = slices.Clone(d.Limits)
	existing.InLimits = slices.Clone(d.InLimits)
	existing.Events = slices.Clone(d.Events)
	existing.Times = slices.Clone(d.Times)
	existing.Dates = slices.Clone(d.Dates)
	existing.Crons = slices.Clone(d.Crons)
	if d.ChildrenKnown {
		existing.Children = children
		existing.Populated = true
	}
	existing.Generation++
}

// remove deletes a node and its subtree. Caller holds the write lock.
func (c *Cache) remove(path string) {
	n, ok := c.nodes[path]
	if !ok {
		return
	}
	for _, child := range n.Children {
		c.remove(child)
	}
	delete(c.nodes, path)
	delete(c.parent, path)
	if i := slices.Index(c.roots, path); i >= 0 {
		c.roots = slices.Delete(c.roots, i, i+1)
	}
}

// rebuildLimits reindexes limit definitions by name. Caller holds the
// write lock.
func (c *Cache) rebuildLimits() {
	clear(c.limits)
	for _, n := range c.nodes {
		for _, l := range n.Limits {
			c.limits[l.Name] = l
		}
	}
}

// Get returns a copy of the node at path.
func (c *Cache) Get(path string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[Normalize(path)]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// ChildrenOf returns the node's children in server order. The second
// result is false while the subtree is still pending (not lazily fetched).
func (c *Cache) ChildrenOf(path string) ([]Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[Normalize(path)]
	if !ok || !n.Populated {
		return nil, false
	}
	out := make([]Node, 0, len(n.Children))
	for _, child := range n.Children {
		if cn, ok := c.nodes[child]; ok {
			out = append(out, *cn)
		}
	}
	return out, true
}

// Roots returns the suite nodes in server order.
func (c *Cache) Roots() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Node, 0, len(c.roots))
	for _, p := range c.roots {
		if n, ok := c.nodes[p]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// Walk visits every materialized node depth-first, children in server
// order, until fn returns false.
func (c *Cache) Walk(fn func(Node) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stack := make([]string, len(c.roots))
	for i, p := range c.roots {
		stack[len(c.roots)-1-i] = p
	}
	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := c.nodes[path]
		if !ok {
			continue
		}
		if !fn(*n) {
			return
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// HasPending reports whether any known node still awaits lazy expansion.
func (c *Cache) HasPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.nodes {
		if !n.Populated && n.Kind != KindTask {
			return true
		}
	}
	return false
}

// Len reports the number of known nodes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// LastUpdated is the time of the last successful Apply.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// ServerStatus reports the most recently observed server scheduling state.
func (c *Cache) ServerStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverStatus
}

// ServerVersion reports the most recently observed server version string.
func (c *Cache) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion
}

// StateOf resolves a node state for trigger evaluation.
func (c *Cache) StateOf(path string) (string, bool) {
	n, ok := c.Get(path)
	if !ok {
		return "", false
	}
	return string(n.State), true
}

// EventSet resolves an event reference for trigger evaluation. The second
// result is false when the node or event is unknown to the cache.
func (c *Cache) EventSet(path, event string) (bool, bool) {
	n, ok := c.Get(path)
	if !ok {
		return false, false
	}
	for _, e := range n.Events {
		if e.Name == event {
			return e.Set, true
		}
	}
	return false, false
}

// LimitConsumed resolves a limit's current consumption and maximum for
// trigger evaluation.
func (c *Cache) LimitConsumed(name string) (consumed, max int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.limits[name]
	if !ok {
		return 0, 0, false
	}
	return l.Consumed, l.Max, true
}
