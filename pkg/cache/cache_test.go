package cache

import (
	"testing"
	"time"

	"github.com/ectop-dev/ectop/pkg/gateway"
)

// nd builds node data with an enumerated (possibly empty) children list.
func nd(path, kind, state string, children ...string) gateway.NodeData {
	return gateway.NodeData{
		Path:          path,
		Kind:          kind,
		State:         state,
		Children:      children,
		ChildrenKnown: true,
	}
}

// pending builds node data whose children were not enumerated.
func pending(path, kind, state string) gateway.NodeData {
	return gateway.NodeData{Path: path, Kind: kind, State: state}
}

func fullSnap(nodes ...gateway.NodeData) *gateway.Snapshot {
	return &gateway.Snapshot{
		TakenAt:      time.Now(),
		ServerStatus: "running",
		Full:         true,
		Nodes:        nodes,
	}
}

func subtreeSnap(root string, nodes ...gateway.NodeData) *gateway.Snapshot {
	return &gateway.Snapshot{TakenAt: time.Now(), Root: root, Nodes: nodes}
}

// TestApplyFullSnapshot verifies the connect scenario: a full snapshot
// materializes the tree, states are queryable, and enumerated children
// report as populated.
func TestApplyFullSnapshot(t *testing.T) {
	c := New()
	err := c.Apply(fullSnap(
		nd("suite1", "suite", "active", "fam1"),
		nd("suite1/fam1", "family", "queued", "task1"),
		nd("suite1/fam1/task1", "task", "queued"),
	))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	task, ok := c.Get("suite1/fam1/task1")
	if !ok {
		t.Fatal("task1 not found after apply")
	}
	if task.State != StateQueued {
		t.Errorf("task1 state = %s, want queued", task.State)
	}
	if task.Generation != 0 {
		t.Errorf("fresh node generation = %d, want 0", task.Generation)
	}

	kids, populated := c.ChildrenOf("suite1")
	if !populated {
		t.Fatal("suite1 children should be populated")
	}
	if len(kids) != 1 || kids[0].Path != "suite1/fam1" {
		t.Errorf("suite1 children = %v", kids)
	}

	// Server-style absolute paths resolve to the same nodes.
	if _, ok := c.Get("/suite1/fam1"); !ok {
		t.Error("leading-slash lookup failed")
	}
	if c.ServerStatus() != "running" {
		t.Errorf("server status = %q, want running", c.ServerStatus())
	}
}

// TestApplyIdempotent verifies that re-applying an identical snapshot
// changes nothing and bumps no generation counter.
func TestApplyIdempotent(t *testing.T) {
	c := New()
	snap := fullSnap(
		nd("suite1", "suite", "active", "task1"),
		nd("suite1/task1", "task", "complete"),
	)
	if err := c.Apply(snap); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := c.Apply(snap); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	n, _ := c.Get("suite1/task1")
	if n.Generation != 0 {
		t.Errorf("generation after identical re-apply = %d, want 0", n.Generation)
	}
}

// TestGenerationBumpsOnlyOnChange verifies a changed field increments the
// generation while untouched siblings keep theirs.
func TestGenerationBumpsOnlyOnChange(t *testing.T) {
	c := New()
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "a", "b"),
		nd("s/a", "task", "queued"),
		nd("s/b", "task", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "a", "b"),
		nd("s/a", "task", "active"),
		nd("s/b", "task", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	a, _ := c.Get("s/a")
	b, _ := c.Get("s/b")
	if a.Generation != 1 {
		t.Errorf("changed node generation = %d, want 1", a.Generation)
	}
	if b.Generation != 0 {
		t.Errorf("unchanged node generation = %d, want 0", b.Generation)
	}
}

// TestFullResyncDeletesVanished verifies paths absent from a later full
// snapshot are removed with their subtrees.
func TestFullResyncDeletesVanished(t *testing.T) {
	c := New()
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "f"),
		nd("s/f", "family", "queued", "t"),
		nd("s/f/t", "task", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(fullSnap(nd("s", "suite", "active"))); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("s/f"); ok {
		t.Error("s/f should have been deleted by full resync")
	}
	if _, ok := c.Get("s/f/t"); ok {
		t.Error("s/f/t should have been deleted with its parent")
	}
	if c.Len() != 1 {
		t.Errorf("cache size = %d, want 1", c.Len())
	}
}

// TestLazySubtreeMerge verifies a partial snapshot populates one subtree
// without disturbing siblings, and that a later full snapshot leaving the
// subtree unenumerated retains the lazily-fetched children.
func TestLazySubtreeMerge(t *testing.T) {
	c := New()
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "f1", "f2"),
		pending("s/f1", "family", "queued"),
		pending("s/f2", "family", "queued"),
	)); err != nil {
		t.Fatal(err)
	}

	if _, populated := c.ChildrenOf("s/f1"); populated {
		t.Fatal("s/f1 should be pending before expansion")
	}

	if err := c.Apply(subtreeSnap("s/f1",
		nd("s/f1", "family", "queued", "t1"),
		pending("s/f1/t1", "task", "queued"),
	)); err != nil {
		t.Fatal(err)
	}

	kids, populated := c.ChildrenOf("s/f1")
	if !populated || len(kids) != 1 {
		t.Fatalf("s/f1 children = %v populated=%v", kids, populated)
	}
	if _, populated := c.ChildrenOf("s/f2"); populated {
		t.Error("sibling s/f2 must stay pending")
	}

	// A full resync that does not enumerate s/f1's children keeps them.
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "f1", "f2"),
		pending("s/f1", "family", "queued"),
		pending("s/f2", "family", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("s/f1/t1"); !ok {
		t.Error("lazily-fetched child lost across unenumerating full resync")
	}
	if _, populated := c.ChildrenOf("s/f1"); !populated {
		t.Error("s/f1 should remain populated")
	}

	// A full resync that does enumerate s/f1 invalidates stale children.
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "f1", "f2"),
		nd("s/f1", "family", "queued"),
		pending("s/f2", "family", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("s/f1/t1"); ok {
		t.Error("enumerating full resync should delete vanished child")
	}
}

// TestMalformedSnapshotRejected verifies the whole batch is discarded when
// a path is reported with conflicting kinds, leaving prior state intact.
func TestMalformedSnapshotRejected(t *testing.T) {
	c := New()
	if err := c.Apply(fullSnap(nd("s", "suite", "active"))); err != nil {
		t.Fatal(err)
	}
	before := c.LastUpdated()

	err := c.Apply(fullSnap(
		nd("s", "suite", "aborted", "x"),
		nd("s/x", "task", "queued"),
		nd("s/x", "family", "queued"),
	))
	if err == nil {
		t.Fatal("conflicting-kind snapshot should be rejected")
	}
	n, _ := c.Get("s")
	if n.State != StateActive {
		t.Errorf("rejected batch must not merge partially, state = %s", n.State)
	}
	if !c.LastUpdated().Equal(before) {
		t.Error("rejected batch must not touch last-updated timestamp")
	}

	// A populated node listing a child without node data is also rejected.
	err = c.Apply(fullSnap(nd("s", "suite", "active", "ghost")))
	if err == nil {
		t.Fatal("child without node data should be rejected")
	}
}

// TestLimitIndex verifies limit definitions resolve by name for the
// dependency evaluator.
func TestLimitIndex(t *testing.T) {
	c := New()
	snap := fullSnap(gateway.NodeData{
		Path:          "s",
		Kind:          "suite",
		State:         "active",
		Limits:        []gateway.Limit{{Name: "cpu", Max: 8, Consumed: 2}},
		ChildrenKnown: true,
	})
	if err := c.Apply(snap); err != nil {
		t.Fatal(err)
	}
	consumed, max, ok := c.LimitConsumed("cpu")
	if !ok || consumed != 2 || max != 8 {
		t.Errorf("LimitConsumed(cpu) = %d/%d ok=%v, want 2/8 true", consumed, max, ok)
	}
	if _, _, ok := c.LimitConsumed("mem"); ok {
		t.Error("unknown limit must not resolve")
	}
}

// TestWalkOrder verifies depth-first traversal with children in server
// order, which search-result ordering depends on.
func TestWalkOrder(t *testing.T) {
	c := New()
	if err := c.Apply(fullSnap(
		nd("s", "suite", "active", "b", "a"),
		nd("s/b", "family", "queued", "t"),
		nd("s/b/t", "task", "queued"),
		nd("s/a", "task", "queued"),
	)); err != nil {
		t.Fatal(err)
	}
	var got []string
	c.Walk(func(n Node) bool {
		got = append(got, n.Path)
		return true
	})
	want := []string{"s", "s/b", "s/b/t", "s/a"}
	if len(got) != len(want) {
		t.Fatalf("walk visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk order %v, want %v", got, want)
		}
	}
}
