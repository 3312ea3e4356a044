package syncer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
)

func scriptedFake() *gateway.Fake {
	f := gateway.NewFake()
	f.FullSnapshot = &gateway.Snapshot{
		ServerStatus: "running",
		Nodes: []gateway.NodeData{
			{Path: "s1", Kind: "suite", State: "active", Children: []string{"f1"}, ChildrenKnown: true},
			{Path: "s1/f1", Kind: "family", State: "queued"}, // children pending
		},
	}
	f.Subtrees["s1/f1"] = &gateway.Snapshot{
		Nodes: []gateway.NodeData{
			{Path: "s1/f1", Kind: "family", State: "queued", Children: []string{"t1"}, ChildrenKnown: true},
			{Path: "s1/f1/t1", Kind: "task", State: "aborted", ChildrenKnown: true},
		},
	}
	return f
}

func newEngine(f *gateway.Fake) *Engine {
	return New(f, cache.New(), 50*time.Millisecond, time.Second)
}

// TestFullSyncApplies verifies a full sync populates the cache and clears
// the degraded flag.
func TestFullSyncApplies(t *testing.T) {
	f := scriptedFake()
	e := newEngine(f)

	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if _, ok := e.Cache().Get("s1/f1"); !ok {
		t.Error("s1/f1 missing after full sync")
	}
	st := e.Status()
	if st.Degraded {
		t.Errorf("degraded after successful sync: %q", st.LastError)
	}
	if st.LastSync.IsZero() {
		t.Error("LastSync not recorded")
	}
}

// TestFullSyncCoalesces verifies overlapping full-sync requests share one
// gateway round trip.
func TestFullSyncCoalesces(t *testing.T) {
	f := scriptedFake()
	f.FetchDelay = 100 * time.Millisecond
	e := newEngine(f)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = e.FullSync(context.Background())
	}()
	time.Sleep(20 * time.Millisecond) // let the first sync take the slot
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = e.FullSync(context.Background())
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("sync %d: %v", i, err)
		}
	}
	if n := f.FullFetches(); n != 1 {
		t.Errorf("full fetches = %d, want 1 (coalesced)", n)
	}
}

// TestSubtreeJoinsFullSync verifies a subtree request issued while a full
// sync is in flight waits for it instead of fetching separately.
func TestSubtreeJoinsFullSync(t *testing.T) {
	f := scriptedFake()
	f.FetchDelay = 100 * time.Millisecond
	e := newEngine(f)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.FullSync(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	if err := e.SubtreeSync(context.Background(), "s1/f1", 1); err != nil {
		t.Fatalf("SubtreeSync: %v", err)
	}
	wg.Wait()

	if n := f.SubtreeFetches("s1/f1"); n != 0 {
		t.Errorf("subtree fetches = %d, want 0 (joined full sync)", n)
	}
}

// TestSubtreeDedup verifies concurrent expansions of the same node cost
// one fetch.
func TestSubtreeDedup(t *testing.T) {
	f := scriptedFake()
	f.FetchDelay = 100 * time.Millisecond
	e := newEngine(f)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.SubtreeSync(context.Background(), "s1/f1", 1)
		}()
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	if n := f.SubtreeFetches("s1/f1"); n != 1 {
		t.Errorf("subtree fetches = %d, want 1 (deduplicated)", n)
	}
}

// TestFailureLeavesCacheIntact verifies a failed sync keeps the previous
// cache contents and flips the engine into degraded state until the next
// success.
func TestFailureLeavesCacheIntact(t *testing.T) {
	f := scriptedFake()
	e := newEngine(f)
	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	before := e.Cache().Len()

	f.FetchErr = &gateway.Error{Kind: gateway.KindConnectionFailure, Message: "connection reset"}
	if err := e.FullSync(context.Background()); err == nil {
		t.Fatal("sync should fail")
	}
	if e.Cache().Len() != before {
		t.Error("failed sync modified the cache")
	}
	st := e.Status()
	if !st.Degraded {
		t.Error("engine should be degraded after failure")
	}
	if !strings.Contains(st.LastError, "connection reset") {
		t.Errorf("LastError = %q", st.LastError)
	}

	f.FetchErr = nil
	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("recovery sync: %v", err)
	}
	if st := e.Status(); st.Degraded {
		t.Error("degraded flag should clear on success")
	}
}

// TestExpandIdempotent verifies Expand fetches a pending subtree exactly
// once and never touches nodes already populated.
func TestExpandIdempotent(t *testing.T) {
	f := scriptedFake()
	e := newEngine(f)
	if err := e.FullSync(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}

	if err := e.Expand(context.Background(), "s1/f1"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if _, ok := e.Cache().Get("s1/f1/t1"); !ok {
		t.Error("expansion did not materialize s1/f1/t1")
	}
	if err := e.Expand(context.Background(), "s1/f1"); err != nil {
		t.Fatalf("second Expand: %v", err)
	}
	if n := f.SubtreeFetches("s1/f1"); n != 1 {
		t.Errorf("subtree fetches = %d, want 1 (populated nodes are a no-op)", n)
	}

	// Suites enumerated by the full snapshot are already populated.
	if err := e.Expand(context.Background(), "s1"); err != nil {
		t.Fatalf("Expand populated: %v", err)
	}
	if n := f.SubtreeFetches("s1"); n != 0 {
		t.Errorf("populated expand fetched %d times", n)
	}
}

// TestSyncTimeout verifies a fetch exceeding the per-call deadline is
// reported as a connection failure.
func TestSyncTimeout(t *testing.T) {
	f := scriptedFake()
	f.FetchDelay = 200 * time.Millisecond
	e := New(f, cache.New(), time.Second, 50*time.Millisecond)

	err := e.FullSync(context.Background())
	if err == nil {
		t.Fatal("sync should time out")
	}
	if kind := gateway.KindOf(err); kind != gateway.KindConnectionFailure {
		t.Errorf("error kind = %s, want connection-failure", kind)
	}
	if st := e.Status(); !st.Degraded {
		t.Error("timeout should mark the engine degraded")
	}
}
