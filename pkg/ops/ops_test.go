package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/syncer"
)

func fixture(t *testing.T) (*gateway.Fake, *syncer.Engine, *Controller) {
	t.Helper()
	f := gateway.NewFake()
	f.FullSnapshot = &gateway.Snapshot{
		ServerStatus: "running",
		Nodes: []gateway.NodeData{
			{Path: "s1", Kind: "suite", State: "active", Children: []string{"f1"}, ChildrenKnown: true},
			{Path: "s1/f1", Kind: "family", State: "aborted", Children: []string{"t1"}, ChildrenKnown: true},
			{Path: "s1/f1/t1", Kind: "task", State: "aborted", ChildrenKnown: true},
		},
	}
	f.Subtrees["s1/f1"] = &gateway.Snapshot{
		Nodes: []gateway.NodeData{
			{Path: "s1/f1", Kind: "family", State: "queued", Children: []string{"t1"}, ChildrenKnown: true},
			{Path: "s1/f1/t1", Kind: "task", State: "queued", ChildrenKnown: true},
		},
	}
	eng := syncer.New(f, cache.New(), time.Second, time.Second)
	if err := eng.FullSync(context.Background()); err != nil {
		t.Fatalf("seed sync: %v", err)
	}
	ctl := NewController(f, eng, time.Second)
	return f, eng, ctl
}

// TestRequeueResyncsSubtree verifies a successful mutation is followed by
// exactly one resync of the mutated subtree and the cache reflects the
// server's confirmed state.
func TestRequeueResyncsSubtree(t *testing.T) {
	f, eng, ctl := fixture(t)

	if err := ctl.Requeue(context.Background(), "/s1/f1"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	muts := f.Mutations()
	if len(muts) != 1 || muts[0].Op != gateway.OpRequeue || muts[0].Path != "s1/f1" {
		t.Fatalf("mutations = %+v", muts)
	}
	if n := f.SubtreeFetches("s1/f1"); n != 1 {
		t.Errorf("subtree fetches = %d, want 1", n)
	}
	n, ok := eng.Cache().Get("s1/f1/t1")
	if !ok || n.State != cache.StateQueued {
		t.Errorf("t1 after resync = %+v", n)
	}
}

// TestRejectedMutationLeavesCacheUntouched verifies a server rejection
// surfaces its kind, skips the resync, and changes nothing locally.
func TestRejectedMutationLeavesCacheUntouched(t *testing.T) {
	f, eng, ctl := fixture(t)
	f.MutateErr = &gateway.Error{Kind: gateway.KindServerRejected, Message: "node is active"}

	before, _ := eng.Cache().Get("s1/f1")
	err := ctl.Kill(context.Background(), "s1/f1")
	if err == nil {
		t.Fatal("Kill should fail")
	}
	if kind := gateway.KindOf(err); kind != gateway.KindServerRejected {
		t.Errorf("error kind = %s, want server-rejected", kind)
	}
	if n := f.SubtreeFetches("s1/f1"); n != 0 {
		t.Errorf("failed mutation triggered %d resyncs", n)
	}
	after, _ := eng.Cache().Get("s1/f1")
	if after.Generation != before.Generation || after.State != before.State {
		t.Errorf("cache changed after rejected mutation: %+v → %+v", before, after)
	}
	if ctl.Serializer().State("s1/f1") != Failed {
		t.Error("serializer should report the failure")
	}
}

// TestSetVariablePayload verifies variable verbs carry their payloads.
func TestSetVariablePayload(t *testing.T) {
	f, _, ctl := fixture(t)

	if err := ctl.SetVariable(context.Background(), "s1/f1", "QUEUE", "large"); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	if err := ctl.DeleteVariable(context.Background(), "s1/f1", "QUEUE"); err != nil {
		t.Fatalf("DeleteVariable: %v", err)
	}
	muts := f.Mutations()
	if len(muts) != 2 {
		t.Fatalf("mutations = %+v", muts)
	}
	if muts[0].Payload["name"] != "QUEUE" || muts[0].Payload["value"] != "large" {
		t.Errorf("set payload = %v", muts[0].Payload)
	}
	if muts[1].Op != gateway.OpDelVariable || muts[1].Payload["name"] != "QUEUE" {
		t.Errorf("delete record = %+v", muts[1])
	}

	if err := ctl.SetVariable(context.Background(), "s1/f1", "", "x"); err == nil {
		t.Error("empty variable name should be rejected locally")
	}
}

// TestSerializerConflicts verifies related paths run one at a time while
// unrelated paths proceed in parallel.
func TestSerializerConflicts(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(ctx, "s1/f1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if s.State("s1/f1/t1") != InFlight {
		t.Error("descendant should observe the in-flight operation")
	}
	if s.State("s1") != InFlight {
		t.Error("ancestor should observe the in-flight operation")
	}
	if s.State("s2") != Idle {
		t.Error("unrelated path should stay idle")
	}

	// An unrelated op runs to completion while s1/f1 is still held.
	ran := false
	if err := s.Do(ctx, "s2/x", func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("unrelated Do: %v", err)
	}
	if !ran {
		t.Fatal("unrelated op did not run")
	}

	// An ancestor op must wait for release.
	order := make(chan string, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(ctx, "s1", func(context.Context) error {
			order <- "ancestor"
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-order:
		t.Fatal("ancestor op ran while descendant was held")
	default:
	}
	order <- "release"
	close(release)
	wg.Wait()
	if first := <-order; first != "release" {
		t.Fatalf("order = %s before release", first)
	}
	if s.State("s1") != Idle {
		t.Error("serializer should drain to idle")
	}
}

// TestSerializerWaitCancel verifies a waiter honors context cancellation
// without ever running its operation.
func TestSerializerWaitCancel(t *testing.T) {
	s := NewSerializer()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), "a/b", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Do(ctx, "a", func(context.Context) error {
		t.Error("canceled waiter must not run")
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	close(release)
}

// TestHaltTriggersFullResync verifies server-level verbs mutate with an
// empty path and refresh the whole tree.
func TestHaltTriggersFullResync(t *testing.T) {
	f, _, ctl := fixture(t)
	before := f.FullFetches()

	if err := ctl.HaltServer(context.Background()); err != nil {
		t.Fatalf("HaltServer: %v", err)
	}
	muts := f.Mutations()
	if len(muts) != 1 || muts[0].Op != gateway.OpHalt || muts[0].Path != "" {
		t.Fatalf("mutations = %+v", muts)
	}
	if f.FullFetches() != before+1 {
		t.Errorf("full fetches = %d, want %d", f.FullFetches(), before+1)
	}
}
