package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MutationRecord is one Mutate call observed by the Fake.
type MutationRecord struct {
	Op      Op
	Path    string
	Payload map[string]string
}

// Fake is an in-memory Gateway for tests and demo mode. It serves scripted
// snapshots keyed by scope path and records every call it receives.
// Inject errors per operation to exercise failure paths.
type Fake struct {
	mu sync.Mutex

	// FullSnapshot is returned for full-tree fetches; Subtrees maps a
	// subtree root path to its partial snapshot.
	FullSnapshot *Snapshot
	Subtrees     map[string]*Snapshot

	// Artifacts maps "path/kind" to content.
	Artifacts map[string]string

	// FetchErr, MutateErr, PingErr, ArtifactErr fail the corresponding
	// call when non-nil.
	FetchErr    error
	MutateErr   error
	PingErr     error
	ArtifactErr error

	// FetchDelay pauses every FetchSnapshot before answering, letting
	// tests overlap in-flight syncs deterministically.
	FetchDelay time.Duration

	fullFetches    int
	subtreeFetches map[string]int
	mutations      []MutationRecord
}

// NewFake returns an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		Subtrees:       make(map[string]*Snapshot),
		Artifacts:      make(map[string]string),
		subtreeFetches: make(map[string]int),
	}
}

// Ping implements Gateway.
func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

// FetchSnapshot implements Gateway.
func (f *Fake) FetchSnapshot(ctx context.Context, scope Scope) (*Snapshot, error) {
	f.mu.Lock()
	delay := f.FetchDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &Error{Kind: KindConnectionFailure, Message: ctx.Err().Error()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if scope.Full() {
		f.fullFetches++
		if f.FullSnapshot == nil {
			return nil, &Error{Kind: KindConnectionFailure, Message: "no full snapshot scripted"}
		}
		snap := *f.FullSnapshot
		snap.TakenAt = time.Now()
		snap.Full = true
		return &snap, nil
	}
	f.subtreeFetches[scope.Path]++
	sub, ok := f.Subtrees[scope.Path]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("no subtree scripted for %s", scope.Path)}
	}
	snap := *sub
	snap.TakenAt = time.Now()
	snap.Full = false
	snap.Root = scope.Path
	return &snap, nil
}

// Mutate implements Gateway.
func (f *Fake) Mutate(ctx context.Context, op Op, path string, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MutateErr != nil {
		return f.MutateErr
	}
	f.mutations = append(f.mutations, MutationRecord{Op: op, Path: path, Payload: payload})
	return nil
}

// FetchArtifact implements Gateway.
func (f *Fake) FetchArtifact(ctx context.Context, path string, kind ArtifactKind, offset int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ArtifactErr != nil {
		return nil, f.ArtifactErr
	}
	content, ok := f.Artifacts[path+"/"+string(kind)]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("no %s for %s", kind, path)}
	}
	if offset > int64(len(content)) {
		return nil, nil
	}
	return []byte(content[offset:]), nil
}

// FullFetches reports how many full-tree fetches were issued.
func (f *Fake) FullFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fullFetches
}

// SubtreeFetches reports how many fetches were issued for the given root.
func (f *Fake) SubtreeFetches(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subtreeFetches[path]
}

// Mutations returns the mutations recorded so far.
func (f *Fake) Mutations() []MutationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MutationRecord, len(f.mutations))
	copy(out, f.mutations)
	return out
}
