// Package gateway defines the contract with the remote workflow server:
// snapshot reads, control mutations, and artifact fetches. Everything the
// rest of ectop knows about the server passes through the Gateway
// interface, so tests and the demo mode can substitute the in-package Fake.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies gateway failures so callers can decide between
// retrying (connection trouble) and surfacing the error as-is.
type ErrorKind string

const (
	KindConnectionFailure ErrorKind = "connection-failure"
	KindServerRejected    ErrorKind = "server-rejected"
	KindNotFound          ErrorKind = "not-found"
	KindPermissionDenied  ErrorKind = "permission-denied"
)

// Error is the typed failure returned by every gateway operation.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind from err. Errors that are not gateway
// errors (deadline exceeded, dial failures wrapped by the transport) count
// as connection failures.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindConnectionFailure
}

// Op is a control mutation verb understood by the server.
type Op string

const (
	OpSuspend       Op = "suspend"
	OpResume        Op = "resume"
	OpKill          Op = "kill"
	OpForceComplete Op = "force_complete"
	OpRequeue       Op = "requeue"
	OpHalt          Op = "halt"
	OpStart         Op = "start"
	OpSetVariable   Op = "set_variable"
	OpDelVariable   Op = "delete_variable"
	OpSetScript     Op = "set_script"
)

// ArtifactKind selects which file is fetched for a task.
type ArtifactKind string

const (
	ArtifactJobout ArtifactKind = "jobout"
	ArtifactScript ArtifactKind = "script"
	ArtifactJob    ArtifactKind = "job"
)

// Scope selects what a snapshot fetch covers. A zero Path means the whole
// tree. Depth limits how many levels below the scope root are enumerated;
// zero means unlimited.
type Scope struct {
	Path  string
	Depth int
}

// Full reports whether the scope covers the entire tree.
func (s Scope) Full() bool { return s.Path == "" }

// Variable is a single name/value pair on a node. Order matters: the
// server reports variables in definition order and the UI preserves it.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Limit is a named counter with its configured maximum and current
// consumption, as reported by the node that defines it.
type Limit struct {
	Name     string `json:"name"`
	Max      int    `json:"max"`
	Consumed int    `json:"consumed"`
}

// Event is a named flag a task can set while running; trigger expressions
// may reference it as path:event.
type Event struct {
	Name string `json:"name"`
	Set  bool   `json:"set"`
}

// NodeData is one node's attributes as observed in a snapshot. Children
// carries child names in server order; ChildrenKnown distinguishes "not
// enumerated at this depth" from "enumerated and possibly empty".
type NodeData struct {
	Path          string     `json:"path"`
	Kind          string     `json:"kind"`
	State         string     `json:"state"`
	Trigger       string     `json:"trigger,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Variables     []Variable `json:"variables,omitempty"`
	Generated     []Variable `json:"generated,omitempty"`
	Limits        []Limit    `json:"limits,omitempty"`
	InLimits      []string   `json:"inlimits,omitempty"`
	Events        []Event    `json:"events,omitempty"`
	Times         []string   `json:"times,omitempty"`
	Dates         []string   `json:"dates,omitempty"`
	Crons         []string   `json:"crons,omitempty"`
	Children      []string   `json:"children,omitempty"`
	ChildrenKnown bool       `json:"childrenKnown"`
}

// Snapshot is the immutable result of one synchronization pass.
type Snapshot struct {
	TakenAt       time.Time
	ServerStatus  string // running, halted
	ServerVersion string
	Full          bool
	Root          string // subtree root for partial snapshots, "" for full
	Nodes         []NodeData
}

// Gateway is the remote server seen from the client side. All calls honor
// context cancellation and deadlines; a call that exceeds its deadline
// returns a connection-failure error rather than hanging.
type Gateway interface {
	// Ping checks connectivity without transferring tree data.
	Ping(ctx context.Context) error

	// FetchSnapshot retrieves node data for the given scope.
	FetchSnapshot(ctx context.Context, scope Scope) (*Snapshot, error)

	// Mutate issues a control operation against path. The payload carries
	// verb-specific fields (variable name/value, script content).
	Mutate(ctx context.Context, op Op, path string, payload map[string]string) error

	// FetchArtifact returns the content of the node's log, script, or job
	// file starting at offset. Offset zero fetches the whole file.
	FetchArtifact(ctx context.Context, path string, kind ArtifactKind, offset int64) ([]byte, error)
}
