// Package cache holds the in-memory mirror of the remote node tree. It is
// the only mutable shared state in ectop: every other component reads from
// it by path and all writes go through Apply.
package cache

import (
	"strings"

	"github.com/ectop-dev/ectop/pkg/gateway"
)

// Kind is the node's position in the hierarchy.
type Kind string

const (
	KindSuite  Kind = "suite"
	KindFamily Kind = "family"
	KindTask   Kind = "task"
)

// State is a node's scheduling state as reported by the server.
type State string

const (
	StateUnknown   State = "unknown"
	StateQueued    State = "queued"
	StateSubmitted State = "submitted"
	StateActive    State = "active"
	StateComplete  State = "complete"
	StateAborted   State = "aborted"
	StateSuspended State = "suspended"
)

// Node is one entry in the mirrored tree. Values returned by the cache are
// copies; mutating them has no effect on cached state.
type Node struct {
	Path      string
	Kind      Kind
	State     State
	Trigger   string
	Reason    string
	Variables []gateway.Variable
	Generated []gateway.Variable
	Limits    []gateway.Limit
	InLimits  []string
	Events    []gateway.Event
	Times     []string
	Dates     []string
	Crons     []string

	// Generation increments on every observed change, starting at zero
	// when the node is first seen.
	Generation int

	// Children holds child paths in server order. Populated distinguishes
	// "fetched and possibly empty" from "not yet fetched".
	Children  []string
	Populated bool
}

// Name is the last path segment.
func (n *Node) Name() string {
	if i := strings.LastIndexByte(n.Path, '/'); i >= 0 {
		return n.Path[i+1:]
	}
	return n.Path
}

// Depth counts path segments below the root; suites are depth 1.
func (n *Node) Depth() int {
	return strings.Count(n.Path, "/")
}

// ParentPath returns the path of the enclosing node, or "" for suites.
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// Covers reports whether ancestor equals path or encloses it.
func Covers(ancestor, path string) bool {
	if ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// Related reports whether two paths conflict for serialization purposes:
// equal, or one encloses the other.
func Related(a, b string) bool {
	return Covers(a, b) || Covers(b, a)
}
