package trigger

import (
	"fmt"
	"path"
	"strings"
)

// Status is the tri-state outcome of evaluating an expression. Unknown
// means a referenced node or limit is not in the cache — distinct from
// definitively unmet, so the user can tell "not yet fetched" from "truly
// blocking".
type Status string

const (
	Satisfied Status = "satisfied"
	Unmet     Status = "unmet"
	Unknown   Status = "unknown"
)

// Resolver supplies live state for leaf predicates. The node cache
// implements it; tests use map-backed fakes.
type Resolver interface {
	// StateOf returns the current state of the node at path, or false if
	// the node is not known.
	StateOf(path string) (string, bool)

	// EventSet reports whether the named event is set on the node. The
	// second result is false when the node or event is unknown.
	EventSet(path, event string) (bool, bool)

	// LimitConsumed returns a limit's current consumption and configured
	// maximum, or false when the limit is not defined.
	LimitConsumed(name string) (consumed, max int, ok bool)
}

// Result annotates one expression node with its outcome. The tree shape
// mirrors the parsed expression, so a caller can highlight exactly which
// sub-clauses block progress.
type Result struct {
	Status Status
	Span   Span
	Text   string // source text of this subexpression
	Detail string // leaf-level explanation (actual vs expected)

	// Target is the cache path a leaf refers to, for jump-to-node.
	Target string

	Children []*Result
}

// Evaluate walks the expression against the resolver. ownerPath is the
// path of the node that carries the trigger; relative references resolve
// against its parent, matching server semantics.
func Evaluate(e Expr, src string, r Resolver, ownerPath string) *Result {
	ev := &evaluator{src: src, r: r, base: parentDir(ownerPath)}
	return ev.eval(e)
}

type evaluator struct {
	src  string
	r    Resolver
	base string
}

func (ev *evaluator) text(s Span) string {
	if s.Start < 0 || s.End > len(ev.src) || s.Start > s.End {
		return ""
	}
	return ev.src[s.Start:s.End]
}

func (ev *evaluator) eval(e Expr) *Result {
	switch x := e.(type) {
	case *Leaf:
		return ev.leaf(x)
	case *Not:
		child := ev.eval(x.X)
		st := child.Status
		switch st {
		case Satisfied:
			st = Unmet
		case Unmet:
			st = Satisfied
		}
		return &Result{Status: st, Span: x.Src, Text: ev.text(x.Src), Children: []*Result{child}}
	case *And:
		res := &Result{Span: x.Src, Text: ev.text(x.Src)}
		st := Satisfied
		for _, sub := range x.Xs {
			c := ev.eval(sub)
			res.Children = append(res.Children, c)
			switch {
			case c.Status == Unmet:
				st = Unmet
			case c.Status == Unknown && st != Unmet:
				st = Unknown
			}
		}
		res.Status = st
		return res
	case *Or:
		res := &Result{Span: x.Src, Text: ev.text(x.Src)}
		st := Unmet
		for _, sub := range x.Xs {
			c := ev.eval(sub)
			res.Children = append(res.Children, c)
			switch {
			case c.Status == Satisfied:
				st = Satisfied
			case c.Status == Unknown && st != Satisfied:
				st = Unknown
			}
		}
		res.Status = st
		return res
	default:
		return &Result{Status: Unknown, Text: "unsupported expression"}
	}
}

func (ev *evaluator) leaf(l *Leaf) *Result {
	res := &Result{Span: l.Src, Text: ev.text(l.Src)}
	switch l.Kind {
	case LeafState:
		target, ok := ev.resolve(l.Ref)
		if !ok {
			res.Status = Unknown
			res.Detail = "unresolvable reference"
			return res
		}
		res.Target = target
		state, known := ev.r.StateOf(target)
		if !known {
			res.Status = Unknown
			res.Detail = "node not in cache"
			return res
		}
		match := state == l.State
		if l.Op == OpNe {
			match = !match
		}
		if match {
			res.Status = Satisfied
		} else {
			res.Status = Unmet
		}
		res.Detail = fmt.Sprintf("actual state %s", state)
	case LeafEvent:
		target, ok := ev.resolve(l.Ref)
		if !ok {
			res.Status = Unknown
			res.Detail = "unresolvable reference"
			return res
		}
		res.Target = target
		set, known := ev.r.EventSet(target, l.Event)
		switch {
		case !known:
			res.Status = Unknown
			res.Detail = "event not in cache"
		case set:
			res.Status = Satisfied
			res.Detail = "event set"
		default:
			res.Status = Unmet
			res.Detail = "event clear"
		}
	case LeafLimit:
		consumed, max, ok := ev.r.LimitConsumed(l.Ref)
		if !ok {
			// A missing limit definition fails open as unknown, never as
			// silently satisfied.
			res.Status = Unknown
			res.Detail = "limit not defined"
			return res
		}
		if compareInts(consumed, l.Value, l.Op) {
			res.Status = Satisfied
		} else {
			res.Status = Unmet
		}
		res.Detail = fmt.Sprintf("consumed %d/%d", consumed, max)
	}
	return res
}

// resolve turns a trigger reference into a canonical cache path. Absolute
// references just lose the leading slash; relative ones join against the
// owning node's parent.
func (ev *evaluator) resolve(ref string) (string, bool) {
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/"), true
	}
	joined := path.Clean(path.Join(ev.base, ref))
	if joined == "." || joined == "" || strings.HasPrefix(joined, "..") {
		return "", false
	}
	return joined, true
}

func parentDir(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.LastIndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return ""
}

func compareInts(a, b int, op CompareOp) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}
