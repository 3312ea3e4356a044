// Package trigger parses and evaluates node trigger expressions: boolean
// combinations of state comparisons, event references, and limit
// comparisons. Parsing yields an explicit expression tree with source
// spans so the why inspector can point at the exact sub-clause that
// blocks a node.
package trigger

import "fmt"

// Span is a half-open byte range into the original expression text.
type Span struct {
	Start int
	End   int
}

// CompareOp is a comparison operator in a leaf predicate.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// LeafKind discriminates the leaf predicate forms. The set is closed here
// but evaluation is routed through Resolver, so new forms only touch this
// package.
type LeafKind int

const (
	// LeafState compares a node's state: "path == complete". A bare path
	// parses as LeafState with OpEq and state "complete".
	LeafState LeafKind = iota
	// LeafEvent tests an event flag: "path:eventname".
	LeafEvent
	// LeafLimit compares a limit's consumption: "limit.cpu < 4".
	LeafLimit
)

// Expr is a parsed trigger expression node. The concrete types are Leaf,
// Not, And, and Or.
type Expr interface {
	Span() Span
}

// Leaf is a single predicate.
type Leaf struct {
	Kind  LeafKind
	Ref   string    // node path (LeafState, LeafEvent) or limit name (LeafLimit)
	Event string    // LeafEvent only
	Op    CompareOp // LeafState, LeafLimit
	State string    // LeafState only
	Value int       // LeafLimit only
	Src   Span
}

func (l *Leaf) Span() Span { return l.Src }

// Not negates its operand.
type Not struct {
	X   Expr
	Src Span
}

func (n *Not) Span() Span { return n.Src }

// And is the conjunction of two or more operands.
type And struct {
	Xs  []Expr
	Src Span
}

func (a *And) Span() Span { return a.Src }

// Or is the disjunction of two or more operands.
type Or struct {
	Xs  []Expr
	Src Span
}

func (o *Or) Span() Span { return o.Src }

// ParseError reports a malformed expression with the byte offset of the
// offending token. It is a result, not a panic: sibling nodes keep
// evaluating when one expression fails to parse.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trigger parse error at offset %d: %s", e.Pos, e.Message)
}
