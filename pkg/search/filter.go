package search

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ectop-dev/ectop/pkg/cache"
)

// StateFilter is the cycling view filter from the tree sidebar:
// All → Aborted → Active → Suspended → All.
type StateFilter int

const (
	FilterAll StateFilter = iota
	FilterAborted
	FilterActive
	FilterSuspended
)

// Next cycles to the following filter.
func (f StateFilter) Next() StateFilter {
	return (f + 1) % 4
}

// Label names the filter for the status line.
func (f StateFilter) Label() string {
	switch f {
	case FilterAborted:
		return "aborted"
	case FilterActive:
		return "active"
	case FilterSuspended:
		return "suspended"
	default:
		return "all"
	}
}

// Matches applies the filter to a single node state.
func (f StateFilter) Matches(s cache.State) bool {
	switch f {
	case FilterAborted:
		return s == cache.StateAborted
	case FilterActive:
		return s == cache.StateActive
	case FilterSuspended:
		return s == cache.StateSuspended
	default:
		return true
	}
}

// Predicate is an arbitrary node inclusion rule, composed by intersection
// with the state filter and the text query.
type Predicate func(cache.Node) bool

// Visible computes the view-level inclusion set for the materialized
// tree: a node is visible when every non-nil rule matches it, or when it
// is the ancestor of a visible descendant — ancestors are never hidden,
// so the tree stays navigable.
func (e *Engine) Visible(f StateFilter, extra Predicate) map[string]bool {
	visible := make(map[string]bool)
	e.cache.Walk(func(n cache.Node) bool {
		if !f.Matches(n.State) {
			return true
		}
		if extra != nil && !extra(n) {
			return true
		}
		visible[n.Path] = true
		for p := cache.ParentPath(n.Path); p != ""; p = cache.ParentPath(p) {
			if visible[p] {
				break
			}
			visible[p] = true
		}
		return true
	})
	return visible
}

// CompileFilter builds a Predicate from an expression over the node
// fields path, name, state, and kind, e.g.
//
//	state == "aborted" && kind == "task"
//	name startsWith "prod_"
func CompileFilter(src string) (Predicate, error) {
	program, err := expr.Compile(src, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return func(n cache.Node) bool {
		out, err := runFilter(program, n)
		if err != nil {
			return false
		}
		return out
	}, nil
}

// filterEnv is the typed environment a filter expression sees.
type filterEnv struct {
	Path  string `expr:"path"`
	Name  string `expr:"name"`
	State string `expr:"state"`
	Kind  string `expr:"kind"`
}

func runFilter(program *vm.Program, n cache.Node) (bool, error) {
	out, err := expr.Run(program, filterEnv{
		Path:  n.Path,
		Name:  n.Name(),
		State: string(n.State),
		Kind:  string(n.Kind),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not yield a boolean")
	}
	return b, nil
}
